package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"tierstore/internal/api"
	"tierstore/internal/format"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

func writeStructured(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeAttachmentList(attachments []api.AttachmentResponse) error {
	for _, attachment := range attachments {
		if err := writePlain("%s\n", formatAttachmentLine(attachment)); err != nil {
			return err
		}
	}
	return nil
}

func writeAttachmentDetail(attachment api.AttachmentResponse) error {
	lines := []string{
		fmt.Sprintf("id: %d", attachment.ID),
		fmt.Sprintf("name: %s", attachment.Name),
		fmt.Sprintf("location: %s", attachment.Location),
		fmt.Sprintf("size: %s (%d bytes)", humanize.IBytes(uint64(max(attachment.FileSize, 0))), attachment.FileSize),
		fmt.Sprintf("checksum: %s", attachment.Checksum),
		fmt.Sprintf("created_at: %s", formatTime(attachment.CreatedAt)),
		fmt.Sprintf("updated_at: %s", formatTime(attachment.UpdatedAt)),
	}
	if attachment.Mimetype != "" {
		lines = append(lines, fmt.Sprintf("mimetype: %s", attachment.Mimetype))
	}
	if attachment.URL != "" {
		lines = append(lines, fmt.Sprintf("url: %s", attachment.URL))
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func formatAttachmentLine(attachment api.AttachmentResponse) string {
	return fmt.Sprintf("%d [%s] %8s  %s  (%s)",
		attachment.ID,
		attachment.Location,
		humanize.IBytes(uint64(max(attachment.FileSize, 0))),
		attachment.Name,
		humanize.Time(attachment.UpdatedAt),
	)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
