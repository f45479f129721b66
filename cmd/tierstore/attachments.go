package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tierstore/internal/api"
	"tierstore/internal/config"
	"tierstore/internal/models"
)

func newPutCmd(cfg *config.Config, structured *bool) *cobra.Command {
	var meta api.AttachmentUpload

	cmd := &cobra.Command{
		Use:   "put <path|->",
		Short: "Store a file as a new attachment",
		Args:  positionalArgs("path"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if meta.Tier != "" {
				if _, err := models.ParseTier(meta.Tier); err != nil {
					return err
				}
			}

			var content io.Reader = os.Stdin
			if path := args[0]; path != "-" {
				file, err := os.Open(path)
				if err != nil {
					return err
				}
				defer file.Close()
				content = file
				if strings.TrimSpace(meta.Name) == "" {
					meta.Name = filepath.Base(path)
				}
			}
			if strings.TrimSpace(meta.Name) == "" {
				return fmt.Errorf("--name is required when reading stdin")
			}

			return withClient(cfg, func(client *api.Client) error {
				attachment, err := client.UploadAttachment(cmd.Context(), meta, content)
				if err != nil {
					return err
				}
				if *structured {
					return writeStructured(attachment)
				}
				return writeAttachmentDetail(attachment)
			})
		},
	}

	cmd.Flags().StringVar(&meta.Name, "name", "", "attachment name (default: file name)")
	cmd.Flags().StringVar(&meta.URL, "url", "", "source URL")
	cmd.Flags().StringVar(&meta.Mimetype, "mimetype", "", "media type (default: detected)")
	cmd.Flags().StringVar(&meta.Tier, "tier", "", "storage tier override (db, file, s3)")
	return cmd
}

func newGetCmd(cfg *config.Config) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Write attachment content to stdout or a file",
		Args:  positionalArgs("id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				if output == "" || output == "-" {
					_, err := client.DownloadContent(cmd.Context(), id, os.Stdout)
					return err
				}

				tmp, err := os.CreateTemp(filepath.Dir(output), ".tierstore-get-*")
				if err != nil {
					return err
				}
				defer os.Remove(tmp.Name())

				n, err := client.DownloadContent(cmd.Context(), id, tmp)
				if closeErr := tmp.Close(); err == nil {
					err = closeErr
				}
				if err != nil {
					return err
				}
				if err := os.Rename(tmp.Name(), output); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "wrote %s to %s\n", humanize.IBytes(uint64(n)), output)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

func newShowCmd(cfg *config.Config, structured *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id> [<id>...]",
		Short: "Show attachment details",
		Args:  atLeastOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				attachments := make([]api.AttachmentResponse, 0, len(ids))
				for _, id := range ids {
					attachment, err := client.GetAttachment(cmd.Context(), id)
					if err != nil {
						return err
					}
					attachments = append(attachments, attachment)
				}

				if *structured {
					if len(attachments) == 1 {
						return writeStructured(attachments[0])
					}
					return writeStructured(attachments)
				}
				for i, attachment := range attachments {
					if i > 0 {
						_ = writePlain("\n")
					}
					if err := writeAttachmentDetail(attachment); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newListCmd(cfg *config.Config, structured *bool) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List attachments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				attachments, err := client.ListAttachments(cmd.Context(), limit, offset)
				if err != nil {
					return err
				}
				if *structured {
					return writeStructured(attachments)
				}
				return writeAttachmentList(attachments)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "limit results")
	cmd.Flags().IntVar(&offset, "offset", 0, "offset results")
	return cmd
}

func newRemoveCmd(cfg *config.Config, structured *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id> [<id>...]",
		Aliases: []string{"delete"},
		Short:   "Delete attachments",
		Args:    atLeastOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.DeleteAttachments(cmd.Context(), ids)
				if err != nil {
					return err
				}
				if *structured {
					return writeStructured(resp)
				}
				return writePlain("deleted %d of %d attachments\n", len(resp.IDs), len(ids))
			})
		},
	}
}

func newMoveCmd(cfg *config.Config, structured *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <tier>",
		Short: "Move one attachment to another storage tier",
		Args:  positionalArgs("id", "tier"),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			tier, err := models.ParseTier(args[1])
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				attachment, err := client.MoveAttachment(cmd.Context(), id, string(tier))
				if err != nil {
					return err
				}
				if *structured {
					return writeStructured(attachment)
				}
				return writePlain("%s\n", formatAttachmentLine(attachment))
			})
		},
	}
}

func newMimetypeCmd(cfg *config.Config, structured *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "mimetype <id> [<id>...]",
		Short: "Recompute the media type of attachments",
		Args:  atLeastOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				updated := make([]api.AttachmentResponse, 0, len(ids))
				for _, id := range ids {
					attachment, err := client.RecomputeMimetype(cmd.Context(), id)
					if err != nil {
						return err
					}
					updated = append(updated, attachment)
				}
				if *structured {
					return writeStructured(updated)
				}
				for _, attachment := range updated {
					if err := writePlain("%d %s\n", attachment.ID, attachment.Mimetype); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
