package main

import (
	"context"
	"errors"
	"net"

	"tierstore/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "forbidden":
			lines = append(lines, "hint: set TIERSTORE_ADMIN_TOKEN to a token whose hash is in admin.token_hash.")
		case "resource_exhausted":
			lines = append(lines, "hint: too many invalid admin tokens; wait a few minutes before retrying.")
		case "unavailable":
			lines = append(lines, "hint: the object store is unreachable; check s3.endpoint_url and network access.")
		case "config_error":
			lines = append(lines, "hint: storage settings are incomplete; inspect them with: tierstore settings list")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify TIERSTORE_API_URL points to a tierstore server.")
		}
		if apiErr.Retryable() {
			lines = append(lines, "hint: the failure is transient; retrying later may succeed.")
		} else if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase TIERSTORE_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a tierstore server is running at TIERSTORE_API_URL.",
			"hint: start local server manually with: tierstore srv",
			"hint: you can increase TIERSTORE_HTTP_TIMEOUT for slower environments.",
		)
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
