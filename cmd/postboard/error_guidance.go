package main

import (
	"context"
	"errors"
	"net"

	"postboard/internal/api"
	"postboard/internal/store"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	if errors.Is(err, store.ErrSchemaMissing) {
		lines = append(lines, "hint: run postboard migrate, or start srv without --no-migrate.")
		return uniqueLines(lines)
	}
	if errors.Is(err, errDSNRequired) {
		lines = append(lines, "hint: set POSTBOARD_DB (environment or .env) or db_dsn in ~/.postboard.toml.")
		return uniqueLines(lines)
	}
	if errors.Is(err, api.ErrIncompleteSubmission) {
		lines = append(lines, "hint: pass --body, --user and --avatar.")
		return uniqueLines(lines)
	}
	if errors.Is(err, api.ErrInvalidAvatarURL) {
		lines = append(lines, "hint: --avatar must be an absolute http:// or https:// URL.")
		return uniqueLines(lines)
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "avatar_fetch_failed":
			lines = append(lines, "hint: the server could not download the avatar; check the URL is reachable from the server.")
		case "request_too_large":
			lines = append(lines, "hint: the post exceeds forms.max_upload_bytes or forms.max_field_bytes on the server.")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify POSTBOARD_API_URL points to a postboard server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase POSTBOARD_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a postboard server is running at POSTBOARD_API_URL.",
			"hint: start local server manually with: postboard srv",
			"hint: you can increase POSTBOARD_HTTP_TIMEOUT for slower environments.",
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
