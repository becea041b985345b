package main

import (
	"context"
	"errors"
	"net"

	"chunkvault/internal/api"
	"chunkvault/internal/blobstore"
	"chunkvault/internal/chunk"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "resource_exhausted":
			lines = append(lines, "hint: too many uploads in flight; retry shortly or raise upload.max_concurrent.")
		case "request_too_large":
			lines = append(lines, "hint: the payload exceeds upload.max_upload_bytes on the server.")
		case "unavailable":
			lines = append(lines, "hint: the server cannot reach its backing store; check storage.mongo_uri or storage.data_dir.")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify CHUNKVAULT_API_URL points to a chunkvault server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if blobstore.IsConnectivityError(err) {
		lines = append(lines, "hint: check storage.backend and its connection settings with: chunkvault config get storage.backend")
		return uniqueLines(lines)
	}

	if chunk.IsIntegrityError(err) {
		lines = append(lines, "hint: the blob's chunks disagree with its files record; it cannot be served intact.")
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase CHUNKVAULT_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a chunkvault server is running at CHUNKVAULT_API_URL.",
			"hint: start a server manually with: chunkvault srv",
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
