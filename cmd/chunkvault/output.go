package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"chunkvault/internal/api"
	"chunkvault/internal/format"
)

var outputFormatter format.Formatter = format.JSONFormatter{Indent: "  "}

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writeJSONTo(w io.Writer, payload any) error {
	return outputFormatter.Write(w, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeFileList(files []api.FileEntry) error {
	for _, file := range files {
		if err := writePlain("%s\n", formatFileLine(file)); err != nil {
			return err
		}
	}
	return nil
}

func formatFileLine(file api.FileEntry) string {
	return fmt.Sprintf("%s  %10d  %s  %s", file.FileID, file.Length, formatUploadDate(file.UploadDate), file.Filename)
}

func formatUploadDate(value string) string {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return formatTime(t)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
