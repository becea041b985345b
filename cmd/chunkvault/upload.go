package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"chunkvault/internal/api"
	"chunkvault/internal/config"
)

func newUploadCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var ns api.Namespace
	var filename string
	var meta []string

	cmd := &cobra.Command{
		Use:   "upload [file]",
		Short: "Upload a file, or stdin when no file or - is given",
		Args:  requireAtMostArgs(1, "at most one file can be uploaded"),
		RunE: func(cmd *cobra.Command, args []string) error {
			metadata, err := parseMetadata(meta)
			if err != nil {
				return err
			}

			var body io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				body = f
				if filename == "" {
					filename = filepath.Base(args[0])
				}
			}

			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.Upload(cmd.Context(), ns, body, api.UploadRequest{
					Filename: filename,
					Metadata: metadata,
				})
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("%s  %d bytes  %s\n", resp.FileID, resp.Size, resp.Filename)
			})
		},
	}

	addNamespaceFlags(cmd, &ns)
	cmd.Flags().StringVar(&filename, "filename", "", "stored filename (default: file base name or a generated name)")
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "metadata key=value (repeatable)")
	return cmd
}

func addNamespaceFlags(cmd *cobra.Command, ns *api.Namespace) {
	cmd.Flags().StringVar(&ns.DB, "db", "", "database name (default: server default)")
	cmd.Flags().StringVar(&ns.Collection, "collection", "", "collection name (default: server default)")
}
