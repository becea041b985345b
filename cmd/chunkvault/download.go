package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"chunkvault/internal/api"
	"chunkvault/internal/config"
)

func newDownloadCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var ns api.Namespace
	var output string
	var format string

	cmd := &cobra.Command{
		Use:   "download <file-id>",
		Short: "Download a blob to a file or stdout",
		Args:  requireFileID,
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID := args[0]

			return withClient(cfg, func(client *api.Client) error {
				var w io.Writer = cmd.OutOrStdout()
				var tmp *os.File
				if output != "" && output != "-" {
					var err error
					tmp, err = os.CreateTemp(filepath.Dir(output), ".chunkvault-download-*")
					if err != nil {
						return err
					}
					defer os.Remove(tmp.Name())
					defer tmp.Close()
					w = tmp
				}

				result, err := client.Download(cmd.Context(), ns, fileID, format, w)
				if err != nil {
					return err
				}
				if tmp != nil {
					if err := tmp.Close(); err != nil {
						return err
					}
					if err := os.Rename(tmp.Name(), output); err != nil {
						return fmt.Errorf("write %s: %w", output, err)
					}
				}

				if *jsonOutput {
					return writeJSONTo(cmd.ErrOrStderr(), result)
				}
				if tmp != nil {
					return writePlain("%s  %d bytes  -> %s\n", result.Filename, result.Written, output)
				}
				return nil
			})
		},
	}

	addNamespaceFlags(cmd, &ns)
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().StringVar(&format, "format", "", "download format (raw or wav)")
	return cmd
}
