package main

import (
	"github.com/spf13/cobra"

	"chunkvault/internal/api"
	"chunkvault/internal/config"
)

func newInfoCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show server settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.GetInfo(cmd.Context())
				if err != nil {
					return err
				}

				if *jsonOutput {
					return writeJSON(resp)
				}

				_ = writePlain("version: %s\n", resp.Version)
				_ = writePlain("backend: %s\n", resp.Backend)
				_ = writePlain("chunk_size: %d\n", resp.ChunkSize)
				_ = writePlain("default_namespace: %s/%s\n", resp.DefaultDatabase, resp.DefaultCollection)
				_ = writePlain("max_upload_bytes: %d\n", resp.MaxUploadBytes)
				_ = writePlain("wav_enabled: %t\n", resp.WAVEnabled)
				return nil
			})
		},
	}
	return cmd
}
