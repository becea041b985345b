package main

import (
	"github.com/spf13/cobra"

	"chunkvault/internal/api"
	"chunkvault/internal/config"
)

func newListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var ns api.Namespace

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored blobs",
		Args:  requireExactlyArgs(0, "list takes no arguments"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.List(cmd.Context(), ns)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writeFileList(resp.Files)
			})
		},
	}

	addNamespaceFlags(cmd, &ns)
	return cmd
}
