package main

import (
	"github.com/spf13/cobra"

	"chunkvault/internal/config"
	"chunkvault/internal/transfer"
)

func newVerifyCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var db, collection string

	cmd := &cobra.Command{
		Use:   "verify <file-id>",
		Short: "Replay a blob from the store and check its length and digest",
		Args:  requireFileID,
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, closeStore, err := openNamespace(cmd.Context(), cfg, db, collection)
			if err != nil {
				return err
			}
			defer closeStore()

			result, err := transfer.Verify(cmd.Context(), ns, args[0])
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(result)
			}
			_ = writePlain("file_id: %s\n", result.Blob.ID)
			_ = writePlain("filename: %s\n", result.Blob.Name)
			_ = writePlain("chunks: %d\n", result.Chunks)
			_ = writePlain("bytes: %d\n", result.Bytes)
			_ = writePlain("digest: %s\n", result.Digest)
			if !result.DigestRecorded {
				_ = writePlain("note: no digest recorded; length checked only\n")
			}
			return writePlain("ok\n")
		},
	}

	cmd.Flags().StringVar(&db, "db", "", "database name (default: namespace.default_database)")
	cmd.Flags().StringVar(&collection, "collection", "", "collection name (default: namespace.default_collection)")
	return cmd
}
