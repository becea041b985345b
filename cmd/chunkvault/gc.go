package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"chunkvault/internal/config"
)

func newGCCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var db, collection string
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete chunks left behind by uploads that never finalized",
		Args:  requireExactlyArgs(0, "gc takes no arguments"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan < 0 {
				return fmt.Errorf("--older-than must be >= 0")
			}
			if !cmd.Flags().Changed("older-than") {
				olderThan = cfg.Storage.OrphanGrace
			}

			ns, closeStore, err := openNamespace(cmd.Context(), cfg, db, collection)
			if err != nil {
				return err
			}
			defer closeStore()

			result, err := ns.SweepOrphans(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(result)
			}
			return writePlain("removed %d chunks from %d abandoned uploads (%d bytes)\n",
				result.DeletedChunks, result.Sessions, result.ReclaimedBytes)
		},
	}

	cmd.Flags().StringVar(&db, "db", "", "database name (default: namespace.default_database)")
	cmd.Flags().StringVar(&collection, "collection", "", "collection name (default: namespace.default_collection)")
	cmd.Flags().DurationVar(&olderThan, "older-than", config.DefaultOrphanGrace, "only sweep uploads idle for at least this long (default: storage.orphan_grace)")
	return cmd
}
