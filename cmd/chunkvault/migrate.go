package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"chunkvault/internal/config"
	"chunkvault/internal/store"
)

func newMigrateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var db, collection string
	var dryRun bool
	var inspect bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run or inspect SQLite collection schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Storage.Backend != config.BackendSQLite {
				return fmt.Errorf("migrate applies to the sqlite backend only (storage.backend=%s)", cfg.Storage.Backend)
			}
			if db == "" {
				db = cfg.Namespace.DefaultDatabase
			}
			if collection == "" {
				collection = cfg.Namespace.DefaultCollection
			}

			backend, err := openBackend(cmd.Context(), cfg, slog.Default().With("component", "store"))
			if err != nil {
				return err
			}
			defer backend.Close()
			st, ok := backend.(*store.Store)
			if !ok {
				return fmt.Errorf("unexpected backend %s", backend.Name())
			}

			if !inspect && !dryRun {
				// Opening the namespace applies pending migrations.
				if _, err := st.Namespace(cmd.Context(), db, collection); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
			}

			plan, err := st.MigrationStatus(cmd.Context(), db, collection)
			if err != nil {
				return fmt.Errorf("inspect migrations: %w", err)
			}
			if *jsonOutput {
				return writeJSON(plan)
			}

			fmt.Printf("Collection: %s/%s\n", db, plan.Collection)
			fmt.Printf("Current version: %d\n", plan.CurrentVersion)
			fmt.Printf("Available version: %d\n", plan.AvailableVersion)
			switch {
			case len(plan.Pending) == 0 && !inspect && !dryRun:
				fmt.Println("Migrations applied successfully.")
			case len(plan.Pending) == 0:
				fmt.Println("No pending migrations.")
			default:
				fmt.Printf("Pending migrations: %d\n", len(plan.Pending))
				for _, m := range plan.Pending {
					fmt.Printf("  %d: %s\n", m.Version, m.Description)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&db, "db", "", "database name (default: namespace.default_database)")
	cmd.Flags().StringVar(&collection, "collection", "", "collection name (default: namespace.default_collection)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show pending migrations without applying")
	cmd.Flags().BoolVar(&inspect, "inspect", false, "show migration status")
	return cmd
}
