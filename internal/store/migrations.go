package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"chunkvault/internal/blobstore"
)

// Migration is one schema step applied to every collection. SQL uses
// {{...}} placeholders that expand to quoted identifiers of the collection
// being migrated.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// MigrationStatus reports the applied and available versions of one collection.
type MigrationStatus struct {
	Collection       string          `json:"collection"`
	CurrentVersion   int             `json:"current_version"`
	AvailableVersion int             `json:"available_version"`
	Pending          []MigrationInfo `json:"pending"`
}

// MigrationInfo describes a single migration.
type MigrationInfo struct {
	Version     int    `json:"version"`
	Description string `json:"description"`
}

// migrations is the ordered list of collection schema migrations.
var migrations = []Migration{
	{
		Version:     1,
		Description: "files and chunks tables",
		SQL: `
CREATE TABLE IF NOT EXISTS {{files}} (
  id TEXT PRIMARY KEY,
  filename TEXT NOT NULL,
  length INTEGER NOT NULL,
  chunk_size INTEGER NOT NULL,
  content_type TEXT,
  metadata_json TEXT,
  digest TEXT,
  upload_date TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS {{chunks}} (
  files_id TEXT NOT NULL,
  n INTEGER NOT NULL,
  data BLOB NOT NULL,
  created_at TEXT NOT NULL,
  PRIMARY KEY (files_id, n)
);
`,
	},
	{
		Version:     2,
		Description: "chunk age index for orphan sweeps",
		SQL: `
CREATE INDEX IF NOT EXISTS {{prefix_chunks_created}} ON {{chunks}}(created_at);
`,
	},
}

const migrationsTableSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
  collection TEXT NOT NULL,
  version INTEGER NOT NULL,
  applied_at TEXT NOT NULL,
  PRIMARY KEY (collection, version)
);
`

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func expandMigration(sqlText, collection string) string {
	return strings.NewReplacer(
		"{{files}}", quoteIdent(blobstore.FilesCollection(collection)),
		"{{chunks}}", quoteIdent(blobstore.ChunksCollection(collection)),
		"{{prefix_chunks_created}}", quoteIdent(collection+".chunks_created_at"),
	).Replace(sqlText)
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, migrationsTableSQL)
	return err
}

// currentVersion returns the highest applied version for collection, or 0.
func currentVersion(ctx context.Context, db *sql.DB, collection string) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations WHERE collection = ?", collection).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func sortedMigrations() []Migration {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return sorted
}

// runMigrations applies all pending migrations for collection in order.
func runMigrations(ctx context.Context, db *sql.DB, collection string) error {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	current, err := currentVersion(ctx, db, collection)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range sortedMigrations() {
		if m.Version <= current {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx, expandMigration(m.SQL, collection)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}

		// Another process may have migrated the collection concurrently.
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO schema_migrations (collection, version, applied_at) VALUES (?, ?, datetime('now'))", collection, m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// MigrationPlan returns the migration status of collection without applying anything.
func MigrationPlan(ctx context.Context, db *sql.DB, collection string) (*MigrationStatus, error) {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}

	current, err := currentVersion(ctx, db, collection)
	if err != nil {
		return nil, err
	}

	status := &MigrationStatus{Collection: collection, CurrentVersion: current, Pending: []MigrationInfo{}}
	for _, m := range sortedMigrations() {
		if m.Version > status.AvailableVersion {
			status.AvailableVersion = m.Version
		}
		if m.Version > current {
			status.Pending = append(status.Pending, MigrationInfo{Version: m.Version, Description: m.Description})
		}
	}
	return status, nil
}
