// Package store is the SQLite backend of the blob store. Every namespace
// database is one SQLite file under the data directory; every collection
// owns a files table and a chunks table.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"chunkvault/internal/blobstore"
	"chunkvault/internal/chunk"
)

const (
	backendName     = "sqlite"
	busyTimeoutMS   = 5000
	maxOpenConns    = 8
	maxIdleConns    = 4
	connMaxLifetime = 5 * time.Minute
	dbFileExt       = ".db"
)

// Options configures the SQLite backend.
type Options struct {
	DataDir      string
	ChunkSize    int
	MaxOpenConns int
}

// Store is a blobstore.Backend over SQLite files. Connection pools are
// opened lazily per database and shared by every request.
type Store struct {
	dataDir      string
	chunkSize    int
	maxOpenConns int

	mu    sync.Mutex
	dbs   map[string]*sql.DB
	ready map[string]struct{}
}

var _ blobstore.Backend = (*Store)(nil)

// Open prepares the data directory. Databases are opened on first use.
func Open(opts Options) (*Store, error) {
	dir := strings.TrimSpace(opts.DataDir)
	if dir == "" {
		return nil, fmt.Errorf("data dir is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = chunk.DefaultSize
	}
	conns := opts.MaxOpenConns
	if conns <= 0 {
		conns = maxOpenConns
	}
	return &Store{
		dataDir:      abs,
		chunkSize:    chunkSize,
		maxOpenConns: conns,
		dbs:          map[string]*sql.DB{},
		ready:        map[string]struct{}{},
	}, nil
}

// Name returns the backend identifier.
func (s *Store) Name() string {
	return backendName
}

// DataDir returns the absolute data directory.
func (s *Store) DataDir() string {
	return s.dataDir
}

// Namespace returns a handle for db/collection, creating the collection
// tables on first use.
func (s *Store) Namespace(ctx context.Context, db, collection string) (blobstore.Namespace, error) {
	if s == nil {
		return nil, fmt.Errorf("sqlite backend is not configured")
	}
	db, collection, err := blobstore.ValidateNamespace(db, collection)
	if err != nil {
		return nil, err
	}

	conn, err := s.database(db)
	if err != nil {
		return nil, &blobstore.ConnectivityError{Backend: backendName, Err: err}
	}
	if err := conn.PingContext(ctx); err != nil {
		return nil, &blobstore.ConnectivityError{Backend: backendName, Err: err}
	}
	if err := s.ensureCollection(ctx, conn, db, collection); err != nil {
		return nil, err
	}

	return newNamespace(conn, collection, s.chunkSize), nil
}

// MigrationStatus reports the schema state of db/collection without
// applying migrations.
func (s *Store) MigrationStatus(ctx context.Context, db, collection string) (*MigrationStatus, error) {
	db, collection, err := blobstore.ValidateNamespace(db, collection)
	if err != nil {
		return nil, err
	}
	conn, err := s.database(db)
	if err != nil {
		return nil, &blobstore.ConnectivityError{Backend: backendName, Err: err}
	}
	return MigrationPlan(ctx, conn, collection)
}

// Close closes every pooled database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, db := range s.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, name)
	}
	s.ready = map[string]struct{}{}
	return firstErr
}

func (s *Store) database(name string) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if db, ok := s.dbs[name]; ok {
		return db, nil
	}

	dsn, err := sqliteDSN(filepath.Join(s.dataDir, name+dbFileExt))
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	configureDB(db, s.maxOpenConns)
	s.dbs[name] = db
	return db, nil
}

func (s *Store) ensureCollection(ctx context.Context, db *sql.DB, dbName, collection string) error {
	key := dbName + "\x00" + collection

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ready[key]; ok {
		return nil
	}
	if err := runMigrations(ctx, db, collection); err != nil {
		return fmt.Errorf("prepare collection %s.%s: %w", dbName, collection, err)
	}
	s.ready[key] = struct{}{}
	return nil
}

func configureDB(db *sql.DB, conns int) {
	// Pragmas ride on the DSN so every pooled connection gets them.
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(min(maxIdleConns, conns))
	db.SetConnMaxLifetime(connMaxLifetime)
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("db path is required")
	}
	pragmas := []string{
		"_pragma=journal_mode(WAL)",
		"_pragma=synchronous(NORMAL)",
		fmt.Sprintf("_pragma=busy_timeout(%d)", busyTimeoutMS),
	}
	return "file:" + path + "?" + strings.Join(pragmas, "&"), nil
}
