// Package blobstore persists blobs as a files record plus an ordered run of
// fixed-size chunks, scoped by a (database, collection) namespace.
package blobstore

import (
	"context"
	"time"

	"chunkvault/internal/models"
)

// Backend opens namespace handles on one backing store. Implementations are
// safe for concurrent use; connections are pooled underneath.
type Backend interface {
	// Namespace returns a request-scoped handle for db/collection. It checks
	// reachability and fails with *ConnectivityError when the store is down.
	Namespace(ctx context.Context, db, collection string) (Namespace, error)
	Name() string
	Close() error
}

// Namespace is the blob surface of one (database, collection) pair.
type Namespace interface {
	OpenWrite(ctx context.Context, opts WriteOptions) (WriteSession, error)
	Resolve(ctx context.Context, id string) (models.Blob, error)
	OpenRead(ctx context.Context, id string) (ChunkReader, error)
	List(ctx context.Context) ([]models.Blob, error)
	SweepOrphans(ctx context.Context, olderThan time.Duration) (SweepResult, error)
}

// WriteOptions describes a blob about to be written.
type WriteOptions struct {
	Name        string
	ContentType string
	Metadata    map[string]string
	ChunkSize   int
}

// WriteSession accumulates chunks of one blob until it is finalized.
// Chunks are appended strictly in order and must not be appended
// concurrently.
type WriteSession interface {
	AppendChunk(ctx context.Context, payload []byte) error
	// Finalize commits the blob as immutable. It may be called once.
	Finalize(ctx context.Context) (models.Blob, error)
	// Abort discards every chunk written so far. Aborting a closed session
	// is a no-op.
	Abort(ctx context.Context) error
}

// ChunkReader is a finite, forward-only sequence of a blob's chunks in
// ascending index order. Next returns io.EOF once every chunk was read.
// Close releases the underlying cursor and may be called at any point.
type ChunkReader interface {
	Next(ctx context.Context) (models.Chunk, error)
	Close() error
}

// SweepResult reports one orphan sweep.
type SweepResult struct {
	Sessions       int   `json:"sessions"`
	DeletedChunks  int64 `json:"deleted_chunks"`
	ReclaimedBytes int64 `json:"reclaimed_bytes"`
}
