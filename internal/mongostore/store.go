// Package mongostore is the MongoDB backend of the blob store. It writes the
// GridFS layout directly so files uploaded here stay readable by any GridFS
// client, and files written by GridFS drivers can be downloaded.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"chunkvault/internal/blobstore"
	"chunkvault/internal/chunk"
)

const (
	backendName           = "mongo"
	defaultConnectTimeout = 5 * time.Second
)

// Options configures the MongoDB backend.
type Options struct {
	URI            string
	ConnectTimeout time.Duration
	ChunkSize      int
	MaxPoolSize    uint64
}

// Store is a blobstore.Backend over one mongo.Client shared by every request.
type Store struct {
	client         *mongo.Client
	connectTimeout time.Duration
	chunkSize      int

	mu    sync.Mutex
	ready map[string]struct{}
}

var _ blobstore.Backend = (*Store)(nil)

// Open creates the client. The driver connects lazily, so an unreachable
// server surfaces on the first Namespace call rather than here.
func Open(ctx context.Context, opts Options) (*Store, error) {
	uri := strings.TrimSpace(opts.URI)
	if uri == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = chunk.DefaultSize
	}

	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
	if opts.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(opts.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, &blobstore.ConnectivityError{Backend: backendName, Err: err}
	}
	return &Store{
		client:         client,
		connectTimeout: timeout,
		chunkSize:      chunkSize,
		ready:          map[string]struct{}{},
	}, nil
}

// Name returns the backend identifier.
func (s *Store) Name() string {
	return backendName
}

// Namespace pings the server and returns a handle on db/collection, creating
// the GridFS indexes on first use.
func (s *Store) Namespace(ctx context.Context, db, collection string) (blobstore.Namespace, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("mongo backend is not configured")
	}
	db, collection, err := blobstore.ValidateNamespace(db, collection)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()
	if err := s.client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, &blobstore.ConnectivityError{Backend: backendName, Err: err}
	}

	database := s.client.Database(db)
	ns := &namespace{
		files:     database.Collection(blobstore.FilesCollection(collection)),
		chunks:    database.Collection(blobstore.ChunksCollection(collection)),
		chunkSize: s.chunkSize,
	}
	if err := s.ensureIndexes(ctx, db+"\x00"+collection, ns); err != nil {
		return nil, err
	}
	return ns, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.connectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context, key string, ns *namespace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ready[key]; ok {
		return nil
	}
	_, err := ns.chunks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "files_id", Value: 1}, {Key: "n", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return wrapErr(fmt.Errorf("create chunks index: %w", err))
	}
	_, err = ns.files.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "filename", Value: 1}, {Key: "uploadDate", Value: 1}},
	})
	if err != nil {
		return wrapErr(fmt.Errorf("create files index: %w", err))
	}
	s.ready[key] = struct{}{}
	return nil
}

// wrapErr marks network and server-selection failures as connectivity errors.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return &blobstore.ConnectivityError{Backend: backendName, Err: err}
	}
	return err
}
