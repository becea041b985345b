package main

import (
	"context"
	"fmt"
	"log/slog"

	"chunkvault/internal/audio"
	"chunkvault/internal/blobstore"
	"chunkvault/internal/config"
	"chunkvault/internal/mongostore"
	"chunkvault/internal/server"
	"chunkvault/internal/store"
)

// openBackend opens the configured blob store.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (blobstore.Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not initialized")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Storage.Backend {
	case config.BackendMongo:
		logger.Info("connecting to mongo", "connect_timeout", cfg.Storage.ConnectTimeout)
		st, err := mongostore.Open(ctx, mongostore.Options{
			URI:            cfg.Storage.MongoURI,
			ConnectTimeout: cfg.Storage.ConnectTimeout,
			ChunkSize:      cfg.Storage.ChunkSizeBytes,
			MaxPoolSize:    uint64(cfg.Storage.MaxOpenConns),
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		logger.Info("opening data dir", "path", cfg.Storage.DataDir)
		st, err := store.Open(store.Options{
			DataDir:      cfg.Storage.DataDir,
			ChunkSize:    cfg.Storage.ChunkSizeBytes,
			MaxOpenConns: cfg.Storage.MaxOpenConns,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	}
}

// openNamespace opens the backend and one namespace, falling back to the
// configured defaults for empty names.
func openNamespace(ctx context.Context, cfg *config.Config, db, collection string) (blobstore.Namespace, func(), error) {
	backend, err := openBackend(ctx, cfg, slog.Default().With("component", "store"))
	if err != nil {
		return nil, nil, err
	}
	if db == "" {
		db = cfg.Namespace.DefaultDatabase
	}
	if collection == "" {
		collection = cfg.Namespace.DefaultCollection
	}
	ns, err := backend.Namespace(ctx, db, collection)
	if err != nil {
		_ = backend.Close()
		return nil, nil, err
	}
	return ns, func() { _ = backend.Close() }, nil
}

func serverOptions(cfg *config.Config, addr string) server.Options {
	opts := server.Options{
		Addr:              addr,
		Version:           version,
		ChunkSize:         cfg.Storage.ChunkSizeBytes,
		DefaultDatabase:   cfg.Namespace.DefaultDatabase,
		DefaultCollection: cfg.Namespace.DefaultCollection,
		MaxUploadBytes:    cfg.Upload.MaxUploadBytes,
		MaxConcurrent:     cfg.Upload.MaxConcurrent,
		FilenamePrefix:    cfg.Upload.FilenamePrefix,
		FilenameExtension: cfg.Upload.FilenameExtension,
		RejectEmpty:       cfg.Upload.RejectEmpty,
		DefaultMetadata:   cfg.Upload.Metadata,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
	}
	if cfg.Audio.WAVEnabled {
		opts.WAV = &audio.Format{
			SampleRate:    cfg.Audio.SampleRate,
			BitsPerSample: cfg.Audio.BitsPerSample,
			Channels:      cfg.Audio.Channels,
		}
	}
	return opts
}
