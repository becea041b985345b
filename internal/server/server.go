package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chunkvault/internal/audio"
	"chunkvault/internal/blobstore"
	"chunkvault/internal/chunk"
)

const (
	defaultDatabase        = "Anonymeye"
	defaultCollection      = "audio_files"
	defaultMaxUploadBytes  = 512 << 20
	defaultMaxConcurrent   = 16
	defaultFilenamePrefix  = "audio_"
	defaultFilenameExt     = ".raw"
	defaultShutdownTimeout = 15 * time.Second
	readHeaderTimeout      = 5 * time.Second
	readTimeout            = 10 * time.Minute
	writeTimeout           = 10 * time.Minute
	idleTimeout            = 60 * time.Second
)

// Options configures the gateway. Zero values fall back to defaults.
type Options struct {
	Addr              string
	Version           string
	ChunkSize         int
	DefaultDatabase   string
	DefaultCollection string
	MaxUploadBytes    int64
	MaxConcurrent     int
	FilenamePrefix    string
	FilenameExtension string
	RejectEmpty       bool
	DefaultMetadata   map[string]string
	// WAV enables format=wav downloads when non-nil.
	WAV *audio.Format

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
}

// Server wraps HTTP handlers for the chunkvault gateway.
type Server struct {
	opts          Options
	backend       blobstore.Backend
	logger        *slog.Logger
	uploadLimiter chan struct{}
	now           func() time.Time
}

// New creates a new server instance over backend.
func New(backend blobstore.Backend, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	opts = withDefaults(opts)
	return &Server{
		opts:          opts,
		backend:       backend,
		logger:        logger,
		uploadLimiter: make(chan struct{}, opts.MaxConcurrent),
		now:           time.Now,
	}
}

func withDefaults(opts Options) Options {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = chunk.DefaultSize
	}
	if strings.TrimSpace(opts.DefaultDatabase) == "" {
		opts.DefaultDatabase = defaultDatabase
	}
	if strings.TrimSpace(opts.DefaultCollection) == "" {
		opts.DefaultCollection = defaultCollection
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.FilenamePrefix == "" && opts.FilenameExtension == "" {
		opts.FilenamePrefix = defaultFilenamePrefix
		opts.FilenameExtension = defaultFilenameExt
	}
	if opts.ReadHeaderTimeout <= 0 {
		opts.ReadHeaderTimeout = readHeaderTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = readTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = writeTimeout
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = idleTimeout
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	opts.DefaultMetadata = maps.Clone(opts.DefaultMetadata)
	return opts
}

// Handler returns the routed handler with request logging applied.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.routes())
}

// ListenAndServe serves until ctx is canceled, then drains in-flight
// requests for up to the shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
		ReadTimeout:       s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
		IdleTimeout:       s.opts.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log().Info("starting server", "addr", s.opts.Addr, "backend", s.backend.Name())
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log().Info("shutting down server", "timeout", s.opts.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAddr converts a base URL or host:port into a listen address.
func ListenAddr(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("listen address is required")
	}
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host, nil
	}
	if _, _, err := net.SplitHostPort(raw); err != nil {
		return "", fmt.Errorf("invalid listen address %q: %w", raw, err)
	}
	return raw, nil
}

func (s *Server) acquireLimiter(limiter chan struct{}, w http.ResponseWriter, r *http.Request, name string) bool {
	if limiter == nil {
		return true
	}
	select {
	case limiter <- struct{}{}:
		return true
	default:
		err := apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("too many concurrent %s requests", name),
		}
		s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
		return false
	}
}

func (s *Server) releaseLimiter(limiter chan struct{}) {
	if limiter == nil {
		return
	}
	select {
	case <-limiter:
	default:
	}
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
