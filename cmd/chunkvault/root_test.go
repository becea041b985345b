package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"chunkvault/internal/api"
	"chunkvault/internal/config"
	"chunkvault/internal/server"
)

func TestRootCommands(t *testing.T) {
	cfg := config.Default()
	root := newRootCmd(&cfg)

	want := []string{"srv", "upload", "download", "list", "info", "verify", "gc", "migrate", "config"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == nil || cmd.Name() != name {
			t.Fatalf("expected %s command, got %v (%v)", name, cmd, err)
		}
	}
	if root.PersistentFlags().Lookup("log-level") == nil || root.PersistentFlags().Lookup("json") == nil {
		t.Fatal("expected persistent --log-level and --json flags")
	}
}

func TestServerOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Upload.Metadata = map[string]string{"site": "lab"}

	opts := serverOptions(&cfg, "127.0.0.1:5001")
	if opts.Addr != "127.0.0.1:5001" || opts.ChunkSize != config.DefaultChunkSize {
		t.Fatalf("unexpected options %#v", opts)
	}
	if opts.DefaultDatabase != config.DefaultDatabase || opts.DefaultCollection != config.DefaultCollection {
		t.Fatalf("unexpected namespace defaults %#v", opts)
	}
	if opts.RejectEmpty || opts.MaxUploadBytes != config.DefaultMaxUploadBytes || opts.DefaultMetadata["site"] != "lab" {
		t.Fatalf("unexpected upload options %#v", opts)
	}
	if opts.WAV != nil {
		t.Fatal("wav must stay disabled by default")
	}

	cfg.Audio.WAVEnabled = true
	cfg.Audio.SampleRate = 8000
	opts = serverOptions(&cfg, "127.0.0.1:5001")
	if opts.WAV == nil || opts.WAV.SampleRate != 8000 || opts.WAV.BitsPerSample != config.DefaultBitsPerSample {
		t.Fatalf("unexpected wav options %#v", opts.WAV)
	}
}

func TestDefaultConfigAcceptsEmptyUpload(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	backend, err := openBackend(t.Context(), &cfg, logger)
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	handler := server.New(backend, serverOptions(&cfg, "127.0.0.1:0"), logger).Handler()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/upload", http.NoBody))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty upload, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.UploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if resp.Size != 0 {
		t.Fatalf("expected empty blob, got %#v", resp)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download?file_id="+resp.FileID, nil))
	if w.Code != http.StatusOK || w.Body.Len() != 0 {
		t.Fatalf("expected empty 200 download, got %d with %d bytes", w.Code, w.Body.Len())
	}
}

func TestOpenNamespaceSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()

	ns, closeStore, err := openNamespace(t.Context(), &cfg, "", "")
	if err != nil {
		t.Fatalf("open namespace: %v", err)
	}
	defer closeStore()

	blobs, err := ns.List(t.Context())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(blobs) != 0 {
		t.Fatalf("expected empty namespace, got %d blobs", len(blobs))
	}

	cfg.Storage.Backend = config.BackendMongo
	cfg.Storage.MongoURI = ""
	if _, _, err := openNamespace(t.Context(), &cfg, "", ""); err == nil {
		t.Fatal("expected mongo without uri to fail validation")
	}
}
