package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("expected default API URL, got %q", cfg.APIURL)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
	if cfg.Storage.Backend != BackendSQLite {
		t.Fatalf("expected sqlite backend, got %q", cfg.Storage.Backend)
	}
	if cfg.Storage.ChunkSizeBytes != 262144 {
		t.Fatalf("expected chunk size 262144, got %d", cfg.Storage.ChunkSizeBytes)
	}
	if cfg.Namespace.DefaultDatabase != "Anonymeye" || cfg.Namespace.DefaultCollection != "audio_files" {
		t.Fatalf("unexpected default namespace %#v", cfg.Namespace)
	}
	if cfg.Upload.FilenamePrefix != "audio_" || cfg.Upload.FilenameExtension != ".raw" {
		t.Fatalf("unexpected default filename parts %#v", cfg.Upload)
	}
	if cfg.Upload.RejectEmpty {
		t.Fatal("expected empty uploads accepted by default")
	}
	if cfg.Audio.WAVEnabled {
		t.Fatal("expected wav transcoding off by default")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".chunkvault.toml")
	if err := os.WriteFile(path, []byte(`api_url = "http://localhost:9999"
log_level = "warn"

[storage]
backend = "mongo"
mongo_uri = "mongodb://db:27017"
connect_timeout = "2s"

[upload.metadata]
site = "lab"
`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://localhost:9999" || cfg.LogLevel != "warn" {
		t.Fatalf("unexpected top-level values %q %q", cfg.APIURL, cfg.LogLevel)
	}
	if cfg.Storage.Backend != BackendMongo || cfg.Storage.MongoURI != "mongodb://db:27017" {
		t.Fatalf("unexpected storage %#v", cfg.Storage)
	}
	if cfg.Storage.ConnectTimeout != 2*time.Second {
		t.Fatalf("expected 2s connect timeout, got %s", cfg.Storage.ConnectTimeout)
	}
	if cfg.Upload.Metadata["site"] != "lab" {
		t.Fatalf("expected default metadata, got %#v", cfg.Upload.Metadata)
	}
	if cfg.Storage.ChunkSizeBytes != DefaultChunkSize {
		t.Fatalf("unset keys should keep defaults, got %d", cfg.Storage.ChunkSizeBytes)
	}
	if len(cfg.LoadedFrom) != 1 || cfg.LoadedFrom[0] != path {
		t.Fatalf("expected loaded-from %s, got %v", path, cfg.LoadedFrom)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".chunkvault.yaml"), []byte(`log_level: debug
namespace:
  default_database: Recorder
upload:
  reject_empty: true
server:
  write_timeout: 90s
`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Default()
	if err := loadDir(dir, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Namespace.DefaultDatabase != "Recorder" || !cfg.Upload.RejectEmpty {
		t.Fatalf("yaml values not applied: %#v", cfg)
	}
	if cfg.Server.WriteTimeout != 90*time.Second {
		t.Fatalf("expected 90s write timeout, got %s", cfg.Server.WriteTimeout)
	}
	if cfg.Namespace.DefaultCollection != DefaultCollection {
		t.Fatalf("expected default collection preserved, got %q", cfg.Namespace.DefaultCollection)
	}
}

func TestLoadDirPrefersTOML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".chunkvault.toml"), []byte("log_level = \"warn\"\n"), 0644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".chunkvault.yaml"), []byte("log_level: error\n"), 0644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	cfg := Default()
	if err := loadDir(dir, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected toml to win, got %q", cfg.LogLevel)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFile("/nonexistent/path/.chunkvault.toml", &cfg); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("defaults should be preserved")
	}
}

func TestLoadFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".chunkvault.toml")
	if err := os.WriteFile(path, []byte("api_url = \n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := Default()
	if err := loadFile(path, &cfg); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestIsAllowedKey(t *testing.T) {
	for _, key := range []string{
		"api_url",
		"log_level",
		"storage.backend",
		"storage.chunk_size_bytes",
		"namespace.default_collection",
		"upload.max_upload_bytes",
		"audio.wav_enabled",
		"server.shutdown_timeout",
	} {
		if !IsAllowedKey(key) {
			t.Fatalf("expected %q to be allowed", key)
		}
	}
	if IsAllowedKey("invalid") {
		t.Fatal("expected 'invalid' to not be allowed")
	}
}

func TestGetEveryAllowedKey(t *testing.T) {
	cfg := Default()
	for _, key := range AllowedKeys() {
		if _, err := cfg.Get(key); err != nil {
			t.Fatalf("Get(%q): %v", key, err)
		}
	}
	if _, err := cfg.Get("invalid"); err == nil {
		t.Fatal("expected error for invalid key")
	}
}

func TestGetKey(t *testing.T) {
	cfg := Default()
	cfg.Storage.ChunkSizeBytes = 1024
	cfg.Upload.RejectEmpty = true
	cfg.Server.ReadTimeout = 3 * time.Minute

	tests := map[string]string{
		"storage.chunk_size_bytes": "1024",
		"upload.reject_empty":      "true",
		"server.read_timeout":      "3m0s",
		"storage.backend":          "sqlite",
	}
	for key, want := range tests {
		got, err := cfg.Get(key)
		if err != nil || got != want {
			t.Fatalf("Get(%q) = %q (err: %v), want %q", key, got, err, want)
		}
	}
}

func TestSetKeyCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.toml")
	if err := SetKey(path, "namespace.default_database", "Recorder"); err != nil {
		t.Fatalf("set: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Namespace.DefaultDatabase != "Recorder" {
		t.Fatalf("expected 'Recorder', got %q", cfg.Namespace.DefaultDatabase)
	}
}

func TestSetKeyUpdatesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing.toml")
	if err := os.WriteFile(path, []byte("log_level = \"warn\"\napi_url = \"http://keep\"\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := SetKey(path, "log_level", "error"); err != nil {
		t.Fatalf("set: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Fatalf("expected 'error', got %q", cfg.LogLevel)
	}
	if cfg.APIURL != "http://keep" {
		t.Fatalf("expected preserved api_url 'http://keep', got %q", cfg.APIURL)
	}
}

func TestSetKeyTypedValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typed.toml")
	for key, value := range map[string]string{
		"storage.chunk_size_bytes": "4096",
		"audio.wav_enabled":        "true",
		"storage.orphan_grace":     "2h",
		"storage.backend":          "MONGO",
	} {
		if err := SetKey(path, key, value); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.ChunkSizeBytes != 4096 || !cfg.Audio.WAVEnabled || cfg.Storage.OrphanGrace != 2*time.Hour || cfg.Storage.Backend != BackendMongo {
		t.Fatalf("typed values not persisted: %#v", cfg)
	}
}

func TestSetKeyYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".chunkvault.yaml")
	if err := os.WriteFile(path, []byte("api_url: http://keep\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := SetKey(path, "upload.max_concurrent", "3"); err != nil {
		t.Fatalf("set: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Upload.MaxConcurrent != 3 || cfg.APIURL != "http://keep" {
		t.Fatalf("unexpected yaml config %#v", cfg)
	}
}

func TestSetKeyRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.toml")
	tests := []struct{ key, value string }{
		{key: "invalid_key", value: "value"},
		{key: "storage.chunk_size_bytes", value: "0"},
		{key: "upload.max_upload_bytes", value: "lots"},
		{key: "audio.wav_enabled", value: "maybe"},
		{key: "server.idle_timeout", value: "soon"},
		{key: "storage.backend", value: "postgres"},
	}
	for _, tt := range tests {
		if err := SetKey(path, tt.key, tt.value); err == nil {
			t.Fatalf("expected error for %s=%s", tt.key, tt.value)
		}
	}
}

func TestConfigDirOverridePaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CHUNKVAULT_CONFIG_DIR", dir)

	globalPath, err := GlobalPath()
	if err != nil {
		t.Fatalf("global path: %v", err)
	}
	if globalPath != filepath.Join(dir, ".chunkvault.toml") {
		t.Fatalf("unexpected global path: %s", globalPath)
	}

	if err := os.WriteFile(filepath.Join(dir, ".chunkvault.yaml"), []byte("log_level: warn\n"), 0644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	projectPath, err := ProjectPath()
	if err != nil {
		t.Fatalf("project path: %v", err)
	}
	if projectPath != filepath.Join(dir, ".chunkvault.yaml") {
		t.Fatalf("expected existing yaml path, got %s", projectPath)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".chunkvault.toml"), []byte("api_url = \"http://file\"\n[storage]\nchunk_size_bytes = 100\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CHUNKVAULT_CONFIG_DIR", dir)
	t.Setenv("CHUNKVAULT_API_URL", "http://env:1")
	t.Setenv("CHUNKVAULT_BACKEND", "Mongo")
	t.Setenv("CHUNKVAULT_MONGO_URI", "mongodb://env")
	t.Setenv("CHUNKVAULT_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("CHUNKVAULT_CHUNK_SIZE", "2048")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "http://env:1" {
		t.Fatalf("expected env api url, got %q", cfg.APIURL)
	}
	if cfg.Storage.Backend != BackendMongo || cfg.Storage.MongoURI != "mongodb://env" {
		t.Fatalf("expected env backend, got %#v", cfg.Storage)
	}
	if cfg.Storage.DataDir != filepath.Join(dir, "data") || cfg.Storage.ChunkSizeBytes != 2048 {
		t.Fatalf("expected env storage values, got %#v", cfg.Storage)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadNormalizesInvalidValues(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".chunkvault.toml"), []byte(`[storage]
chunk_size_bytes = -1
[upload]
max_concurrent = 0
filename_extension = "pcm"
[audio]
bits_per_sample = 12
`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CHUNKVAULT_CONFIG_DIR", dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.ChunkSizeBytes != DefaultChunkSize || cfg.Upload.MaxConcurrent != DefaultMaxConcurrent {
		t.Fatalf("expected defaults restored, got %#v %#v", cfg.Storage, cfg.Upload)
	}
	if cfg.Upload.FilenameExtension != ".pcm" {
		t.Fatalf("expected dotted extension, got %q", cfg.Upload.FilenameExtension)
	}
	if cfg.Audio.BitsPerSample != DefaultBitsPerSample {
		t.Fatalf("expected default bits per sample, got %d", cfg.Audio.BitsPerSample)
	}
	if cfg.Storage.DataDir == "" {
		t.Fatal("expected data dir default")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Storage.DataDir = "/tmp/x"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate sqlite: %v", err)
	}

	cfg.Storage.Backend = BackendMongo
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected mongo without uri to fail")
	}

	cfg.Storage.Backend = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown backend to fail")
	}
}
