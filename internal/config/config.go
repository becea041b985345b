package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"chunkvault/internal/chunk"
)

const (
	DefaultAPIURL       = "http://127.0.0.1:5001"
	DefaultListenAddr   = "0.0.0.0:5001"
	DefaultLogLevel     = "info"
	DefaultBackend      = BackendSQLite
	DefaultDataDirName  = ".chunkvault"
	DefaultDatabase     = "Anonymeye"
	DefaultCollection   = "audio_files"
	DefaultChunkSize    = chunk.DefaultSize
	DefaultMaxOpenConns = 8

	DefaultMaxUploadBytes    int64 = 512 * 1024 * 1024
	DefaultMaxConcurrent           = 16
	DefaultFilenamePrefix          = "audio_"
	DefaultFilenameExtension       = ".raw"
	DefaultRejectEmpty             = false

	DefaultSampleRate    = 16000
	DefaultBitsPerSample = 16
	DefaultChannels      = 1

	DefaultConnectTimeout    = 5 * time.Second
	DefaultOrphanGrace       = 24 * time.Hour
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Minute
	DefaultWriteTimeout      = 10 * time.Minute
	DefaultIdleTimeout       = 60 * time.Second
	DefaultShutdownTimeout   = 15 * time.Second

	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"

	configFileName     = ".chunkvault.toml"
	yamlConfigFileName = ".chunkvault.yaml"

	configDirEnvKey          = "CHUNKVAULT_CONFIG_DIR"
	trustProjectConfigEnvKey = "CHUNKVAULT_TRUST_PROJECT_CONFIG"
)

// StorageConfig selects and tunes the blob store backend.
type StorageConfig struct {
	Backend        string        `toml:"backend" yaml:"backend"`
	DataDir        string        `toml:"data_dir" yaml:"data_dir"`
	MongoURI       string        `toml:"mongo_uri" yaml:"mongo_uri"`
	ConnectTimeout time.Duration `toml:"connect_timeout" yaml:"connect_timeout"`
	ChunkSizeBytes int           `toml:"chunk_size_bytes" yaml:"chunk_size_bytes"`
	MaxOpenConns   int           `toml:"max_open_conns" yaml:"max_open_conns"`
	OrphanGrace    time.Duration `toml:"orphan_grace" yaml:"orphan_grace"`
}

// NamespaceConfig holds the namespace used when a request names none.
type NamespaceConfig struct {
	DefaultDatabase   string `toml:"default_database" yaml:"default_database"`
	DefaultCollection string `toml:"default_collection" yaml:"default_collection"`
}

// UploadConfig bounds and labels incoming uploads.
type UploadConfig struct {
	MaxUploadBytes    int64             `toml:"max_upload_bytes" yaml:"max_upload_bytes"`
	MaxConcurrent     int               `toml:"max_concurrent" yaml:"max_concurrent"`
	FilenamePrefix    string            `toml:"filename_prefix" yaml:"filename_prefix"`
	FilenameExtension string            `toml:"filename_extension" yaml:"filename_extension"`
	RejectEmpty       bool              `toml:"reject_empty" yaml:"reject_empty"`
	Metadata          map[string]string `toml:"metadata" yaml:"metadata"`
}

// AudioConfig describes stored PCM for optional WAV downloads.
type AudioConfig struct {
	WAVEnabled    bool `toml:"wav_enabled" yaml:"wav_enabled"`
	SampleRate    int  `toml:"sample_rate" yaml:"sample_rate"`
	BitsPerSample int  `toml:"bits_per_sample" yaml:"bits_per_sample"`
	Channels      int  `toml:"channels" yaml:"channels"`
}

// ServerConfig holds HTTP server timeouts.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration `toml:"read_header_timeout" yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout      time.Duration `toml:"write_timeout" yaml:"write_timeout"`
	IdleTimeout       time.Duration `toml:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Config defines runtime configuration for chunkvault.
type Config struct {
	APIURL     string          `toml:"api_url" yaml:"api_url"`
	ListenAddr string          `toml:"listen_addr" yaml:"listen_addr"`
	LogLevel   string          `toml:"log_level" yaml:"log_level"`
	Storage    StorageConfig   `toml:"storage" yaml:"storage"`
	Namespace  NamespaceConfig `toml:"namespace" yaml:"namespace"`
	Upload     UploadConfig    `toml:"upload" yaml:"upload"`
	Audio      AudioConfig     `toml:"audio" yaml:"audio"`
	Server     ServerConfig    `toml:"server" yaml:"server"`

	// LoadedFrom lists the files that contributed to this config.
	LoadedFrom []string `toml:"-" yaml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:     DefaultAPIURL,
		ListenAddr: DefaultListenAddr,
		LogLevel:   DefaultLogLevel,
		Storage: StorageConfig{
			Backend:        DefaultBackend,
			ConnectTimeout: DefaultConnectTimeout,
			ChunkSizeBytes: DefaultChunkSize,
			MaxOpenConns:   DefaultMaxOpenConns,
			OrphanGrace:    DefaultOrphanGrace,
		},
		Namespace: NamespaceConfig{
			DefaultDatabase:   DefaultDatabase,
			DefaultCollection: DefaultCollection,
		},
		Upload: UploadConfig{
			MaxUploadBytes:    DefaultMaxUploadBytes,
			MaxConcurrent:     DefaultMaxConcurrent,
			FilenamePrefix:    DefaultFilenamePrefix,
			FilenameExtension: DefaultFilenameExtension,
			RejectEmpty:       DefaultRejectEmpty,
		},
		Audio: AudioConfig{
			SampleRate:    DefaultSampleRate,
			BitsPerSample: DefaultBitsPerSample,
			Channels:      DefaultChannels,
		},
		Server: ServerConfig{
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			ReadTimeout:       DefaultReadTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
			ShutdownTimeout:   DefaultShutdownTimeout,
		},
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}

	if isYAML(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return false, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return false, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.LoadedFrom = append(cfg.LoadedFrom, path)
	return true, nil
}

// loadDir loads the toml config in dir, or the yaml one when no toml exists.
func loadDir(dir string, cfg *Config) error {
	loaded, err := loadFileIfExists(filepath.Join(dir, configFileName), cfg)
	if err != nil || loaded {
		return err
	}
	return loadFile(filepath.Join(dir, yamlConfigFileName), cfg)
}

// pathInDir returns the existing config file in dir, preferring toml.
func pathInDir(dir string) (string, error) {
	tomlPath := filepath.Join(dir, configFileName)
	yamlPath := filepath.Join(dir, yamlConfigFileName)
	for _, path := range []string{tomlPath, yamlPath} {
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
		if err != nil && !os.IsNotExist(err) {
			return "", err
		}
	}
	return tomlPath, nil
}

func overrideConfigDir() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return dir, true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"listen_addr",
	"log_level",
	"storage.backend",
	"storage.data_dir",
	"storage.mongo_uri",
	"storage.connect_timeout",
	"storage.chunk_size_bytes",
	"storage.max_open_conns",
	"storage.orphan_grace",
	"namespace.default_database",
	"namespace.default_collection",
	"upload.max_upload_bytes",
	"upload.max_concurrent",
	"upload.filename_prefix",
	"upload.filename_extension",
	"upload.reject_empty",
	"audio.wav_enabled",
	"audio.sample_rate",
	"audio.bits_per_sample",
	"audio.channels",
	"server.read_header_timeout",
	"server.read_timeout",
	"server.write_timeout",
	"server.idle_timeout",
	"server.shutdown_timeout",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "listen_addr":
		return c.ListenAddr, nil
	case "log_level":
		return c.LogLevel, nil
	case "storage.backend":
		return c.Storage.Backend, nil
	case "storage.data_dir":
		return c.Storage.DataDir, nil
	case "storage.mongo_uri":
		return c.Storage.MongoURI, nil
	case "storage.connect_timeout":
		return c.Storage.ConnectTimeout.String(), nil
	case "storage.chunk_size_bytes":
		return strconv.Itoa(c.Storage.ChunkSizeBytes), nil
	case "storage.max_open_conns":
		return strconv.Itoa(c.Storage.MaxOpenConns), nil
	case "storage.orphan_grace":
		return c.Storage.OrphanGrace.String(), nil
	case "namespace.default_database":
		return c.Namespace.DefaultDatabase, nil
	case "namespace.default_collection":
		return c.Namespace.DefaultCollection, nil
	case "upload.max_upload_bytes":
		return strconv.FormatInt(c.Upload.MaxUploadBytes, 10), nil
	case "upload.max_concurrent":
		return strconv.Itoa(c.Upload.MaxConcurrent), nil
	case "upload.filename_prefix":
		return c.Upload.FilenamePrefix, nil
	case "upload.filename_extension":
		return c.Upload.FilenameExtension, nil
	case "upload.reject_empty":
		return strconv.FormatBool(c.Upload.RejectEmpty), nil
	case "audio.wav_enabled":
		return strconv.FormatBool(c.Audio.WAVEnabled), nil
	case "audio.sample_rate":
		return strconv.Itoa(c.Audio.SampleRate), nil
	case "audio.bits_per_sample":
		return strconv.Itoa(c.Audio.BitsPerSample), nil
	case "audio.channels":
		return strconv.Itoa(c.Audio.Channels), nil
	case "server.read_header_timeout":
		return c.Server.ReadHeaderTimeout.String(), nil
	case "server.read_timeout":
		return c.Server.ReadTimeout.String(), nil
	case "server.write_timeout":
		return c.Server.WriteTimeout.String(), nil
	case "server.idle_timeout":
		return c.Server.IdleTimeout.String(), nil
	case "server.shutdown_timeout":
		return c.Server.ShutdownTimeout.String(), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if dir, ok := overrideConfigDir(); ok {
		return pathInDir(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return pathInDir(home)
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if dir, ok := overrideConfigDir(); ok {
		return pathInDir(dir)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return pathInDir(cwd)
}

// SetKey reads the config file at path, sets key=value, and writes it back
// in the same format.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if raw, err := os.ReadFile(path); err == nil {
		if isYAML(path) {
			err = yaml.Unmarshal(raw, &data)
		} else {
			_, err = toml.Decode(string(raw), &data)
		}
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if data == nil {
			data = make(map[string]any)
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(data)
	}
	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if dir, ok := overrideConfigDir(); ok {
		if err := loadDir(dir, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadDir(home, &cfg); err != nil {
				return nil, err
			}
		}
		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				if err := loadDir(cwd, &cfg); err != nil {
					return nil, err
				}
			}
		}
	}

	if cfg.Storage.DataDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.Storage.DataDir = filepath.Join(cwd, DefaultDataDirName)
		}
	}

	applyEnv(&cfg)
	cfg.normalize()

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CHUNKVAULT_API_URL")); v != "" {
		cfg.APIURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CHUNKVAULT_LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("CHUNKVAULT_BACKEND")); v != "" {
		cfg.Storage.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("CHUNKVAULT_DATA_DIR")); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("CHUNKVAULT_MONGO_URI")); v != "" {
		cfg.Storage.MongoURI = v
	}
	if v := strings.TrimSpace(os.Getenv("CHUNKVAULT_CHUNK_SIZE")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Storage.ChunkSizeBytes = parsed
		}
	}
}

// Validate reports settings that cannot be normalized away.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite:
		if strings.TrimSpace(c.Storage.DataDir) == "" {
			return fmt.Errorf("storage.data_dir is required for the %s backend", BackendSQLite)
		}
	case BackendMongo:
		if strings.TrimSpace(c.Storage.MongoURI) == "" {
			return fmt.Errorf("storage.mongo_uri is required for the %s backend", BackendMongo)
		}
	default:
		return fmt.Errorf("unknown storage.backend %q (want %s or %s)", c.Storage.Backend, BackendSQLite, BackendMongo)
	}
	return nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "upload.max_upload_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "storage.chunk_size_bytes", "storage.max_open_conns", "upload.max_concurrent",
		"audio.sample_rate", "audio.bits_per_sample", "audio.channels":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return int64(parsed), nil
	case "upload.reject_empty", "audio.wav_enabled":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "storage.connect_timeout", "storage.orphan_grace",
		"server.read_header_timeout", "server.read_timeout", "server.write_timeout",
		"server.idle_timeout", "server.shutdown_timeout":
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration such as 30s", key)
		}
		return parsed.String(), nil
	case "storage.backend":
		backend := strings.ToLower(value)
		if backend != BackendSQLite && backend != BackendMongo {
			return nil, fmt.Errorf("%s must be %s or %s", key, BackendSQLite, BackendMongo)
		}
		return backend, nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func (c *Config) normalize() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = DefaultBackend
	}
	if c.Storage.ConnectTimeout <= 0 {
		c.Storage.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Storage.ChunkSizeBytes <= 0 {
		c.Storage.ChunkSizeBytes = DefaultChunkSize
	}
	if c.Storage.MaxOpenConns <= 0 {
		c.Storage.MaxOpenConns = DefaultMaxOpenConns
	}
	if c.Storage.OrphanGrace <= 0 {
		c.Storage.OrphanGrace = DefaultOrphanGrace
	}
	if strings.TrimSpace(c.Namespace.DefaultDatabase) == "" {
		c.Namespace.DefaultDatabase = DefaultDatabase
	}
	if strings.TrimSpace(c.Namespace.DefaultCollection) == "" {
		c.Namespace.DefaultCollection = DefaultCollection
	}
	if c.Upload.MaxUploadBytes <= 0 {
		c.Upload.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Upload.MaxConcurrent <= 0 {
		c.Upload.MaxConcurrent = DefaultMaxConcurrent
	}
	if strings.TrimSpace(c.Upload.FilenameExtension) != "" && !strings.HasPrefix(c.Upload.FilenameExtension, ".") {
		c.Upload.FilenameExtension = "." + c.Upload.FilenameExtension
	}
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = DefaultSampleRate
	}
	if c.Audio.BitsPerSample <= 0 || c.Audio.BitsPerSample%8 != 0 {
		c.Audio.BitsPerSample = DefaultBitsPerSample
	}
	if c.Audio.Channels <= 0 {
		c.Audio.Channels = DefaultChannels
	}
	if c.Server.ReadHeaderTimeout <= 0 {
		c.Server.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.IdleTimeout <= 0 {
		c.Server.IdleTimeout = DefaultIdleTimeout
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
}
