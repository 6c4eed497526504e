// Package config provides configuration loading and structs for the kbase server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Search      SearchConfig      `yaml:"search"`
	Browser     BrowserConfig     `yaml:"browser"`
	Inbox       InboxConfig       `yaml:"inbox"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	UploadMaxBytes int64         `yaml:"upload_max_bytes"`
}

// StorageConfig holds paths for the metadata database and raw uploads.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	BlobDir      string `yaml:"blob_dir"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	Backend    string        `yaml:"backend"` // qdrant or memory
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	APIKey     string        `yaml:"api_key"`
	Collection string        `yaml:"collection"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Endpoint returns the base URL of the Qdrant REST API.
func (v *VectorStoreConfig) Endpoint() string {
	host := v.Host
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return fmt.Sprintf("%s:%d", strings.TrimRight(host, "/"), v.Port)
	}
	return fmt.Sprintf("http://%s:%d", host, v.Port)
}

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	Backend    string `yaml:"backend"` // onnx, openai or mock
	Model      string `yaml:"model"`
	ModelPath  string `yaml:"model_path"`
	Host       string `yaml:"host"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// ChunkParams is one size/overlap pair.
type ChunkParams struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// ChunkingConfig holds per-media chunking settings.
type ChunkingConfig struct {
	PDF             ChunkParams `yaml:"pdf"`
	Web             ChunkParams `yaml:"web"`
	MinContentChars int         `yaml:"min_content_chars"`
}

// SearchConfig holds search defaults and hybrid weights.
type SearchConfig struct {
	DefaultLimit   int     `yaml:"default_limit"`
	MaxLimit       int     `yaml:"max_limit"`
	MinConfidence  float64 `yaml:"min_confidence"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	KeywordWeight  float64 `yaml:"keyword_weight"`
}

// BrowserConfig holds headless Chrome settings for web ingestion.
type BrowserConfig struct {
	Headless    *bool         `yaml:"headless"`
	UserAgent   string        `yaml:"user_agent"`
	Timeout     time.Duration `yaml:"timeout"`
	SettleDelay time.Duration `yaml:"settle_delay"`
	ExecPath    string        `yaml:"exec_path"`
}

// HeadlessOrDefault returns whether to run Chrome headless; defaults to true when unset.
func (b *BrowserConfig) HeadlessOrDefault() bool {
	if b.Headless != nil {
		return *b.Headless
	}
	return true
}

// InboxConfig holds the optional drop directory that is ingested automatically.
type InboxConfig struct {
	Directory  string   `yaml:"directory"`
	Extensions []string `yaml:"extensions"`
}

// Load reads and parses the config file at path, applies defaults and environment
// overrides, and expands paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BlobDir = expandPath(cfg.Storage.BlobDir, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Inbox.Directory != "" {
		cfg.Inbox.Directory = expandPath(cfg.Inbox.Directory, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate reports settings that would make the pipeline misbehave.
func (c *Config) Validate() error {
	for name, p := range map[string]ChunkParams{"pdf": c.Chunking.PDF, "web": c.Chunking.Web} {
		if p.Size <= 0 {
			return fmt.Errorf("invalid chunking.%s.size: %d", name, p.Size)
		}
		if p.Overlap < 0 || p.Overlap >= p.Size {
			return fmt.Errorf("invalid chunking.%s.overlap: %d (size %d)", name, p.Overlap, p.Size)
		}
	}
	switch c.VectorStore.Backend {
	case "qdrant", "memory":
	default:
		return fmt.Errorf("unknown vector_store.backend: %q", c.VectorStore.Backend)
	}
	switch c.Embedding.Backend {
	case "onnx", "openai", "mock":
	default:
		return fmt.Errorf("unknown embedding.backend: %q", c.Embedding.Backend)
	}
	if c.VectorStore.Dimensions <= 0 {
		return fmt.Errorf("invalid vector_store.dimensions: %d", c.VectorStore.Dimensions)
	}
	if c.Search.SemanticWeight < 0 || c.Search.KeywordWeight < 0 {
		return fmt.Errorf("search weights must not be negative")
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
