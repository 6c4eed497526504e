package config

import "time"

const (
	// DefaultCollection is the vector collection used when none is configured.
	DefaultCollection = "KBCollection_LinkedIn"
	// DefaultEmbeddingModel is the sentence embedding model identifier.
	DefaultEmbeddingModel = "all-mpnet-base-v2"
	// DefaultDimensions matches DefaultEmbeddingModel.
	DefaultDimensions = 768
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 120 * time.Second
	}
	if cfg.Server.UploadMaxBytes == 0 {
		cfg.Server.UploadMaxBytes = 50 << 20
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kbase/data/db/documents.db"
	}
	if cfg.Storage.BlobDir == "" {
		cfg.Storage.BlobDir = "/usr/local/var/kbase/data/uploads"
	}
	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = "qdrant"
	}
	if cfg.VectorStore.Host == "" {
		cfg.VectorStore.Host = "localhost"
	}
	if cfg.VectorStore.Port == 0 {
		cfg.VectorStore.Port = 6333
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = DefaultCollection
	}
	if cfg.VectorStore.Dimensions == 0 {
		cfg.VectorStore.Dimensions = DefaultDimensions
	}
	if cfg.VectorStore.Timeout == 0 {
		cfg.VectorStore.Timeout = 30 * time.Second
	}
	if cfg.Embedding.Backend == "" {
		cfg.Embedding.Backend = "onnx"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = DefaultEmbeddingModel
	}
	if cfg.Embedding.ModelPath == "" && cfg.Embedding.Backend == "onnx" {
		cfg.Embedding.ModelPath = "/usr/local/var/kbase/data/models/all-mpnet-base-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = cfg.VectorStore.Dimensions
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 384
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Chunking.PDF.Size == 0 {
		cfg.Chunking.PDF = ChunkParams{Size: 800, Overlap: 150}
	}
	if cfg.Chunking.Web.Size == 0 {
		cfg.Chunking.Web = ChunkParams{Size: 1000, Overlap: 200}
	}
	if cfg.Chunking.MinContentChars == 0 {
		cfg.Chunking.MinContentChars = 100
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 5
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.SemanticWeight == 0 && cfg.Search.KeywordWeight == 0 {
		cfg.Search.SemanticWeight = 0.7
		cfg.Search.KeywordWeight = 0.3
	}
	if cfg.Browser.UserAgent == "" {
		cfg.Browser.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	if cfg.Browser.Timeout == 0 {
		cfg.Browser.Timeout = 60 * time.Second
	}
	if cfg.Browser.SettleDelay == 0 {
		cfg.Browser.SettleDelay = 3 * time.Second
	}
	if cfg.Inbox.Extensions == nil {
		cfg.Inbox.Extensions = []string{".pdf"}
	}
}
