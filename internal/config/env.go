package config

import (
	"fmt"
	"os"
	"strconv"
)

// Environment variables that override file settings.
const (
	EnvQdrantHost     = "QDRANT_HOST"
	EnvQdrantPort     = "QDRANT_PORT"
	EnvQdrantAPIKey   = "QDRANT_API_KEY"
	EnvCollectionName = "COLLECTION_NAME"
	EnvEmbeddingModel = "EMBEDDING_MODEL"
	EnvEmbeddingHost  = "EMBEDDING_HOST"
	EnvMinConfidence  = "MIN_CONFIDENCE"
	EnvChunkSize      = "CHUNK_SIZE"
	EnvChunkOverlap   = "CHUNK_OVERLAP"
)

// ApplyEnv overrides cfg with any recognized environment variables that are set.
// CHUNK_SIZE and CHUNK_OVERLAP apply to PDF chunking.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv(EnvQdrantHost); v != "" {
		cfg.VectorStore.Host = v
	}
	if v := os.Getenv(EnvQdrantPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvQdrantPort, err)
		}
		cfg.VectorStore.Port = port
	}
	if v := os.Getenv(EnvQdrantAPIKey); v != "" {
		cfg.VectorStore.APIKey = v
	}
	if v := os.Getenv(EnvCollectionName); v != "" {
		cfg.VectorStore.Collection = v
	}
	if v := os.Getenv(EnvEmbeddingModel); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv(EnvEmbeddingHost); v != "" {
		cfg.Embedding.Host = v
	}
	if v := os.Getenv(EnvMinConfidence); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMinConfidence, err)
		}
		cfg.Search.MinConfidence = f
	}
	if v := os.Getenv(EnvChunkSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvChunkSize, err)
		}
		cfg.Chunking.PDF.Size = n
	}
	if v := os.Getenv(EnvChunkOverlap); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvChunkOverlap, err)
		}
		cfg.Chunking.PDF.Overlap = n
	}
	return nil
}
