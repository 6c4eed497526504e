package embedding

import (
	"fmt"

	"github.com/hyperjump/kbase/internal/config"
)

// New builds the embedder selected by cfg.Backend and wraps it in an LRU cache of cfg.CacheSize entries.
func New(cfg *config.EmbeddingConfig) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch cfg.Backend {
	case "onnx":
		var onnx *ONNXEmbedder
		onnx, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if onnx != nil {
			e = onnx
		}
	case "openai":
		var remote *OpenAIEmbedder
		remote, err = NewOpenAIEmbedder(cfg.Host, cfg.Model, cfg.Dimensions)
		if remote != nil {
			e = remote
		}
	case "mock":
		e = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding backend: %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s embedder (%s): %w", cfg.Backend, cfg.Model, err)
	}
	return WithCache(e, cfg.CacheSize), nil
}
