package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/kbase/internal/browser"
	"github.com/hyperjump/kbase/internal/config"
	"github.com/hyperjump/kbase/internal/embedding"
	"github.com/hyperjump/kbase/internal/extract"
	"github.com/hyperjump/kbase/internal/ingest"
	"github.com/hyperjump/kbase/internal/models"
	"github.com/hyperjump/kbase/internal/search"
	"github.com/hyperjump/kbase/internal/server"
	"github.com/hyperjump/kbase/internal/storage"
	"github.com/hyperjump/kbase/internal/vectorstore"
)

// Components holds the wired services shared by the subcommands.
type Components struct {
	Storage   *storage.SQLiteStorage
	Blobs     *storage.DiskBlobStore
	Vectors   *vectorstore.Store
	Documents *ingest.Orchestrator
	Search    *search.Service
	Status    *server.StatusReporter
}

// Close releases the embedding model and the database.
func (c *Components) Close() {
	if c.Vectors != nil {
		_ = c.Vectors.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

// NewServer builds the HTTP server over the components.
func (c *Components) NewServer(cfg *config.Config, logger *zap.Logger) *server.Server {
	return server.NewServer(c.Documents, c.Search, c.Storage, c.Status, &cfg.Server, logger)
}

func newVectorBackend(cfg *config.VectorStoreConfig) (vectorstore.Backend, error) {
	switch cfg.Backend {
	case "qdrant":
		return vectorstore.NewQdrantBackend(cfg.Endpoint(), cfg.APIKey, cfg.Timeout), nil
	case "memory":
		return vectorstore.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown vector store backend: %q", cfg.Backend)
	}
}

// initializeComponents opens the stores and wires the pipeline. The vector
// store and embedding model are not contacted until first use.
func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	db, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	c := &Components{Storage: db}

	blobs, err := storage.NewDiskBlobStore(cfg.Storage.BlobDir)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("blob store: %w", err)
	}
	c.Blobs = blobs

	backend, err := newVectorBackend(&cfg.VectorStore)
	if err != nil {
		c.Close()
		return nil, err
	}
	embeddingCfg := cfg.Embedding
	loader := func() (embedding.Embedder, error) {
		logger.Info("loading embedding model", zap.String("backend", embeddingCfg.Backend), zap.String("model", embeddingCfg.Model))
		return embedding.New(&embeddingCfg)
	}
	c.Vectors = vectorstore.New(backend, loader,
		vectorstore.WithCollection(cfg.VectorStore.Collection),
		vectorstore.WithDimensions(cfg.VectorStore.Dimensions),
		vectorstore.WithLogger(logger),
	)

	renderer := browser.NewChromeRenderer(&cfg.Browser, browser.WithLogger(logger))
	c.Documents, err = ingest.New(db, blobs, c.Vectors, extract.NewExtractor(), &cfg.Chunking,
		ingest.WithRenderer(renderer),
		ingest.WithLogger(logger),
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("ingest: %w", err)
	}

	c.Search = search.NewService(nil, c.Vectors, db, &cfg.Search, search.WithServiceLogger(logger))
	c.Status = server.NewStatusReporter(db, c.Vectors, logger, cfg.Storage.DatabasePath, cfg.Storage.BlobDir)
	return c, nil
}

// fileIngester ingests one file from disk.
type fileIngester interface {
	IngestFile(ctx context.Context, path string, userID *string) (*models.Document, error)
}

// ingestOutcome is the result of ingesting one path.
type ingestOutcome struct {
	Path     string
	Document *models.Document
	Err      error
}

// ingestFiles ingests paths on a pool of workers and returns one outcome per
// path, in input order.
func ingestFiles(ctx context.Context, ing fileIngester, paths []string, userID *string, workers int) ([]ingestOutcome, error) {
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("worker pool: %w", err)
	}
	defer pool.Release()

	outcomes := make([]ingestOutcome, len(paths))
	var wg sync.WaitGroup
	for i, path := range paths {
		outcomes[i].Path = path
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			outcomes[i].Document, outcomes[i].Err = ing.IngestFile(ctx, path, userID)
		}); err != nil {
			wg.Done()
			outcomes[i].Err = err
		}
	}
	wg.Wait()
	return outcomes, nil
}
