// Package vectorstore embeds fragments and stores them in a vector database for similarity search.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kbase/internal/embedding"
)

// DefaultCollection and DefaultDimensions match the all-mpnet-base-v2 embedding model.
const (
	DefaultCollection = "KBCollection_LinkedIn"
	DefaultDimensions = 768
)

// EmbedderLoader loads the embedding model on first use.
type EmbedderLoader func() (embedding.Embedder, error)

// Store is the gateway to the vector database. The connection check, the
// collection and the embedding model are set up lazily on the first call;
// concurrent first callers share a single attempt.
type Store struct {
	backend    Backend
	load       EmbedderLoader
	collection string
	dimensions int
	logger     *zap.Logger

	mu       sync.Mutex
	ready    bool
	embedder embedding.Embedder
	inflight *initCall
}

type initCall struct {
	done     chan struct{}
	embedder embedding.Embedder
	err      error
}

// Option configures a Store.
type Option func(*Store)

// WithCollection sets the collection name.
func WithCollection(name string) Option {
	return func(s *Store) { s.collection = name }
}

// WithDimensions sets the vector size used when the collection is created.
func WithDimensions(n int) Option {
	return func(s *Store) { s.dimensions = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New returns a store over backend. Nothing is contacted until the first call.
func New(backend Backend, load EmbedderLoader, opts ...Option) *Store {
	s := &Store{
		backend:    backend,
		load:       load,
		collection: DefaultCollection,
		dimensions: DefaultDimensions,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Collection returns the collection name.
func (s *Store) Collection() string { return s.collection }

// Ready reports whether initialization has completed successfully.
func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Init runs the one-time setup if it has not succeeded yet. A failed attempt
// leaves the store not ready and the next call starts over.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.ensure(ctx)
	return err
}

func (s *Store) ensure(ctx context.Context) (embedding.Embedder, error) {
	s.mu.Lock()
	if s.ready {
		e := s.embedder
		s.mu.Unlock()
		return e, nil
	}
	if c := s.inflight; c != nil {
		s.mu.Unlock()
		select {
		case <-c.done:
			return c.embedder, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c := &initCall{done: make(chan struct{})}
	s.inflight = c
	s.mu.Unlock()

	c.embedder, c.err = s.initialize(ctx)

	s.mu.Lock()
	s.inflight = nil
	if c.err == nil {
		s.ready = true
		s.embedder = c.embedder
	}
	s.mu.Unlock()
	close(c.done)
	return c.embedder, c.err
}

func (s *Store) initialize(ctx context.Context) (embedding.Embedder, error) {
	if err := s.backend.Ping(ctx); err != nil {
		s.logger.Error("vector store unreachable", zap.Error(err))
		return nil, wrapSentinel(ErrConnectionUnavailable, err)
	}

	exists, err := s.backend.CollectionExists(ctx, s.collection)
	if err != nil {
		return nil, wrapSentinel(ErrCollectionNotInitialized, err)
	}
	if exists {
		s.logger.Info("using existing collection", zap.String("collection", s.collection))
	} else {
		if err := s.backend.CreateCollection(ctx, s.collection, s.dimensions); err != nil {
			return nil, wrapSentinel(ErrCollectionNotInitialized, err)
		}
		s.logger.Info("created collection", zap.String("collection", s.collection), zap.Int("dimensions", s.dimensions))
	}

	e, err := s.load()
	if err != nil {
		s.logger.Error("failed to load embedding model", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	if e.Dimensions() != s.dimensions {
		_ = e.Close()
		return nil, fmt.Errorf("%w: model produces %d dimensions, collection expects %d", ErrEmbeddingUnavailable, e.Dimensions(), s.dimensions)
	}
	return e, nil
}

// wrapSentinel returns err unchanged when it already carries a sentinel, else wraps it with sentinel.
func wrapSentinel(sentinel, err error) error {
	if IsRetryable(err) || errors.Is(err, ErrCollectionNotInitialized) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Upsert embeds every fragment and writes them in one batch. Each fragment
// gets a fresh point id; the ids are returned in input order. If embedding
// fails nothing is written.
func (s *Store) Upsert(ctx context.Context, fragments []FragmentInput) ([]string, error) {
	e, err := s.ensure(ctx)
	if err != nil {
		return nil, err
	}
	if len(fragments) == 0 {
		return nil, nil
	}

	texts := make([]string, len(fragments))
	for i, f := range fragments {
		texts[i] = f.Text
	}
	vectors, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	if len(vectors) != len(fragments) {
		return nil, fmt.Errorf("%w: got %d vectors for %d fragments", ErrEmbeddingUnavailable, len(vectors), len(fragments))
	}

	ids := make([]string, len(fragments))
	points := make([]Point, len(fragments))
	for i, f := range fragments {
		ids[i] = uuid.New().String()
		points[i] = Point{
			ID:     ids[i],
			Vector: vectors[i],
			Payload: Payload{
				Text:       f.Text,
				DocumentID: f.DocumentID,
				UserID:     f.UserID,
				Filename:   f.Filename,
				ChunkIndex: f.ChunkIndex,
				CreatedAt:  f.CreatedAt,
			},
		}
	}
	if err := s.backend.Upsert(ctx, s.collection, points); err != nil {
		return nil, fmt.Errorf("failed to upsert %d points: %w", len(points), err)
	}
	s.logger.Debug("upserted points", zap.Int("count", len(points)), zap.String("collection", s.collection))
	return ids, nil
}

// Query returns up to k hits for text, most similar first, restricted by filter.
func (s *Store) Query(ctx context.Context, text string, k int, filter Filter) ([]Hit, error) {
	e, err := s.ensure(ctx)
	if err != nil {
		return nil, err
	}
	vec, err := e.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	hits, err := s.backend.Search(ctx, s.collection, vec, k, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	return hits, nil
}

// DeleteDocument removes every point belonging to documentID.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := s.ensure(ctx); err != nil {
		return err
	}
	if err := s.backend.DeleteByFilter(ctx, s.collection, Filter{FieldDocumentID: documentID}); err != nil {
		return fmt.Errorf("failed to delete points of %s: %w", documentID, err)
	}
	return nil
}

// Info returns collection statistics.
func (s *Store) Info(ctx context.Context) (*CollectionInfo, error) {
	if _, err := s.ensure(ctx); err != nil {
		return nil, err
	}
	return s.backend.Info(ctx, s.collection)
}

// Close releases the embedding model.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.embedder == nil {
		return nil
	}
	err := s.embedder.Close()
	s.embedder = nil
	s.ready = false
	return err
}
