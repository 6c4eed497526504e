package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryBackend keeps collections in process and searches them by brute-force cosine similarity.
// Suitable for tests, the CLI without a Qdrant server, and small corpora.
type MemoryBackend struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
	pingErr     error
}

type memoryCollection struct {
	dimensions int
	points     []Point
	index      map[string]int
}

// NewMemoryBackend returns an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{collections: make(map[string]*memoryCollection)}
}

// SetPingError makes Ping fail with err until it is reset with nil.
func (m *MemoryBackend) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

// Ping reports the configured ping error, if any.
func (m *MemoryBackend) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.pingErr != nil {
		return fmt.Errorf("%w: %v", ErrConnectionUnavailable, m.pingErr)
	}
	return nil
}

// CollectionExists reports whether the collection was created.
func (m *MemoryBackend) CollectionExists(ctx context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.collections[name]
	return ok, nil
}

// CreateCollection creates an empty collection. Creating an existing collection is an error.
func (m *MemoryBackend) CreateCollection(ctx context.Context, name string, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; ok {
		return fmt.Errorf("collection %s already exists", name)
	}
	m.collections[name] = &memoryCollection{dimensions: dimensions, index: make(map[string]int)}
	return nil
}

func (m *MemoryBackend) collection(name string) (*memoryCollection, error) {
	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", name, ErrCollectionNotInitialized)
	}
	return c, nil
}

// Upsert inserts or replaces points by id. Either all points are stored or none.
func (m *MemoryBackend) Upsert(ctx context.Context, collection string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.collection(collection)
	if err != nil {
		return err
	}
	for _, p := range points {
		if len(p.Vector) != c.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(p.Vector), c.dimensions)
		}
	}
	for _, p := range points {
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		p.Vector = vec
		if i, ok := c.index[p.ID]; ok {
			c.points[i] = p
			continue
		}
		c.index[p.ID] = len(c.points)
		c.points = append(c.points, p)
	}
	return nil
}

// Search returns up to limit points matching filter, by descending cosine similarity.
func (m *MemoryBackend) Search(ctx context.Context, collection string, vector []float32, limit int, filter Filter) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.collection(collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != c.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(vector), c.dimensions)
	}
	if limit <= 0 {
		return nil, nil
	}
	hits := make([]Hit, 0, len(c.points))
	for i := range c.points {
		p := &c.points[i]
		if !filter.Matches(&p.Payload) {
			continue
		}
		hits = append(hits, Hit{ID: p.ID, Score: CosineSimilarity(vector, p.Vector), Payload: p.Payload})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// DeleteByFilter removes every point matching filter.
func (m *MemoryBackend) DeleteByFilter(ctx context.Context, collection string, filter Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.collection(collection)
	if err != nil {
		return err
	}
	kept := c.points[:0]
	for _, p := range c.points {
		if !filter.Matches(&p.Payload) {
			kept = append(kept, p)
		}
	}
	c.points = kept
	c.index = make(map[string]int, len(kept))
	for i, p := range kept {
		c.index[p.ID] = i
	}
	return nil
}

// Info returns the collection's size and dimensions.
func (m *MemoryBackend) Info(ctx context.Context, collection string) (*CollectionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, err := m.collection(collection)
	if err != nil {
		return nil, err
	}
	return &CollectionInfo{Name: collection, Dimensions: c.dimensions, PointsCount: int64(len(c.points)), Status: "green"}, nil
}
