package vectorstore

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend_SearchAndFilter(t *testing.T) {
	m := NewMemoryBackend()
	ctx := context.Background()
	require.NoError(t, m.CreateCollection(ctx, "c", 3))
	assert.Error(t, m.CreateCollection(ctx, "c", 3))

	user := "u1"
	require.NoError(t, m.Upsert(ctx, "c", []Point{
		{ID: "a", Vector: []float32{1, 0, 0}, Payload: Payload{DocumentID: "d1", ChunkIndex: 0, UserID: &user}},
		{ID: "b", Vector: []float32{0.9, 0.1, 0}, Payload: Payload{DocumentID: "d1", ChunkIndex: 1}},
		{ID: "c", Vector: []float32{0, 1, 0}, Payload: Payload{DocumentID: "d2", ChunkIndex: 0}},
	}))

	hits, err := m.Search(ctx, "c", []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "b", hits[1].ID)

	hits, _ = m.Search(ctx, "c", []float32{1, 0, 0}, 10, Filter{FieldUserID: "u1"})
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)

	hits, _ = m.Search(ctx, "c", []float32{1, 0, 0}, 10, Filter{FieldUserID: nil})
	assert.Len(t, hits, 2)

	_, err = m.Search(ctx, "c", []float32{1, 0}, 1, nil)
	assert.Error(t, err)
	_, err = m.Search(ctx, "missing", []float32{1, 0, 0}, 1, nil)
	assert.True(t, errors.Is(err, ErrCollectionNotInitialized))
}

func TestMemoryBackend_UpsertReplacesAndDelete(t *testing.T) {
	m := NewMemoryBackend()
	ctx := context.Background()
	require.NoError(t, m.CreateCollection(ctx, "c", 2))
	require.NoError(t, m.Upsert(ctx, "c", []Point{
		{ID: "x", Vector: []float32{1, 0}, Payload: Payload{DocumentID: "d1"}},
		{ID: "y", Vector: []float32{0, 1}, Payload: Payload{DocumentID: "d2"}},
	}))
	require.NoError(t, m.Upsert(ctx, "c", []Point{{ID: "x", Vector: []float32{0, 1}, Payload: Payload{DocumentID: "d1", Text: "new"}}}))

	info, _ := m.Info(ctx, "c")
	assert.Equal(t, int64(2), info.PointsCount)

	err := m.Upsert(ctx, "c", []Point{
		{ID: "z", Vector: []float32{1, 0}},
		{ID: "w", Vector: []float32{1, 0, 0}},
	})
	assert.Error(t, err)
	info, _ = m.Info(ctx, "c")
	assert.Equal(t, int64(2), info.PointsCount, "a rejected batch must not be partially written")

	require.NoError(t, m.DeleteByFilter(ctx, "c", Filter{FieldDocumentID: "d1"}))
	hits, _ := m.Search(ctx, "c", []float32{0, 1}, 10, nil)
	require.Len(t, hits, 1)
	assert.Equal(t, "y", hits[0].ID)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{2, 0}, []float32{5, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.InDelta(t, 1/math.Sqrt2, CosineSimilarity([]float32{1, 1}, []float32{1, 0}), 1e-6)
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 0}))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrConnectionUnavailable))
	assert.True(t, IsRetryable(ErrEmbeddingUnavailable))
	assert.False(t, IsRetryable(ErrCollectionNotInitialized))
	assert.False(t, IsRetryable(errors.New("other")))
}
