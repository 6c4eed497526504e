package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hyperjump/kbase/internal/config"
	"github.com/hyperjump/kbase/internal/embedding"
	"github.com/hyperjump/kbase/internal/extract"
	"github.com/hyperjump/kbase/internal/models"
	"github.com/hyperjump/kbase/internal/storage"
	"github.com/hyperjump/kbase/internal/vectorstore"
)

const testDims = 32

// fixedStrategy returns text (or err) for every source.
type fixedStrategy struct {
	text string
	err  error
	hook func(ctx context.Context)
}

func (f *fixedStrategy) Name() string { return "fixed" }

func (f *fixedStrategy) IsApplicable(*extract.Source) bool { return true }

func (f *fixedStrategy) Extract(ctx context.Context, _ *extract.Source) (string, error) {
	if f.hook != nil {
		f.hook(ctx)
	}
	return f.text, f.err
}

// flakyVectors wraps a store and fails the chosen operations.
type flakyVectors struct {
	*vectorstore.Store
	upsertErr error
	deleteErr error

	mu      sync.Mutex
	deletes []string
}

func (f *flakyVectors) Upsert(ctx context.Context, in []vectorstore.FragmentInput) ([]string, error) {
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	return f.Store.Upsert(ctx, in)
}

func (f *flakyVectors) DeleteDocument(ctx context.Context, id string) error {
	f.mu.Lock()
	f.deletes = append(f.deletes, id)
	f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Store.DeleteDocument(ctx, id)
}

// flakyStorage fails CompleteDocument.
type flakyStorage struct {
	*storage.SQLiteStorage
	completeErr error
}

func (f *flakyStorage) CompleteDocument(ctx context.Context, id string, fragments []*models.Fragment) error {
	if f.completeErr != nil {
		return f.completeErr
	}
	return f.SQLiteStorage.CompleteDocument(ctx, id, fragments)
}

type harness struct {
	orch    *Orchestrator
	store   *flakyStorage
	blobs   *storage.DiskBlobStore
	vectors *flakyVectors
	backend *vectorstore.MemoryBackend
	logs    *observer.ObservedLogs
}

func newHarness(t *testing.T, ex Extractor) *harness {
	t.Helper()
	dir := t.TempDir()
	st, err := storage.NewSQLiteStorage(filepath.Join(dir, "kbase.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	blobs, err := storage.NewDiskBlobStore(filepath.Join(dir, "uploads"))
	require.NoError(t, err)

	backend := vectorstore.NewMemoryBackend()
	vs := vectorstore.New(backend, func() (embedding.Embedder, error) {
		return embedding.NewMockEmbedder(testDims), nil
	}, vectorstore.WithCollection("test"), vectorstore.WithDimensions(testDims))
	t.Cleanup(func() { _ = vs.Close() })

	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		store:   &flakyStorage{SQLiteStorage: st},
		blobs:   blobs,
		vectors: &flakyVectors{Store: vs},
		backend: backend,
		logs:    logs,
	}
	h.orch, err = New(h.store, blobs, h.vectors, ex, &config.ChunkingConfig{
		PDF:             config.ChunkParams{Size: 200, Overlap: 40},
		Web:             config.ChunkParams{Size: 400, Overlap: 80},
		MinContentChars: 100,
	}, WithLogger(zap.New(core)))
	require.NoError(t, err)
	return h
}

func (h *harness) blobFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.blobs.Dir())
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func (h *harness) points(t *testing.T) int64 {
	t.Helper()
	info, err := h.backend.Info(context.Background(), "test")
	if errors.Is(err, vectorstore.ErrCollectionNotInitialized) {
		return 0
	}
	require.NoError(t, err)
	return info.PointsCount
}

func (h *harness) documents(t *testing.T) int64 {
	t.Helper()
	n, err := h.store.CountDocuments(context.Background())
	require.NoError(t, err)
	return n
}

func longText(sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		b.WriteString("The distributed indexer stores every fragment with its ordinal and vector id. ")
	}
	return strings.TrimSpace(b.String())
}

func pdfRequest() *Request {
	user := "user-7"
	return &Request{Content: []byte("%PDF-1.4 fake"), DisplayName: "Quarterly Report.pdf", MediaHint: "application/pdf", UserID: &user}
}

func TestIngest_Completed(t *testing.T) {
	h := newHarness(t, extract.New(&fixedStrategy{text: longText(12)}))
	ctx := context.Background()

	doc, err := h.orch.Ingest(ctx, pdfRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, doc.Status)
	assert.Equal(t, "Quarterly Report.pdf", doc.OriginalFilename)
	assert.Regexp(t, `^\d{8}_\d{6}_[0-9a-f]{32}_QuarterlyReport\.pdf$`, doc.Filename)

	stored, err := h.store.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	require.NotNil(t, stored.UserID)
	assert.Equal(t, "user-7", *stored.UserID)

	frags, err := h.store.GetFragments(ctx, doc.ID)
	require.NoError(t, err)
	require.Greater(t, len(frags), 1)
	assert.Equal(t, len(frags), stored.ChunksCount)
	assert.Equal(t, int64(len(frags)), h.points(t))
	for i, f := range frags {
		assert.Equal(t, i, f.ChunkIndex)
		assert.LessOrEqual(t, f.CharacterCount, 200)
		assert.NotEmpty(t, f.VectorID)
	}

	hits, err := h.vectors.Query(ctx, "distributed indexer", 50, vectorstore.Filter{vectorstore.FieldDocumentID: doc.ID})
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, hit := range hits {
		ids[hit.ID] = true
		assert.Equal(t, "Quarterly Report.pdf", hit.Payload.Filename)
	}
	for _, f := range frags {
		assert.True(t, ids[f.VectorID], "vector %s of fragment %d not in store", f.VectorID, f.ChunkIndex)
	}
	assert.Equal(t, []string{doc.Filename}, h.blobFiles(t))
}

func TestIngest_WebUsesWebChunking(t *testing.T) {
	text := longText(12)
	h := newHarness(t, extract.New(&fixedStrategy{text: text}))
	doc, err := h.orch.Ingest(context.Background(), &Request{
		Content:     []byte("%PDF"),
		DisplayName: "example_com_post.pdf",
		SourceURL:   "https://example.com/post",
		HTML:        "<p>x</p>",
	})
	require.NoError(t, err)

	assert.Equal(t, len(h.orch.webChunker.Split(text)), doc.ChunksCount)
	assert.Less(t, doc.ChunksCount, len(h.orch.docChunker.Split(text)))
}

func TestIngest_SoftFailure(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		req    *Request
		reason string
	}{
		{"short document", "Too short to index.", pdfRequest(), NoContentReason},
		{"exactly at threshold", strings.Repeat("a", 100), pdfRequest(), NoContentReason},
		{"whitespace only", "   \n\n\t  ", pdfRequest(), NoContentReason},
		{"short web page", "Sign in", &Request{Content: []byte("%PDF"), DisplayName: "p.pdf", SourceURL: "https://x.com/p", HTML: "<p>Sign in</p>"}, NoWebContentReason},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, extract.New(&fixedStrategy{text: tt.text}))
			ctx := context.Background()

			doc, err := h.orch.Ingest(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, models.StatusFailed, doc.Status)
			assert.Equal(t, tt.reason, doc.VectorizationError)
			assert.Zero(t, doc.ChunksCount)

			stored, err := h.store.GetDocument(ctx, doc.ID)
			require.NoError(t, err)
			assert.Equal(t, models.StatusFailed, stored.Status)
			assert.Equal(t, tt.reason, stored.VectorizationError)
			frags, err := h.store.GetFragments(ctx, doc.ID)
			require.NoError(t, err)
			assert.Empty(t, frags)
			assert.Zero(t, h.points(t))
			assert.Len(t, h.blobFiles(t), 1, "soft failures keep the blob")
		})
	}
}

func TestIngest_JustAboveThreshold(t *testing.T) {
	h := newHarness(t, extract.New(&fixedStrategy{text: strings.Repeat("é", 101)}))
	doc, err := h.orch.Ingest(context.Background(), pdfRequest())
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, doc.Status)
	assert.Equal(t, 1, doc.ChunksCount)
}

func assertRolledBack(t *testing.T, h *harness) {
	t.Helper()
	assert.Zero(t, h.documents(t), "no document record may remain")
	assert.Empty(t, h.blobFiles(t), "blob must be deleted")
	assert.Zero(t, h.points(t), "no vectors may remain")
	n, err := h.store.CountFragments(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIngest_HardExtractionFailure(t *testing.T) {
	cause := errors.New("corrupt xref table")
	h := newHarness(t, extract.New(&fixedStrategy{err: cause}))

	doc, err := h.orch.Ingest(context.Background(), pdfRequest())
	assert.Nil(t, doc)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.ErrorIs(t, err, cause)
	assertRolledBack(t, h)
	assert.Empty(t, h.vectors.deletes, "vectors were never written")
}

func TestIngest_NoStrategy(t *testing.T) {
	h := newHarness(t, extract.New())
	_, err := h.orch.Ingest(context.Background(), pdfRequest())
	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.ErrorIs(t, err, extract.ErrNoStrategy)
	assertRolledBack(t, h)
}

func TestIngest_UpsertFailure(t *testing.T) {
	h := newHarness(t, extract.New(&fixedStrategy{text: longText(10)}))
	h.vectors.upsertErr = vectorstore.ErrConnectionUnavailable

	_, err := h.orch.Ingest(context.Background(), pdfRequest())
	assert.ErrorIs(t, err, ErrVectorization)
	assert.True(t, vectorstore.IsRetryable(err))
	assertRolledBack(t, h)
	assert.Empty(t, h.vectors.deletes)
}

func TestIngest_EmbeddingFailure(t *testing.T) {
	h := newHarness(t, extract.New(&fixedStrategy{text: longText(10)}))
	h.vectors.Store = vectorstore.New(h.backend, func() (embedding.Embedder, error) {
		return nil, errors.New("model file missing")
	}, vectorstore.WithCollection("test"), vectorstore.WithDimensions(testDims))

	_, err := h.orch.Ingest(context.Background(), pdfRequest())
	assert.ErrorIs(t, err, ErrVectorization)
	assert.ErrorIs(t, err, vectorstore.ErrEmbeddingUnavailable)
	assertRolledBack(t, h)
}

func TestIngest_FragmentPersistenceFailureDeletesVectors(t *testing.T) {
	h := newHarness(t, extract.New(&fixedStrategy{text: longText(10)}))
	h.store.completeErr = errors.New("disk I/O error")

	_, err := h.orch.Ingest(context.Background(), pdfRequest())
	assert.ErrorIs(t, err, ErrVectorization)
	require.Len(t, h.vectors.deletes, 1)
	assertRolledBack(t, h)
}

func TestIngest_RollbackErrorIsLoggedNotReturned(t *testing.T) {
	h := newHarness(t, extract.New(&fixedStrategy{text: longText(10)}))
	primary := errors.New("disk I/O error")
	h.store.completeErr = primary
	h.vectors.deleteErr = errors.New("qdrant down")

	_, err := h.orch.Ingest(context.Background(), pdfRequest())
	assert.ErrorIs(t, err, primary)
	assert.NotContains(t, err.Error(), "qdrant down")

	entries := h.logs.FilterMessage("rollback: failed to delete vectors").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Zero(t, h.documents(t))
	assert.Empty(t, h.blobFiles(t))
}

func TestIngest_CancelledDuringExtraction(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, extract.New(&fixedStrategy{
		text: longText(10),
		hook: func(context.Context) { cancel() },
	}))

	_, err := h.orch.Ingest(ctx, pdfRequest())
	assert.ErrorIs(t, err, context.Canceled)
	assertRolledBack(t, h)
}

func TestIngest_CancelledDuringExtractionError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, extract.New(&fixedStrategy{
		err:  errors.New("interrupted"),
		hook: func(context.Context) { cancel() },
	}))

	_, err := h.orch.Ingest(ctx, pdfRequest())
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrExtractionFailed)
	assertRolledBack(t, h)
}

func TestIngest_EmptyContent(t *testing.T) {
	h := newHarness(t, extract.New(&fixedStrategy{text: "x"}))
	_, err := h.orch.Ingest(context.Background(), &Request{DisplayName: "a.pdf"})
	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.Empty(t, h.blobFiles(t))
}

func TestIngest_ConcurrentRequestsAreIndependent(t *testing.T) {
	h := newHarness(t, extract.New(&fixedStrategy{text: longText(8)}))
	ctx := context.Background()

	var wg sync.WaitGroup
	docs := make([]*models.Document, 8)
	errs := make([]error, 8)
	for i := range docs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			docs[i], errs[i] = h.orch.Ingest(ctx, pdfRequest())
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	var total int64
	for i, doc := range docs {
		require.NoError(t, errs[i])
		assert.False(t, seen[doc.ID])
		seen[doc.ID] = true
		total += int64(doc.ChunksCount)
	}
	assert.Equal(t, total, h.points(t))
	assert.Len(t, h.blobFiles(t), 8)
}

func TestDelete(t *testing.T) {
	h := newHarness(t, extract.New(&fixedStrategy{text: longText(10)}))
	ctx := context.Background()
	doc, err := h.orch.Ingest(ctx, pdfRequest())
	require.NoError(t, err)

	require.NoError(t, h.orch.Delete(ctx, doc.ID))
	assertRolledBack(t, h)

	err = h.orch.Delete(ctx, doc.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDelete_FailedDocumentSkipsVectorStore(t *testing.T) {
	h := newHarness(t, extract.New(&fixedStrategy{text: "short"}))
	ctx := context.Background()
	doc, err := h.orch.Ingest(ctx, pdfRequest())
	require.NoError(t, err)
	h.vectors.deleteErr = vectorstore.ErrConnectionUnavailable

	require.NoError(t, h.orch.Delete(ctx, doc.ID))
	assert.Empty(t, h.vectors.deletes)
	assert.Zero(t, h.documents(t))
	assert.Empty(t, h.blobFiles(t))
}

func TestDelete_VectorStoreDownKeepsRecord(t *testing.T) {
	h := newHarness(t, extract.New(&fixedStrategy{text: longText(10)}))
	ctx := context.Background()
	doc, err := h.orch.Ingest(ctx, pdfRequest())
	require.NoError(t, err)
	h.vectors.deleteErr = vectorstore.ErrConnectionUnavailable

	err = h.orch.Delete(ctx, doc.ID)
	assert.ErrorIs(t, err, vectorstore.ErrConnectionUnavailable)
	assert.Equal(t, int64(1), h.documents(t))
}

func TestNew_InvalidChunking(t *testing.T) {
	_, err := New(nil, nil, nil, nil, &config.ChunkingConfig{
		PDF: config.ChunkParams{Size: 100, Overlap: 100},
		Web: config.ChunkParams{Size: 1000, Overlap: 200},
	})
	assert.Error(t, err)
}
