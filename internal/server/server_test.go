package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kbase/internal/browser"
	"github.com/hyperjump/kbase/internal/config"
	"github.com/hyperjump/kbase/internal/embedding"
	"github.com/hyperjump/kbase/internal/extract"
	"github.com/hyperjump/kbase/internal/ingest"
	"github.com/hyperjump/kbase/internal/models"
	"github.com/hyperjump/kbase/internal/search"
	"github.com/hyperjump/kbase/internal/storage"
	"github.com/hyperjump/kbase/internal/vectorstore"
)

const paragraph = "Kubernetes operators reconcile desired state with observed cluster state. "

type stubRenderer struct {
	page *browser.Page
	err  error
}

func (s *stubRenderer) Render(context.Context, string, browser.RenderOptions) (*browser.Page, error) {
	return s.page, s.err
}

type testEnv struct {
	handler  http.Handler
	store    *storage.SQLiteStorage
	backend  *vectorstore.MemoryBackend
	renderer *stubRenderer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	st, err := storage.NewSQLiteStorage(filepath.Join(dir, "kbase.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	blobs, err := storage.NewDiskBlobStore(filepath.Join(dir, "uploads"))
	if err != nil {
		t.Fatal(err)
	}

	backend := vectorstore.NewMemoryBackend()
	vectors := vectorstore.New(backend, func() (embedding.Embedder, error) {
		return embedding.NewMockEmbedder(32), nil
	}, vectorstore.WithCollection("kb"), vectorstore.WithDimensions(32))
	t.Cleanup(func() { vectors.Close() })

	renderer := &stubRenderer{}
	orch, err := ingest.New(st, blobs, vectors, extract.NewExtractor(), &config.ChunkingConfig{
		PDF:             config.ChunkParams{Size: 300, Overlap: 50},
		Web:             config.ChunkParams{Size: 500, Overlap: 100},
		MinContentChars: 100,
	}, ingest.WithRenderer(renderer))
	if err != nil {
		t.Fatal(err)
	}
	svc := search.NewService(nil, vectors, st, &config.SearchConfig{DefaultLimit: 5, MaxLimit: 100, SemanticWeight: 0.7, KeywordWeight: 0.3})
	status := NewStatusReporter(st, vectors, nil, filepath.Join(dir, "kbase.db"), blobs.Dir())

	srv := NewServer(orch, svc, st, status, &config.ServerConfig{UploadMaxBytes: 1 << 20}, nil)
	return &testEnv{handler: srv.Handler(), store: st, backend: backend, renderer: renderer}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, filename, contentType string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(content)
	mw.Close()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func jsonRequest(method, path string, v interface{}) *http.Request {
	data, _ := json.Marshal(v)
	r := httptest.NewRequest(method, path, bytes.NewReader(data))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decode(t, w, &body)
	return body.Error
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, uploadRequest(t, "operators.txt", "text/plain", []byte(strings.Repeat(paragraph, 12))))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: got %d, body %s", w.Code, w.Body.String())
	}
	var doc models.Document
	decode(t, w, &doc)
	if doc.Status != models.StatusCompleted || doc.ChunksCount == 0 {
		t.Fatalf("upload: got status %s with %d chunks", doc.Status, doc.ChunksCount)
	}
	if doc.OriginalFilename != "operators.txt" {
		t.Errorf("original filename: got %q", doc.OriginalFilename)
	}

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents?limit=10", nil))
	var list listResponse
	decode(t, w, &list)
	if list.Total != 1 || len(list.Documents) != 1 || list.Limit != 10 {
		t.Errorf("list: got %+v", list)
	}

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+doc.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("detail: got %d", w.Code)
	}
	var detail struct {
		ID        string             `json:"id"`
		Fragments []*models.Fragment `json:"fragments"`
	}
	decode(t, w, &detail)
	if detail.ID != doc.ID || len(detail.Fragments) != doc.ChunksCount {
		t.Errorf("detail: got id %q with %d fragments", detail.ID, len(detail.Fragments))
	}

	w = env.do(t, jsonRequest(http.MethodPost, "/api/v1/search", map[string]interface{}{"query": "kubernetes operators", "limit": 2}))
	if w.Code != http.StatusOK {
		t.Fatalf("search: got %d, body %s", w.Code, w.Body.String())
	}
	var resp models.SearchResponse
	decode(t, w, &resp)
	if resp.TotalResults == 0 || resp.TotalResults > 2 {
		t.Fatalf("search: got %d results", resp.TotalResults)
	}
	if resp.Results[0].DocumentID != doc.ID || resp.Results[0].Filename != "operators.txt" {
		t.Errorf("search: top result %+v", resp.Results[0])
	}

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	var status models.SystemStatus
	decode(t, w, &status)
	if status.Documents != 1 || status.Fragments != int64(doc.ChunksCount) || status.ByStatus[models.StatusCompleted] != 1 {
		t.Errorf("status: got %+v", status)
	}
	if status.VectorStore == nil || !status.VectorStore.Ready || status.VectorStore.Points != int64(doc.ChunksCount) {
		t.Errorf("status vector store: got %+v", status.VectorStore)
	}
	if status.DiskUsageBytes <= 0 {
		t.Errorf("disk usage: got %d", status.DiskUsageBytes)
	}

	w = env.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/documents/"+doc.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("delete: got %d", w.Code)
	}
	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/documents/"+doc.ID, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("after delete: got %d", w.Code)
	}
	w = env.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/documents/"+doc.ID, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d", w.Code)
	}
}

func TestUpload_Outcomes(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		content     []byte
		wantCode    int
		wantStatus  models.Status
	}{
		{"little text is a failed document", "note.txt", "text/plain", []byte("Only a few words."), http.StatusCreated, models.StatusFailed},
		{"unreadable pdf", "broken.pdf", "application/pdf", []byte("this is not a pdf"), http.StatusUnprocessableEntity, ""},
		{"pdf media type without extension", "scan", "application/pdf", []byte("still not a pdf"), http.StatusUnprocessableEntity, ""},
		{"unsupported type", "photo.png", "image/png", []byte{0x89, 'P', 'N', 'G'}, http.StatusBadRequest, ""},
		{"empty file", "empty.txt", "text/plain", nil, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.do(t, uploadRequest(t, tt.filename, tt.contentType, tt.content))
			if w.Code != tt.wantCode {
				t.Fatalf("got %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantStatus != "" {
				var doc models.Document
				decode(t, w, &doc)
				if doc.Status != tt.wantStatus {
					t.Errorf("status: got %s, want %s", doc.Status, tt.wantStatus)
				}
				return
			}
			if msg := errorMessage(t, w); msg == "" {
				t.Error("expected an error message")
			}
			if n, _ := env.store.CountDocuments(context.Background()); n != 0 {
				t.Errorf("documents left after failed upload: %d", n)
			}
		})
	}
}

func TestUpload_MissingFileAndTooLarge(t *testing.T) {
	env := newTestEnv(t)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader("plain"))
	r.Header.Set("Content-Type", "text/plain")
	if w := env.do(t, r); w.Code != http.StatusBadRequest {
		t.Errorf("non-multipart: got %d", w.Code)
	}

	w := env.do(t, uploadRequest(t, "big.txt", "text/plain", bytes.Repeat([]byte("a"), 2<<20)))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("too large: got %d", w.Code)
	}
}

func TestIngestURL(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, jsonRequest(http.MethodPost, "/api/v1/documents/url", map[string]string{}))
	if w.Code != http.StatusBadRequest || errorMessage(t, w) != "url is required" {
		t.Errorf("missing url: got %d", w.Code)
	}
	w = env.do(t, jsonRequest(http.MethodPost, "/api/v1/documents/url", map[string]string{"url": "not a url"}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad url: got %d", w.Code)
	}

	env.renderer.page = &browser.Page{
		HTML: "<html><body><main><p>" + strings.Repeat(paragraph, 8) + "</p></main></body></html>",
		PDF:  []byte("%PDF-1.4 rendered"),
	}
	w = env.do(t, jsonRequest(http.MethodPost, "/api/v1/documents/url", map[string]string{"url": "https://docs.example.org/operators"}))
	if w.Code != http.StatusCreated {
		t.Fatalf("ingest: got %d, body %s", w.Code, w.Body.String())
	}
	var doc models.Document
	decode(t, w, &doc)
	if doc.Status != models.StatusCompleted || doc.OriginalFilename != "docs_example_org_operators.pdf" || doc.SourceURL == "" {
		t.Errorf("ingest: got %+v", doc)
	}

	env.renderer.err = fmt.Errorf("%w: net::ERR_CONNECTION_REFUSED", browser.ErrNavigation)
	w = env.do(t, jsonRequest(http.MethodPost, "/api/v1/documents/url", map[string]string{"url": "https://down.example.org/"}))
	if w.Code != http.StatusBadGateway {
		t.Errorf("navigation failure: got %d", w.Code)
	}
}

func TestSearch_Validation(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"query":`, http.StatusBadRequest},
		{"missing query", `{"limit":3}`, http.StatusBadRequest},
		{"blank query", `{"query":"   "}`, http.StatusBadRequest},
		{"limit too high", `{"query":"x","limit":101}`, http.StatusBadRequest},
		{"confidence out of range", `{"query":"x","min_confidence":1.5}`, http.StatusBadRequest},
		{"unknown filter", `{"query":"x","filters":{"color":"red"}}`, http.StatusBadRequest},
		{"empty index", `{"query":"x"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(tt.body))
			if w := env.do(t, r); w.Code != tt.want {
				t.Errorf("got %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestSearch_BackendUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.backend.SetPingError(errors.New("connection refused"))

	w := env.do(t, jsonRequest(http.MethodPost, "/api/v1/search", map[string]string{"query": "anything"}))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d, want 503", w.Code)
	}

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	var status models.SystemStatus
	decode(t, w, &status)
	if status.VectorStore == nil || status.VectorStore.Ready || status.VectorStore.Error == "" {
		t.Errorf("status should report the vector store as unavailable: %+v", status.VectorStore)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", search.ErrInvalidQuery), http.StatusBadRequest},
		{ingest.ErrEmptyContent, http.StatusBadRequest},
		{fmt.Errorf("get: %w", storage.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: bad zip", ingest.ErrExtractionFailed), http.StatusUnprocessableEntity},
		{fmt.Errorf("render: %w", browser.ErrNavigation), http.StatusBadGateway},
		{ingest.ErrNoRenderer, http.StatusNotImplemented},
		{fmt.Errorf("%w: down", search.ErrUnavailable), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: %w", ingest.ErrVectorization, vectorstore.ErrEmbeddingUnavailable), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: disk full", ingest.ErrVectorization), http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
