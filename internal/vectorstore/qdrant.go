package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// QdrantBackend talks to the Qdrant REST API. Collections use cosine distance.
type QdrantBackend struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewQdrantBackend returns a client for the Qdrant server at baseURL (for example http://localhost:6333).
func NewQdrantBackend(baseURL, apiKey string, timeout time.Duration) *QdrantBackend {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &QdrantBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Ping lists collections to check the server is reachable.
func (q *QdrantBackend) Ping(ctx context.Context) error {
	return q.do(ctx, http.MethodGet, "/collections", nil, nil)
}

// CollectionExists reports whether name is among the server's collections.
func (q *QdrantBackend) CollectionExists(ctx context.Context, name string) (bool, error) {
	var resp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodGet, "/collections", nil, &resp); err != nil {
		return false, err
	}
	for _, c := range resp.Result.Collections {
		if c.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// CreateCollection creates a cosine collection of the given vector size.
func (q *QdrantBackend) CreateCollection(ctx context.Context, name string, dimensions int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimensions,
			"distance": "Cosine",
		},
	}
	if err := q.do(ctx, http.MethodPut, "/collections/"+url.PathEscape(name), body, nil); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return nil
}

// Upsert writes all points in one request and waits for them to be indexed.
func (q *QdrantBackend) Upsert(ctx context.Context, collection string, points []Point) error {
	body := map[string]any{"points": points}
	return q.do(ctx, http.MethodPut, q.collectionPath(collection, "/points?wait=true"), body, nil)
}

// Search returns up to limit points by similarity to vector, restricted by filter.
func (q *QdrantBackend) Search(ctx context.Context, collection string, vector []float32, limit int, filter Filter) ([]Hit, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if f := qdrantFilter(filter); f != nil {
		req["filter"] = f
	}
	var resp struct {
		Result []struct {
			ID      json.RawMessage `json:"id"`
			Score   float64         `json:"score"`
			Payload Payload         `json:"payload"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost, q.collectionPath(collection, "/points/search"), req, &resp); err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, Hit{ID: pointID(r.ID), Score: r.Score, Payload: r.Payload})
	}
	return hits, nil
}

// DeleteByFilter removes every point matching filter.
func (q *QdrantBackend) DeleteByFilter(ctx context.Context, collection string, filter Filter) error {
	f := qdrantFilter(filter)
	if f == nil {
		return errors.New("refusing to delete with an empty filter")
	}
	return q.do(ctx, http.MethodPost, q.collectionPath(collection, "/points/delete?wait=true"), map[string]any{"filter": f}, nil)
}

// Info returns the collection status, size and vector dimensions.
func (q *QdrantBackend) Info(ctx context.Context, collection string) (*CollectionInfo, error) {
	var resp struct {
		Result struct {
			Status      string `json:"status"`
			PointsCount int64  `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodGet, q.collectionPath(collection, ""), nil, &resp); err != nil {
		return nil, err
	}
	return &CollectionInfo{
		Name:        collection,
		Dimensions:  resp.Result.Config.Params.Vectors.Size,
		PointsCount: resp.Result.PointsCount,
		Status:      resp.Result.Status,
	}, nil
}

func (q *QdrantBackend) collectionPath(collection, suffix string) string {
	return "/collections/" + url.PathEscape(collection) + suffix
}

// qdrantFilter renders f as {"must":[{"key":k,"match":{"value":v}}]} with keys sorted.
func qdrantFilter(f Filter) map[string]any {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	must := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		must = append(must, map[string]any{"key": k, "match": map[string]any{"value": f[k]}})
	}
	return map[string]any{"must": must}
}

// pointID accepts both string (uuid) and integer point ids.
func pointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (q *QdrantBackend) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode qdrant request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrConnectionUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		detail := fmt.Sprintf("qdrant %s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrCollectionNotInitialized, detail)
		case resp.StatusCode >= 500:
			return fmt.Errorf("%w: %s", ErrConnectionUnavailable, detail)
		default:
			return errors.New(detail)
		}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode qdrant response: %w", err)
		}
	}
	return nil
}
