package vectorstore

import (
	"math"
	"time"
)

// Payload field names, also usable as Filter keys.
const (
	FieldText       = "text"
	FieldDocumentID = "document_id"
	FieldUserID     = "user_id"
	FieldFilename   = "filename"
	FieldChunkIndex = "chunk_index"
	FieldCreatedAt  = "created_at"
)

// FragmentInput is one chunk to embed and store.
type FragmentInput struct {
	DocumentID string
	UserID     *string
	Filename   string
	ChunkIndex int
	Text       string
	CreatedAt  time.Time
}

// Payload is the metadata stored next to each vector.
type Payload struct {
	Text       string    `json:"text"`
	DocumentID string    `json:"document_id"`
	UserID     *string   `json:"user_id"`
	Filename   string    `json:"filename"`
	ChunkIndex int       `json:"chunk_index"`
	CreatedAt  time.Time `json:"created_at"`
}

// Field returns the payload value stored under key, or nil.
func (p *Payload) Field(key string) interface{} {
	switch key {
	case FieldText:
		return p.Text
	case FieldDocumentID:
		return p.DocumentID
	case FieldUserID:
		if p.UserID == nil {
			return nil
		}
		return *p.UserID
	case FieldFilename:
		return p.Filename
	case FieldChunkIndex:
		return p.ChunkIndex
	case FieldCreatedAt:
		return p.CreatedAt.Format(time.RFC3339Nano)
	}
	return nil
}

// Point is a stored vector with its id and payload.
type Point struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

// Hit is one similarity search result.
type Hit struct {
	ID      string
	Score   float64
	Payload Payload
}

// Filter is a conjunction of payload equality predicates.
type Filter map[string]interface{}

// Matches reports whether every predicate holds for p.
func (f Filter) Matches(p *Payload) bool {
	for k, want := range f {
		if !valuesEqual(p.Field(k), want) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && math.Abs(fa-fb) < 1e-9
	}
	return a == b
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// CollectionInfo describes the collection backing the store.
type CollectionInfo struct {
	Name        string `json:"name"`
	Dimensions  int    `json:"dimensions"`
	PointsCount int64  `json:"points_count"`
	Status      string `json:"status"`
}
