package models

import "time"

// SearchResult is one ranked hit. It is never persisted.
type SearchResult struct {
	VectorID      string    `json:"-"`
	DocumentID    string    `json:"document_id"`
	Filename      string    `json:"filename"`
	ChunkIndex    int       `json:"chunk_index"`
	Text          string    `json:"text"`
	Score         float64   `json:"confidence"`
	SemanticScore float64   `json:"semantic_score"`
	KeywordScore  float64   `json:"keyword_score"`
	CreatedAt     time.Time `json:"created_at"`
}

// SearchParams echoes the effective parameters of a search.
type SearchParams struct {
	Limit         int      `json:"limit"`
	MinConfidence *float64 `json:"min_confidence"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Query        string          `json:"query"`
	Results      []*SearchResult `json:"results"`
	TotalResults int             `json:"total_results"`
	QueryTime    int64           `json:"query_time_ms"`
	Params       SearchParams    `json:"search_params"`
	Message      string          `json:"message,omitempty"`
}
