package models

import (
	"fmt"
	"strings"
	"time"
)

// DefaultLimit and MaxLimit bound SearchQuery.Limit.
const (
	DefaultLimit = 5
	MaxLimit     = 100
)

// SearchQuery represents a search request with optional filters.
type SearchQuery struct {
	Query         string                 `json:"query" validate:"required"`
	Limit         int                    `json:"limit,omitempty" validate:"gte=0,lte=100"`
	MinConfidence *float64               `json:"min_confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	Filters       map[string]interface{} `json:"filters,omitempty"`
}

// Validate ensures the search query has valid fields and sets defaults.
// Returns an error if the query is blank; otherwise normalizes limit.
func (q *SearchQuery) Validate() error {
	if strings.TrimSpace(q.Query) == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.MinConfidence != nil && (*q.MinConfidence < 0 || *q.MinConfidence > 1) {
		return fmt.Errorf("min_confidence must be between 0 and 1")
	}
	return nil
}

// SearchLog is one recorded search, kept for analytics.
type SearchLog struct {
	ID             int64     `json:"id" db:"id"`
	QueryText      string    `json:"query_text" db:"query_text"`
	ResultsCount   int       `json:"results_count" db:"results_count"`
	ResponseTimeMs int64     `json:"response_time_ms" db:"response_time_ms"`
	MinScore       *float64  `json:"min_score,omitempty" db:"min_score"`
	MaxScore       *float64  `json:"max_score,omitempty" db:"max_score"`
	Filters        string    `json:"filters_applied,omitempty" db:"filters_applied"`
	CreatedAt      time.Time `json:"search_timestamp" db:"search_timestamp"`
}
