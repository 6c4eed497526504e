package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kbase/internal/config"
	"github.com/hyperjump/kbase/internal/models"
	"github.com/hyperjump/kbase/internal/vectorstore"
)

// NoResultsMessage is returned with an empty result list.
const NoResultsMessage = "No relevant documents found for your query"

// Querier runs a semantic query against the vector store.
type Querier interface {
	Query(ctx context.Context, text string, k int, filter vectorstore.Filter) ([]vectorstore.Hit, error)
}

// Catalog is the part of the relational store the service reads and writes.
type Catalog interface {
	GetDocuments(ctx context.Context, ids []string) (map[string]*models.Document, error)
	LogSearch(ctx context.Context, entry *models.SearchLog) error
}

// Service answers search requests.
type Service struct {
	engine  *Engine
	querier Querier
	catalog Catalog
	cfg     config.SearchConfig
	logger  *zap.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger.
func WithServiceLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService returns a search service. A nil engine uses the configured weights.
func NewService(engine *Engine, querier Querier, catalog Catalog, cfg *config.SearchConfig, opts ...ServiceOption) *Service {
	s := &Service{
		engine:  engine,
		querier: querier,
		catalog: catalog,
		logger:  zap.NewNop(),
	}
	if cfg != nil {
		s.cfg = *cfg
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = NewEngine(WithWeights(s.cfg.SemanticWeight, s.cfg.KeywordWeight), WithLogger(s.logger))
	}
	return s
}

// Search runs query and returns the ranked, thresholded results.
func (s *Service) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	minConfidence, err := ProcessQuery(query, &s.cfg)
	if err != nil {
		return nil, err
	}
	filter, err := BuildFilter(query.Filters)
	if err != nil {
		return nil, err
	}

	ranked, err := s.engine.Search(ctx, query.Query, s.querier.Query, query.Limit, filter)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Error("semantic search failed", zap.String("query", query.Query), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	docs := s.lookupDocuments(ctx, ranked)
	results := make([]*models.SearchResult, 0, len(ranked))
	for _, r := range ranked {
		if minConfidence != nil && r.Score < *minConfidence {
			continue
		}
		filename := r.Payload.Filename
		if docs != nil {
			doc, ok := docs[r.Payload.DocumentID]
			if !ok || doc.Status != models.StatusCompleted {
				continue
			}
			if doc.OriginalFilename != "" {
				filename = doc.OriginalFilename
			}
		}
		results = append(results, &models.SearchResult{
			VectorID:      r.ID,
			DocumentID:    r.Payload.DocumentID,
			Filename:      filename,
			ChunkIndex:    r.Payload.ChunkIndex,
			Text:          r.Payload.Text,
			Score:         r.Score,
			SemanticScore: r.SemanticScore,
			KeywordScore:  r.KeywordScore,
			CreatedAt:     r.Payload.CreatedAt,
		})
	}

	resp := &models.SearchResponse{
		Query:        query.Query,
		Results:      results,
		TotalResults: len(results),
		QueryTime:    time.Since(start).Milliseconds(),
		Params:       models.SearchParams{Limit: query.Limit, MinConfidence: minConfidence},
	}
	if len(results) == 0 {
		resp.Message = NoResultsMessage
	}
	s.logSearch(ctx, query, resp)
	return resp, nil
}

// lookupDocuments returns the records behind the ranked hits, or nil when
// they cannot be read.
func (s *Service) lookupDocuments(ctx context.Context, ranked []Result) map[string]*models.Document {
	if s.catalog == nil || len(ranked) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ranked))
	ids := make([]string, 0, len(ranked))
	for _, r := range ranked {
		if id := r.Payload.DocumentID; !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	docs, err := s.catalog.GetDocuments(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to load documents for search results", zap.Error(err))
		return nil
	}
	return docs
}

func (s *Service) logSearch(ctx context.Context, query *models.SearchQuery, resp *models.SearchResponse) {
	if s.catalog == nil {
		return
	}
	entry := &models.SearchLog{
		QueryText:      query.Query,
		ResultsCount:   resp.TotalResults,
		ResponseTimeMs: resp.QueryTime,
		CreatedAt:      time.Now().UTC(),
	}
	if n := len(resp.Results); n > 0 {
		lo, hi := resp.Results[0].Score, resp.Results[0].Score
		for _, r := range resp.Results[1:] {
			lo = min(lo, r.Score)
			hi = max(hi, r.Score)
		}
		entry.MinScore, entry.MaxScore = &lo, &hi
	}
	if len(query.Filters) > 0 {
		if data, err := json.Marshal(query.Filters); err == nil {
			entry.Filters = string(data)
		}
	}
	if err := s.catalog.LogSearch(context.WithoutCancel(ctx), entry); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("failed to log search", zap.Error(err))
	}
}
