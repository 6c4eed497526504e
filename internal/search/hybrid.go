// Package search re-ranks semantic candidates with a keyword score and
// serves search requests over the vector store.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kbase/internal/vectorstore"
)

const (
	// DefaultSemanticWeight and DefaultKeywordWeight blend scores when not every query token matched.
	DefaultSemanticWeight = 0.7
	DefaultKeywordWeight  = 0.3

	fullMatchSemanticWeight = 0.6
	fullMatchKeywordWeight  = 0.4

	minCandidates     = 20
	candidateFactor   = 4
	defaultQueryLimit = 5
)

// SemanticFunc returns up to k hits for query, most similar first.
type SemanticFunc func(ctx context.Context, query string, k int, filter vectorstore.Filter) ([]vectorstore.Hit, error)

// Result is a re-ranked candidate.
type Result struct {
	ID            string
	Payload       vectorstore.Payload
	SemanticScore float64
	KeywordScore  float64
	Score         float64
}

// Engine blends semantic similarity with keyword matching.
type Engine struct {
	semanticWeight float64
	keywordWeight  float64
	scorer         Scorer
	logger         *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithWeights sets the blend used when a candidate does not contain every query token.
func WithWeights(semantic, keyword float64) EngineOption {
	return func(e *Engine) {
		e.semanticWeight = semantic
		e.keywordWeight = keyword
	}
}

// WithScorer replaces the keyword scorer.
func WithScorer(s Scorer) EngineOption {
	return func(e *Engine) { e.scorer = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine returns an engine with the default weights and substring scorer.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		semanticWeight: DefaultSemanticWeight,
		keywordWeight:  DefaultKeywordWeight,
		scorer:         SubstringScorer{ProximityWindow: DefaultProximityWindow},
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CandidateCount is how many semantic hits are fetched to produce limit results.
func CandidateCount(limit int) int {
	return max(limit*candidateFactor, minCandidates)
}

// Search fetches candidates through semantic, re-ranks them and returns at
// most limit results, best first. Errors from semantic are returned as is.
// If keyword scoring fails the candidates keep their semantic order.
func (e *Engine) Search(ctx context.Context, query string, semantic SemanticFunc, limit int, filter vectorstore.Filter) ([]Result, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	hits, err := semantic(ctx, query, CandidateCount(limit), filter)
	if err != nil {
		return nil, err
	}

	var results []Result
	if strings.TrimSpace(query) == "" {
		results = semanticOrder(hits)
	} else {
		results, err = e.rerank(query, hits)
		if err != nil {
			e.logger.Warn("keyword re-ranking failed, using semantic order", zap.Error(err))
			results = semanticOrder(hits)
		}
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (e *Engine) rerank(query string, hits []vectorstore.Hit) (results []Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			results, err = nil, fmt.Errorf("keyword scorer panicked: %v", r)
		}
	}()

	results = make([]Result, len(hits))
	for i, h := range hits {
		ks, err := e.scorer.Score(query, h.Payload.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to score candidate %s: %w", h.ID, err)
		}
		results[i] = Result{
			ID:            h.ID,
			Payload:       h.Payload,
			SemanticScore: h.Score,
			KeywordScore:  ks.Score,
			Score:         e.blend(h.Score, ks),
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

func (e *Engine) blend(semantic float64, ks KeywordScore) float64 {
	if ks.AllMatched() {
		return fullMatchSemanticWeight*semantic + fullMatchKeywordWeight*ks.Score
	}
	return e.semanticWeight*semantic + e.keywordWeight*ks.Score
}

func semanticOrder(hits []vectorstore.Hit) []Result {
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{ID: h.ID, Payload: h.Payload, SemanticScore: h.Score, Score: h.Score}
	}
	return results
}
