package search

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/hyperjump/kbase/internal/vectorstore"
)

var benchText = strings.Repeat("Senior Go engineer building distributed systems with Kubernetes and Qdrant. ", 12)

func BenchmarkSubstringScorer(b *testing.B) {
	s := SubstringScorer{}
	for i := 0; i < b.N; i++ {
		_, _ = s.Score("distributed go engineer kubernetes", benchText)
	}
}

func BenchmarkEngineSearch(b *testing.B) {
	hits := make([]vectorstore.Hit, 80)
	for i := range hits {
		hits[i] = vectorstore.Hit{
			ID:      fmt.Sprintf("p%d", i),
			Score:   1 - float64(i)/100,
			Payload: vectorstore.Payload{Text: benchText, DocumentID: "d"},
		}
	}
	semantic := func(context.Context, string, int, vectorstore.Filter) ([]vectorstore.Hit, error) {
		return hits, nil
	}
	e := NewEngine()
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Search(ctx, "go engineer", semantic, 20, nil)
	}
}
