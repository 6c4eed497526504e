package search

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/kbase/internal/config"
	"github.com/hyperjump/kbase/internal/models"
	"github.com/hyperjump/kbase/internal/vectorstore"
)

// filterKinds lists the payload fields a request may filter on.
var filterKinds = map[string]string{
	vectorstore.FieldDocumentID: "string",
	vectorstore.FieldUserID:     "string",
	vectorstore.FieldFilename:   "string",
	vectorstore.FieldChunkIndex: "number",
}

// ProcessQuery validates query and applies the configured limit defaults.
// It returns the effective minimum confidence, if any.
func ProcessQuery(query *models.SearchQuery, cfg *config.SearchConfig) (*float64, error) {
	query.Query = strings.TrimSpace(query.Query)
	if query.Limit <= 0 && cfg.DefaultLimit > 0 {
		query.Limit = cfg.DefaultLimit
	}
	if cfg.MaxLimit > 0 && query.Limit > cfg.MaxLimit {
		query.Limit = cfg.MaxLimit
	}
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	if query.MinConfidence != nil {
		return query.MinConfidence, nil
	}
	if cfg.MinConfidence > 0 {
		v := cfg.MinConfidence
		return &v, nil
	}
	return nil, nil
}

// BuildFilter converts request filters into a vector store filter. Unknown
// keys and values of the wrong type are rejected.
func BuildFilter(filters map[string]interface{}) (vectorstore.Filter, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	f := make(vectorstore.Filter, len(filters))
	for _, k := range keys {
		kind, ok := filterKinds[k]
		if !ok {
			return nil, fmt.Errorf("%w: unsupported filter %q", ErrInvalidQuery, k)
		}
		v := filters[k]
		switch kind {
		case "string":
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: filter %q must be a string", ErrInvalidQuery, k)
			}
			f[k] = s
		case "number":
			n, ok := toIndex(v)
			if !ok {
				return nil, fmt.Errorf("%w: filter %q must be a non-negative integer", ErrInvalidQuery, k)
			}
			f[k] = n
		}
	}
	return f, nil
}

func toIndex(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, n >= 0
	case int64:
		return int(n), n >= 0
	case float64:
		if n < 0 || n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}
