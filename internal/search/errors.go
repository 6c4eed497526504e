package search

import "errors"

var (
	// ErrUnavailable is returned when the semantic backend cannot serve the query.
	ErrUnavailable = errors.New("search backend unavailable")
	// ErrInvalidQuery is returned for a query that fails validation.
	ErrInvalidQuery = errors.New("invalid search query")
)
