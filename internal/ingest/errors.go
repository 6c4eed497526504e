package ingest

import "errors"

var (
	// ErrExtractionFailed wraps hard extraction errors: no strategy, unreadable content.
	ErrExtractionFailed = errors.New("text extraction failed")
	// ErrVectorization wraps embedding, vector store and fragment persistence errors.
	ErrVectorization = errors.New("vectorization failed")
	// ErrEmptyContent is returned for a request without bytes.
	ErrEmptyContent = errors.New("content is empty")
)

// Reasons recorded on documents that produced no usable text.
const (
	NoContentReason    = "No substantial text content could be extracted from the document"
	NoWebContentReason = "No substantial text content could be extracted from the webpage"
)
