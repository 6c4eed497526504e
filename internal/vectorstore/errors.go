package vectorstore

import "errors"

var (
	// ErrConnectionUnavailable means the vector database could not be reached or answered with a server error.
	ErrConnectionUnavailable = errors.New("vector store connection unavailable")
	// ErrEmbeddingUnavailable means the embedding model could not be loaded or failed to embed.
	ErrEmbeddingUnavailable = errors.New("embedding model unavailable")
	// ErrCollectionNotInitialized means the collection does not exist or could not be created.
	ErrCollectionNotInitialized = errors.New("vector collection not initialized")
)

// IsRetryable reports whether err is a transient connection or embedding failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConnectionUnavailable) || errors.Is(err, ErrEmbeddingUnavailable)
}
