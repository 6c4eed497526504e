// Package storage persists document records, their fragments, search logs, and raw uploads.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kbase/internal/models"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotPending is returned when a terminal transition is applied to a document
	// that already left the pending state.
	ErrNotPending = errors.New("document is not pending")
)

// Storage defines document and fragment persistence operations.
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	GetDocuments(ctx context.Context, ids []string) (map[string]*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// Terminal transitions. Both only apply to pending documents.
	CompleteDocument(ctx context.Context, id string, fragments []*models.Fragment) error
	FailDocument(ctx context.Context, id string, reason string) error

	// Fragment operations
	GetFragments(ctx context.Context, docID string) ([]*models.Fragment, error)

	// Analytics
	LogSearch(ctx context.Context, entry *models.SearchLog) error
	ListSearches(ctx context.Context, limit int) ([]*models.SearchLog, error)

	// Stats
	CountDocuments(ctx context.Context) (int64, error)
	CountFragments(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) (map[models.Status]int64, error)

	Close() error
}
