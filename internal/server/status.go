package server

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kbase/internal/models"
	"github.com/hyperjump/kbase/internal/storage"
	"github.com/hyperjump/kbase/internal/vectorstore"
)

// Collection is the view of the vector store the status report needs.
type Collection interface {
	Collection() string
	Info(ctx context.Context) (*vectorstore.CollectionInfo, error)
}

// StatusReporter gathers counts and disk usage for the status endpoint and the CLI.
type StatusReporter struct {
	storage   storage.Storage
	vectors   Collection
	diskPaths []string
	logger    *zap.Logger
}

// NewStatusReporter reports on st and vectors. diskPaths are summed for disk usage.
func NewStatusReporter(st storage.Storage, vectors Collection, logger *zap.Logger, diskPaths ...string) *StatusReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusReporter{storage: st, vectors: vectors, diskPaths: diskPaths, logger: logger}
}

// Report returns the current status. An unreachable vector store is
// reported in the result, not as an error.
func (r *StatusReporter) Report(ctx context.Context) (*models.SystemStatus, error) {
	docs, err := r.storage.CountDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	fragments, err := r.storage.CountFragments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count fragments: %w", err)
	}
	byStatus, err := r.storage.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents by status: %w", err)
	}
	status := &models.SystemStatus{
		Documents: docs,
		Fragments: fragments,
		ByStatus:  byStatus,
	}

	if r.vectors != nil {
		vs := &models.VectorStoreStatus{Collection: r.vectors.Collection()}
		info, err := r.vectors.Info(ctx)
		if err != nil {
			r.logger.Warn("status: vector store unavailable", zap.Error(err))
			vs.Error = err.Error()
		} else {
			vs.Ready = true
			vs.Points = info.PointsCount
			vs.Dimensions = info.Dimensions
			vs.Status = info.Status
		}
		status.VectorStore = vs
	}

	if disk, err := storage.DiskUsageBytes(r.diskPaths...); err == nil {
		status.DiskUsageBytes = disk
	} else {
		r.logger.Warn("status: disk usage failed", zap.Error(err))
	}
	return status, nil
}
