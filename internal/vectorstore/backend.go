package vectorstore

import "context"

// Backend is a vector database holding named collections of points.
type Backend interface {
	Ping(ctx context.Context) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, name string, dimensions int) error
	Upsert(ctx context.Context, collection string, points []Point) error
	Search(ctx context.Context, collection string, vector []float32, limit int, filter Filter) ([]Hit, error)
	DeleteByFilter(ctx context.Context, collection string, filter Filter) error
	Info(ctx context.Context, collection string) (*CollectionInfo, error)
}
