package vectordb

import "context"

// VectorStore stores documents by embedding and returns the nearest ones to
// a query.
type VectorStore interface {
	// AddDocuments adds or replaces documents by ID.
	AddDocuments(ctx context.Context, docs []Document) error

	// Search returns up to limit documents closest to query, best first.
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)

	// DeleteBySource removes every document ingested from source.
	DeleteBySource(ctx context.Context, source string) error

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// Name identifies the backend in logs and /api/performance.
	Name() string

	// Close flushes and releases the backend.
	Close(ctx context.Context) error
}
