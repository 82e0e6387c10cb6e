package storage

import (
	"context"

	"github.com/poiesic/docsync/core"
)

// ManifestStore persists the per-file manifest used for change detection.
// Implementations must be thread-safe and support concurrent access.
type ManifestStore interface {
	// LoadAll returns every manifest entry.
	// Returns an error wrapping ErrManifestCorrupt if any entry cannot be decoded.
	LoadAll(ctx context.Context) ([]*core.ManifestEntry, error)

	// Get returns the entry for a single relative path.
	// Returns ErrNotFound if the path has no entry.
	Get(ctx context.Context, path string) (*core.ManifestEntry, error)

	// Put replaces the entry for entry.Path in a single atomic write.
	// A reader never observes a partially written entry.
	Put(ctx context.Context, entry *core.ManifestEntry) error

	// Delete removes the entry for path. Deleting a missing path is not an error.
	Delete(ctx context.Context, path string) error

	// Close releases resources held by the store.
	Close() error
}

// VectorIndex stores embedded chunks and answers nearest-neighbour queries.
// Implementations must be thread-safe and support concurrent access.
type VectorIndex interface {
	// Upsert inserts or replaces entries by id.
	Upsert(ctx context.Context, entries ...core.IndexEntry) error

	// Delete removes entries by id. Unknown ids are ignored.
	Delete(ctx context.Context, ids ...string) error

	// Query returns up to k entries closest to vector whose metadata matches filter.
	// Results are ordered by score (highest first).
	Query(ctx context.Context, vector []float32, k int, filter core.Filter) ([]core.QueryResult, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Close releases resources held by the index.
	Close() error
}
