package badger

import (
	"context"
	"errors"
	"math"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/storage"
)

// Index implements storage.VectorIndex on BadgerDB with an exhaustive
// cosine similarity scan. Suitable for corpora that fit a single machine.
type Index struct {
	backend *Backend
}

var _ storage.VectorIndex = (*Index)(nil)

// NewIndex creates a new Index.
func NewIndex(backend *Backend) (*Index, error) {
	if backend == nil {
		return nil, errors.New("backend required")
	}
	return &Index{
		backend: backend,
	}, nil
}

// Close releases resources. Index has no resources to release.
func (ix *Index) Close() error {
	return nil
}

// Upsert inserts or replaces entries by id.
func (ix *Index) Upsert(ctx context.Context, entries ...core.IndexEntry) error {
	if ix.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	for i := range entries {
		if err := core.ValidateIndexEntry(&entries[i]); err != nil {
			return err
		}
	}

	return ix.backend.writeBatched(len(entries), func(tx *badger.Txn, i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return tx.Set(makeChunkKey(entries[i].ID), storage.MarshalIndexEntry(&entries[i]))
	})
}

// Delete removes entries by id.
func (ix *Index) Delete(ctx context.Context, ids ...string) error {
	if ix.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	return ix.backend.writeBatched(len(ids), func(tx *badger.Txn, i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return tx.Delete(makeChunkKey(ids[i]))
	})
}

// Query returns up to k entries most similar to vector whose metadata matches filter.
// Entries with a different dimension than vector are skipped.
func (ix *Index) Query(ctx context.Context, vector []float32, k int, filter core.Filter) ([]core.QueryResult, error) {
	if k <= 0 || len(vector) == 0 {
		return nil, storage.ErrInvalidQuery
	}
	if ix.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	queryNorm := norm(vector)
	var results []core.QueryResult

	err := ix.backend.scanPrefix([]byte(chunkPrefix), func(_, val []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, err := storage.UnmarshalIndexEntry(val)
		if err != nil {
			return err
		}
		if len(entry.Vector) != len(vector) || !filter.Matches(entry.Metadata) {
			return nil
		}

		results = append(results, core.QueryResult{
			ID:       entry.ID,
			Score:    cosineSimilarity(vector, entry.Vector, queryNorm),
			Text:     entry.Text,
			Metadata: entry.Metadata,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending, id ascending for ties
	slices.SortFunc(results, func(a, b core.QueryResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of stored entries.
func (ix *Index) Count(ctx context.Context) (int, error) {
	if ix.backend.IsClosed() {
		return 0, storage.ErrStorageClosed
	}

	count := 0
	err := ix.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// IDs returns every stored chunk id.
func (ix *Index) IDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := ix.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			ids = append(ids, string(iter.Item().Key()[len(chunkPrefix):]))
		}
		return nil
	}, false)
	return ids, err
}

// cosineSimilarity calculates cos(a, b) given the precomputed norm of a.
func cosineSimilarity(a, b []float32, normA float64) float32 {
	normB := norm(b)
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(float64(dotProduct(a, b)) / (normA * normB))
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
