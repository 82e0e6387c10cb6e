package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/storage"
)

// ManifestStore implements storage.ManifestStore for BadgerDB.
// Each entry is a single key, so Put is an atomic whole-entry replace.
type ManifestStore struct {
	backend *Backend
}

var _ storage.ManifestStore = (*ManifestStore)(nil)

// NewManifestStore creates a new ManifestStore.
func NewManifestStore(backend *Backend) (*ManifestStore, error) {
	if backend == nil {
		return nil, errors.New("backend required")
	}
	return &ManifestStore{
		backend: backend,
	}, nil
}

// Close releases resources. ManifestStore has no resources to release.
func (s *ManifestStore) Close() error {
	return nil
}

// LoadAll returns every manifest entry.
func (s *ManifestStore) LoadAll(ctx context.Context) ([]*core.ManifestEntry, error) {
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var entries []*core.ManifestEntry
	err := s.backend.scanPrefix([]byte(manifestPrefix), func(key, val []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, err := storage.UnmarshalManifestEntry(val)
		if err != nil {
			return fmt.Errorf("%w: key %q: %w", storage.ErrManifestCorrupt, key, err)
		}
		if entry.Path != pathFromManifestKey(key) {
			return fmt.Errorf("%w: key %q holds entry for %q", storage.ErrManifestCorrupt, key, entry.Path)
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Get returns the entry for a single relative path.
func (s *ManifestStore) Get(ctx context.Context, path string) (*core.ManifestEntry, error) {
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var entry *core.ManifestEntry
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeManifestKey(path))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			entry, err = storage.UnmarshalManifestEntry(val)
			if err != nil {
				return fmt.Errorf("%w: %w", storage.ErrManifestCorrupt, err)
			}
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Put replaces the entry for entry.Path.
func (s *ManifestStore) Put(ctx context.Context, entry *core.ManifestEntry) error {
	if err := core.ValidateManifestEntry(entry); err != nil {
		return err
	}
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeManifestKey(entry.Path), storage.MarshalManifestEntry(entry)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Delete removes the entry for path.
func (s *ManifestStore) Delete(ctx context.Context, path string) error {
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeManifestKey(path)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
