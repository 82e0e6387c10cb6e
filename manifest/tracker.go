package manifest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/storage"
)

// Classification partitions the current source files against the manifest.
type Classification struct {
	New       []core.SourceFile
	Modified  []core.SourceFile
	Unchanged []core.SourceFile
	// Deleted holds manifest entries whose path is no longer present.
	Deleted []*core.ManifestEntry
	// Errors holds files that could not be fingerprinted, keyed by path.
	// They are neither processed nor treated as deleted.
	Errors map[string]error
}

// Tracker is the in-memory view of the manifest backed by a ManifestStore.
// All methods are safe for concurrent use.
type Tracker struct {
	store          storage.ManifestStore
	entries        map[string]*core.ManifestEntry
	embeddingModel string
	logger         *slog.Logger
	mu             sync.RWMutex
}

// Option configures a Tracker.
type Option func(*Tracker) error

// WithEmbeddingModel sets the model name recorded on committed entries.
// Entries recorded with a different non-empty model are classified as modified.
func WithEmbeddingModel(model string) Option {
	return func(t *Tracker) error {
		t.embeddingModel = model
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) error {
		if logger == nil {
			logger = slog.Default()
		}
		t.logger = logger
		return nil
	}
}

// Open loads every entry from store.
// A decode failure is returned wrapping storage.ErrManifestCorrupt and must be treated as fatal.
func Open(ctx context.Context, store storage.ManifestStore, opts ...Option) (*Tracker, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	t := &Tracker{
		store:   store,
		entries: make(map[string]*core.ManifestEntry),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	t.logger = t.logger.With("component", "manifest")

	entries, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}
	for _, e := range entries {
		t.entries[e.Path] = e
	}
	t.logger.Debug("manifest loaded", "entries", len(t.entries))
	return t, nil
}

// Fingerprint hashes the file at absPath.
func (t *Tracker) Fingerprint(absPath string) (core.Fingerprint, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFingerprintFailed, err)
	}
	defer f.Close()

	fp, err := core.FingerprintReader(f)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrFingerprintFailed, absPath, err)
	}
	return fp, nil
}

// Classify fingerprints files and partitions them against the manifest.
// The Fingerprint field of every returned SourceFile is populated.
//
// unreadable lists relative paths the scan could not read. A manifest entry
// equal to or below one of them is kept out of Deleted.
func (t *Tracker) Classify(ctx context.Context, files []core.SourceFile, unreadable ...string) (*Classification, error) {
	c := &Classification{Errors: make(map[string]error)}
	seen := make(map[string]bool, len(files))

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seen[file.Path] = true

		fp, err := t.Fingerprint(file.AbsPath)
		if err != nil {
			t.logger.Warn("unable to fingerprint file", "path", file.Path, "err", err)
			c.Errors[file.Path] = err
			continue
		}
		file.Fingerprint = fp

		prev, ok := t.entries[file.Path]
		switch {
		case !ok:
			c.New = append(c.New, file)
		case prev.Fingerprint != fp:
			c.Modified = append(c.Modified, file)
		case t.embeddingModel != "" && prev.EmbeddingModel != "" && prev.EmbeddingModel != t.embeddingModel:
			t.logger.Info("embedding model changed", "path", file.Path, "from", prev.EmbeddingModel, "to", t.embeddingModel)
			c.Modified = append(c.Modified, file)
		default:
			c.Unchanged = append(c.Unchanged, file)
		}
	}

	for _, path := range slices.Sorted(maps.Keys(t.entries)) {
		if seen[path] {
			continue
		}
		if under(path, unreadable) {
			t.logger.Debug("keeping entry below unreadable path", "path", path)
			continue
		}
		c.Deleted = append(c.Deleted, t.entries[path])
	}

	return c, nil
}

// under reports whether path equals one of dirs or lies below it.
func under(path string, dirs []string) bool {
	for _, d := range dirs {
		if path == d || strings.HasPrefix(path, d+"/") {
			return true
		}
	}
	return false
}

// Commit records entry as the last fully indexed version of entry.Path.
// The store write happens before the in-memory view changes.
func (t *Tracker) Commit(ctx context.Context, entry core.ManifestEntry) error {
	if entry.EmbeddingModel == "" {
		entry.EmbeddingModel = t.embeddingModel
	}
	if err := t.store.Put(ctx, &entry); err != nil {
		return fmt.Errorf("committing %s: %w", entry.Path, err)
	}

	t.mu.Lock()
	t.entries[entry.Path] = &entry
	t.mu.Unlock()
	return nil
}

// Remove deletes the entry for path and returns the chunk ids it owned.
// Removing an unknown path returns no ids and no error.
func (t *Tracker) Remove(ctx context.Context, path string) ([]string, error) {
	t.mu.RLock()
	prev, ok := t.entries[path]
	t.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	if err := t.store.Delete(ctx, path); err != nil {
		return nil, fmt.Errorf("removing %s: %w", path, err)
	}

	t.mu.Lock()
	delete(t.entries, path)
	t.mu.Unlock()
	return prev.ChunkIDs, nil
}

// Entry returns a copy of the entry for path.
func (t *Tracker) Entry(path string) (core.ManifestEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entries[path]
	if !ok {
		return core.ManifestEntry{}, false
	}
	cp := *e
	cp.ChunkIDs = slices.Clone(e.ChunkIDs)
	return cp, true
}

// Entries returns copies of all entries sorted by path.
func (t *Tracker) Entries() []core.ManifestEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]core.ManifestEntry, 0, len(t.entries))
	for _, path := range slices.Sorted(maps.Keys(t.entries)) {
		e := *t.entries[path]
		e.ChunkIDs = slices.Clone(e.ChunkIDs)
		out = append(out, e)
	}
	return out
}

// Len returns the number of tracked files.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// EmbeddingModel returns the model name recorded on committed entries.
func (t *Tracker) EmbeddingModel() string {
	return t.embeddingModel
}

// IsCorrupt reports whether err indicates an unreadable manifest.
func IsCorrupt(err error) bool {
	return errors.Is(err, storage.ErrManifestCorrupt)
}
