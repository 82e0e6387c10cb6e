// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package docsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/poiesic/docsync/ai"
	"github.com/poiesic/docsync/ai/gemini"
	"github.com/poiesic/docsync/ai/openai"
	"github.com/poiesic/docsync/chunking"
	"github.com/poiesic/docsync/extract"
	"github.com/poiesic/docsync/ingestion"
	"github.com/poiesic/docsync/manifest"
	"github.com/poiesic/docsync/search"
	"github.com/poiesic/docsync/storage"
	"github.com/poiesic/docsync/storage/badger"
	"github.com/poiesic/docsync/storage/milvus"
	"github.com/poiesic/docsync/storage/pgvector"
)

// Index backends selectable with WithIndexBackend.
const (
	IndexBadger   = "badger"
	IndexPgvector = "pgvector"
	IndexMilvus   = "milvus"
)

var (
	// ErrUnknownIndex indicates an index backend name that is not supported.
	ErrUnknownIndex = errors.New("unknown index backend")

	// ErrUnknownProvider indicates an embedding provider that is not supported.
	ErrUnknownProvider = errors.New("unknown embedding provider")
)

// Database wires the manifest, the vector index and the embedding provider
// that an ingestion run and a search share. The badger directory at the data
// path stays locked while the Database is open, so two processes can never
// ingest into the same manifest.
type Database struct {
	backend   *badger.Backend
	manifest  *badger.ManifestStore
	index     storage.VectorIndex
	indexName string
	provider  ai.AIProvider
	opts      *databaseOptions
	logger    *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig     *ai.Config
	provider     ai.AIProvider
	indexBackend string
	index        storage.VectorIndex
	pgURL        string
	pgTable      string
	milvusConfig *milvus.Config
	dimension    int
	inMemory     bool
	extractOpts  []extract.Option
	chunkingOpts []chunking.Option
	logger       *slog.Logger
}

// WithAIConfig sets the embedding provider configuration.
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = cfg
	}
}

// WithProvider uses provider instead of building one from the AI config.
// The Database closes it on Close.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithIndexBackend selects the vector index: IndexBadger (default),
// IndexPgvector or IndexMilvus.
func WithIndexBackend(name string) DatabaseOption {
	return func(o *databaseOptions) {
		o.indexBackend = name
	}
}

// WithIndex uses index instead of opening one. The Database closes it on Close.
func WithIndex(index storage.VectorIndex) DatabaseOption {
	return func(o *databaseOptions) {
		o.index = index
	}
}

// WithPostgres sets the connection URL and table of the pgvector index.
// An empty table keeps the default.
func WithPostgres(url, table string) DatabaseOption {
	return func(o *databaseOptions) {
		o.pgURL = url
		o.pgTable = table
	}
}

// WithMilvusConfig sets the connection settings of the milvus index.
func WithMilvusConfig(cfg *milvus.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.milvusConfig = cfg
	}
}

// WithDimension fixes the embedding dimension for index backends that
// declare it in their schema.
func WithDimension(dim int) DatabaseOption {
	return func(o *databaseOptions) {
		o.dimension = dim
	}
}

// WithInMemory keeps the manifest and the badger index in memory.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithExtractOptions passes options to the extractor of every orchestrator.
func WithExtractOptions(opts ...extract.Option) DatabaseOption {
	return func(o *databaseOptions) {
		o.extractOpts = append(o.extractOpts, opts...)
	}
}

// WithChunkingOptions passes options to the chunk builder of every orchestrator.
func WithChunkingOptions(opts ...chunking.Option) DatabaseOption {
	return func(o *databaseOptions) {
		o.chunkingOpts = append(o.chunkingOpts, opts...)
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// NewDatabase opens the manifest stored under dataDir together with the
// configured index and embedding provider.
func NewDatabase(ctx context.Context, dataDir string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig:     ai.DefaultConfig(),
		indexBackend: IndexBadger,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	backend, err := badger.OpenBackend(dataDir, options.inMemory)
	if err != nil {
		return nil, err
	}

	manifestStore, err := badger.NewManifestStore(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	index, indexName, err := openIndex(ctx, backend, options)
	if err != nil {
		manifestStore.Close()
		backend.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = openProvider(ctx, options.aiConfig)
		if err != nil {
			index.Close()
			manifestStore.Close()
			backend.Close()
			return nil, err
		}
	}

	return &Database{
		backend:   backend,
		manifest:  manifestStore,
		index:     index,
		indexName: indexName,
		provider:  provider,
		opts:      options,
		logger:    options.logger.With("component", "docsync"),
	}, nil
}

func openIndex(ctx context.Context, backend *badger.Backend, o *databaseOptions) (storage.VectorIndex, string, error) {
	if o.index != nil {
		return o.index, "custom", nil
	}

	switch o.indexBackend {
	case "", IndexBadger:
		ix, err := badger.NewIndex(backend)
		return ix, IndexBadger, err
	case IndexPgvector:
		pgOpts := []pgvector.Option{pgvector.WithDimension(o.dimension), pgvector.WithLogger(o.logger)}
		if o.pgTable != "" {
			pgOpts = append(pgOpts, pgvector.WithTable(o.pgTable))
		}
		ix, err := pgvector.Open(ctx, o.pgURL, pgOpts...)
		if err != nil {
			return nil, "", fmt.Errorf("opening pgvector index: %w", err)
		}
		return ix, IndexPgvector, nil
	case IndexMilvus:
		cfg := o.milvusConfig
		if cfg == nil {
			cfg = milvus.DefaultConfig()
		}
		if cfg.Dimension == 0 {
			cfg.Dimension = o.dimension
		}
		ix, err := milvus.Open(ctx, cfg, o.logger)
		if err != nil {
			return nil, "", fmt.Errorf("opening milvus index: %w", err)
		}
		return ix, IndexMilvus, nil
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownIndex, o.indexBackend)
	}
}

func openProvider(ctx context.Context, cfg *ai.Config) (ai.AIProvider, error) {
	if cfg == nil {
		cfg = ai.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ai.ProviderOpenAI:
		return openai.NewProvider(cfg)
	case ai.ProviderGemini:
		return gemini.NewProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// Close releases the provider and every store it opened.
func (db *Database) Close() error {
	// Close AI provider first
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}

	if err := db.index.Close(); err != nil {
		db.logger.Error("error closing vector index", "err", err)
		return err
	}
	if err := db.manifest.Close(); err != nil {
		db.logger.Error("error closing manifest store", "err", err)
		return err
	}

	// Close backend
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// ManifestStore returns the persisted manifest of ingested files.
func (db *Database) ManifestStore() storage.ManifestStore {
	return db.manifest
}

// Index returns the vector index chunks are written to.
func (db *Database) Index() storage.VectorIndex {
	return db.index
}

// IndexName reports which index backend is in use.
func (db *Database) IndexName() string {
	return db.indexName
}

// Provider returns the embedding provider.
func (db *Database) Provider() ai.AIProvider {
	return db.provider
}

// NewOrchestrator loads the manifest and returns an orchestrator bound to
// this database. Call Release on the result when done.
func (db *Database) NewOrchestrator(ctx context.Context, opts ...ingestion.Option) (*ingestion.Orchestrator, error) {
	tracker, err := manifest.Open(ctx, db.manifest,
		manifest.WithEmbeddingModel(db.provider.Model()),
		manifest.WithLogger(db.opts.logger))
	if err != nil {
		return nil, err
	}

	extractor, err := extract.New(append([]extract.Option{extract.WithLogger(db.opts.logger)}, db.opts.extractOpts...)...)
	if err != nil {
		return nil, err
	}

	builder, err := chunking.NewBuilder(append([]chunking.Option{chunking.WithLogger(db.opts.logger)}, db.opts.chunkingOpts...)...)
	if err != nil {
		return nil, err
	}

	return ingestion.NewOrchestrator(tracker, extractor, builder, db.provider.Embedder(), db.index,
		append([]ingestion.Option{ingestion.WithLogger(db.opts.logger)}, opts...)...)
}

// NewSearcher returns a searcher over the index using the provider's embedder.
func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	return search.NewSearcher(db.provider.Embedder(), db.index,
		append([]search.Option{search.WithLogger(db.opts.logger)}, opts...)...)
}

// Status summarizes the manifest and the index.
type Status struct {
	Index          string
	Files          int
	Chunks         int // Chunk ids owned by manifest entries
	IndexCount     int
	EmbeddingModel string
	Models         []string // Distinct models recorded in the manifest

	// Orphans are index ids no manifest entry owns, and Missing are manifest
	// ids absent from the index. Both are only computed when the index can
	// list its ids.
	Orphans  []string
	Missing  []string
	Verified bool
}

// InSync reports whether the manifest and the index agree.
func (s *Status) InSync() bool {
	if s.Verified {
		return len(s.Orphans) == 0 && len(s.Missing) == 0
	}
	return s.Chunks == s.IndexCount
}

type idLister interface {
	IDs(ctx context.Context) ([]string, error)
}

// Status compares the manifest with the index.
func (db *Database) Status(ctx context.Context) (*Status, error) {
	entries, err := db.manifest.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	st := &Status{
		Index:          db.indexName,
		Files:          len(entries),
		EmbeddingModel: db.provider.Model(),
	}
	owned := make(map[string]struct{})
	for _, e := range entries {
		for _, id := range e.ChunkIDs {
			owned[id] = struct{}{}
		}
		if e.EmbeddingModel != "" && !slices.Contains(st.Models, e.EmbeddingModel) {
			st.Models = append(st.Models, e.EmbeddingModel)
		}
	}
	st.Chunks = len(owned)
	slices.Sort(st.Models)

	if st.IndexCount, err = db.index.Count(ctx); err != nil {
		return nil, fmt.Errorf("counting index: %w", err)
	}

	lister, ok := db.index.(idLister)
	if !ok {
		return st, nil
	}
	ids, err := lister.IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing index ids: %w", err)
	}
	st.Verified = true
	present := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		present[id] = struct{}{}
		if _, ok := owned[id]; !ok {
			st.Orphans = append(st.Orphans, id)
		}
	}
	for id := range owned {
		if _, ok := present[id]; !ok {
			st.Missing = append(st.Missing, id)
		}
	}
	slices.Sort(st.Orphans)
	slices.Sort(st.Missing)
	return st, nil
}

// Prune deletes index entries that no manifest entry owns and returns how
// many were removed.
func (db *Database) Prune(ctx context.Context) (int, error) {
	st, err := db.Status(ctx)
	if err != nil {
		return 0, err
	}
	if len(st.Orphans) == 0 {
		return 0, nil
	}
	if err := db.index.Delete(ctx, st.Orphans...); err != nil {
		return 0, err
	}
	db.logger.Info("pruned orphaned chunks", "count", len(st.Orphans))
	return len(st.Orphans), nil
}
