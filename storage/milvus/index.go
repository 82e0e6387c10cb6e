package milvus

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/storage"
)

const (
	maxIDLength   = 64
	maxTextLength = 65535
	maxMetaLength = 8192
	maxTagLength  = 512

	// Over-fetch factor when part of a filter is evaluated client side.
	postFilterFactor = 4
	maxTopK          = 16384
)

// Index implements storage.VectorIndex on a Milvus collection.
type Index struct {
	client *milvusclient.Client
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	dimension int
	ready     bool
}

var _ storage.VectorIndex = (*Index)(nil)

// Open connects to Milvus and, when cfg.Dimension is known or the collection
// already exists, makes sure the collection is created, indexed and loaded.
func Open(ctx context.Context, cfg *Config, logger *slog.Logger) (*Index, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := milvusclient.New(connectCtx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	ix := &Index{
		client:    client,
		cfg:       *cfg,
		dimension: cfg.Dimension,
		logger:    logger.With("component", "milvus-index", "collection", cfg.Collection),
	}

	exists, err := client.HasCollection(ctx, milvusclient.NewHasCollectionOption(cfg.Collection))
	if err != nil {
		_ = ix.Close()
		return nil, fmt.Errorf("failed to check collection existence: %w", err)
	}
	switch {
	case exists:
		if err := ix.load(ctx); err != nil {
			_ = ix.Close()
			return nil, err
		}
		ix.ready = true
	case ix.dimension > 0:
		if err := ix.create(ctx, ix.dimension); err != nil {
			_ = ix.Close()
			return nil, err
		}
		ix.ready = true
	}
	return ix, nil
}

func (ix *Index) schema(dim int) *entity.Schema {
	return entity.NewSchema().
		WithName(ix.cfg.Collection).
		WithDescription("docsync document chunks").
		WithField(entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxIDLength).WithIsPrimaryKey(true)).
		WithField(entity.NewField().WithName(fieldText).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxTextLength)).
		WithField(entity.NewField().WithName(fieldMetadata).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxMetaLength)).
		WithField(entity.NewField().WithName(fieldSource).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxTagLength)).
		WithField(entity.NewField().WithName(fieldFormat).WithDataType(entity.FieldTypeVarChar).WithMaxLength(16)).
		WithField(entity.NewField().WithName(fieldYear).WithDataType(entity.FieldTypeVarChar).WithMaxLength(8)).
		WithField(entity.NewField().WithName(fieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(dim)))
}

func (ix *Index) create(ctx context.Context, dim int) error {
	if err := ix.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(ix.cfg.Collection, ix.schema(dim))); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx := index.NewIvfFlatIndex(entity.COSINE, 128)
	createIdxTask, err := ix.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(ix.cfg.Collection, fieldEmbedding, idx))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := createIdxTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for index creation: %w", err)
	}

	ix.logger.Info("collection created", "dimension", dim)
	return ix.load(ctx)
}

func (ix *Index) load(ctx context.Context) error {
	loadTask, err := ix.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(ix.cfg.Collection))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}
	return nil
}

// ensure creates the collection on first use when the dimension was not
// configured up front.
func (ix *Index) ensure(ctx context.Context, dim int) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.ready {
		if ix.dimension > 0 && dim != ix.dimension {
			return fmt.Errorf("%w: got %d, want %d", storage.ErrDimensionMismatch, dim, ix.dimension)
		}
		return nil
	}
	if err := ix.create(ctx, dim); err != nil {
		return err
	}
	ix.dimension = dim
	ix.ready = true
	return nil
}

func (ix *Index) isReady() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.ready
}

// Upsert inserts or replaces entries and flushes them.
func (ix *Index) Upsert(ctx context.Context, entries ...core.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	dim := len(entries[0].Vector)
	var (
		ids     = make([]string, len(entries))
		texts   = make([]string, len(entries))
		metas   = make([]string, len(entries))
		sources = make([]string, len(entries))
		formats = make([]string, len(entries))
		years   = make([]string, len(entries))
		vectors = make([][]float32, len(entries))
	)
	for i := range entries {
		e := &entries[i]
		if err := core.ValidateIndexEntry(e); err != nil {
			return err
		}
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: %s has %d, want %d", storage.ErrDimensionMismatch, e.ID, len(e.Vector), dim)
		}
		doc, err := sonic.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
		}
		ids[i] = e.ID
		texts[i] = e.Text
		metas[i] = string(doc)
		sources[i] = e.Metadata[core.MetaSource]
		formats[i] = e.Metadata[core.MetaFormat]
		years[i] = e.Metadata[core.MetaYear]
		vectors[i] = e.Vector
	}

	if err := ix.ensure(ctx, dim); err != nil {
		return err
	}

	columns := []column.Column{
		column.NewColumnVarChar(fieldID, ids),
		column.NewColumnVarChar(fieldText, texts),
		column.NewColumnVarChar(fieldMetadata, metas),
		column.NewColumnVarChar(fieldSource, sources),
		column.NewColumnVarChar(fieldFormat, formats),
		column.NewColumnVarChar(fieldYear, years),
		column.NewColumnFloatVector(fieldEmbedding, dim, vectors),
	}
	if _, err := ix.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(ix.cfg.Collection, columns...)); err != nil {
		return fmt.Errorf("failed to upsert: %w", err)
	}
	return ix.flush(ctx)
}

func (ix *Index) flush(ctx context.Context) error {
	flushTask, err := ix.client.Flush(ctx, milvusclient.NewFlushOption(ix.cfg.Collection))
	if err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for flush: %w", err)
	}
	return nil
}

// Delete removes entries by id. Unknown ids are ignored.
func (ix *Index) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 || !ix.isReady() {
		return nil
	}
	if _, err := ix.client.Delete(ctx, milvusclient.NewDeleteOption(ix.cfg.Collection).WithStringIDs(fieldID, ids)); err != nil {
		return fmt.Errorf("failed to delete by ids: %w", err)
	}
	return ix.flush(ctx)
}

// Query returns up to k entries by cosine similarity. Filter keys without a
// scalar column are applied to the decoded metadata after the search.
func (ix *Index) Query(ctx context.Context, vector []float32, k int, filter core.Filter) ([]core.QueryResult, error) {
	if k <= 0 || len(vector) == 0 {
		return nil, storage.ErrInvalidQuery
	}
	if !ix.isReady() {
		return nil, nil
	}

	expr, rest := splitFilter(filter)
	topK := k
	if len(rest) > 0 {
		topK = min(k*postFilterFactor, maxTopK)
	}

	opt := milvusclient.NewSearchOption(ix.cfg.Collection, topK, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(fieldEmbedding).
		WithSearchParam("nprobe", "16").
		WithOutputFields(outputFields...)
	if expr != "" {
		opt = opt.WithFilter(expr)
	}

	results, err := ix.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	rs := results[0]
	out := make([]core.QueryResult, 0, min(rs.ResultCount, k))
	for i := 0; i < rs.ResultCount && len(out) < k; i++ {
		r := core.QueryResult{Score: rs.Scores[i]}
		for _, field := range rs.Fields {
			col, ok := field.(*column.ColumnVarChar)
			if !ok {
				continue
			}
			switch col.Name() {
			case fieldID:
				r.ID = col.Data()[i]
			case fieldText:
				r.Text = col.Data()[i]
			case fieldMetadata:
				if err := sonic.UnmarshalString(col.Data()[i], &r.Metadata); err != nil {
					return nil, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
				}
			}
		}
		if r.ID == "" {
			if ids, ok := rs.IDs.(*column.ColumnVarChar); ok {
				r.ID = ids.Data()[i]
			}
		}
		if !rest.Matches(r.Metadata) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Count returns the collection row count reported by Milvus. Deleted rows
// may still be counted until the server compacts the segment.
func (ix *Index) Count(ctx context.Context) (int, error) {
	if !ix.isReady() {
		return 0, nil
	}
	stats, err := ix.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(ix.cfg.Collection))
	if err != nil {
		return 0, fmt.Errorf("failed to get collection stats: %w", err)
	}
	n, err := strconv.ParseInt(stats["row_count"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse row count: %w", err)
	}
	return int(n), nil
}

// Close closes the client connection.
func (ix *Index) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), ix.cfg.Timeout)
	defer cancel()
	return ix.client.Close(ctx)
}
