package pgvector

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/bytedance/sonic"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/storage"
)

// Index implements storage.VectorIndex on a PostgreSQL table.
type Index struct {
	db        *sql.DB
	table     string
	dimension int
	ownsDB    bool
	logger    *slog.Logger
}

var _ storage.VectorIndex = (*Index)(nil)

// Option configures an Index.
type Option func(*Index) error

// WithTable sets the table name. Default is DefaultTable.
func WithTable(name string) Option {
	return func(ix *Index) error {
		if err := validateTable(name); err != nil {
			return err
		}
		ix.table = name
		return nil
	}
}

// WithDimension fixes the vector dimension of the table and rejects vectors
// of any other length before they reach the server.
func WithDimension(dim int) Option {
	return func(ix *Index) error {
		if dim < 0 {
			return fmt.Errorf("dimension must not be negative, got %d", dim)
		}
		ix.dimension = dim
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Index) error {
		if logger == nil {
			logger = slog.Default()
		}
		ix.logger = logger
		return nil
	}
}

// Open connects to url with the pgx driver, creates the table if needed and
// returns the index. Close releases the connection pool.
func Open(ctx context.Context, url string, opts ...Option) (*Index, error) {
	if url == "" {
		return nil, ErrURLRequired
	}

	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	ix, err := New(ctx, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	ix.ownsDB = true
	return ix, nil
}

// New wraps an existing connection pool and creates the table if needed.
// Close does not close db.
func New(ctx context.Context, db *sql.DB, opts ...Option) (*Index, error) {
	ix := &Index{
		db:     db,
		table:  DefaultTable,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(ix); err != nil {
			return nil, err
		}
	}
	ix.logger = ix.logger.With("component", "pgvector-index", "table", ix.table)

	if err := ix.bootstrap(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return ix, nil
}

func (ix *Index) bootstrap(ctx context.Context) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	for _, stmt := range schemaStatements(ix.table, ix.dimension) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	ix.logger.Debug("schema ready", "dimension", ix.dimension)
	return nil
}

// Close releases the connection pool when the index opened it.
func (ix *Index) Close() error {
	if ix.ownsDB && ix.db != nil {
		return ix.db.Close()
	}
	return nil
}

// Upsert inserts or replaces entries in a single transaction.
func (ix *Index) Upsert(ctx context.Context, entries ...core.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for i := range entries {
		if err := core.ValidateIndexEntry(&entries[i]); err != nil {
			return err
		}
		if ix.dimension > 0 && len(entries[i].Vector) != ix.dimension {
			return fmt.Errorf("%w: %s has %d, want %d", storage.ErrDimensionMismatch, entries[i].ID, len(entries[i].Vector), ix.dimension)
		}
	}

	tx, err := ix.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, upsertStatement(ix.table))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range entries {
		e := &entries[i]
		meta := e.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		doc, err := sonic.Marshal(meta)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.Text, string(doc), pgvector.NewVector(e.Vector)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Delete removes entries by id. Unknown ids are ignored.
func (ix *Index) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := ix.db.ExecContext(ctx, deleteStatement(ix.table), ids)
	return err
}

// Query returns up to k entries by cosine similarity.
func (ix *Index) Query(ctx context.Context, vector []float32, k int, filter core.Filter) ([]core.QueryResult, error) {
	if k <= 0 || len(vector) == 0 {
		return nil, storage.ErrInvalidQuery
	}

	q, args, err := buildQuery(ix.table, k, filter)
	if err != nil {
		return nil, err
	}
	args = append([]any{pgvector.NewVector(vector)}, args...)

	rows, err := ix.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.QueryResult
	for rows.Next() {
		var (
			r     core.QueryResult
			meta  []byte
			score float64
		)
		if err := rows.Scan(&r.ID, &r.Text, &meta, &score); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := sonic.Unmarshal(meta, &r.Metadata); err != nil {
				return nil, fmt.Errorf("%w: metadata of %s: %w", storage.ErrSerializationFailed, r.ID, err)
			}
		}
		r.Score = float32(score)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of rows in the table.
func (ix *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := ix.db.QueryRowContext(ctx, countStatement(ix.table)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
