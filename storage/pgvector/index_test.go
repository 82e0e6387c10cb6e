package pgvector

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTable(t *testing.T) {
	assert.NoError(t, validateTable("docsync_chunks"))
	assert.NoError(t, validateTable("_t1"))
	assert.ErrorIs(t, validateTable("1table"), ErrInvalidTable)
	assert.ErrorIs(t, validateTable("chunks; DROP TABLE x"), ErrInvalidTable)
	assert.ErrorIs(t, validateTable(""), ErrInvalidTable)
}

func TestSchemaStatements(t *testing.T) {
	stmts := schemaStatements("chunks", 768)
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[1], "embedding  vector(768) NOT NULL")
	assert.Contains(t, stmts[2], "chunks_metadata_idx")

	stmts = schemaStatements("chunks", 0)
	assert.Contains(t, stmts[1], "embedding  vector NOT NULL")
}

func TestBuildQuery(t *testing.T) {
	q, args, err := buildQuery("chunks", 4, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, text, metadata, 1 - (embedding <=> $1) AS score FROM chunks ORDER BY embedding <=> $1, id LIMIT $2", q)
	assert.Equal(t, []any{4}, args)

	q, args, err = buildQuery("chunks", 10, core.Filter{core.MetaYear: "2023"})
	require.NoError(t, err)
	assert.True(t, strings.Contains(q, "WHERE metadata @> $2::jsonb"))
	assert.True(t, strings.HasSuffix(q, "LIMIT $3"))
	require.Len(t, args, 2)
	assert.JSONEq(t, `{"year":"2023"}`, args[0].(string))
	assert.Equal(t, 10, args[1])
}

func TestWithOptions(t *testing.T) {
	ix := &Index{}
	require.NoError(t, WithTable("other")(ix))
	assert.Equal(t, "other", ix.table)
	assert.Error(t, WithTable("bad-name")(ix))
	assert.Error(t, WithDimension(-1)(ix))
}

func TestOpen_RequiresURL(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.ErrorIs(t, err, ErrURLRequired)
}

// TestIndex_Postgres runs against a live server when DOCSYNC_TEST_PG_URL is set.
func TestIndex_Postgres(t *testing.T) {
	url := os.Getenv("DOCSYNC_TEST_PG_URL")
	if url == "" {
		t.Skip("DOCSYNC_TEST_PG_URL not set")
	}
	ctx := context.Background()

	ix, err := Open(ctx, url, WithTable("docsync_test_chunks"), WithDimension(3))
	require.NoError(t, err)
	defer ix.Close()
	_, err = ix.db.ExecContext(ctx, "TRUNCATE docsync_test_chunks")
	require.NoError(t, err)

	err = ix.Upsert(ctx,
		core.IndexEntry{ID: "a", Vector: []float32{1, 0, 0}, Text: "alpha", Metadata: map[string]string{core.MetaYear: "2023"}},
		core.IndexEntry{ID: "b", Vector: []float32{0, 1, 0}, Text: "beta", Metadata: map[string]string{core.MetaYear: "2022"}},
	)
	require.NoError(t, err)

	err = ix.Upsert(ctx, core.IndexEntry{ID: "c", Vector: []float32{1, 0}})
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

	results, err := ix.Query(ctx, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	assert.Equal(t, "2023", results[0].Metadata[core.MetaYear])

	results, err = ix.Query(ctx, []float32{1, 0, 0}, 2, core.Filter{core.MetaYear: "2022"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)

	require.NoError(t, ix.Delete(ctx, "a", "missing"))
	n, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
