package milvus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitFilter(t *testing.T) {
	tests := []struct {
		name     string
		filter   core.Filter
		wantExpr string
		wantRest core.Filter
	}{
		{name: "empty", filter: nil},
		{
			name:     "single column",
			filter:   core.Filter{core.MetaYear: "2023"},
			wantExpr: `year == "2023"`,
		},
		{
			name:     "sorted conjunction",
			filter:   core.Filter{core.MetaYear: "2023", core.MetaFormat: "csv"},
			wantExpr: `format == "csv" && year == "2023"`,
		},
		{
			name:     "escaped value",
			filter:   core.Filter{core.MetaSource: `a"b\c.pdf`},
			wantExpr: `source == "a\"b\\c.pdf"`,
		},
		{
			name:     "unmapped key kept for post filtering",
			filter:   core.Filter{core.MetaYear: "2023", core.MetaDir: "reports"},
			wantExpr: `year == "2023"`,
			wantRest: core.Filter{core.MetaDir: "reports"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, rest := splitFilter(tt.filter)
			assert.Equal(t, tt.wantExpr, expr)
			assert.Equal(t, tt.wantRest, rest)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Address = ""
	cfg.Timeout = 0
	cfg.Collection = "bad name"
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "address")
	assert.Contains(t, err.Error(), "timeout")
	assert.Contains(t, err.Error(), "collection")

	cfg = DefaultConfig()
	cfg.Dimension = -1
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestSchema(t *testing.T) {
	ix := &Index{cfg: *DefaultConfig()}
	s := ix.schema(8)
	assert.Equal(t, DefaultCollection, s.CollectionName)

	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{fieldID, fieldText, fieldMetadata, fieldSource, fieldFormat, fieldYear, fieldEmbedding}, names)
	assert.True(t, s.Fields[0].PrimaryKey)
}

// TestIndex_Milvus runs against a live server when DOCSYNC_TEST_MILVUS_ADDR is set.
func TestIndex_Milvus(t *testing.T) {
	addr := os.Getenv("DOCSYNC_TEST_MILVUS_ADDR")
	if addr == "" {
		t.Skip("DOCSYNC_TEST_MILVUS_ADDR not set")
	}
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.Address = addr
	cfg.Collection = "docsync_test_" + time.Now().Format("20060102150405")
	ix, err := Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer ix.Close()

	n, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	err = ix.Upsert(ctx,
		core.IndexEntry{ID: "a", Vector: []float32{1, 0, 0}, Text: "alpha", Metadata: map[string]string{core.MetaYear: "2023", core.MetaDir: "x"}},
		core.IndexEntry{ID: "b", Vector: []float32{0, 1, 0}, Text: "beta", Metadata: map[string]string{core.MetaYear: "2022", core.MetaDir: "y"}},
	)
	require.NoError(t, err)

	err = ix.Upsert(ctx, core.IndexEntry{ID: "c", Vector: []float32{1, 0}})
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

	results, err := ix.Query(ctx, []float32{1, 0, 0}, 1, core.Filter{core.MetaYear: "2023"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "alpha", results[0].Text)

	results, err = ix.Query(ctx, []float32{1, 0, 0}, 2, core.Filter{core.MetaDir: "y"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)

	require.NoError(t, ix.Delete(ctx, "a"))
	results, err = ix.Query(ctx, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "a", r.ID)
	}
}
