package search

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/poiesic/docsync/ai/mock"
	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dim = 16

func setupIndex(t *testing.T, texts map[string]map[string]string) *badger.Index {
	t.Helper()
	_, index, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	entries := make([]core.IndexEntry, 0, len(texts))
	for text, meta := range texts {
		entries = append(entries, core.IndexEntry{
			ID:       core.ChunkID(meta[core.MetaSource], text),
			Vector:   mock.GenerateVector(text, dim),
			Text:     text,
			Metadata: meta,
		})
	}
	require.NoError(t, index.Upsert(context.Background(), entries...))
	return index
}

func newEmbedder() *mock.MockEmbedder {
	m := mock.NewMockEmbedder()
	m.Dimension = dim
	return m
}

func TestNewSearcher(t *testing.T) {
	index := setupIndex(t, nil)
	embedder := newEmbedder()

	t.Run("valid configuration", func(t *testing.T) {
		searcher, err := NewSearcher(embedder, index)
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		searcher, err := NewSearcher(embedder, index, WithLogger(nil))
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("nil embedder", func(t *testing.T) {
		_, err := NewSearcher(nil, index)
		assert.Equal(t, ErrEmbedderRequired, err)
	})

	t.Run("nil index", func(t *testing.T) {
		_, err := NewSearcher(embedder, nil)
		assert.Equal(t, ErrIndexRequired, err)
	})
}

func TestSearch_EmptyIndex(t *testing.T) {
	searcher, err := NewSearcher(newEmbedder(), setupIndex(t, nil), WithLogger(slog.Default()))
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), "receita total", 4, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_EmptyQuery(t *testing.T) {
	searcher, err := NewSearcher(newEmbedder(), setupIndex(t, nil))
	require.NoError(t, err)

	_, err = searcher.Search(context.Background(), "", 4, nil)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearch_ExactMatchRanksFirst(t *testing.T) {
	index := setupIndex(t, map[string]map[string]string{
		"Revenue grew in 2023.":  {core.MetaSource: "a.pdf", core.MetaYear: "2023"},
		"Costs were flat.":       {core.MetaSource: "a.pdf", core.MetaYear: "2023"},
		"Headcount doubled.":     {core.MetaSource: "b.pdf", core.MetaYear: "2022"},
		"Outlook remains sound.": {core.MetaSource: "b.pdf", core.MetaYear: "2022"},
	})
	searcher, err := NewSearcher(newEmbedder(), index)
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), "Costs were flat.", 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Costs were flat.", results[0].Text)
	assert.True(t, results[0].Verbatim)
	assert.InDelta(t, 1.0+verbatimBoost, results[0].Score, 1e-4)
	assert.Equal(t, "a.pdf", results[0].Source())
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestSearch_Filter(t *testing.T) {
	index := setupIndex(t, map[string]map[string]string{
		"Revenue grew in 2023.": {core.MetaSource: "a.pdf", core.MetaYear: "2023"},
		"Headcount doubled.":    {core.MetaSource: "b.pdf", core.MetaYear: "2022"},
	})
	searcher, err := NewSearcher(newEmbedder(), index)
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), "Revenue grew in 2023.", 4, core.Filter{core.MetaYear: "2022"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b.pdf", results[0].Source())
}

func TestSearch_MinScore(t *testing.T) {
	index := setupIndex(t, map[string]map[string]string{
		"Revenue grew in 2023.": {core.MetaSource: "a.pdf"},
		"Headcount doubled.":    {core.MetaSource: "b.pdf"},
	})
	searcher, err := NewSearcher(newEmbedder(), index, WithMinScore(1.0))
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), "Headcount doubled.", 4, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Headcount doubled.", results[0].Text)
}

func TestSearch_DefaultMaxHits(t *testing.T) {
	texts := map[string]map[string]string{}
	for _, s := range []string{"one", "two", "three", "four", "five", "six"} {
		texts[s] = map[string]string{core.MetaSource: "n.csv"}
	}
	searcher, err := NewSearcher(newEmbedder(), setupIndex(t, texts))
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), "three", 0, nil)
	require.NoError(t, err)
	assert.Len(t, results, DefaultMaxHits)
}

func TestSearch_EmbedderError(t *testing.T) {
	embedder := newEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("offline")
	}
	searcher, err := NewSearcher(embedder, setupIndex(t, nil))
	require.NoError(t, err)

	_, err = searcher.Search(context.Background(), "anything", 4, nil)
	assert.Error(t, err)
}

type testMonitor struct {
	started  string
	ids      []string
	semantic int
	verbatim int
	finished []*Result
}

func (m *testMonitor) Start(query string)             { m.started = query }
func (m *testMonitor) AfterVectorSearch(ids []string) { m.ids = ids }
func (m *testMonitor) SemanticHit(_ *Result)          { m.semantic++ }
func (m *testMonitor) VerbatimHit(_ *Result)          { m.verbatim++ }
func (m *testMonitor) Finish(results []*Result)       { m.finished = results }

func TestSearchWithMonitor(t *testing.T) {
	index := setupIndex(t, map[string]map[string]string{
		"Revenue grew in 2023.": {core.MetaSource: "a.pdf"},
		"Headcount doubled.":    {core.MetaSource: "b.pdf"},
	})
	searcher, err := NewSearcher(newEmbedder(), index)
	require.NoError(t, err)

	monitor := &testMonitor{}
	results, err := searcher.SearchWithMonitor(context.Background(), "Headcount doubled.", 4, nil, monitor)
	require.NoError(t, err)

	assert.Equal(t, "Headcount doubled.", monitor.started)
	assert.Len(t, monitor.ids, 2)
	assert.Equal(t, 1, monitor.verbatim)
	assert.Equal(t, 1, monitor.semantic)
	assert.Equal(t, results, monitor.finished)
	assert.Equal(t, "Headcount doubled.", results[0].Text)
}

func TestContainsAllQueryWords(t *testing.T) {
	tests := []struct {
		doc, query string
		want       bool
	}{
		{"ano: 2023 | municipio: Recife | valor: 10", "Recife 2023", true},
		{"ano: 2023 | municipio: Recife", "qual o valor de Recife", false},
		{"Revenue grew in 2023.", "the revenue", true},
		{"anything", "the of and", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, containsAllQueryWords(tt.doc, tt.query), "%q in %q", tt.query, tt.doc)
	}
}
