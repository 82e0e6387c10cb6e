package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/docsync/ai/mock"
	"github.com/poiesic/docsync/chunking"
	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/extract"
	"github.com/poiesic/docsync/manifest"
	"github.com/poiesic/docsync/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePDF treats form feeds as page breaks. Content starting with BROKEN is unparseable.
func fakePDF(ctx context.Context, r io.ReaderAt, size int64) ([]core.RawRecord, error) {
	data, err := io.ReadAll(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(data, []byte("BROKEN")) {
		return nil, fmt.Errorf("%w: missing xref table", extract.ErrFormat)
	}
	var records []core.RawRecord
	for i, page := range strings.Split(string(data), "\f") {
		records = append(records, core.RawRecord{Kind: core.RecordPage, Index: i + 1, Text: page})
	}
	return records, nil
}

type fixture struct {
	dir      string
	store    *badger.ManifestStore
	index    *badger.Index
	embedder *mock.MockEmbedder
	tracker  *manifest.Tracker
	orch     *Orchestrator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	store, index, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	f := &fixture{
		dir:      t.TempDir(),
		store:    store,
		index:    index,
		embedder: mock.NewMockEmbedder(),
	}
	f.embedder.Dimension = 16
	f.reopen(t, "mock-embedding", opts...)
	return f
}

// reopen builds a fresh tracker and orchestrator over the same stores.
func (f *fixture) reopen(t *testing.T, model string, opts ...Option) {
	t.Helper()

	tracker, err := manifest.Open(context.Background(), f.store, manifest.WithEmbeddingModel(model))
	require.NoError(t, err)

	extractor, err := extract.New(extract.WithExtractFunc(core.FormatPDF, fakePDF))
	require.NoError(t, err)

	builder, err := chunking.NewBuilder()
	require.NoError(t, err)

	opts = append([]Option{WithRetry(1, time.Millisecond), WithConcurrency(2)}, opts...)
	orch, err := NewOrchestrator(tracker, extractor, builder, f.embedder, f.index, opts...)
	require.NoError(t, err)
	t.Cleanup(orch.Release)

	f.tracker = tracker
	f.orch = orch
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(f.dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func (f *fixture) remove(t *testing.T, rel string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(f.dir, filepath.FromSlash(rel))))
}

func (f *fixture) run(t *testing.T) *Report {
	t.Helper()
	report, err := f.orch.Run(context.Background(), f.dir)
	require.NoError(t, err)
	require.NotNil(t, report)
	return report
}

func (f *fixture) indexIDs(t *testing.T) []string {
	t.Helper()
	ids, err := f.index.IDs(context.Background())
	require.NoError(t, err)
	slices.Sort(ids)
	return ids
}

func (f *fixture) manifestIDs() []string {
	var ids []string
	for _, e := range f.tracker.Entries() {
		ids = append(ids, e.ChunkIDs...)
	}
	slices.Sort(ids)
	return ids
}

// indexTexts returns the sorted texts of every indexed chunk.
func (f *fixture) indexTexts(t *testing.T) []string {
	t.Helper()
	results, err := f.index.Query(context.Background(), mock.GenerateVector("", 16), 100, nil)
	require.NoError(t, err)
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	slices.Sort(texts)
	return texts
}

// failEmbedCall makes the nth EmbedTexts call from now on fail.
func (f *fixture) failEmbedCall(n int32) {
	var calls atomic.Int32
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) == n {
			return nil, errors.New("quota exceeded")
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.GenerateVector(text, 16)
		}
		return out, nil
	}
}

// assertReconciled checks that the index holds exactly the chunks the manifest owns.
func (f *fixture) assertReconciled(t *testing.T) {
	t.Helper()
	assert.Equal(t, f.manifestIDs(), f.indexIDs(t))
}

const (
	reportPDF = "Revenue grew in 2023.\fCosts were flat.\fOutlook is stable."
	dataCSV   = "ano;municipio;valor\n2021;Recife;10\n2022;Olinda;20\n"
)

func TestRun_EndToEnd(t *testing.T) {
	f := newFixture(t)
	f.write(t, "report_2023.pdf", reportPDF)
	f.write(t, "data.csv", dataCSV)

	// First run indexes 3 pages and 2 rows.
	report := f.run(t)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 5, report.ChunksUpserted)
	assert.Empty(t, report.Failed)
	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))

	count, err := f.index.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	f.assertReconciled(t)

	entry, ok := f.tracker.Entry("report_2023.pdf")
	require.True(t, ok)
	assert.Len(t, entry.ChunkIDs, 3)
	assert.Equal(t, "mock-embedding", entry.EmbeddingModel)

	// Second run touches nothing.
	f.embedder.Reset()
	report = f.run(t)
	assert.Equal(t, 0, f.embedder.CallCount())
	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 0, report.ChunksUpserted)

	// Adding a row re-ingests only the CSV.
	f.write(t, "data.csv", dataCSV+"2023;Paulista;30\n")
	f.embedder.Reset()
	report = f.run(t)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 2, report.ChunksDeleted)
	assert.Equal(t, 3, report.ChunksUpserted)
	assert.Len(t, f.embedder.TextsEmbedded(), 3)

	count, err = f.index.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, count)
	f.assertReconciled(t)
}

func TestRun_ChunkMetadata(t *testing.T) {
	f := newFixture(t)
	f.write(t, "reports/report_2023.pdf", reportPDF)
	f.run(t)

	results, err := f.index.Query(context.Background(), mock.GenerateVector("Costs were flat.", 16), 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	meta := results[0].Metadata
	assert.Equal(t, "reports/report_2023.pdf", meta[core.MetaSource])
	assert.Equal(t, "report_2023.pdf", meta[core.MetaFile])
	assert.Equal(t, "pdf", meta[core.MetaFormat])
	assert.Equal(t, "2023", meta[core.MetaYear])
	assert.Equal(t, "2", meta[core.MetaIndex])
	assert.Equal(t, core.ChunkID("reports/report_2023.pdf", "page:2#0"), results[0].ID)
}

func TestRun_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.pdf", reportPDF)
	f.write(t, "b.csv", dataCSV)
	f.run(t)
	before := f.indexIDs(t)
	entries := f.tracker.Entries()

	for range 3 {
		report := f.run(t)
		assert.Equal(t, 0, report.Processed)
		assert.Equal(t, 0, report.ChunksUpserted)
		assert.Equal(t, 0, report.ChunksDeleted)
	}
	assert.Equal(t, before, f.indexIDs(t))
	assert.Equal(t, entries, f.tracker.Entries())
}

func TestRun_RenameIsDeleteAndNew(t *testing.T) {
	f := newFixture(t)
	f.write(t, "old.pdf", reportPDF)
	f.run(t)
	oldIDs := f.indexIDs(t)

	require.NoError(t, os.Rename(filepath.Join(f.dir, "old.pdf"), filepath.Join(f.dir, "new.pdf")))
	f.embedder.Reset()
	report := f.run(t)

	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 3, report.ChunksDeleted)
	assert.Equal(t, 3, report.ChunksUpserted)
	assert.Len(t, f.embedder.TextsEmbedded(), 3, "renamed content is re-embedded")

	_, ok := f.tracker.Entry("old.pdf")
	assert.False(t, ok)
	newIDs := f.indexIDs(t)
	for _, id := range oldIDs {
		assert.NotContains(t, newIDs, id)
	}
	f.assertReconciled(t)
}

func TestRun_RowIsolation(t *testing.T) {
	f := newFixture(t)
	f.write(t, "data.csv", dataCSV+"2023;Paulista;30\n")
	f.run(t)
	before, ok := f.tracker.Entry("data.csv")
	require.True(t, ok)

	f.write(t, "data.csv", "ano;municipio;valor\n2021;Recife;10\n2022;Olinda;25\n2023;Paulista;30\n")
	f.run(t)
	after, ok := f.tracker.Entry("data.csv")
	require.True(t, ok)

	require.Len(t, after.ChunkIDs, 3)
	assert.Equal(t, before.ChunkIDs, after.ChunkIDs, "row ids depend only on path and row number")

	results, err := f.index.Query(context.Background(), mock.GenerateVector("source: data.csv\nano: 2021 | municipio: Recife | valor: 10", 16), 3, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, core.ChunkID("data.csv", "row:1"), results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-4)
	for _, r := range results {
		assert.Equal(t, 1, strings.Count(r.Text, "municipio:"), "each chunk holds exactly one row")
	}
}

func TestRun_DeletedFile(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.pdf", reportPDF)
	f.write(t, "b.csv", dataCSV)
	f.run(t)

	f.remove(t, "a.pdf")
	report := f.run(t)

	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 3, report.ChunksDeleted)
	assert.Equal(t, 1, f.tracker.Len())
	f.assertReconciled(t)
}

func TestRun_FormatFailureIsolated(t *testing.T) {
	f := newFixture(t)
	f.write(t, "good.pdf", reportPDF)
	f.write(t, "bad.pdf", "BROKEN%PDF")
	f.write(t, "data.csv", dataCSV)

	report := f.run(t)
	assert.Equal(t, 2, report.Processed)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "bad.pdf", report.Failed[0].Path)
	assert.Equal(t, KindFormat, report.Failed[0].Kind)
	assert.ErrorIs(t, report.Failed[0].Err, extract.ErrFormat)
	assert.True(t, report.HasFailures())

	_, ok := f.tracker.Entry("bad.pdf")
	assert.False(t, ok, "failed files are not committed")
	f.assertReconciled(t)

	// The failed file is retried, the good ones are not.
	f.embedder.Reset()
	report = f.run(t)
	assert.Equal(t, 2, report.Skipped)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, 0, f.embedder.BatchCalls())

	f.write(t, "bad.pdf", "Recovered page.")
	report = f.run(t)
	assert.Equal(t, 1, report.Processed)
	assert.Empty(t, report.Failed)
	f.assertReconciled(t)
}

func TestRun_EmbeddingFailureLeavesManifest(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.pdf", reportPDF)
	f.write(t, "b.csv", dataCSV)
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("service unavailable")
	}

	report := f.run(t)
	assert.Equal(t, 0, report.Processed)
	require.Len(t, report.Failed, 2)
	for _, failure := range report.Failed {
		assert.Equal(t, KindEmbedding, failure.Kind)
	}
	assert.Equal(t, 0, f.tracker.Len())
	assert.Empty(t, f.indexIDs(t))
}

func TestRun_RetriesEmbedding(t *testing.T) {
	f := newFixture(t, WithRetry(3, time.Millisecond))
	f.write(t, "b.csv", dataCSV)

	var calls atomic.Int32
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("temporary")
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.GenerateVector(text, 16)
		}
		return out, nil
	}

	report := f.run(t)
	assert.Equal(t, 1, report.Processed)
	assert.Empty(t, report.Failed)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRun_PartialBatchRolledBack(t *testing.T) {
	f := newFixture(t, WithBatchSize(2))
	f.write(t, "a.pdf", reportPDF)

	var calls atomic.Int32
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) > 1 {
			return nil, errors.New("quota exceeded")
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.GenerateVector(text, 16)
		}
		return out, nil
	}

	report := f.run(t)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, KindEmbedding, report.Failed[0].Kind)
	assert.Empty(t, f.indexIDs(t), "chunks of a failed file are removed")
	assert.Equal(t, 0, f.tracker.Len())
}

func TestRun_CoalescesBatchesAcrossFiles(t *testing.T) {
	f := newFixture(t, WithBatchSize(4))
	f.write(t, "a.csv", dataCSV)
	f.write(t, "b.csv", dataCSV)
	f.write(t, "c.csv", dataCSV)

	report := f.run(t)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 6, report.ChunksUpserted)
	assert.Equal(t, 2, f.embedder.BatchCalls(), "six chunks in batches of four")
	f.assertReconciled(t)
}

func TestRun_DeleteFirstDropsFailedModification(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.pdf", reportPDF)
	f.run(t)
	before, _ := f.tracker.Entry("a.pdf")

	f.write(t, "a.pdf", "BROKEN")
	report := f.run(t)

	require.Len(t, report.Failed, 1)
	assert.Equal(t, []string{"a.pdf"}, report.Dropped)
	assert.Equal(t, 3, report.ChunksDeleted)
	assert.Empty(t, f.indexIDs(t))

	after, ok := f.tracker.Entry("a.pdf")
	require.True(t, ok, "manifest keeps the last committed entry")
	assert.Equal(t, before.Fingerprint, after.Fingerprint)

	f.write(t, "a.pdf", "Fixed.")
	report = f.run(t)
	assert.Equal(t, 1, report.Processed)
	assert.Empty(t, report.Dropped)
	f.assertReconciled(t)
}

func TestRun_ReplaceAfterKeepsOldChunksOnFailure(t *testing.T) {
	f := newFixture(t, WithStaleStrategy(StaleReplaceAfter))
	f.write(t, "a.pdf", reportPDF)
	f.run(t)
	before := f.indexIDs(t)

	f.write(t, "a.pdf", "BROKEN")
	report := f.run(t)

	require.Len(t, report.Failed, 1)
	assert.Empty(t, report.Dropped)
	assert.Equal(t, before, f.indexIDs(t))
	f.assertReconciled(t)
}

func TestRun_ModificationSpanningBatchesFails(t *testing.T) {
	const (
		oldPDF = "old one\fold two\fold three"
		newPDF = "new one\fnew two\fnew three"
	)

	t.Run("delete first", func(t *testing.T) {
		f := newFixture(t, WithBatchSize(2))
		f.write(t, "a.pdf", oldPDF)
		f.run(t)
		before, _ := f.tracker.Entry("a.pdf")

		f.write(t, "a.pdf", newPDF)
		f.failEmbedCall(2)
		report := f.run(t)

		require.Len(t, report.Failed, 1)
		assert.Equal(t, KindEmbedding, report.Failed[0].Kind)
		assert.Equal(t, []string{"a.pdf"}, report.Dropped)
		assert.Empty(t, f.indexIDs(t), "a dropped file has no chunks indexed")

		after, ok := f.tracker.Entry("a.pdf")
		require.True(t, ok)
		assert.Equal(t, before.Fingerprint, after.Fingerprint)
	})

	t.Run("replace after", func(t *testing.T) {
		f := newFixture(t, WithBatchSize(2), WithStaleStrategy(StaleReplaceAfter))
		f.write(t, "a.pdf", oldPDF)
		f.run(t)
		before, _ := f.tracker.Entry("a.pdf")

		f.write(t, "a.pdf", newPDF)
		f.failEmbedCall(2)
		report := f.run(t)

		require.Len(t, report.Failed, 1)
		assert.Empty(t, report.Dropped)
		assert.Equal(t, []string{"old one", "old three", "old two"}, f.indexTexts(t))

		after, ok := f.tracker.Entry("a.pdf")
		require.True(t, ok)
		assert.Equal(t, before.Fingerprint, after.Fingerprint)
		f.assertReconciled(t)
	})
}

func TestRun_ModificationCompletesAcrossBatches(t *testing.T) {
	f := newFixture(t, WithBatchSize(2), WithStaleStrategy(StaleReplaceAfter))
	f.write(t, "a.pdf", "old one\fold two\fold three")
	f.run(t)

	f.write(t, "a.pdf", "new one\fnew two")
	report := f.run(t)

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.ChunksDeleted)
	assert.Equal(t, []string{"new one", "new two"}, f.indexTexts(t))
	f.assertReconciled(t)
}

func TestRun_ReplaceAfterRemovesStaleChunks(t *testing.T) {
	f := newFixture(t, WithStaleStrategy(StaleReplaceAfter))
	f.write(t, "a.pdf", reportPDF)
	f.run(t)

	f.write(t, "a.pdf", "Only one page now.")
	report := f.run(t)

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.ChunksUpserted)
	assert.Equal(t, 2, report.ChunksDeleted)
	assert.Equal(t, []string{core.ChunkID("a.pdf", "page:1#0")}, f.indexIDs(t))
	f.assertReconciled(t)
}

func TestRun_EmptyFileCommitted(t *testing.T) {
	f := newFixture(t)
	f.write(t, "empty.csv", "ano;valor\n")

	report := f.run(t)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 0, report.ChunksUpserted)
	assert.Equal(t, 0, f.embedder.BatchCalls())

	entry, ok := f.tracker.Entry("empty.csv")
	require.True(t, ok)
	assert.Empty(t, entry.ChunkIDs)

	report = f.run(t)
	assert.Equal(t, 1, report.Skipped)
}

func TestRun_ModelChangeReembeds(t *testing.T) {
	f := newFixture(t)
	f.write(t, "b.csv", dataCSV)
	f.run(t)

	f.reopen(t, "other-model")
	f.embedder.Reset()
	report := f.run(t)

	assert.Equal(t, 1, report.Processed)
	assert.Len(t, f.embedder.TextsEmbedded(), 2)
	entry, _ := f.tracker.Entry("b.csv")
	assert.Equal(t, "other-model", entry.EmbeddingModel)
}

func TestRun_SkipsHiddenAndUnsupported(t *testing.T) {
	f := newFixture(t)
	f.write(t, ".hidden/a.pdf", reportPDF)
	f.write(t, "~$lock.docx", "lock")
	f.write(t, "notes.txt", "plain")
	f.write(t, "sub/b.csv", dataCSV)

	report := f.run(t)
	assert.Equal(t, 1, report.Processed)
	_, ok := f.tracker.Entry("sub/b.csv")
	assert.True(t, ok)
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	f := newFixture(t)
	f.orch.runMu.Lock()
	defer f.orch.runMu.Unlock()

	report, err := f.orch.Run(context.Background(), f.dir)
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Nil(t, report)
}

func TestRun_Canceled(t *testing.T) {
	f := newFixture(t)
	f.write(t, "b.csv", dataCSV)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.orch.Run(ctx, f.dir)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotNil(t, report)
	assert.Equal(t, 0, f.tracker.Len())
}

func TestRun_CanceledMidRun(t *testing.T) {
	f := newFixture(t, WithBatchSize(2), WithConcurrency(1))
	f.write(t, "a.csv", dataCSV)
	f.write(t, "b.csv", dataCSV)
	f.write(t, "c.csv", dataCSV)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	f.embedder.EmbedTextsFunc = func(callCtx context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) == 2 {
			cancel()
			return nil, context.Canceled
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.GenerateVector(text, 16)
		}
		return out, nil
	}

	report, err := f.orch.Run(ctx, f.dir)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, f.tracker.Len(), "only the file committed before cancellation is recorded")
	require.Len(t, report.Failed, 2)
	for _, failure := range report.Failed {
		assert.Equal(t, KindCanceled, failure.Kind, failure.Path)
	}
	f.assertReconciled(t)

	report = f.run(t)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Skipped)
	f.assertReconciled(t)
}

func TestRun_EmbedderUnavailableIsFatal(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.pdf", reportPDF)
	f.write(t, "b.csv", dataCSV)
	f.run(t)
	beforeIDs := f.indexIDs(t)
	beforeEntries := f.tracker.Entries()

	f.write(t, "a.pdf", "Rewritten.")
	f.remove(t, "b.csv")
	f.write(t, "c.csv", dataCSV)
	f.embedder.Reset()
	f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("dial tcp 127.0.0.1:11434: connection refused")
	}

	report, err := f.orch.Run(context.Background(), f.dir)
	require.ErrorIs(t, err, ErrEmbedderUnavailable)
	require.NotNil(t, report)

	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, 0, report.Deleted)
	assert.Equal(t, 0, f.embedder.BatchCalls())
	assert.Equal(t, beforeIDs, f.indexIDs(t), "no chunk is touched")
	assert.Equal(t, beforeEntries, f.tracker.Entries())
}

func TestRun_NoEmbedderCheckWithoutWork(t *testing.T) {
	f := newFixture(t)
	f.write(t, "b.csv", dataCSV)
	f.run(t)

	f.embedder.Reset()
	f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("connection refused")
	}
	report := f.run(t)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, f.embedder.CallCount())
}

func TestRun_UnreadableDirectoryKeepsEntries(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	f := newFixture(t)
	f.write(t, "sub/data.csv", dataCSV)
	f.write(t, "top.csv", dataCSV)
	f.run(t)
	before := f.indexIDs(t)

	sub := filepath.Join(f.dir, "sub")
	require.NoError(t, os.Chmod(sub, 0o000))
	t.Cleanup(func() { os.Chmod(sub, 0o755) })

	report := f.run(t)
	assert.Equal(t, 0, report.Deleted)
	assert.Equal(t, 0, report.ChunksDeleted)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "sub", report.Failed[0].Path)
	assert.Equal(t, KindTransientIO, report.Failed[0].Kind)
	assert.Equal(t, 2, f.tracker.Len())
	assert.Equal(t, before, f.indexIDs(t))
}

func TestRun_MissingSourceDir(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Run(context.Background(), filepath.Join(f.dir, "missing"))
	assert.ErrorIs(t, err, ErrSourceDir)
}

func TestNewOrchestrator_RequiresDependencies(t *testing.T) {
	f := newFixture(t)
	extractor, err := extract.New()
	require.NoError(t, err)
	builder, err := chunking.NewBuilder()
	require.NoError(t, err)

	_, err = NewOrchestrator(nil, extractor, builder, f.embedder, f.index)
	assert.ErrorIs(t, err, ErrTrackerRequired)
	_, err = NewOrchestrator(f.tracker, nil, builder, f.embedder, f.index)
	assert.ErrorIs(t, err, ErrExtractorRequired)
	_, err = NewOrchestrator(f.tracker, extractor, nil, f.embedder, f.index)
	assert.ErrorIs(t, err, ErrBuilderRequired)
	_, err = NewOrchestrator(f.tracker, extractor, builder, nil, f.index)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
	_, err = NewOrchestrator(f.tracker, extractor, builder, f.embedder, nil)
	assert.ErrorIs(t, err, ErrIndexRequired)
	_, err = NewOrchestrator(f.tracker, extractor, builder, f.embedder, f.index, WithBatchSize(0))
	assert.Error(t, err)
	_, err = NewOrchestrator(f.tracker, extractor, builder, f.embedder, f.index, WithRetry(0, 0))
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
}

func TestParseStaleStrategy(t *testing.T) {
	for _, s := range []StaleStrategy{StaleDeleteFirst, StaleReplaceAfter} {
		got, err := ParseStaleStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStaleStrategy("never")
	assert.Error(t, err)
}
