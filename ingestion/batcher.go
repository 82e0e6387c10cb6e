package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/poiesic/docsync/ai"
	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/manifest"
	"github.com/poiesic/docsync/storage"
)

// pendingFile tracks a prepared file until all of its chunks are embedded.
// Its entries reach the index in a single upsert, so a failed embedding call
// never leaves part of a new version indexed.
type pendingFile struct {
	*prepared
	remaining    int
	entries      []core.IndexEntry
	upsertFailed bool
	failed       bool
}

type queuedChunk struct {
	chunk core.Chunk
	file  *pendingFile
}

// batcher is the single committer of a run. It coalesces chunks of many files
// into embedding batches and commits each file once all its chunks are embedded.
// It is not safe for concurrent use.
type batcher struct {
	tracker  *manifest.Tracker
	embedder ai.Embedder
	index    storage.VectorIndex
	cfg      *config
	report   *Report
	progress *progress
	logger   *slog.Logger
	queue    []queuedChunk
}

// add accepts one prepared file. Only fatal errors are returned.
func (b *batcher) add(ctx context.Context, p *prepared) error {
	f := &pendingFile{prepared: p, remaining: len(p.chunks)}
	if p.err != nil {
		b.fail(ctx, f, p.stage, p.err)
		return nil
	}
	if len(p.chunks) == 0 {
		return b.finalize(ctx, f)
	}

	for _, c := range p.chunks {
		b.queue = append(b.queue, queuedChunk{chunk: c, file: f})
	}
	for len(b.queue) >= b.cfg.batchSize {
		if err := b.flush(ctx, b.cfg.batchSize); err != nil {
			return err
		}
	}
	return nil
}

// drain flushes every queued chunk.
func (b *batcher) drain(ctx context.Context) error {
	for len(b.queue) > 0 {
		if err := b.flush(ctx, min(b.cfg.batchSize, len(b.queue))); err != nil {
			return err
		}
	}
	return nil
}

// flush embeds the first n queued chunks and commits every file whose chunks
// are now all embedded. A failed call fails every file with a chunk in the batch.
func (b *batcher) flush(ctx context.Context, n int) error {
	batch := slices.Clone(b.queue[:n])
	b.queue = b.queue[n:]

	texts := make([]string, len(batch))
	for i, q := range batch {
		texts[i] = q.chunk.Text
	}

	var vectors [][]float32
	err := b.cfg.policy(b.logger).do(ctx, "embed", func(ctx context.Context) error {
		var err error
		vectors, err = b.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("%w: expected %d, received %d", ai.ErrEmbeddingCountMismatch, len(texts), len(vectors))
		}
		return nil
	})
	if err != nil {
		b.logger.Error("error generating embeddings", "chunks", len(batch), "err", err)
		b.failBatch(ctx, batch, stageEmbed, err)
		return nil
	}

	for i, q := range batch {
		f := q.file
		if f.failed {
			continue
		}
		f.entries = append(f.entries, core.IndexEntry{
			ID:       q.chunk.ID,
			Vector:   vectors[i],
			Text:     q.chunk.Text,
			Metadata: q.chunk.Metadata,
		})
		f.remaining--
		if f.remaining == 0 {
			if err := b.commit(ctx, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// commit upserts every chunk of f in one call and finalizes it.
func (b *batcher) commit(ctx context.Context, f *pendingFile) error {
	err := b.cfg.policy(b.logger).do(ctx, "upsert", func(ctx context.Context) error {
		return b.index.Upsert(ctx, f.entries...)
	})
	if err != nil {
		b.logger.Error("error upserting chunks", "path", f.file.Path, "chunks", len(f.entries), "err", err)
		f.upsertFailed = true
		b.fail(ctx, f, stageIndex, err)
		return nil
	}
	b.logger.Debug("upserted file chunks", "path", f.file.Path, "chunks", len(f.entries))
	f.entries = nil
	return b.finalize(ctx, f)
}

func (b *batcher) failBatch(ctx context.Context, batch []queuedChunk, st stage, err error) {
	for _, q := range batch {
		b.fail(ctx, q.file, st, err)
	}
}

// finalize removes leftover stale chunks (StaleReplaceAfter) and commits the
// manifest entry. When the stale delete fails the new chunks stay indexed and
// the next run, seeing the old fingerprint, retries the delete.
// A manifest write failure is fatal.
func (b *batcher) finalize(ctx context.Context, f *pendingFile) error {
	ids := make([]string, len(f.chunks))
	for i, c := range f.chunks {
		ids[i] = c.ID
	}

	deleted := f.staleDeleted
	if f.prev != nil && b.cfg.staleStrategy == StaleReplaceAfter {
		stale := staleIDs(f.prev.ChunkIDs, ids)
		if len(stale) > 0 {
			err := b.cfg.policy(b.logger).do(ctx, "delete", func(ctx context.Context) error {
				return b.index.Delete(ctx, stale...)
			})
			if err != nil {
				b.fail(ctx, f, stageIndex, fmt.Errorf("deleting stale chunks: %w", err))
				return nil
			}
			deleted += len(stale)
		}
	}

	entry := core.ManifestEntry{
		Path:           f.file.Path,
		Fingerprint:    f.file.Fingerprint,
		Format:         f.file.Format,
		Size:           f.file.Size,
		ModTime:        f.file.ModTime,
		ChunkIDs:       ids,
		EmbeddingModel: b.cfg.model,
		LastIngestedAt: time.Now().UTC(),
	}
	if err := b.tracker.Commit(ctx, entry); err != nil {
		b.report.fail(f.file.Path, KindManifest, err)
		return fmt.Errorf("%w: %w", ErrManifestWrite, err)
	}

	b.report.Processed++
	b.report.ChunksUpserted += len(ids)
	b.report.ChunksDeleted += deleted
	b.progress.committed(len(ids))
	b.logger.Info("file ingested", "path", f.file.Path, "chunks", len(ids), "stale_deleted", deleted)
	return nil
}

// fail records f as failed and drops its queued chunks. After a failed upsert
// it removes whatever part of the call may have landed, sparing the previous
// chunks still owned by the manifest under StaleReplaceAfter. The manifest
// entry is left untouched so the next run retries the file.
func (b *batcher) fail(ctx context.Context, f *pendingFile, st stage, err error) {
	if f.failed {
		return
	}
	f.failed = true

	b.queue = slices.DeleteFunc(b.queue, func(q queuedChunk) bool { return q.file == f })

	var orphans []string
	if f.upsertFailed {
		var owned []string
		if f.prev != nil && f.staleDeleted == 0 {
			owned = f.prev.ChunkIDs
		}
		attempted := make([]string, len(f.entries))
		for i, e := range f.entries {
			attempted[i] = e.ID
		}
		orphans = staleIDs(attempted, owned)
	}
	f.entries = nil
	if len(orphans) > 0 {
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.rollbackTimeout())
		if rbErr := b.index.Delete(rbCtx, orphans...); rbErr != nil {
			b.logger.Warn("unable to remove partially indexed chunks", "path", f.file.Path, "chunks", len(orphans), "err", rbErr)
		}
		cancel()
	}

	kind := classify(ctx, st, err)
	b.report.fail(f.file.Path, kind, err)
	b.report.ChunksDeleted += f.staleDeleted
	if f.staleDeleted > 0 {
		b.report.Dropped = append(b.report.Dropped, f.file.Path)
	}
	b.progress.failedFile()

	if kind == KindCanceled {
		b.logger.Debug("file abandoned", "path", f.file.Path)
		return
	}
	b.logger.Warn("file failed", "path", f.file.Path, "kind", kind, "err", err)
}

// staleIDs returns the ids in old that are not in current, in old's order.
func staleIDs(old, current []string) []string {
	if len(old) == 0 {
		return nil
	}
	keep := make(map[string]struct{}, len(current))
	for _, id := range current {
		keep[id] = struct{}{}
	}
	var out []string
	for _, id := range old {
		if _, ok := keep[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
