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


package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/storage"
)

// job is one new or modified file. prev is nil for new files.
type job struct {
	file core.SourceFile
	prev *core.ManifestEntry
}

// prepared is a job after stale deletion, extraction and chunking.
type prepared struct {
	job
	chunks []core.Chunk
	// staleDeleted is the number of previous chunk ids removed from the index
	// before extraction.
	staleDeleted int
	err          error
	stage        stage
}

// Extractor reads a file into ordered raw records.
type Extractor interface {
	Extract(ctx context.Context, path string, format core.Format) ([]core.RawRecord, error)
}

// ChunkBuilder turns raw records into chunks with deterministic ids.
type ChunkBuilder interface {
	Build(sourcePath string, format core.Format, records []core.RawRecord) ([]core.Chunk, error)
}

// fileProcessor runs the per-file stages that happen on the worker pool.
type fileProcessor struct {
	extractor Extractor
	builder   ChunkBuilder
	index     storage.VectorIndex
	cfg       *config
	logger    *slog.Logger
}

func newFileProcessor(extractor Extractor, builder ChunkBuilder, index storage.VectorIndex, cfg *config, logger *slog.Logger) *fileProcessor {
	return &fileProcessor{
		extractor: extractor,
		builder:   builder,
		index:     index,
		cfg:       cfg,
		logger:    logger.With("processor", "files"),
	}
}

// process prepares j for embedding. Errors are returned inside the result.
func (fp *fileProcessor) process(ctx context.Context, j job) *prepared {
	p := &prepared{job: j}
	if err := ctx.Err(); err != nil {
		p.err, p.stage = err, stageRead
		return p
	}

	if j.prev != nil && fp.cfg.staleStrategy == StaleDeleteFirst && len(j.prev.ChunkIDs) > 0 {
		err := fp.cfg.policy(fp.logger).do(ctx, "delete", func(ctx context.Context) error {
			return fp.index.Delete(ctx, j.prev.ChunkIDs...)
		})
		if err != nil {
			p.err, p.stage = fmt.Errorf("deleting stale chunks: %w", err), stageIndex
			return p
		}
		p.staleDeleted = len(j.prev.ChunkIDs)
		fp.logger.Debug("deleted stale chunks", "path", j.file.Path, "chunks", p.staleDeleted)
	}

	records, err := fp.extractor.Extract(ctx, j.file.AbsPath, j.file.Format)
	if err != nil {
		p.err, p.stage = err, stageExtract
		return p
	}

	chunks, err := fp.builder.Build(j.file.Path, j.file.Format, records)
	if err != nil {
		p.err, p.stage = err, stageExtract
		return p
	}
	for i := range chunks {
		if err := core.ValidateChunk(&chunks[i]); err != nil {
			p.err, p.stage = err, stageExtract
			return p
		}
	}

	p.chunks = chunks
	fp.logger.Debug("prepared file", "path", j.file.Path, "records", len(records), "chunks", len(chunks))
	return p
}
