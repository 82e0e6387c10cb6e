package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/docsync/extract"
	"github.com/poiesic/docsync/storage"
)

// ErrorKind classifies a per-file failure.
type ErrorKind int

const (
	// KindTransientIO covers unreadable files; retried on the next run.
	KindTransientIO ErrorKind = iota
	// KindFormat covers content that could not be parsed.
	KindFormat
	// KindEmbedding covers embedding service failures.
	KindEmbedding
	// KindIndex covers vector index failures.
	KindIndex
	// KindManifest covers manifest failures.
	KindManifest
	// KindCanceled marks files abandoned because the run was canceled.
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransientIO:
		return "transient_io"
	case KindFormat:
		return "format"
	case KindEmbedding:
		return "embedding"
	case KindIndex:
		return "index"
	case KindManifest:
		return "manifest"
	case KindCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FileFailure records why one file was not ingested.
type FileFailure struct {
	Path string
	Kind ErrorKind
	Err  error
}

func (f FileFailure) Error() string {
	return fmt.Sprintf("%s: %s: %v", f.Path, f.Kind, f.Err)
}

func (f FileFailure) Unwrap() error {
	return f.Err
}

// Report summarizes one ingestion run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	// Processed counts new and modified files committed to the manifest.
	Processed int
	// Skipped counts unchanged files.
	Skipped int
	// Deleted counts files removed from the source directory and the index.
	Deleted int
	Failed  []FileFailure
	// Dropped lists modified files whose stale chunks were deleted before the
	// file failed. They have no chunks indexed until a later run succeeds.
	Dropped []string

	ChunksUpserted int
	ChunksDeleted  int
}

// HasFailures reports whether any file failed.
func (r *Report) HasFailures() bool {
	return len(r.Failed) > 0
}

// Duration returns the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// FailedPaths returns the path of every failed file in report order.
func (r *Report) FailedPaths() []string {
	out := make([]string, len(r.Failed))
	for i, f := range r.Failed {
		out[i] = f.Path
	}
	return out
}

func (r *Report) fail(path string, kind ErrorKind, err error) {
	r.Failed = append(r.Failed, FileFailure{Path: path, Kind: kind, Err: err})
}

// stage identifies where in the per-file pipeline an error happened.
type stage int

const (
	stageRead stage = iota
	stageExtract
	stageEmbed
	stageIndex
	stageManifest
)

// classify maps an error from stage to an ErrorKind. Cancellation of the run
// context wins over the stage.
func classify(runCtx context.Context, st stage, err error) ErrorKind {
	if runCtx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return KindCanceled
	}
	if errors.Is(err, storage.ErrManifestCorrupt) {
		return KindManifest
	}
	switch st {
	case stageRead:
		return KindTransientIO
	case stageExtract:
		if extract.IsTransient(err) {
			return KindTransientIO
		}
		return KindFormat
	case stageEmbed:
		return KindEmbedding
	case stageIndex:
		return KindIndex
	default:
		return KindManifest
	}
}
