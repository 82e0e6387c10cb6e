package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docsync/ai"
	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/manifest"
	"github.com/poiesic/docsync/storage"
	"golang.org/x/sync/errgroup"
)

// StaleStrategy controls when the previous chunks of a modified file leave the index.
type StaleStrategy int

const (
	// StaleDeleteFirst deletes the previous chunks before the file is extracted.
	// A file that then fails has no chunks indexed until a later run succeeds.
	StaleDeleteFirst StaleStrategy = iota
	// StaleReplaceAfter upserts the new chunks first and deletes previous ids
	// that are not reused only once every new chunk is indexed.
	StaleReplaceAfter
)

func (s StaleStrategy) String() string {
	switch s {
	case StaleDeleteFirst:
		return "delete-first"
	case StaleReplaceAfter:
		return "replace-after"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStaleStrategy parses the String form of a StaleStrategy.
func ParseStaleStrategy(s string) (StaleStrategy, error) {
	switch s {
	case "", "delete-first":
		return StaleDeleteFirst, nil
	case "replace-after":
		return StaleReplaceAfter, nil
	default:
		return 0, fmt.Errorf("unknown stale strategy %q", s)
	}
}

// Defaults applied by NewOrchestrator.
const (
	DefaultBatchSize   = 64
	DefaultCallTimeout = 60 * time.Second
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 500 * time.Millisecond
)

type config struct {
	concurrency   int
	batchSize     int
	callTimeout   time.Duration
	maxAttempts   int
	retryDelay    time.Duration
	staleStrategy StaleStrategy
	model         string
	progress      io.Writer
}

func (c *config) policy(logger *slog.Logger) retryPolicy {
	return retryPolicy{
		attempts:  c.maxAttempts,
		baseDelay: c.retryDelay,
		timeout:   c.callTimeout,
		logger:    logger,
	}
}

func (c *config) rollbackTimeout() time.Duration {
	if c.callTimeout > 0 {
		return c.callTimeout
	}
	return DefaultCallTimeout
}

// Orchestrator keeps a vector index in sync with a source directory.
type Orchestrator struct {
	tracker   *manifest.Tracker
	embedder  ai.Embedder
	index     storage.VectorIndex
	processor *fileProcessor
	pool      *ants.Pool
	cfg       config
	runMu     sync.Mutex
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithConcurrency sets the number of files extracted in parallel.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) error {
		if n < 1 {
			n = 1
		}
		o.cfg.concurrency = n
		return nil
	}
}

// WithBatchSize sets the maximum number of chunks per embedding call.
// Chunks from several files share a batch.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) error {
		if n < 1 {
			return fmt.Errorf("batch size must be positive, got %d", n)
		}
		o.cfg.batchSize = n
		return nil
	}
}

// WithCallTimeout bounds every embedding and index call. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) error {
		o.cfg.callTimeout = d
		return nil
	}
}

// WithRetry sets the attempts and base backoff delay for embedding and index calls.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(o *Orchestrator) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		o.cfg.maxAttempts = maxAttempts
		o.cfg.retryDelay = baseDelay
		return nil
	}
}

// WithStaleStrategy selects how the previous chunks of modified files are retired.
func WithStaleStrategy(s StaleStrategy) Option {
	return func(o *Orchestrator) error {
		o.cfg.staleStrategy = s
		return nil
	}
}

// WithEmbeddingModel sets the model name recorded on committed manifest entries.
// Default is the tracker's model.
func WithEmbeddingModel(model string) Option {
	return func(o *Orchestrator) error {
		o.cfg.model = model
		return nil
	}
}

// WithProgress writes a progress line to w while files are processed.
func WithProgress(w io.Writer) Option {
	return func(o *Orchestrator) error {
		o.cfg.progress = w
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// NewOrchestrator creates an orchestrator. Call Release when done.
func NewOrchestrator(
	tracker *manifest.Tracker,
	extractor Extractor,
	builder ChunkBuilder,
	embedder ai.Embedder,
	index storage.VectorIndex,
	opts ...Option,
) (*Orchestrator, error) {
	if tracker == nil {
		return nil, ErrTrackerRequired
	}
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if builder == nil {
		return nil, ErrBuilderRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	o := &Orchestrator{
		tracker:  tracker,
		embedder: embedder,
		index:    index,
		cfg: config{
			concurrency: poolSize,
			batchSize:   DefaultBatchSize,
			callTimeout: DefaultCallTimeout,
			maxAttempts: DefaultMaxAttempts,
			retryDelay:  DefaultRetryDelay,
			model:       tracker.EmbeddingModel(),
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	o.logger = o.logger.With("component", "ingestion")

	pool, err := ants.NewPool(o.cfg.concurrency)
	if err != nil {
		return nil, err
	}
	o.pool = pool
	o.processor = newFileProcessor(extractor, builder, index, &o.cfg, o.logger)
	return o, nil
}

// Release releases the worker pool.
// The orchestrator should not be used after calling Release.
func (o *Orchestrator) Release() {
	if o.pool != nil {
		o.pool.Release()
	}
}

// Run performs one ingestion pass over sourceDir.
//
// The returned report is non-nil whenever the run started, including when an
// error is returned. Per-file problems are recorded in the report and do not
// produce an error. Errors are returned for a concurrent run
// (ErrRunInProgress), an unusable source directory, an unreachable embedding
// service (ErrEmbedderUnavailable), manifest write failures and cancellation.
func (o *Orchestrator) Run(ctx context.Context, sourceDir string) (*Report, error) {
	if !o.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer o.runMu.Unlock()

	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	defer func() {
		report.FinishedAt = time.Now().UTC()
	}()
	logger := o.logger.With("run", report.RunID)

	files, scanErrs, err := Scan(sourceDir)
	if err != nil {
		return report, err
	}
	for _, path := range slices.Sorted(maps.Keys(scanErrs)) {
		report.fail(path, KindTransientIO, scanErrs[path])
	}

	cls, err := o.tracker.Classify(ctx, files, slices.Sorted(maps.Keys(scanErrs))...)
	if err != nil {
		return report, err
	}
	for _, path := range slices.Sorted(maps.Keys(cls.Errors)) {
		report.fail(path, KindTransientIO, cls.Errors[path])
	}
	report.Skipped = len(cls.Unchanged)

	logger.Info("classified source files",
		"new", len(cls.New),
		"modified", len(cls.Modified),
		"unchanged", len(cls.Unchanged),
		"deleted", len(cls.Deleted),
		"unreadable", len(cls.Errors))

	if len(cls.New)+len(cls.Modified) > 0 {
		if err := o.checkEmbedder(ctx, logger); err != nil {
			return report, err
		}
	}

	if err := o.removeDeleted(ctx, cls.Deleted, report, logger); err != nil {
		return report, err
	}

	jobs := make([]job, 0, len(cls.New)+len(cls.Modified))
	for _, f := range cls.New {
		jobs = append(jobs, job{file: f})
	}
	for _, f := range cls.Modified {
		prev, ok := o.tracker.Entry(f.Path)
		if !ok {
			jobs = append(jobs, job{file: f})
			continue
		}
		jobs = append(jobs, job{file: f, prev: &prev})
	}

	if err := o.process(ctx, jobs, report, logger); err != nil {
		return report, err
	}

	logger.Info("ingestion run finished",
		"processed", report.Processed,
		"skipped", report.Skipped,
		"deleted", report.Deleted,
		"failed", len(report.Failed),
		"chunks_upserted", report.ChunksUpserted,
		"chunks_deleted", report.ChunksDeleted)
	return report, ctx.Err()
}

// checkEmbedder embeds a short text so an unreachable embedding service stops
// the run before the index is touched.
func (o *Orchestrator) checkEmbedder(ctx context.Context, logger *slog.Logger) error {
	err := o.cfg.policy(logger).do(ctx, "embed", func(ctx context.Context) error {
		vector, err := o.embedder.EmbedText(ctx, "ping")
		if err != nil {
			return err
		}
		if len(vector) == 0 {
			return ai.ErrEmptyEmbedding
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logger.Error("embedding service unavailable", "err", err)
		return fmt.Errorf("%w: %w", ErrEmbedderUnavailable, err)
	}
	return nil
}

// removeDeleted retires files that no longer exist. An index failure leaves
// the manifest entry in place for the next run.
func (o *Orchestrator) removeDeleted(ctx context.Context, deleted []*core.ManifestEntry, report *Report, logger *slog.Logger) error {
	for _, entry := range deleted {
		if err := ctx.Err(); err != nil {
			return err
		}

		if len(entry.ChunkIDs) > 0 {
			err := o.cfg.policy(logger).do(ctx, "delete", func(ctx context.Context) error {
				return o.index.Delete(ctx, entry.ChunkIDs...)
			})
			if err != nil {
				logger.Warn("unable to delete chunks of removed file", "path", entry.Path, "err", err)
				report.fail(entry.Path, classify(ctx, stageIndex, err), err)
				continue
			}
		}

		ids, err := o.tracker.Remove(ctx, entry.Path)
		if err != nil {
			report.fail(entry.Path, KindManifest, err)
			return fmt.Errorf("%w: %w", ErrManifestWrite, err)
		}
		report.Deleted++
		report.ChunksDeleted += len(ids)
		logger.Info("file removed", "path", entry.Path, "chunks", len(ids))
	}
	return nil
}

// process extracts jobs on the worker pool and feeds a single committer.
func (o *Orchestrator) process(ctx context.Context, jobs []job, report *Report, logger *slog.Logger) error {
	if len(jobs) == 0 {
		return nil
	}

	prog := newProgress(o.cfg.progress, len(jobs))
	prog.begin()
	defer prog.end()

	g, gctx := errgroup.WithContext(ctx)
	results := make(chan *prepared)
	committerDone := make(chan struct{})

	g.Go(func() error {
		defer close(results)
		var wg sync.WaitGroup
		for _, j := range jobs {
			wg.Add(1)
			err := o.pool.Submit(func() {
				defer wg.Done()
				p := o.processor.process(gctx, j)
				select {
				case results <- p:
				case <-committerDone:
				}
			})
			if err != nil {
				wg.Done()
				p := &prepared{job: j, err: err, stage: stageRead}
				select {
				case results <- p:
				case <-committerDone:
				}
			}
		}
		wg.Wait()
		return nil
	})

	g.Go(func() error {
		defer close(committerDone)
		b := &batcher{
			tracker:  o.tracker,
			embedder: o.embedder,
			index:    o.index,
			cfg:      &o.cfg,
			report:   report,
			progress: prog,
			logger:   logger,
		}
		for p := range results {
			if err := b.add(gctx, p); err != nil {
				return err
			}
		}
		return b.drain(gctx)
	})

	return g.Wait()
}
