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


package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
	"github.com/poiesic/docsync"
	"github.com/poiesic/docsync/ai"
	"github.com/poiesic/docsync/chunking"
	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/ingestion"
	"github.com/poiesic/docsync/search"
	"github.com/poiesic/docsync/storage/milvus"
	"github.com/urfave/cli/v2"
)

// Exit codes.
const (
	exitOK      = 0
	exitPartial = 1
	exitFatal   = 2
)

func main() {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "docsync:", err)
		os.Exit(exitFatal)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:      "docsync",
		Usage:     "Keep a vector index in sync with a directory of PDF, DOCX and CSV files",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags:     globalFlags(),
		Before:    setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Index new and modified files and retire deleted ones",
				Action: ingestCommand,
				Flags:  append(ingestFlags(), &cli.BoolFlag{Name: "json", Usage: "Print the run report as JSON"}),
			},
			{
				Name:   "watch",
				Usage:  "Ingest, then re-ingest whenever the source directory changes",
				Action: watchCommand,
				Flags: append(ingestFlags(), &cli.DurationFlag{
					Name:    "debounce",
					Usage:   "Quiet period after a change before re-ingesting",
					Value:   ingestion.DefaultDebounce,
					EnvVars: []string{"DOCSYNC_DEBOUNCE"},
				}),
			},
			{
				Name:      "search",
				Usage:     "Query the index",
				ArgsUsage: "QUERY...",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "top-k", Aliases: []string{"k"}, Usage: "Maximum number of hits", Value: search.DefaultMaxHits},
					&cli.Float64Flag{Name: "min-score", Usage: "Drop hits scoring below this value"},
					&cli.StringFlag{Name: "year", Usage: "Only return chunks with this reference year"},
					&cli.StringFlag{Name: "file", Usage: "Only return chunks from this relative source path"},
					&cli.StringFlag{Name: "format", Usage: "Only return chunks of this format (pdf, docx, csv)"},
				},
			},
			{
				Name:   "status",
				Usage:  "Compare the manifest with the index",
				Action: statusCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "prune", Usage: "Delete index entries no manifest entry owns"},
				},
			},
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Aliases: []string{"l"},
			Usage:   "Set logging level (debug, info, warn, error)",
			Value:   "info",
			EnvVars: []string{"DOCSYNC_LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a TOML config file",
			EnvVars: []string{"DOCSYNC_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "data",
			Aliases: []string{"d"},
			Usage:   "Directory holding the manifest (and the badger index)",
			Value:   ".docsync",
			EnvVars: []string{"DOCSYNC_DATA"},
		},
		&cli.StringFlag{
			Name:    "index",
			Usage:   "Vector index backend (badger, pgvector, milvus)",
			Value:   docsync.IndexBadger,
			EnvVars: []string{"DOCSYNC_INDEX"},
		},
		&cli.StringFlag{
			Name:    "embedder",
			Usage:   "Embedding provider (openai, gemini)",
			Value:   ai.ProviderOpenAI,
			EnvVars: []string{"DOCSYNC_EMBEDDER"},
		},
		&cli.StringFlag{
			Name:    "embedding-host",
			Usage:   "Embedding service host URL (openai provider)",
			Value:   "http://localhost:11434/v1",
			EnvVars: []string{"DOCSYNC_EMBEDDING_HOST"},
		},
		&cli.StringFlag{
			Name:    "embedding-model",
			Usage:   "Embedding model name",
			Value:   "embeddinggemma",
			EnvVars: []string{"DOCSYNC_EMBEDDING_MODEL"},
		},
		&cli.StringFlag{
			Name:    "api-key",
			Usage:   "Embedding provider API key",
			EnvVars: []string{"DOCSYNC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY"},
		},
		&cli.IntFlag{
			Name:    "embed-batch-size",
			Usage:   "Maximum texts per embedding request",
			Value:   100,
			EnvVars: []string{"DOCSYNC_EMBED_BATCH_SIZE"},
		},
		&cli.IntFlag{
			Name:    "dimension",
			Usage:   "Embedding dimension declared in pgvector and milvus schemas (0 = infer)",
			EnvVars: []string{"DOCSYNC_DIMENSION"},
		},
		&cli.StringFlag{
			Name:    "pg-url",
			Usage:   "PostgreSQL connection URL (pgvector index)",
			EnvVars: []string{"DOCSYNC_PG_URL", "DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "pg-table",
			Usage:   "pgvector table name",
			EnvVars: []string{"DOCSYNC_PG_TABLE"},
		},
		&cli.StringFlag{
			Name:    "milvus-address",
			Usage:   "Milvus server address (host:port)",
			Value:   "localhost:19530",
			EnvVars: []string{"DOCSYNC_MILVUS_ADDRESS"},
		},
		&cli.StringFlag{
			Name:    "milvus-database",
			Usage:   "Milvus database name",
			Value:   "default",
			EnvVars: []string{"DOCSYNC_MILVUS_DATABASE"},
		},
		&cli.StringFlag{
			Name:    "milvus-username",
			Usage:   "Milvus username",
			EnvVars: []string{"DOCSYNC_MILVUS_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "milvus-password",
			Usage:   "Milvus password",
			EnvVars: []string{"DOCSYNC_MILVUS_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "milvus-collection",
			Usage:   "Milvus collection name",
			Value:   milvus.DefaultCollection,
			EnvVars: []string{"DOCSYNC_MILVUS_COLLECTION"},
		},
		&cli.DurationFlag{
			Name:    "milvus-timeout",
			Usage:   "Milvus connection timeout",
			Value:   30 * time.Second,
			EnvVars: []string{"DOCSYNC_MILVUS_TIMEOUT"},
		},
	}
}

func ingestFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "source",
			Aliases: []string{"s"},
			Usage:   "Directory tree to ingest",
			EnvVars: []string{"DOCSYNC_SOURCE"},
		},
		&cli.IntFlag{
			Name:    "batch-size",
			Usage:   "Maximum chunks per embedding call, shared across files",
			Value:   ingestion.DefaultBatchSize,
			EnvVars: []string{"DOCSYNC_BATCH_SIZE"},
		},
		&cli.IntFlag{
			Name:    "concurrency",
			Usage:   "Files extracted in parallel (0 = half the CPUs)",
			EnvVars: []string{"DOCSYNC_CONCURRENCY"},
		},
		&cli.IntFlag{
			Name:    "max-chunk-length",
			Usage:   "Maximum characters per PDF/DOCX chunk",
			Value:   chunking.DefaultMaxChunkLength,
			EnvVars: []string{"DOCSYNC_MAX_CHUNK_LENGTH"},
		},
		&cli.IntFlag{
			Name:    "overlap",
			Usage:   "Characters shared by consecutive PDF/DOCX chunks",
			Value:   chunking.DefaultOverlap,
			EnvVars: []string{"DOCSYNC_OVERLAP"},
		},
		&cli.StringFlag{
			Name:    "splitter",
			Usage:   "Text splitter (window, recursive)",
			Value:   chunking.SplitterWindow,
			EnvVars: []string{"DOCSYNC_SPLITTER"},
		},
		&cli.StringFlag{
			Name:    "stale-strategy",
			Usage:   "When old chunks of modified files are removed (delete-first, replace-after)",
			Value:   ingestion.StaleDeleteFirst.String(),
			EnvVars: []string{"DOCSYNC_STALE_STRATEGY"},
		},
		&cli.DurationFlag{
			Name:    "call-timeout",
			Usage:   "Timeout for each embedding and index call",
			Value:   ingestion.DefaultCallTimeout,
			EnvVars: []string{"DOCSYNC_CALL_TIMEOUT"},
		},
		&cli.IntFlag{
			Name:    "max-attempts",
			Usage:   "Attempts per embedding and index call",
			Value:   ingestion.DefaultMaxAttempts,
			EnvVars: []string{"DOCSYNC_MAX_ATTEMPTS"},
		},
		&cli.DurationFlag{
			Name:    "retry-delay",
			Usage:   "Base delay for exponential backoff",
			Value:   ingestion.DefaultRetryDelay,
			EnvVars: []string{"DOCSYNC_RETRY_DELAY"},
		},
		&cli.BoolFlag{
			Name:  "progress",
			Usage: "Print a progress line to stderr",
		},
	}
}

func fatal(err error) error {
	return cli.Exit(err.Error(), exitFatal)
}

// openDatabase builds a Database from the flags and the config file.
func openDatabase(c *cli.Context, s *settings, chunkOpts ...chunking.Option) (*docsync.Database, error) {
	aiConfig := ai.NewConfig(
		ai.WithProvider(s.string("embedder", s.file.Embedder.Provider)),
		ai.WithEmbeddingHost(s.string("embedding-host", s.file.Embedder.Host)),
		ai.WithEmbeddingModel(s.string("embedding-model", s.file.Embedder.Model)),
		ai.WithAPIKey(s.string("api-key", s.file.Embedder.APIKey)),
		ai.WithMaxBatchSize(s.int("embed-batch-size", s.file.Embedder.BatchSize)),
	)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	milvusTimeout, err := s.duration("milvus-timeout", s.file.Milvus.Timeout)
	if err != nil {
		return nil, err
	}
	milvusConfig := &milvus.Config{
		Address:    s.string("milvus-address", s.file.Milvus.Address),
		Database:   s.string("milvus-database", s.file.Milvus.Database),
		Username:   s.string("milvus-username", s.file.Milvus.Username),
		Password:   s.string("milvus-password", s.file.Milvus.Password),
		Collection: s.string("milvus-collection", s.file.Milvus.Collection),
		Timeout:    milvusTimeout,
	}

	return docsync.NewDatabase(c.Context, s.string("data", s.file.Data),
		docsync.WithAIConfig(aiConfig),
		docsync.WithIndexBackend(s.string("index", s.file.Index)),
		docsync.WithDimension(s.int("dimension", s.file.Embedder.Dimension)),
		docsync.WithPostgres(s.string("pg-url", s.file.Postgres.URL), s.string("pg-table", s.file.Postgres.Table)),
		docsync.WithMilvusConfig(milvusConfig),
		docsync.WithChunkingOptions(chunkOpts...),
	)
}

// ingestSetup resolves the ingest flags shared by ingest and watch.
type ingestSetup struct {
	source    string
	chunkOpts []chunking.Option
	orchOpts  []ingestion.Option
}

func resolveIngest(c *cli.Context, s *settings) (*ingestSetup, error) {
	source := s.string("source", s.file.Source)
	if source == "" {
		return nil, errors.New("source directory is required (--source)")
	}

	strategy, err := ingestion.ParseStaleStrategy(s.string("stale-strategy", s.file.Ingest.StaleStrategy))
	if err != nil {
		return nil, err
	}
	callTimeout, err := s.duration("call-timeout", s.file.Ingest.CallTimeout)
	if err != nil {
		return nil, err
	}
	retryDelay, err := s.duration("retry-delay", s.file.Ingest.RetryDelay)
	if err != nil {
		return nil, err
	}

	setup := &ingestSetup{
		source: source,
		chunkOpts: []chunking.Option{
			chunking.WithMaxChunkLength(s.int("max-chunk-length", s.file.Ingest.MaxChunkLength)),
			chunking.WithOverlap(s.int("overlap", s.file.Ingest.Overlap)),
			chunking.WithSplitter(s.string("splitter", s.file.Ingest.Splitter)),
		},
		orchOpts: []ingestion.Option{
			ingestion.WithBatchSize(s.int("batch-size", s.file.Ingest.BatchSize)),
			ingestion.WithCallTimeout(callTimeout),
			ingestion.WithRetry(s.int("max-attempts", s.file.Ingest.MaxAttempts), retryDelay),
			ingestion.WithStaleStrategy(strategy),
		},
	}
	if n := s.int("concurrency", s.file.Ingest.Concurrency); n > 0 {
		setup.orchOpts = append(setup.orchOpts, ingestion.WithConcurrency(n))
	}
	if c.Bool("progress") {
		setup.orchOpts = append(setup.orchOpts, ingestion.WithProgress(os.Stderr))
	}
	return setup, nil
}

func ingestCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	c.Context = ctx

	s, err := newSettings(c)
	if err != nil {
		return fatal(err)
	}
	setup, err := resolveIngest(c, s)
	if err != nil {
		return fatal(err)
	}

	db, err := openDatabase(c, s, setup.chunkOpts...)
	if err != nil {
		return fatal(err)
	}
	defer db.Close()

	orch, err := db.NewOrchestrator(ctx, setup.orchOpts...)
	if err != nil {
		return fatal(err)
	}
	defer orch.Release()

	report, runErr := orch.Run(ctx, setup.source)
	if report != nil {
		if c.Bool("json") {
			if err := writeReportJSON(c.App.Writer, report); err != nil {
				return fatal(err)
			}
		} else {
			writeReport(c.App.Writer, report)
		}
	}
	return exitFor(report, runErr)
}

func watchCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	c.Context = ctx

	s, err := newSettings(c)
	if err != nil {
		return fatal(err)
	}
	setup, err := resolveIngest(c, s)
	if err != nil {
		return fatal(err)
	}
	debounce, err := s.duration("debounce", s.file.Ingest.Debounce)
	if err != nil {
		return fatal(err)
	}

	db, err := openDatabase(c, s, setup.chunkOpts...)
	if err != nil {
		return fatal(err)
	}
	defer db.Close()

	orch, err := db.NewOrchestrator(ctx, setup.orchOpts...)
	if err != nil {
		return fatal(err)
	}
	defer orch.Release()

	var lastFatal error
	err = orch.Watch(ctx, setup.source, debounce, func(report *ingestion.Report, err error) {
		if report != nil {
			writeReport(c.App.Writer, report)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("ingestion run failed", "err", err)
			if isFatal(err) {
				lastFatal = err
				stop()
			}
		}
	})
	if lastFatal != nil {
		return fatal(lastFatal)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fatal(err)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fatal(errors.New("a query is required"))
	}

	s, err := newSettings(c)
	if err != nil {
		return fatal(err)
	}
	db, err := openDatabase(c, s)
	if err != nil {
		return fatal(err)
	}
	defer db.Close()

	searcher, err := db.NewSearcher(search.WithMinScore(float32(c.Float64("min-score"))))
	if err != nil {
		return fatal(err)
	}

	filter := core.Filter{}
	for flag, key := range map[string]string{"year": core.MetaYear, "file": core.MetaSource, "format": core.MetaFormat} {
		if v := c.String(flag); v != "" {
			filter[key] = v
		}
	}

	results, err := searcher.Search(c.Context, query, c.Int("top-k"), filter)
	if err != nil {
		return fatal(err)
	}

	fmt.Fprintf(c.App.Writer, "Found %d hits\n", len(results))
	for i, hit := range results {
		fmt.Fprintf(c.App.Writer, "%d: %s [%0.3f] %s\n", i+1, hit.Source(), hit.Score, hit.Metadata[core.MetaPosition])
		fmt.Fprintf(c.App.Writer, "   %s\n", preview(hit.Text, 200))
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	s, err := newSettings(c)
	if err != nil {
		return fatal(err)
	}
	db, err := openDatabase(c, s)
	if err != nil {
		return fatal(err)
	}
	defer db.Close()

	st, err := db.Status(c.Context)
	if err != nil {
		return fatal(err)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Index: %s\n", st.Index)
	fmt.Fprintf(w, "Embedding model: %s\n", st.EmbeddingModel)
	if len(st.Models) > 0 {
		fmt.Fprintf(w, "Manifest models: %s\n", strings.Join(st.Models, ", "))
	}
	fmt.Fprintf(w, "Files: %d\n", st.Files)
	fmt.Fprintf(w, "Chunks (manifest): %d\n", st.Chunks)
	fmt.Fprintf(w, "Chunks (index): %d\n", st.IndexCount)
	if st.Verified {
		fmt.Fprintf(w, "Orphaned index entries: %d\n", len(st.Orphans))
		fmt.Fprintf(w, "Missing index entries: %d\n", len(st.Missing))
	}
	fmt.Fprintf(w, "In sync: %t\n", st.InSync())

	if c.Bool("prune") {
		n, err := db.Prune(c.Context)
		if err != nil {
			return fatal(err)
		}
		fmt.Fprintf(w, "Pruned: %d\n", n)
	}
	return nil
}

// exitFor maps a run outcome to the process exit status.
func exitFor(report *ingestion.Report, err error) error {
	if err != nil {
		return fatal(err)
	}
	if report != nil && report.HasFailures() {
		return cli.Exit(fmt.Sprintf("%d file(s) failed", len(report.Failed)), exitPartial)
	}
	return nil
}

// isFatal reports whether a Run error ends watch mode.
func isFatal(err error) bool {
	return err != nil && !errors.Is(err, ingestion.ErrRunInProgress)
}

func writeReport(w io.Writer, r *ingestion.Report) {
	fmt.Fprintf(w, "Run %s finished in %s\n", r.RunID, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  processed: %d\n", r.Processed)
	fmt.Fprintf(w, "  skipped:   %d\n", r.Skipped)
	fmt.Fprintf(w, "  deleted:   %d\n", r.Deleted)
	fmt.Fprintf(w, "  failed:    %d\n", len(r.Failed))
	fmt.Fprintf(w, "  chunks:    +%d -%d\n", r.ChunksUpserted, r.ChunksDeleted)
	for _, f := range r.Failed {
		fmt.Fprintf(w, "  ! %s (%s): %v\n", f.Path, f.Kind, f.Err)
	}
	for _, path := range r.Dropped {
		fmt.Fprintf(w, "  - %s: no chunks indexed until the next successful run\n", path)
	}
}

type failureJSON struct {
	Path  string `json:"path"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

type reportJSON struct {
	RunID          string        `json:"run_id"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	Processed      int           `json:"processed"`
	Skipped        int           `json:"skipped"`
	Deleted        int           `json:"deleted"`
	Failed         []failureJSON `json:"failed"`
	Dropped        []string      `json:"dropped,omitempty"`
	ChunksUpserted int           `json:"chunks_upserted"`
	ChunksDeleted  int           `json:"chunks_deleted"`
}

func writeReportJSON(w io.Writer, r *ingestion.Report) error {
	out := reportJSON{
		RunID:          r.RunID,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		Processed:      r.Processed,
		Skipped:        r.Skipped,
		Deleted:        r.Deleted,
		Failed:         []failureJSON{},
		Dropped:        r.Dropped,
		ChunksUpserted: r.ChunksUpserted,
		ChunksDeleted:  r.ChunksDeleted,
	}
	for _, f := range r.Failed {
		out.Failed = append(out.Failed, failureJSON{Path: f.Path, Kind: f.Kind.String(), Error: f.Err.Error()})
	}
	data, err := sonic.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
