package search

import (
	"context"
	"log/slog"
	"sort"

	"github.com/poiesic/docsync/ai"
	"github.com/poiesic/docsync/core"
	"github.com/poiesic/docsync/storage"
)

// DefaultMaxHits is the number of results returned when maxHits is not positive.
const DefaultMaxHits = 4

// verbatimBoost is added to the score of a chunk containing every query word.
const verbatimBoost = 0.3

// Result is one ranked chunk.
type Result struct {
	ID       string
	Score    float32
	Text     string
	Metadata map[string]string
	// Verbatim is set when the chunk contains every non-stop-word of the query.
	Verbatim bool
}

// Source returns the relative path of the file the chunk came from.
func (r *Result) Source() string {
	return r.Metadata[core.MetaSource]
}

// Searcher answers natural language queries against the vector index.
type Searcher struct {
	embedder ai.Embedder
	index    storage.VectorIndex
	minScore float32
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMinScore drops results whose final score is below min.
func WithMinScore(min float32) Option {
	return func(s *Searcher) error {
		s.minScore = min
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(embedder ai.Embedder, index storage.VectorIndex, opts ...Option) (*Searcher, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}

	s := &Searcher{
		embedder: embedder,
		index:    index,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")

	return s, nil
}

// Search returns up to maxHits chunks relevant to query whose metadata matches filter.
func (s *Searcher) Search(ctx context.Context, query string, maxHits int, filter core.Filter) ([]*Result, error) {
	return s.SearchWithMonitor(ctx, query, maxHits, filter, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
//
// Ranking is the vector similarity plus a boost for chunks that contain every
// query word. Twice maxHits candidates are fetched so the boost can promote
// chunks just outside the vector top-k.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, maxHits int, filter core.Filter, monitor SearchMonitor) ([]*Result, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if maxHits <= 0 {
		maxHits = DefaultMaxHits
	}

	monitor.Start(query)

	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}

	matches, err := s.index.Query(ctx, embedding, maxHits*2, filter)
	if err != nil {
		s.logger.Error("error querying for similar chunks", "err", err)
		return nil, err
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	monitor.AfterVectorSearch(ids)

	results := make([]*Result, 0, len(matches))
	for _, m := range matches {
		r := &Result{
			ID:       m.ID,
			Score:    m.Score,
			Text:     m.Text,
			Metadata: m.Metadata,
		}
		if containsAllQueryWords(m.Text, query) {
			r.Score += verbatimBoost
			r.Verbatim = true
			monitor.VerbatimHit(r)
		} else {
			monitor.SemanticHit(r)
		}
		if r.Score < s.minScore {
			continue
		}
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > maxHits {
		results = results[:maxHits]
	}
	monitor.Finish(results)

	s.logger.Debug("search complete", "query", query, "candidates", len(matches), "results", len(results))
	return results, nil
}
