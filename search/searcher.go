package search

import (
	"context"
	"log/slog"
	"slices"

	"github.com/poiesic/docpipe/ai"
	"github.com/poiesic/docpipe/core"
	"github.com/poiesic/docpipe/storage"
)

const (
	// DefaultMinSimilarity is the cosine similarity below which chunks are ignored.
	DefaultMinSimilarity = 0.60

	// verbatimBoost is added to chunks containing every significant query word.
	verbatimBoost = 0.3

	// candidateFactor widens the vector search so verbatim boosts can
	// promote chunks that rank just below the cut.
	candidateFactor = 2
)

// Searcher provides similarity search over stored chunks.
type Searcher struct {
	chunks        storage.ChunkRepository
	embedder      ai.Embedder
	minSimilarity float32
	logger        *slog.Logger
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

// WithMinSimilarity sets the similarity threshold, between -1 and 1.
func WithMinSimilarity(min float32) Option {
	return func(s *Searcher) error {
		if min < -1 || min > 1 {
			return ErrInvalidMinSimilarity
		}
		s.minSimilarity = min
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(chunks storage.ChunkRepository, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		chunks:        chunks,
		embedder:      embedder,
		minSimilarity: DefaultMinSimilarity,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")
	return s, nil
}

// FindSimilar searches for chunks similar to the query.
// Returns up to maxHits results, ranked by relevance score.
func (s *Searcher) FindSimilar(ctx context.Context, query string, maxHits int) ([]*core.SearchResult, error) {
	return s.FindSimilarWithMonitor(ctx, query, maxHits, nil)
}

// FindSimilarWithMonitor searches for chunks similar to the query with monitoring.
// The monitor receives callbacks at each step of the search.
func (s *Searcher) FindSimilarWithMonitor(ctx context.Context, query string, maxHits int, monitor SearchMonitor) ([]*core.SearchResult, error) {
	if maxHits <= 0 {
		return nil, ErrInvalidMaxHits
	}
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(query)

	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}

	matches, err := s.chunks.FindSimilar(ctx, core.NormalizeVector(embedding), s.minSimilarity, maxHits*candidateFactor)
	if err != nil {
		s.logger.Error("error querying for similar chunks", "err", err)
		return nil, err
	}
	monitor.AfterSemanticSearch(matches)

	results := make([]*core.SearchResult, 0, len(matches))
	for _, match := range matches {
		score := match.Score
		if containsAllQueryWords(match.Chunk.Content, query) {
			score += verbatimBoost
			monitor.VerbatimHit(match.Chunk)
		}
		results = append(results, &core.SearchResult{Chunk: match.Chunk, Score: score})
	}

	slices.SortStableFunc(results, func(a, b *core.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if len(results) > maxHits {
		results = results[:maxHits]
	}
	monitor.Finish(results)

	s.logger.Debug("search complete", "query", query, "candidates", len(matches), "results", len(results))
	return results, nil
}
