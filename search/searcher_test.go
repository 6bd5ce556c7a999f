package search

import (
	"context"
	"errors"
	"testing"

	aimock "github.com/poiesic/docpipe/ai/mock"
	"github.com/poiesic/docpipe/core"
	"github.com/poiesic/docpipe/storage"
	"github.com/poiesic/docpipe/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMonitor struct {
	noopMonitor
	query    string
	semantic int
	verbatim []string
	finished int
}

func (m *recordingMonitor) Start(query string) { m.query = query }
func (m *recordingMonitor) AfterSemanticSearch(matches []*core.SearchResult) {
	m.semantic = len(matches)
}
func (m *recordingMonitor) VerbatimHit(chunk *core.Chunk) {
	m.verbatim = append(m.verbatim, chunk.Content)
}
func (m *recordingMonitor) Finish(results []*core.SearchResult) { m.finished = len(results) }

func setupSearcher(t *testing.T, queryVector []float32) (*Searcher, storage.ChunkRepository, *aimock.MockEmbedder) {
	t.Helper()
	stateStore, chunkRepo, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() {
		chunkRepo.Close()
		stateStore.Close()
		backend.Close()
	})

	embedder := aimock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return queryVector, nil
	}
	s, err := NewSearcher(chunkRepo, embedder)
	require.NoError(t, err)
	return s, chunkRepo, embedder
}

func addChunks(t *testing.T, repo storage.ChunkRepository, contents []string, vectors [][]float32) {
	t.Helper()
	fp := core.FingerprintOf([]byte(contents[0]))
	chunks := make([]*core.Chunk, len(contents))
	for i := range contents {
		chunks[i] = &core.Chunk{Fingerprint: fp, Index: i, Content: contents[i], Vector: vectors[i]}
	}
	_, err := repo.AddChunks(context.Background(), chunks...)
	require.NoError(t, err)
}

func TestNewSearcher_Validation(t *testing.T) {
	_, err := NewSearcher(nil, aimock.NewMockEmbedder())
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)

	_, repo, _ := setupSearcher(t, nil)
	_, err = NewSearcher(repo, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewSearcher(repo, aimock.NewMockEmbedder(), WithMinSimilarity(1.5))
	assert.ErrorIs(t, err, ErrInvalidMinSimilarity)
}

func TestFindSimilar_RanksBySimilarity(t *testing.T) {
	s, repo, _ := setupSearcher(t, []float32{1, 0, 0})
	addChunks(t, repo,
		[]string{"somewhat related", "closest match", "unrelated"},
		[][]float32{{0.8, 0.6, 0}, {1, 0, 0}, {0, 0, 1}},
	)

	results, err := s.FindSimilar(context.Background(), "query", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "closest match", results[0].Chunk.Content)
	assert.Equal(t, "somewhat related", results[1].Chunk.Content)
}

func TestFindSimilar_VerbatimBoost(t *testing.T) {
	s, repo, _ := setupSearcher(t, []float32{1, 0})
	addChunks(t, repo,
		[]string{"nothing in common", "Badger stores the processing records."},
		[][]float32{{1, 0}, {0.8, 0.6}},
	)

	monitor := &recordingMonitor{}
	results, err := s.FindSimilarWithMonitor(context.Background(), "where are processing records stored by badger?", 10, monitor)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// "stored" does not match "stores", so no boost yet
	assert.Equal(t, "nothing in common", results[0].Chunk.Content)
	assert.Empty(t, monitor.verbatim)

	results, err = s.FindSimilarWithMonitor(context.Background(), "the processing records, badger", 10, monitor)
	require.NoError(t, err)
	assert.Equal(t, "Badger stores the processing records.", results[0].Chunk.Content)
	assert.InDelta(t, 0.8+verbatimBoost, results[0].Score, 1e-5)
	assert.Equal(t, []string{"Badger stores the processing records."}, monitor.verbatim)
	assert.Equal(t, 2, monitor.semantic)
	assert.Equal(t, 2, monitor.finished)
}

func TestFindSimilar_LimitsHits(t *testing.T) {
	s, repo, _ := setupSearcher(t, []float32{1, 0})
	contents := []string{"a", "b", "c", "d", "e"}
	vectors := make([][]float32, len(contents))
	for i := range vectors {
		vectors[i] = []float32{1, 0}
	}
	addChunks(t, repo, contents, vectors)

	results, err := s.FindSimilar(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	_, err = s.FindSimilar(context.Background(), "q", 0)
	assert.ErrorIs(t, err, ErrInvalidMaxHits)
}

func TestFindSimilar_EmbedderError(t *testing.T) {
	s, _, embedder := setupSearcher(t, nil)
	boom := errors.New("embedding service down")
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, boom
	}

	_, err := s.FindSimilar(context.Background(), "q", 5)
	assert.ErrorIs(t, err, boom)
}

func TestContainsAllQueryWords(t *testing.T) {
	tests := []struct {
		name    string
		content string
		query   string
		want    bool
	}{
		{"all words present", "The lease expired before the chunker finished.", "chunker lease", true},
		{"punctuation and case ignored", "Retry-safe: FAILED records resume.", "failed, RESUME?", true},
		{"word forms must match", "Retry-safe: FAILED records resume.", "failed records resumed", false},
		{"missing word", "The lease expired.", "lease renewed", false},
		{"only stop words", "anything at all", "the of and", false},
		{"empty query", "anything", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, containsAllQueryWords(tt.content, tt.query))
		})
	}
}
