package reembed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	aimock "github.com/poiesic/docpipe/ai/mock"
	"github.com/poiesic/docpipe/core"
	"github.com/poiesic/docpipe/pipeline"
	"github.com/poiesic/docpipe/stages"
	"github.com/poiesic/docpipe/stages/mock"
	"github.com/poiesic/docpipe/state"
	"github.com/poiesic/docpipe/storage"
	"github.com/poiesic/docpipe/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	manager  *state.Manager
	chunks   storage.ChunkRepository
	pipeline *pipeline.Pipeline

	mu  sync.Mutex
	now time.Time
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stateStore, chunkRepo, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() {
		chunkRepo.Close()
		stateStore.Close()
		backend.Close()
	})

	f := &fixture{chunks: chunkRepo, now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	manager, err := state.NewManager(stateStore, state.WithClock(f.clock))
	require.NoError(t, err)
	docs, err := stages.NewEmbeddingStore(chunkRepo, aimock.NewMockEmbedder(), nil)
	require.NoError(t, err)
	p, err := pipeline.NewPipeline(manager, mock.NewMockExtractor(), mock.NewMockChunker(), docs, pipeline.WithPoolSize(1))
	require.NoError(t, err)
	t.Cleanup(p.Release)

	f.manager, f.pipeline = manager, p
	return f
}

func (f *fixture) ingest(t *testing.T, data string) core.Fingerprint {
	t.Helper()
	res, err := f.pipeline.Process(context.Background(), []byte(data), pipeline.ProcessOptions{})
	require.NoError(t, err)
	require.Equal(t, pipeline.OutcomeSuccess, res.Outcome)
	return res.Fingerprint
}

// constantEmbedder returns the same unnormalized vector for every text.
func constantEmbedder(calls *atomic.Int32) *aimock.MockEmbedder {
	e := aimock.NewMockEmbedder()
	e.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		calls.Add(1)
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{0, 2}
		}
		return out, nil
	}
	return e
}

func TestNewReembedder_Validation(t *testing.T) {
	f := newFixture(t)
	embedder := aimock.NewMockEmbedder()

	_, err := NewReembedder(nil, f.chunks, embedder)
	assert.ErrorIs(t, err, ErrManagerRequired)
	_, err = NewReembedder(f.manager, nil, embedder)
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)
	_, err = NewReembedder(f.manager, f.chunks, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
	_, err = NewReembedder(f.manager, f.chunks, embedder, WithBatchSize(0))
	assert.ErrorIs(t, err, ErrInvalidBatchSize)
	_, err = NewReembedder(f.manager, f.chunks, embedder, WithRetry(0, time.Millisecond))
	assert.ErrorIs(t, err, pipeline.ErrInvalidMaxAttempts)
	_, err = NewReembedder(f.manager, f.chunks, embedder, WithLease(0))
	assert.ErrorIs(t, err, state.ErrInvalidLease)
}

func TestReembedder_Run(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.ingest(t, "one\n\ntwo\n\nthree")
	b := f.ingest(t, "four\n\nfive")

	before, err := f.chunks.GetChunks(ctx, a)
	require.NoError(t, err)

	var calls atomic.Int32
	r, err := NewReembedder(f.manager, f.chunks, constantEmbedder(&calls))
	require.NoError(t, err)

	var reports []Progress
	stats, err := r.Run(ctx, func(p Progress) { reports = append(reports, p) })
	require.NoError(t, err)
	assert.Equal(t, &Stats{Documents: 2, Chunks: 5}, stats)
	assert.Equal(t, int32(2), calls.Load(), "one request per document at the default batch size")

	require.Len(t, reports, 2)
	assert.Equal(t, 2, reports[1].Done)
	assert.Equal(t, 2, reports[1].Total)

	for _, fp := range []core.Fingerprint{a, b} {
		chunks, err := f.chunks.GetChunks(ctx, fp)
		require.NoError(t, err)
		for _, c := range chunks {
			assert.InDeltaSlice(t, []float32{0, 1}, c.Vector, 1e-6)
		}
	}

	after, err := f.chunks.GetChunks(ctx, a)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range after {
		assert.Equal(t, before[i].Id, after[i].Id)
		assert.Equal(t, before[i].Content, after[i].Content)
	}

	_, err = f.manager.AcquireLock(ctx, a, time.Minute)
	assert.NoError(t, err, "lease is released after reembedding")
}

func TestReembedder_IgnoresUnfinishedDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ingest(t, "stored")

	pending := core.FingerprintOf([]byte("pending"))
	token, err := f.manager.AcquireLock(ctx, pending, time.Minute)
	require.NoError(t, err)
	_, err = f.manager.Initialize(ctx, token, pending, "pending.txt")
	require.NoError(t, err)
	require.NoError(t, f.manager.Release(ctx, token))

	var calls atomic.Int32
	r, err := NewReembedder(f.manager, f.chunks, constantEmbedder(&calls))
	require.NoError(t, err)

	stats, err := r.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
}

func TestReembedder_SkipsLockedDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	locked := f.ingest(t, "locked doc")
	f.ingest(t, "free doc")

	_, err := f.manager.AcquireLock(ctx, locked, time.Minute)
	require.NoError(t, err)

	var calls atomic.Int32
	r, err := NewReembedder(f.manager, f.chunks, constantEmbedder(&calls))
	require.NoError(t, err)

	var skipped []core.Fingerprint
	stats, err := r.Run(ctx, func(p Progress) {
		if p.Skipped {
			skipped = append(skipped, p.Fingerprint)
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, []core.Fingerprint{locked}, skipped)
}

func TestReembedder_BatchSize(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "a\n\nb\n\nc\n\nd\n\ne")

	var calls atomic.Int32
	r, err := NewReembedder(f.manager, f.chunks, constantEmbedder(&calls), WithBatchSize(2))
	require.NoError(t, err)

	stats, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Chunks)
	assert.Equal(t, int32(3), calls.Load())
}

func TestReembedder_RetriesEmbedding(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "flaky")

	var calls atomic.Int32
	embedder := aimock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("temporarily unavailable")
		}
		return [][]float32{{1, 0}}, nil
	}

	r, err := NewReembedder(f.manager, f.chunks, embedder, WithRetry(3, time.Millisecond))
	require.NoError(t, err)

	stats, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, int32(3), calls.Load())
}

func TestReembedder_Errors(t *testing.T) {
	boom := errors.New("model not loaded")

	tests := []struct {
		name    string
		embed   func(ctx context.Context, texts []string) ([][]float32, error)
		wantErr error
	}{
		{
			name:    "embedder keeps failing",
			embed:   func(context.Context, []string) ([][]float32, error) { return nil, boom },
			wantErr: boom,
		},
		{
			name:    "wrong number of vectors",
			embed:   func(context.Context, []string) ([][]float32, error) { return [][]float32{}, nil },
			wantErr: ErrEmbeddingMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			fp := f.ingest(t, "doc")

			embedder := aimock.NewMockEmbedder()
			embedder.EmbedTextsFunc = tt.embed
			r, err := NewReembedder(f.manager, f.chunks, embedder, WithRetry(2, time.Millisecond))
			require.NoError(t, err)

			_, err = r.Run(ctx, nil)
			assert.ErrorIs(t, err, tt.wantErr)

			_, err = f.manager.AcquireLock(ctx, fp, time.Minute)
			assert.NoError(t, err, "lease is released on failure")
		})
	}
}

func TestReembedder_SkipsDocumentTakenOverDuringEmbedding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const data = "slow\n\nembedding"
	fp := f.ingest(t, data)

	embedder := aimock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		// The lease runs out and a forced reprocess rewrites the document
		f.advance(2 * time.Minute)
		res, err := f.pipeline.Process(ctx, []byte(data), pipeline.ProcessOptions{ForceReprocess: true})
		require.NoError(t, err)
		require.Equal(t, pipeline.OutcomeSuccess, res.Outcome)

		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{0, 2}
		}
		return out, nil
	}
	r, err := NewReembedder(f.manager, f.chunks, embedder, WithLease(time.Minute))
	require.NoError(t, err)

	stats, err := r.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, &Stats{Skipped: 1}, stats)

	chunks, err := f.chunks.GetChunks(ctx, fp)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.InDeltaSlice(t, aimock.Vector(c.Content), c.Vector, 1e-6, "chunks written by the reprocess are kept")
	}
}

func TestReembedder_RequiresStoredRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fp := f.ingest(t, "reset")

	// The record is reset after the listing but before the lease is taken
	require.NoError(t, f.manager.Invalidate(ctx, fp))
	token, err := f.manager.AcquireLock(ctx, fp, time.Minute)
	require.NoError(t, err)
	_, err = f.manager.Initialize(ctx, token, fp, "reset.txt")
	require.NoError(t, err)
	require.NoError(t, f.manager.Release(ctx, token))

	var calls atomic.Int32
	r, err := NewReembedder(f.manager, f.chunks, constantEmbedder(&calls))
	require.NoError(t, err)

	_, err = r.reembedDocument(ctx, fp)
	assert.ErrorIs(t, err, ErrDocumentChanged)
	assert.True(t, contended(err))
	assert.Zero(t, calls.Load())
}
