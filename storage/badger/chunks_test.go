package badger

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/docpipe/core"
	"github.com/poiesic/docpipe/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunkRepository(t *testing.T) storage.ChunkRepository {
	t.Helper()
	stateStore, chunkRepo, backend, err := NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() {
		chunkRepo.Close()
		stateStore.Close()
		backend.Close()
	})
	return chunkRepo
}

func makeChunks(fp core.Fingerprint, vectors ...[]float32) []*core.Chunk {
	chunks := make([]*core.Chunk, len(vectors))
	for i, v := range vectors {
		chunks[i] = &core.Chunk{
			Fingerprint: fp,
			Index:       i,
			Content:     fmt.Sprintf("chunk %d", i),
			Vector:      v,
		}
	}
	return chunks
}

func TestChunkRepository_AddAndGet(t *testing.T) {
	repo := newTestChunkRepository(t)
	ctx := context.Background()
	fp := core.FingerprintOf([]byte("doc"))

	added, err := repo.AddChunks(ctx, makeChunks(fp, []float32{1, 0}, []float32{0, 1}, nil)...)
	require.NoError(t, err)
	require.Len(t, added, 3)
	for _, c := range added {
		assert.NotZero(t, c.Id)
		assert.False(t, c.InsertedAt.IsZero())
	}

	got, err := repo.GetChunks(ctx, fp)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, c := range got {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, added[i].Id, c.Id)
	}
	assert.Equal(t, []float32{1, 0}, got[0].Vector)
}

func TestChunkRepository_AddIsIdempotent(t *testing.T) {
	repo := newTestChunkRepository(t)
	ctx := context.Background()
	fp := core.FingerprintOf([]byte("doc"))

	_, err := repo.AddChunks(ctx, makeChunks(fp, []float32{1}, []float32{2})...)
	require.NoError(t, err)
	_, err = repo.AddChunks(ctx, makeChunks(fp, []float32{1}, []float32{2})...)
	require.NoError(t, err)

	count, err := repo.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestChunkRepository_RejectsEmptyContent(t *testing.T) {
	repo := newTestChunkRepository(t)
	fp := core.FingerprintOf([]byte("doc"))

	_, err := repo.AddChunks(context.Background(), &core.Chunk{Fingerprint: fp})
	assert.ErrorIs(t, err, core.ErrEmptyContent)
}

func TestChunkRepository_LargeBatch(t *testing.T) {
	repo := newTestChunkRepository(t)
	ctx := context.Background()
	fp := core.FingerprintOf([]byte("big doc"))

	vectors := make([][]float32, chunkWriteBatch*2+7)
	for i := range vectors {
		vectors[i] = []float32{float32(i)}
	}
	_, err := repo.AddChunks(ctx, makeChunks(fp, vectors...)...)
	require.NoError(t, err)

	got, err := repo.GetChunks(ctx, fp)
	require.NoError(t, err)
	assert.Len(t, got, len(vectors))
}

func TestChunkRepository_Delete(t *testing.T) {
	repo := newTestChunkRepository(t)
	ctx := context.Background()
	a := core.FingerprintOf([]byte("a"))
	b := core.FingerprintOf([]byte("b"))

	_, err := repo.AddChunks(ctx, makeChunks(a, []float32{1}, []float32{1})...)
	require.NoError(t, err)
	_, err = repo.AddChunks(ctx, makeChunks(b, []float32{1}, []float32{1}, []float32{1})...)
	require.NoError(t, err)

	deleted, err := repo.DeleteChunks(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	remaining, err := repo.GetChunks(ctx, b)
	require.NoError(t, err)
	assert.Len(t, remaining, 3)

	deleted, err = repo.DeleteAllChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	count, err := repo.CountChunks(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	deleted, err = repo.DeleteAllChunks(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestFindSimilar_NoChunks(t *testing.T) {
	repo := newTestChunkRepository(t)

	results, err := repo.FindSimilar(context.Background(), []float32{0.1, 0.2, 0.3}, 0.5, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFindSimilar_WithChunks(t *testing.T) {
	repo := newTestChunkRepository(t)
	ctx := context.Background()
	fp := core.FingerprintOf([]byte("doc"))

	_, err := repo.AddChunks(ctx, makeChunks(fp,
		[]float32{0.9, 0.1, 0.0}, // Somewhat similar
		[]float32{1.0, 0.0, 0.0}, // Very similar to query
		[]float32{0.0, 0.0, 1.0}, // Not similar
		nil,                      // No vector - should be skipped
	)...)
	require.NoError(t, err)

	results, err := repo.FindSimilar(ctx, []float32{1.0, 0.0, 0.0}, 0.8, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Results should be sorted by score descending
	for i := 0; i < len(results)-1; i++ {
		assert.GreaterOrEqual(t, results[i].Score, results[i+1].Score)
	}
	assert.Equal(t, 1, results[0].Chunk.Index)
}

func TestFindSimilar_LimitResults(t *testing.T) {
	repo := newTestChunkRepository(t)
	ctx := context.Background()
	fp := core.FingerprintOf([]byte("doc"))

	vectors := make([][]float32, 10)
	for i := range vectors {
		vectors[i] = []float32{1.0, 0.0}
	}
	_, err := repo.AddChunks(ctx, makeChunks(fp, vectors...)...)
	require.NoError(t, err)

	results, err := repo.FindSimilar(ctx, []float32{1.0, 0.0}, 0.5, 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	_, err = repo.FindSimilar(ctx, []float32{1.0, 0.0}, 0.5, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestDotProduct(t *testing.T) {
	assert.Equal(t, float32(1), dotProduct([]float32{1, 0}, []float32{1, 0}))
	assert.Equal(t, float32(0), dotProduct([]float32{1, 0}, []float32{0, 1}))
	assert.Equal(t, float32(2), dotProduct([]float32{1, 1, 5}, []float32{1, 1}))
}
