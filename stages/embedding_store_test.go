package stages

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

func setupEmbeddingStore(t *testing.T) (DocumentStore, storage.ChunkRepository, *aimock.MockEmbedder) {
	t.Helper()
	stateStore, chunkRepo, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() {
		chunkRepo.Close()
		stateStore.Close()
		backend.Close()
	})
	embedder := aimock.NewMockEmbedder()
	store, err := NewEmbeddingStore(chunkRepo, embedder, nil)
	require.NoError(t, err)
	return store, chunkRepo, embedder
}

func chunkDocs(contents ...string) []core.Document {
	docs := make([]core.Document, len(contents))
	for i, c := range contents {
		docs[i] = core.Document{Content: c, Metadata: core.Metadata{Filename: "doc.txt", MimeType: "text/plain"}}
	}
	return docs
}

func TestNewEmbeddingStore_Validation(t *testing.T) {
	_, err := NewEmbeddingStore(nil, aimock.NewMockEmbedder(), nil)
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)

	_, chunkRepo, _ := setupEmbeddingStore(t)
	_, err = NewEmbeddingStore(chunkRepo, nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}

func TestEmbeddingStore_Store(t *testing.T) {
	store, chunkRepo, embedder := setupEmbeddingStore(t)
	ctx := context.Background()
	fp := core.FingerprintOf([]byte("doc"))

	n, err := store.StoreWithEmbeddings(ctx, fp, chunkDocs("alpha", "beta", "gamma"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, embedder.CallCount(), "chunks are embedded in one batch call")

	chunks, err := chunkRepo.GetChunks(ctx, fp)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "beta", chunks[1].Content)
	assert.InDeltaSlice(t, aimock.Vector("beta"), chunks[1].Vector, 1e-6)
	assert.Equal(t, "doc.txt", chunks[1].Metadata.Filename)
}

func TestEmbeddingStore_NormalizesVectors(t *testing.T) {
	store, chunkRepo, embedder := setupEmbeddingStore(t)
	ctx := context.Background()
	fp := core.FingerprintOf([]byte("doc"))
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{3, 4}
		}
		return out, nil
	}

	_, err := store.StoreWithEmbeddings(ctx, fp, chunkDocs("alpha"))
	require.NoError(t, err)

	chunks, err := chunkRepo.GetChunks(ctx, fp)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, chunks[0].Vector, 1e-6)
}

func TestEmbeddingStore_ReplacesPreviousChunks(t *testing.T) {
	store, chunkRepo, _ := setupEmbeddingStore(t)
	ctx := context.Background()
	fp := core.FingerprintOf([]byte("doc"))

	_, err := store.StoreWithEmbeddings(ctx, fp, chunkDocs("a", "b", "c", "d"))
	require.NoError(t, err)
	_, err = store.StoreWithEmbeddings(ctx, fp, chunkDocs("a", "b"))
	require.NoError(t, err)

	count, err := chunkRepo.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestEmbeddingStore_Errors(t *testing.T) {
	store, chunkRepo, embedder := setupEmbeddingStore(t)
	ctx := context.Background()
	fp := core.FingerprintOf([]byte("doc"))

	_, err := store.StoreWithEmbeddings(ctx, fp, nil)
	assert.ErrorIs(t, err, ErrNoChunks)

	boom := errors.New("embedding service down")
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, boom
	}
	_, err = store.StoreWithEmbeddings(ctx, fp, chunkDocs("a"))
	assert.ErrorIs(t, err, boom)

	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	}
	_, err = store.StoreWithEmbeddings(ctx, fp, chunkDocs("a", "b"))
	assert.ErrorIs(t, err, ErrEmbeddingMismatch)

	count, err := chunkRepo.CountChunks(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "failed stores write nothing")
}

func TestEmbeddingStore_Delete(t *testing.T) {
	store, _, _ := setupEmbeddingStore(t)
	ctx := context.Background()
	a := core.FingerprintOf([]byte("a"))
	b := core.FingerprintOf([]byte("b"))

	_, err := store.StoreWithEmbeddings(ctx, a, chunkDocs("1", "2"))
	require.NoError(t, err)
	_, err = store.StoreWithEmbeddings(ctx, b, chunkDocs("3"))
	require.NoError(t, err)

	n, err := store.DeleteByFingerprint(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
