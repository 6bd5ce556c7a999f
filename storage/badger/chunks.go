package badger

import (
	"bytes"
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docpipe/core"
	"github.com/poiesic/docpipe/storage"
)

// chunkWriteBatch caps the number of chunks written per transaction
// to stay clear of ErrTxnTooBig on large documents.
const chunkWriteBatch = 256

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	backend *Backend
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) (storage.ChunkRepository, error) {
	return &ChunkRepository{backend: backend}, nil
}

// Close is a no-op; the backend is closed by its owner.
func (r *ChunkRepository) Close() error {
	return nil
}

// AddChunks stores chunks, overwriting any chunk at the same document index.
func (r *ChunkRepository) AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	now := time.Now().UTC()
	for batch := range slices.Chunk(chunks, chunkWriteBatch) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := r.backend.WithTx(func(tx *badger.Txn) error {
			for _, chunk := range batch {
				if chunk.Content == "" {
					return core.ErrEmptyContent
				}
				if chunk.Id == 0 {
					chunk.Id = core.ChunkID(chunk.Fingerprint, chunk.Index, chunk.Content)
				}
				if chunk.InsertedAt.IsZero() {
					chunk.InsertedAt = now
				}
				key := makeChunkKey(chunk.Fingerprint, chunk.Index)
				if err := tx.Set(key, storage.MarshalChunk(chunk)); err != nil {
					return storeError(err)
				}
			}
			return storeError(tx.Commit())
		}, true)
		if err != nil {
			return nil, err
		}
	}
	return chunks, nil
}

// GetChunks returns the chunks of fp in index order.
func (r *ChunkRepository) GetChunks(ctx context.Context, fp core.Fingerprint) ([]*core.Chunk, error) {
	var chunks []*core.Chunk
	err := r.scan(makePartialChunkKey(fp), func(chunk *core.Chunk) {
		chunks = append(chunks, chunk)
	})
	return chunks, err
}

// DeleteChunks removes every chunk of fp.
func (r *ChunkRepository) DeleteChunks(ctx context.Context, fp core.Fingerprint) (int, error) {
	deleted := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		keys := collectKeys(tx, makePartialChunkKey(fp))
		for _, key := range keys {
			if err := tx.Delete(key); err != nil {
				return storeError(err)
			}
		}
		deleted = len(keys)
		return storeError(tx.Commit())
	}, true)
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// DeleteAllChunks removes every stored chunk.
func (r *ChunkRepository) DeleteAllChunks(ctx context.Context) (int, error) {
	count, err := r.CountChunks(ctx)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	if err := r.backend.DropPrefix(chunkPrefix + ":"); err != nil {
		return 0, err
	}
	return count, nil
}

// CountChunks returns the number of stored chunks.
func (r *ChunkRepository) CountChunks(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		count = len(collectKeys(tx, []byte(chunkPrefix+":")))
		return nil
	}, false)
	return count, err
}

// FindSimilar finds chunks similar to the given vector.
func (r *ChunkRepository) FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.SearchResult
	err := r.scan([]byte(chunkPrefix+":"), func(chunk *core.Chunk) {
		// Skip chunks without embeddings
		if len(chunk.Vector) == 0 {
			return
		}

		// Calculate cosine similarity (dot product for normalized vectors)
		similarity := dotProduct(vector, chunk.Vector)
		if similarity >= minSimilarity {
			results = append(results, &core.SearchResult{
				Chunk: chunk,
				Score: similarity,
			})
		}
	})
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortFunc(results, func(a, b *core.SearchResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// scan decodes every chunk under prefix in key order.
func (r *ChunkRepository) scan(prefix []byte, fn func(chunk *core.Chunk)) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			if !bytes.HasPrefix(item.Key(), prefix) {
				continue
			}
			var chunk *core.Chunk
			err := item.Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			fn(chunk)
		}
		return nil
	}, false)
}

func collectKeys(tx *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var keys [][]byte
	for iter.Rewind(); iter.Valid(); iter.Next() {
		keys = append(keys, iter.Item().KeyCopy(nil))
	}
	return keys
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
