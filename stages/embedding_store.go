package stages

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/docpipe/ai"
	"github.com/poiesic/docpipe/core"
	"github.com/poiesic/docpipe/storage"
)

// EmbeddingStore implements DocumentStore by embedding chunk text and
// writing the vectors to a chunk repository.
type EmbeddingStore struct {
	chunks   storage.ChunkRepository
	embedder ai.Embedder
	logger   *slog.Logger
}

var _ DocumentStore = (*EmbeddingStore)(nil)

// NewEmbeddingStore creates a DocumentStore backed by chunks and embedder.
func NewEmbeddingStore(chunks storage.ChunkRepository, embedder ai.Embedder, logger *slog.Logger) (DocumentStore, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EmbeddingStore{
		chunks:   chunks,
		embedder: embedder,
		logger:   logger.With("component", "embedding_store"),
	}, nil
}

// StoreWithEmbeddings embeds chunks and replaces any chunks stored for fp.
func (s *EmbeddingStore) StoreWithEmbeddings(ctx context.Context, fp core.Fingerprint, docs []core.Document) (int, error) {
	if len(docs) == 0 {
		return 0, ErrNoChunks
	}
	s.logger.Info("storing chunks", "fingerprint", fp.Short(), "chunks", len(docs))

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}

	s.logger.Debug("generating embeddings for chunks", "chunks", len(texts))
	vectors, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		s.logger.Error("error generating embeddings", "fingerprint", fp.Short(), "err", err)
		return 0, err
	}
	if len(vectors) != len(docs) {
		return 0, fmt.Errorf("%w: expected %d, received %d", ErrEmbeddingMismatch, len(docs), len(vectors))
	}

	chunks := make([]*core.Chunk, len(docs))
	for i, doc := range docs {
		chunks[i] = &core.Chunk{
			Id:          core.ChunkID(fp, i, doc.Content),
			Fingerprint: fp,
			Index:       i,
			Content:     doc.Content,
			Metadata:    doc.Metadata,
			Vector:      core.NormalizeVector(vectors[i]),
		}
	}

	// A previous partial run may have left chunks at indexes beyond this set
	if _, err := s.chunks.DeleteChunks(ctx, fp); err != nil {
		return 0, err
	}
	stored, err := s.chunks.AddChunks(ctx, chunks...)
	if err != nil {
		return 0, err
	}
	return len(stored), nil
}

// DeleteByFingerprint removes the chunks of one document.
func (s *EmbeddingStore) DeleteByFingerprint(ctx context.Context, fp core.Fingerprint) (int, error) {
	n, err := s.chunks.DeleteChunks(ctx, fp)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("deleted chunks", "fingerprint", fp.Short(), "chunks", n)
	return n, nil
}

// DeleteAll removes every stored chunk.
func (s *EmbeddingStore) DeleteAll(ctx context.Context) (int, error) {
	n, err := s.chunks.DeleteAllChunks(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("deleted all chunks", "chunks", n)
	return n, nil
}
