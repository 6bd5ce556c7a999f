package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/docpipe/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder implements ai.Embedder on langchaingo's batched embedder.
type Embedder struct {
	client embeddings.Embedder
	model  string
	logger *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

func newEmbedder(config *ai.Config, logger *slog.Logger) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	llm, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(config.Token),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("openai client: %w", err)
	}

	client, err := embeddings.NewEmbedder(llm,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(config.BatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}

	return &Embedder{
		client: client,
		model:  config.EmbeddingModel,
		logger: logger.With("component", "openai-embedder", "model", config.EmbeddingModel),
	}, nil
}

// NewEmbedder creates an embedder without a provider.
func NewEmbedder(config *ai.Config, opts ...Option) (ai.Embedder, error) {
	o := applyOptions(opts)
	return newEmbedder(config, o.logger)
}

// EmbedText embeds a single query or chunk.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ai.ErrEmptyText
	}
	vector, err := e.client.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Error("failed to embed text", "length", len(text), "err", err)
		return nil, err
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: got 0 for 1 text", ai.ErrVectorCount)
	}
	return vector, nil
}

// EmbedTexts embeds texts in order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: text %d", ai.ErrEmptyText, i)
		}
	}

	e.logger.Debug("embedding texts", "count", len(texts))
	vectors, err := e.client.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to embed texts", "count", len(texts), "err", err)
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d for %d texts", ai.ErrVectorCount, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != len(vectors[0]) {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, vector 0 has %d",
				ai.ErrDimensionMismatch, i, len(v), len(vectors[0]))
		}
	}
	return vectors, nil
}
