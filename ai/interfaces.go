package ai

import "context"

// Embedder turns chunk and query text into vectors.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// EmbedText embeds a single query or chunk.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts embeds texts in order, returning exactly one vector per text.
	// An empty input yields an empty result without contacting the service.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// AIProvider owns the embedding client and its lifecycle.
type AIProvider interface {
	// Embedder returns the shared embedder.
	Embedder() Embedder

	// Close releases the client. The embedder must not be used afterwards.
	Close() error
}
