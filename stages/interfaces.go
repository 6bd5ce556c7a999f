package stages

import (
	"context"

	"github.com/poiesic/docpipe/core"
)

// Extractor turns raw document bytes into text documents.
// Implementations must be thread-safe for concurrent use.
type Extractor interface {
	// Extract parses data. source is an optional name used for type
	// detection and metadata, e.g. the original filename.
	Extract(ctx context.Context, data []byte, source string) ([]core.Document, error)
}

// Chunker splits extracted documents into chunks suitable for embedding.
// Implementations must be thread-safe for concurrent use.
type Chunker interface {
	Chunk(ctx context.Context, docs []core.Document) ([]core.Document, error)
}

// DocumentStore embeds and persists chunks keyed by document fingerprint.
// Implementations must be thread-safe for concurrent use.
type DocumentStore interface {
	// StoreWithEmbeddings replaces any chunks stored for fp with chunks and
	// returns how many were stored. Storing the same chunks twice is safe.
	StoreWithEmbeddings(ctx context.Context, fp core.Fingerprint, chunks []core.Document) (int, error)

	// DeleteByFingerprint removes the chunks of one document.
	DeleteByFingerprint(ctx context.Context, fp core.Fingerprint) (int, error)

	// DeleteAll removes every stored chunk.
	DeleteAll(ctx context.Context) (int, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, data []byte, source string) ([]core.Document, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, data []byte, source string) ([]core.Document, error) {
	return f(ctx, data, source)
}

// ChunkerFunc adapts a function to the Chunker interface.
type ChunkerFunc func(ctx context.Context, docs []core.Document) ([]core.Document, error)

// Chunk calls f.
func (f ChunkerFunc) Chunk(ctx context.Context, docs []core.Document) ([]core.Document, error) {
	return f(ctx, docs)
}
