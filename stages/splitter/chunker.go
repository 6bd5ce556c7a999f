package splitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/docpipe/core"
	"github.com/poiesic/docpipe/stages"
	"github.com/poiesic/docpipe/stages/loader"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

var (
	// ErrNoChunks is returned when the documents split into nothing.
	ErrNoChunks = errors.New("document produced no chunks")

	// ErrInvalidChunking is returned for unusable size/overlap settings.
	ErrInvalidChunking = errors.New("invalid chunking configuration")
)

// Chunker implements stages.Chunker.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	text         textsplitter.TextSplitter
	markdown     textsplitter.TextSplitter
	logger       *slog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithChunkSize sets the maximum chunk length in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) error {
		if size <= 0 {
			return fmt.Errorf("%w: chunk size must be positive", ErrInvalidChunking)
		}
		c.chunkSize = size
		return nil
	}
}

// WithChunkOverlap sets how many characters consecutive chunks share.
func WithChunkOverlap(overlap int) Option {
	return func(c *Chunker) error {
		if overlap < 0 {
			return fmt.Errorf("%w: chunk overlap must not be negative", ErrInvalidChunking)
		}
		c.chunkOverlap = overlap
		return nil
	}
}

// WithLogger sets the logger. A nil logger uses slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger.With("component", "chunker")
		return nil
	}
}

var _ stages.Chunker = (*Chunker)(nil)

// NewChunker creates a chunker. Defaults are 1000 characters with 200 overlap.
func NewChunker(opts ...Option) (stages.Chunker, error) {
	c := &Chunker{
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		logger:       slog.Default().With("component", "chunker"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.chunkOverlap >= c.chunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than size %d", ErrInvalidChunking, c.chunkOverlap, c.chunkSize)
	}

	splitterOpts := []textsplitter.Option{
		textsplitter.WithChunkSize(c.chunkSize),
		textsplitter.WithChunkOverlap(c.chunkOverlap),
	}
	c.text = textsplitter.NewRecursiveCharacter(splitterOpts...)
	c.markdown = textsplitter.NewMarkdownTextSplitter(append(splitterOpts, textsplitter.WithHeadingHierarchy(true))...)
	return c, nil
}

// Chunk splits every document and carries its metadata onto each chunk.
func (c *Chunker) Chunk(ctx context.Context, docs []core.Document) ([]core.Document, error) {
	var chunks []core.Document
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		splitter := c.text
		if doc.Metadata.MimeType == loader.MimeMarkdown {
			splitter = c.markdown
		}
		pieces, err := splitter.SplitText(doc.Content)
		if err != nil {
			return nil, err
		}
		for _, piece := range pieces {
			if strings.TrimSpace(piece) == "" {
				continue
			}
			chunks = append(chunks, core.Document{Content: piece, Metadata: doc.Metadata})
		}
	}

	if len(chunks) == 0 {
		return nil, core.Permanent(ErrNoChunks)
	}
	c.logger.Debug("chunked documents", "documents", len(docs), "chunks", len(chunks))
	return chunks, nil
}
