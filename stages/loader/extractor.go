package loader

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/poiesic/docpipe/core"
	"github.com/poiesic/docpipe/stages"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

// ContentLayerBody is the content layer recorded for extracted text.
const ContentLayerBody = "body"

// Extractor implements stages.Extractor using langchaingo document loaders.
type Extractor struct {
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor) error

// WithLogger sets the logger. A nil logger uses slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger.With("component", "extractor")
		return nil
	}
}

var _ stages.Extractor = (*Extractor)(nil)

// NewExtractor creates an extractor.
func NewExtractor(opts ...Option) (stages.Extractor, error) {
	e := &Extractor{logger: slog.Default().With("component", "extractor")}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Extract parses data into one document per page (PDF) or one document for
// the whole file (every other type).
func (e *Extractor) Extract(ctx context.Context, data []byte, source string) ([]core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, core.Permanent(ErrNoContent)
	}

	mimeType := DetectType(data, source)
	if mimeType == "" {
		return nil, core.Permanent(fmt.Errorf("%w: %q", ErrUnsupportedType, source))
	}
	e.logger.Debug("extracting document", "source", source, "mime_type", mimeType, "bytes", len(data))

	loaded, err := e.load(ctx, data, mimeType)
	if err != nil {
		return nil, err
	}

	base := core.Metadata{
		Source:       source,
		Filename:     filepath.Base(source),
		ContentLayer: ContentLayerBody,
		MimeType:     mimeType,
	}
	if source == "" {
		base.Filename = ""
	}

	docs := make([]core.Document, 0, len(loaded))
	for _, d := range loaded {
		if strings.TrimSpace(d.PageContent) == "" {
			continue
		}
		md := base
		if page, ok := d.Metadata["page"].(int); ok {
			md.PageNo = page
		}
		docs = append(docs, core.Document{Content: d.PageContent, Metadata: md})
	}
	if len(docs) == 0 {
		return nil, core.Permanent(ErrNoContent)
	}

	e.logger.Debug("extracted document", "source", source, "documents", len(docs))
	return docs, nil
}

func (e *Extractor) load(ctx context.Context, data []byte, mimeType string) (loaded []schema.Document, err error) {
	// The PDF reader panics on some corrupt inputs
	defer func() {
		if r := recover(); r != nil {
			loaded = nil
			err = core.Permanent(fmt.Errorf("%w: %v", ErrMalformed, r))
		}
	}()

	switch mimeType {
	case MimePDF:
		loaded, err = documentloaders.NewPDF(bytes.NewReader(data), int64(len(data))).Load(ctx)
	case MimeHTML:
		loaded, err = documentloaders.NewHTML(bytes.NewReader(data)).Load(ctx)
	case MimeText, MimeMarkdown:
		loaded, err = documentloaders.NewText(bytes.NewReader(data)).Load(ctx)
	case MimeDOCX:
		text, derr := docxText(data)
		if derr != nil {
			return nil, core.Permanent(derr)
		}
		loaded, err = documentloaders.NewText(strings.NewReader(text)).Load(ctx)
	default:
		return nil, core.Permanent(fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType))
	}
	if err != nil {
		// The same bytes will never parse
		return nil, core.Permanent(fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	return loaded, nil
}
