// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reembed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/poiesic/docpipe/ai"
	"github.com/poiesic/docpipe/core"
	"github.com/poiesic/docpipe/pipeline"
	"github.com/poiesic/docpipe/state"
	"github.com/poiesic/docpipe/storage"
)

const (
	DefaultBatchSize  = 100
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
)

// Stats summarizes a Run.
type Stats struct {
	Documents int // documents reembedded
	Chunks    int // chunks rewritten
	Skipped   int // documents held by another caller
}

// Progress is reported after each document.
type Progress struct {
	Fingerprint core.Fingerprint
	Chunks      int
	Skipped     bool
	Done        int
	Total       int
}

// Reembedder rewrites the vectors of every stored document.
type Reembedder struct {
	manager    *state.Manager
	chunks     storage.ChunkRepository
	embedder   ai.Embedder
	batchSize  int
	maxRetries int
	retryDelay time.Duration
	lease      time.Duration
	logger     *slog.Logger
}

// Option configures a Reembedder.
type Option func(*Reembedder) error

// WithBatchSize sets the number of chunks embedded per request.
func WithBatchSize(size int) Option {
	return func(r *Reembedder) error {
		if size <= 0 {
			return ErrInvalidBatchSize
		}
		r.batchSize = size
		return nil
	}
}

// WithRetry sets how embedding requests are retried.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(r *Reembedder) error {
		if maxAttempts <= 0 {
			return pipeline.ErrInvalidMaxAttempts
		}
		r.maxRetries = maxAttempts
		r.retryDelay = baseDelay
		return nil
	}
}

// WithLease sets how long a document is held while its chunks are rewritten.
func WithLease(lease time.Duration) Option {
	return func(r *Reembedder) error {
		if lease <= 0 {
			return state.ErrInvalidLease
		}
		r.lease = lease
		return nil
	}
}

// WithLogger sets the logger. If nil, uses slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reembedder) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewReembedder creates a Reembedder.
func NewReembedder(manager *state.Manager, chunks storage.ChunkRepository, embedder ai.Embedder, opts ...Option) (*Reembedder, error) {
	if manager == nil {
		return nil, ErrManagerRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	r := &Reembedder{
		manager:    manager,
		chunks:     chunks,
		embedder:   embedder,
		batchSize:  DefaultBatchSize,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		lease:      pipeline.DefaultLease,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "reembedder")
	return r, nil
}

// Run reembeds the chunks of every document in the stored stage.
// progress may be nil.
func (r *Reembedder) Run(ctx context.Context, progress func(Progress)) (*Stats, error) {
	records, err := r.manager.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	records = slices.DeleteFunc(records, func(rec *core.ProcessingRecord) bool {
		return rec.Stage != core.StageStored
	})

	stats := &Stats{}
	start := time.Now()
	r.logger.Info("starting reembedding", "documents", len(records), "batch_size", r.batchSize)

	for i, rec := range records {
		n, err := r.reembedDocument(ctx, rec.Fingerprint)
		skipped := contended(err)
		switch {
		case skipped:
			stats.Skipped++
			r.logger.Warn("document is being processed, skipping", "fingerprint", rec.Fingerprint.Short(), "err", err)
		case err != nil:
			return stats, fmt.Errorf("failed to reembed %s: %w", rec.Fingerprint.Short(), err)
		default:
			stats.Documents++
			stats.Chunks += n
		}
		if progress != nil {
			progress(Progress{
				Fingerprint: rec.Fingerprint,
				Chunks:      n,
				Skipped:     skipped,
				Done:        i + 1,
				Total:       len(records),
			})
		}
	}

	r.logger.Info("reembedding complete",
		"documents", stats.Documents,
		"chunks", stats.Chunks,
		"skipped", stats.Skipped,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return stats, nil
}

func (r *Reembedder) reembedDocument(ctx context.Context, fp core.Fingerprint) (int, error) {
	token, err := r.manager.AcquireLock(ctx, fp, r.lease)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := r.manager.Release(context.WithoutCancel(ctx), token); err != nil {
			r.logger.Warn("error releasing lease", "fingerprint", fp.Short(), "err", err)
		}
	}()

	rec, err := r.manager.Hold(ctx, token, fp)
	if err != nil {
		return 0, err
	}
	if rec.Stage != core.StageStored {
		return 0, fmt.Errorf("%w: %s is %s", ErrDocumentChanged, fp.Short(), rec.Stage)
	}

	chunks, err := r.chunks.GetChunks(ctx, fp)
	if err != nil {
		return 0, err
	}
	for batch := range slices.Chunk(chunks, r.batchSize) {
		if err := r.embedBatch(ctx, batch); err != nil {
			return 0, err
		}
	}

	// Embedding can outlast the lease; another run may own the chunks now
	if _, err := r.manager.Hold(ctx, token, fp); err != nil {
		return 0, err
	}
	if _, err := r.chunks.AddChunks(ctx, chunks...); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// contended reports whether err means another caller owns or changed the
// document, so it is skipped rather than failing the run.
func contended(err error) bool {
	return errors.Is(err, state.ErrAlreadyLocked) ||
		errors.Is(err, state.ErrLockExpired) ||
		errors.Is(err, state.ErrStaleTransition) ||
		errors.Is(err, ErrDocumentChanged) ||
		errors.Is(err, storage.ErrNotFound)
}

func (r *Reembedder) embedBatch(ctx context.Context, chunks []*core.Chunk) error {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	var vectors [][]float32
	schedule := pipeline.Backoff{Attempts: r.maxRetries, Delay: r.retryDelay}
	err := pipeline.RetryWithBackoff(ctx, schedule, nil, func() error {
		var err error
		vectors, err = r.embedder.EmbedTexts(ctx, texts)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", r.maxRetries, err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingMismatch, len(chunks), len(vectors))
	}

	for i := range chunks {
		chunks[i].Vector = core.NormalizeVector(vectors[i])
	}
	return nil
}
