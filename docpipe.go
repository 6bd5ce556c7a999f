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

package docpipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/poiesic/docpipe/ai"
	"github.com/poiesic/docpipe/ai/openai"
	"github.com/poiesic/docpipe/config"
	"github.com/poiesic/docpipe/core"
	"github.com/poiesic/docpipe/pipeline"
	"github.com/poiesic/docpipe/reembed"
	"github.com/poiesic/docpipe/search"
	"github.com/poiesic/docpipe/stages"
	"github.com/poiesic/docpipe/stages/loader"
	"github.com/poiesic/docpipe/stages/splitter"
	"github.com/poiesic/docpipe/state"
	"github.com/poiesic/docpipe/storage"
	"github.com/poiesic/docpipe/storage/badger"
	"github.com/poiesic/docpipe/storage/minio"
)

const (
	lockFileName = "docpipe.lock"
	stateDirName = "state"
)

// ErrDataDirLocked is returned by Open when another process holds the data directory.
var ErrDataDirLocked = errors.New("data directory is in use by another process")

// DocPipe wires the storage, state, stage executors and orchestrator
// for one data directory.
type DocPipe struct {
	dirLock    *flock.Flock
	backend    *badger.Backend
	stateStore storage.StateStore
	chunkRepo  storage.ChunkRepository
	provider   ai.AIProvider
	manager    *state.Manager
	pipeline   *pipeline.Pipeline
	searcher   *search.Searcher
	reembedder *reembed.Reembedder
	logger     *slog.Logger
}

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	provider ai.AIProvider
	archive  storage.Archive
	logger   *slog.Logger
}

// WithProvider replaces the OpenAI-compatible provider built from the config.
// The DocPipe takes ownership and closes it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *openOptions) {
		o.provider = provider
	}
}

// WithArchive replaces the archive built from the config.
func WithArchive(archive storage.Archive) Option {
	return func(o *openOptions) {
		o.archive = archive
	}
}

// WithLogger sets the logger. If nil, uses slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *openOptions) {
		o.logger = logger
	}
}

// Open locks cfg's data directory and assembles a ready-to-use pipeline.
// Close releases everything Open acquired.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*DocPipe, error) {
	if cfg == nil {
		defaults := config.Default()
		cfg = &defaults
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := &openOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	d := &DocPipe{logger: options.logger.With("component", "docpipe")}
	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	d.dirLock = flock.New(filepath.Join(cfg.Storage.DataDir, lockFileName))
	locked, err := d.dirLock.TryLock()
	if err != nil {
		d.dirLock = nil
		return nil, fmt.Errorf("acquire data directory lock: %w", err)
	}
	if !locked {
		d.dirLock = nil
		return nil, fmt.Errorf("%w: %s", ErrDataDirLocked, cfg.Storage.DataDir)
	}

	if d.backend, err = badger.OpenBackend(filepath.Join(cfg.Storage.DataDir, stateDirName),
		badger.WithBackendLogger(options.logger),
		badger.WithSyncWrites(cfg.Storage.SyncWrites),
	); err != nil {
		return nil, err
	}
	if d.stateStore, err = badger.NewStateStore(d.backend,
		badger.WithRecordTTL(cfg.RecordTTL()),
		badger.WithArtifactTTL(cfg.ArtifactTTL()),
		badger.WithLogger(options.logger),
	); err != nil {
		return nil, err
	}
	if d.chunkRepo, err = badger.NewChunkRepository(d.backend); err != nil {
		return nil, err
	}

	d.provider = options.provider
	if d.provider == nil {
		if d.provider, err = openai.NewProvider(aiConfig(cfg)); err != nil {
			return nil, err
		}
	}

	if d.manager, err = state.NewManager(d.stateStore, state.WithLogger(options.logger)); err != nil {
		return nil, err
	}

	extractor, err := loader.NewExtractor(loader.WithLogger(options.logger))
	if err != nil {
		return nil, err
	}
	chunker, err := splitter.NewChunker(
		splitter.WithChunkSize(cfg.Chunking.ChunkSize),
		splitter.WithChunkOverlap(cfg.Chunking.ChunkOverlap),
		splitter.WithLogger(options.logger),
	)
	if err != nil {
		return nil, err
	}
	store, err := stages.NewEmbeddingStore(d.chunkRepo, d.provider.Embedder(), options.logger)
	if err != nil {
		return nil, err
	}

	pipelineOpts := []pipeline.Option{
		pipeline.WithLease(cfg.Lease()),
		pipeline.WithStageTimeout(cfg.StageTimeout()),
		pipeline.WithLogger(options.logger),
	}
	if cfg.Pipeline.PoolSize > 0 {
		pipelineOpts = append(pipelineOpts, pipeline.WithPoolSize(cfg.Pipeline.PoolSize))
	}
	if cfg.Pipeline.LockWaitAttempts > 0 {
		pipelineOpts = append(pipelineOpts, pipeline.WithLockWait(cfg.Pipeline.LockWaitAttempts, cfg.LockWaitDelay()))
	}
	archive := options.archive
	if archive == nil && cfg.Archive.Enabled {
		if archive, err = minio.NewArchive(ctx, minio.Config{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			UseSSL:    cfg.Archive.UseSSL,
		}, minio.WithLogger(options.logger)); err != nil {
			return nil, err
		}
	}
	if archive != nil {
		pipelineOpts = append(pipelineOpts, pipeline.WithArchive(archive))
	}
	if d.pipeline, err = pipeline.NewPipeline(d.manager, extractor, chunker, store, pipelineOpts...); err != nil {
		return nil, err
	}

	if d.searcher, err = search.NewSearcher(d.chunkRepo, d.provider.Embedder(), search.WithLogger(options.logger)); err != nil {
		return nil, err
	}

	if d.reembedder, err = reembed.NewReembedder(d.manager, d.chunkRepo, d.provider.Embedder(),
		reembed.WithBatchSize(cfg.Embedding.BatchSize),
		reembed.WithLease(cfg.Lease()),
		reembed.WithLogger(options.logger),
	); err != nil {
		return nil, err
	}

	ok = true
	d.logger.Debug("opened", "data_dir", cfg.Storage.DataDir)
	return d, nil
}

func aiConfig(cfg *config.Config) *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(cfg.Embedding.Host),
		ai.WithEmbeddingModel(cfg.Embedding.Model),
		ai.WithToken(cfg.Embedding.Token),
		ai.WithBatchSize(cfg.Embedding.BatchSize),
	)
}

// Close shuts down the pipeline and releases storage and the directory lock.
// It is safe to call on a partially opened DocPipe.
func (d *DocPipe) Close() error {
	var errs []error
	if d.pipeline != nil {
		d.pipeline.Release()
	}
	if d.provider != nil {
		if err := d.provider.Close(); err != nil {
			d.logger.Error("error closing AI provider", "err", err)
		}
	}
	if d.chunkRepo != nil {
		if err := d.chunkRepo.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.stateStore != nil {
		if err := d.stateStore.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.backend != nil {
		if err := d.backend.Close(); err != nil {
			d.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	if d.dirLock != nil {
		if err := d.dirLock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("release data directory lock: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Process runs data through the pipeline.
func (d *DocPipe) Process(ctx context.Context, data []byte, opts pipeline.ProcessOptions) (*pipeline.Result, error) {
	return d.pipeline.Process(ctx, data, opts)
}

// FileResult is the outcome of processing one file.
type FileResult struct {
	Path   string
	Result *pipeline.Result
	Err    error
}

// ProcessFiles reads and processes files concurrently. Results are in input
// order. progress, if not nil, is called as each file finishes, possibly from
// several goroutines at once.
func (d *DocPipe) ProcessFiles(ctx context.Context, paths []string, force bool, progress func(FileResult)) []FileResult {
	results := make([]FileResult, len(paths))
	items := make([]pipeline.Item, 0, len(paths))
	positions := make([]int, 0, len(paths))
	for i, path := range paths {
		results[i].Path = path
		data, err := os.ReadFile(path)
		if err != nil {
			results[i].Err = fmt.Errorf("read %s: %w", path, err)
			if progress != nil {
				progress(results[i])
			}
			continue
		}
		items = append(items, pipeline.Item{
			Data:    data,
			Options: pipeline.ProcessOptions{ForceReprocess: force, Source: path},
		})
		positions = append(positions, i)
	}

	var notify func(pipeline.BatchResult)
	if progress != nil {
		notify = func(br pipeline.BatchResult) {
			progress(FileResult{Path: paths[positions[br.Index]], Result: br.Result, Err: br.Err})
		}
	}
	for _, br := range d.pipeline.ProcessAllNotify(ctx, items, notify) {
		pos := positions[br.Index]
		results[pos].Result = br.Result
		results[pos].Err = br.Err
	}
	return results
}

// Status returns the processing record of a fingerprint.
func (d *DocPipe) Status(ctx context.Context, fp core.Fingerprint) (*core.ProcessingRecord, error) {
	return d.pipeline.Status(ctx, fp)
}

// List returns every processing record.
func (d *DocPipe) List(ctx context.Context) ([]*core.ProcessingRecord, error) {
	return d.pipeline.List(ctx)
}

// Search returns up to limit stored chunks similar to query.
func (d *DocPipe) Search(ctx context.Context, query string, limit int) ([]*core.SearchResult, error) {
	return d.searcher.FindSimilar(ctx, query, limit)
}

// SearchWithMonitor is Search with ranking callbacks delivered to monitor.
func (d *DocPipe) SearchWithMonitor(ctx context.Context, query string, limit int, monitor search.SearchMonitor) ([]*core.SearchResult, error) {
	return d.searcher.FindSimilarWithMonitor(ctx, query, limit, monitor)
}

// InvalidateAll removes every stored chunk and processing record.
func (d *DocPipe) InvalidateAll(ctx context.Context) (int, error) {
	return d.pipeline.InvalidateAll(ctx)
}

// Reembed regenerates the vectors of every stored document with the
// configured embedder. progress may be nil.
func (d *DocPipe) Reembed(ctx context.Context, progress func(reembed.Progress)) (*reembed.Stats, error) {
	return d.reembedder.Run(ctx, progress)
}
