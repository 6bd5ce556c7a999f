package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docpipe/core"
	"github.com/poiesic/docpipe/stages"
	"github.com/poiesic/docpipe/state"
	"github.com/poiesic/docpipe/storage"
)

const (
	// DefaultLease is how long a run may hold a document between stage transitions.
	DefaultLease = 10 * time.Minute

	// DefaultStageTimeout bounds a single stage executor call.
	DefaultStageTimeout = 5 * time.Minute

	maxLockWaitDelay = 5 * time.Second

	// abandonGrace is how long a cancelled executor gets to return.
	abandonGrace = 100 * time.Millisecond
)

// Pipeline orchestrates resumable processing of documents.
// It is safe for concurrent use.
type Pipeline struct {
	manager   *state.Manager
	extractor stages.Extractor
	chunker   stages.Chunker
	store     stages.DocumentStore
	archive   storage.Archive
	pool      *ants.Pool

	lease            time.Duration
	stageTimeout     time.Duration
	lockWaitAttempts int
	lockWaitDelay    time.Duration
	isPermanent      func(error) bool
	logger           *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size used by ProcessAll.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLease sets the lease taken on a document for a run.
// The lease must outlast the stage timeout.
func WithLease(lease time.Duration) Option {
	return func(p *Pipeline) error {
		if lease <= 0 {
			return state.ErrInvalidLease
		}
		p.lease = lease
		return nil
	}
}

// WithStageTimeout bounds each stage executor call. Zero disables the bound.
func WithStageTimeout(timeout time.Duration) Option {
	return func(p *Pipeline) error {
		if timeout < 0 {
			return fmt.Errorf("%w: negative stage timeout", ErrInvalidTimeouts)
		}
		p.stageTimeout = timeout
		return nil
	}
}

// WithLockWait makes Process poll a locked document with exponential
// backoff, up to attempts tries starting at delay, before reporting
// InProgress. By default Process does not wait.
func WithLockWait(attempts int, delay time.Duration) Option {
	return func(p *Pipeline) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		p.lockWaitAttempts = attempts
		p.lockWaitDelay = delay
		return nil
	}
}

// WithArchive keeps a copy of the raw bytes of every processed document.
func WithArchive(archive storage.Archive) Option {
	return func(p *Pipeline) error {
		p.archive = archive
		return nil
	}
}

// WithPermanentClassifier decides which stage errors are permanent.
// Default treats errors wrapping core.ErrPermanentInput as permanent.
func WithPermanentClassifier(classify func(error) bool) Option {
	return func(p *Pipeline) error {
		if classify == nil {
			return errors.New("classifier cannot be nil")
		}
		p.isPermanent = classify
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// DefaultPermanentClassifier reports whether err wraps core.ErrPermanentInput.
func DefaultPermanentClassifier(err error) bool {
	return errors.Is(err, core.ErrPermanentInput)
}

// NewPipeline creates a pipeline over the given state manager and stage executors.
func NewPipeline(
	manager *state.Manager,
	extractor stages.Extractor,
	chunker stages.Chunker,
	store stages.DocumentStore,
	opts ...Option,
) (*Pipeline, error) {
	if manager == nil {
		return nil, ErrStateManagerRequired
	}
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if chunker == nil {
		return nil, ErrChunkerRequired
	}
	if store == nil {
		return nil, ErrDocumentStoreRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		manager:      manager,
		extractor:    extractor,
		chunker:      chunker,
		store:        store,
		pool:         pool,
		lease:        DefaultLease,
		stageTimeout: DefaultStageTimeout,
		isPermanent:  DefaultPermanentClassifier,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	if p.stageTimeout > 0 && p.stageTimeout >= p.lease {
		p.Release()
		return nil, fmt.Errorf("%w: lease %s, stage timeout %s", ErrInvalidTimeouts, p.lease, p.stageTimeout)
	}
	p.logger = p.logger.With("component", "pipeline")
	return p, nil
}

// ProcessOptions holds optional parameters for Process.
type ProcessOptions struct {
	// ForceReprocess discards previous results and runs every stage again.
	// It does not override a permanent failure.
	ForceReprocess bool

	// Source names the document, e.g. its filename. It is recorded on
	// first observation and passed to the extractor.
	Source string
}

// Process runs data through whatever stages it has not yet completed.
func (p *Pipeline) Process(ctx context.Context, data []byte, opts ProcessOptions) (*Result, error) {
	fp := core.FingerprintOf(data)
	logger := p.logger.With("fingerprint", fp.Short())

	token, err := p.acquire(ctx, fp)
	if errors.Is(err, state.ErrAlreadyLocked) {
		logger.Debug("document is being processed by another caller")
		return &Result{Outcome: OutcomeInProgress, Fingerprint: fp}, nil
	}
	if err != nil {
		return nil, err
	}
	hold := &leaseHold{}
	defer p.releaseAfter(context.WithoutCancel(ctx), token, hold, logger)

	if opts.ForceReprocess {
		if res, err := p.reset(ctx, fp); res != nil || err != nil {
			return res, err
		}
	}

	rec, err := p.manager.GetRecord(ctx, fp)
	if errors.Is(err, storage.ErrNotFound) {
		rec, err = p.manager.Initialize(ctx, token, fp, opts.Source)
	}
	if err != nil {
		return p.interrupted(fp, err)
	}

	switch rec.Stage {
	case core.StageStored:
		logger.Debug("document already stored")
		return &Result{Outcome: OutcomeCachedSuccess, Fingerprint: fp, ChunkCount: rec.ChunkCount, Record: rec}, nil
	case core.StageFailed:
		if rec.PermanentlyFailed() {
			logger.Debug("document failed permanently, not retrying")
			return &Result{Outcome: OutcomePermanentFailure, Fingerprint: fp, Record: rec, Err: rec.Failure.AsStageError()}, nil
		}
		if rec, err = p.manager.Retry(ctx, token, fp); err != nil {
			return p.interrupted(fp, err)
		}
	}

	p.archiveRaw(ctx, fp, data)
	logger.Info("processing document", "stage", rec.Stage.String(), "source", opts.Source)
	return p.run(ctx, token, hold, rec, data, opts.Source)
}

// leaseHold records an executor that was still running when its stage was
// given up on. The lease stays held until that executor returns.
type leaseHold struct {
	abandoned <-chan struct{}
}

// releaseAfter releases the lease now, or once an abandoned executor
// returns, so the same stage never runs twice at once for a document.
func (p *Pipeline) releaseAfter(ctx context.Context, token *core.LockToken, hold *leaseHold, logger *slog.Logger) {
	release := func() {
		if err := p.manager.Release(ctx, token); err != nil {
			logger.Warn("error releasing lease", "err", err)
		}
	}
	if hold.abandoned == nil {
		release()
		return
	}
	logger.Warn("holding lease until abandoned stage executor returns")
	go func() {
		<-hold.abandoned
		release()
	}()
}

// acquire takes the lease on fp, polling while it is held elsewhere if
// lock waiting is configured.
func (p *Pipeline) acquire(ctx context.Context, fp core.Fingerprint) (*core.LockToken, error) {
	if p.lockWaitAttempts == 0 {
		return p.manager.AcquireLock(ctx, fp, p.lease)
	}

	var token *core.LockToken
	schedule := Backoff{Attempts: p.lockWaitAttempts, Delay: p.lockWaitDelay, MaxDelay: maxLockWaitDelay}
	err := RetryWithBackoff(ctx, schedule, isLocked, func() error {
		var err error
		token, err = p.manager.AcquireLock(ctx, fp, p.lease)
		return err
	})
	return token, err
}

func isLocked(err error) bool {
	return errors.Is(err, state.ErrAlreadyLocked)
}

// reset discards previous results for a forced run. It returns a result
// only when the run must stop, which is for permanent failures.
func (p *Pipeline) reset(ctx context.Context, fp core.Fingerprint) (*Result, error) {
	rec, err := p.manager.GetRecord(ctx, fp)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, err
	case rec.PermanentlyFailed():
		p.logger.Info("force reprocess ignored for permanently failed document", "fingerprint", fp.Short())
		return &Result{Outcome: OutcomePermanentFailure, Fingerprint: fp, Record: rec, Err: rec.Failure.AsStageError()}, nil
	}

	if err := p.manager.Invalidate(ctx, fp); err != nil {
		return nil, err
	}
	n, err := p.store.DeleteByFingerprint(ctx, fp)
	if err != nil {
		return nil, err
	}
	p.logger.Info("forcing reprocess", "fingerprint", fp.Short(), "deleted_chunks", n)
	return nil, nil
}

// run walks the stages after rec.Stage until the document is stored.
func (p *Pipeline) run(ctx context.Context, token *core.LockToken, hold *leaseHold, rec *core.ProcessingRecord, data []byte, source string) (*Result, error) {
	fp := rec.Fingerprint
	for rec.Stage != core.StageStored {
		next, res, err := p.step(ctx, token, hold, rec, data, source)
		if err != nil {
			return p.interrupted(fp, err)
		}
		if res != nil {
			return res, nil
		}
		rec = next
	}

	p.logger.Info("document stored", "fingerprint", fp.Short(), "chunks", rec.ChunkCount, "version", rec.Version)
	return &Result{Outcome: OutcomeSuccess, Fingerprint: fp, ChunkCount: rec.ChunkCount, Record: rec}, nil
}

// step runs the stage after rec.Stage and persists its output. It returns
// the advanced record, or a result when the run has to stop.
func (p *Pipeline) step(ctx context.Context, token *core.LockToken, hold *leaseHold, rec *core.ProcessingRecord, data []byte, source string) (*core.ProcessingRecord, *Result, error) {
	fp := rec.Fingerprint

	if rec.Stage == core.StageUploaded {
		docs, err := runStage(ctx, p.stageTimeout, hold, func(ctx context.Context) ([]core.Document, error) {
			return p.extractor.Extract(ctx, data, source)
		})
		if err == nil && len(docs) == 0 {
			err = core.Permanent(ErrEmptyStageOutput)
		}
		if err != nil {
			res, err := p.fail(ctx, token, fp, core.StageExtracted, err)
			return nil, res, err
		}
		next, err := p.manager.Advance(ctx, token, fp, core.StageUploaded, core.StageExtracted,
			&core.Artifact{Documents: docs})
		return next, nil, err
	}

	if rec.Stage != core.StageExtracted && rec.Stage != core.StageChunked {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnexpectedStage, rec.Stage)
	}

	artifact, err := p.manager.LoadArtifact(ctx, rec)
	if errors.Is(err, storage.ErrNotFound) {
		p.logger.Info("cached artifact expired, restarting from upload",
			"fingerprint", fp.Short(), "stage", rec.Stage.String())
		next, err := p.manager.Rewind(ctx, token, fp)
		return next, nil, err
	}
	if err != nil {
		return nil, nil, err
	}

	if rec.Stage == core.StageExtracted {
		chunks, err := runStage(ctx, p.stageTimeout, hold, func(ctx context.Context) ([]core.Document, error) {
			return p.chunker.Chunk(ctx, artifact.Documents)
		})
		if err == nil && len(chunks) == 0 {
			err = core.Permanent(ErrEmptyStageOutput)
		}
		if err != nil {
			res, err := p.fail(ctx, token, fp, core.StageChunked, err)
			return nil, res, err
		}
		next, err := p.manager.Advance(ctx, token, fp, core.StageExtracted, core.StageChunked,
			&core.Artifact{Documents: chunks})
		return next, nil, err
	}

	stored, err := runStage(ctx, p.stageTimeout, hold, func(ctx context.Context) (int, error) {
		return p.store.StoreWithEmbeddings(ctx, fp, artifact.Documents)
	})
	if err != nil {
		res, err := p.fail(ctx, token, fp, core.StageStored, err)
		return nil, res, err
	}
	next, err := p.manager.Advance(ctx, token, fp, core.StageChunked, core.StageStored, nil,
		state.WithChunkCount(stored))
	return next, nil, err
}

// fail records a stage failure and reports it. Caller cancellation is not
// a failure of the document and is returned as an error instead.
func (p *Pipeline) fail(ctx context.Context, token *core.LockToken, fp core.Fingerprint, stage core.Stage, err error) (*Result, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		p.logger.Info("processing cancelled", "fingerprint", fp.Short(), "stage", stage.String())
		return nil, ctxErr
	}

	kind := failureKinds[stage]
	if errors.Is(err, core.ErrStageTimeout) {
		kind = core.FailureTimeout
	}
	stageErr := core.NewStageError(stage, kind, err)
	stageErr.Permanent = p.isPermanent(err)

	rec, markErr := p.manager.MarkFailed(ctx, token, fp, stageErr.Failure())
	if markErr != nil {
		return p.interrupted(fp, markErr)
	}

	outcome := OutcomeFailure
	if stageErr.Permanent {
		outcome = OutcomePermanentFailure
	}
	return &Result{Outcome: outcome, Fingerprint: fp, Record: rec, Err: stageErr}, nil
}

var failureKinds = map[core.Stage]core.FailureKind{
	core.StageExtracted: core.FailureExtraction,
	core.StageChunked:   core.FailureChunking,
	core.StageStored:    core.FailureStorage,
}

// interrupted converts losing the lease mid-run into InProgress; another
// caller owns the document now. Other errors are returned unchanged.
func (p *Pipeline) interrupted(fp core.Fingerprint, err error) (*Result, error) {
	if errors.Is(err, state.ErrLockExpired) || errors.Is(err, state.ErrStaleTransition) {
		p.logger.Warn("lost lease during processing", "fingerprint", fp.Short(), "err", err)
		return &Result{Outcome: OutcomeInProgress, Fingerprint: fp}, nil
	}
	return nil, err
}

// runStage calls fn bounded by timeout. A zero timeout runs fn unbounded.
// An executor still running abandonGrace after its context ends is
// abandoned and recorded in hold.
func runStage[T any](ctx context.Context, timeout time.Duration, hold *leaseHold, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return callStage(ctx, fn)
	}

	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	returned := make(chan struct{})
	go func() {
		defer close(returned)
		val, err := callStage(stageCtx, fn)
		done <- outcome{val, err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-stageCtx.Done():
		grace := time.NewTimer(abandonGrace)
		defer grace.Stop()
		select {
		case out = <-done:
		case <-grace.C:
			hold.abandoned = returned
			out.err = stageCtx.Err()
		}
	}

	if out.err != nil && ctx.Err() == nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		var zero T
		return zero, fmt.Errorf("%w after %s: %w", core.ErrStageTimeout, timeout, out.err)
	}
	return out.val, out.err
}

// callStage runs fn, turning a panic into an error.
func callStage[T any](ctx context.Context, fn func(context.Context) (T, error)) (val T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrStagePanic, r)
		}
	}()
	return fn(ctx)
}

// archiveRaw stores the raw bytes in the archive, if one is configured.
// Archive failures do not affect processing.
func (p *Pipeline) archiveRaw(ctx context.Context, fp core.Fingerprint, data []byte) {
	if p.archive == nil {
		return
	}
	exists, err := p.archive.Exists(ctx, fp)
	if err != nil {
		p.logger.Warn("error checking raw document archive", "fingerprint", fp.Short(), "err", err)
	}
	if exists {
		return
	}
	err = p.archive.Put(ctx, fp, bytes.NewReader(data), int64(len(data)), http.DetectContentType(data))
	if err != nil {
		p.logger.Warn("error archiving raw document", "fingerprint", fp.Short(), "err", err)
	}
}

// Status returns the processing record for fp, or storage.ErrNotFound if
// the document has never been processed.
func (p *Pipeline) Status(ctx context.Context, fp core.Fingerprint) (*core.ProcessingRecord, error) {
	return p.manager.GetRecord(ctx, fp)
}

// List returns every processing record, oldest first.
func (p *Pipeline) List(ctx context.Context) ([]*core.ProcessingRecord, error) {
	return p.manager.List(ctx)
}

// InvalidateAll deletes every stored chunk and every processing record.
// It returns the number of records removed.
func (p *Pipeline) InvalidateAll(ctx context.Context) (int, error) {
	chunks, err := p.store.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	records, err := p.manager.InvalidateAll(ctx)
	if err != nil {
		return records, err
	}
	p.logger.Info("all documents deleted", "records", records, "chunks", chunks)
	return records, nil
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
