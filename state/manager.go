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

package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/docpipe/core"
	"github.com/poiesic/docpipe/storage"
)

const (
	// invalidateBatchSize bounds the number of documents deleted per transaction.
	invalidateBatchSize = 100

	releaseAttempts = 3
)

// Manager mediates all reads and writes of processing state.
// It is safe for concurrent use.
type Manager struct {
	store  storage.StateStore
	clock  func() time.Time
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager) error

// WithClock sets the time source used for leases and timestamps.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) error {
		if clock == nil {
			return errors.New("clock cannot be nil")
		}
		m.clock = clock
		return nil
	}
}

// WithLogger sets the logger. If nil, uses slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
		return nil
	}
}

// NewManager creates a Manager backed by store.
func NewManager(store storage.StateStore, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("state store cannot be nil")
	}
	m := &Manager{
		store:  store,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	m.logger = m.logger.With("component", "state_manager")
	return m, nil
}

func (m *Manager) now() time.Time {
	return m.clock().UTC()
}

// GetRecord returns the record for fp, or storage.ErrNotFound if the
// document has never been seen.
func (m *Manager) GetRecord(ctx context.Context, fp core.Fingerprint) (*core.ProcessingRecord, error) {
	var rec *core.ProcessingRecord
	err := m.store.View(ctx, func(tx storage.StateTx) error {
		var err error
		rec, err = tx.GetRecord(fp)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// AcquireLock takes a lease on fp. It fails with ErrAlreadyLocked while
// another owner holds an unexpired lease, including when a concurrent
// acquisition commits first.
func (m *Manager) AcquireLock(ctx context.Context, fp core.Fingerprint, lease time.Duration) (*core.LockToken, error) {
	if lease <= 0 {
		return nil, ErrInvalidLease
	}
	token := &core.LockToken{Fingerprint: fp, Owner: uuid.NewString(), Lease: lease}
	now := m.now()

	err := m.store.Update(ctx, func(tx storage.StateTx) error {
		existing, err := tx.GetLock(fp)
		switch {
		case err == nil:
			if !existing.Expired(now) {
				return ErrAlreadyLocked
			}
			m.logger.Info("taking over expired lease",
				"fingerprint", fp.Short(),
				"previous_owner", existing.Owner,
				"expired_at", existing.ExpiresAt)
		case !errors.Is(err, storage.ErrNotFound):
			return err
		}
		return tx.PutLock(&core.Lock{
			Fingerprint: fp,
			Owner:       token.Owner,
			AcquiredAt:  now,
			ExpiresAt:   now.Add(lease),
		})
	})
	if errors.Is(err, storage.ErrConflict) {
		return nil, ErrAlreadyLocked
	}
	if err != nil {
		return nil, err
	}
	m.logger.Debug("lock acquired", "fingerprint", fp.Short(), "owner", token.Owner)
	return token, nil
}

// checkLock verifies that token still holds an unexpired lease on fp.
func (m *Manager) checkLock(tx storage.StateTx, token *core.LockToken, fp core.Fingerprint, now time.Time) (*core.Lock, error) {
	if token == nil || token.Fingerprint != fp {
		return nil, fmt.Errorf("%w: token does not cover %s", ErrLockExpired, fp.Short())
	}
	lock, err := tx.GetLock(fp)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrLockExpired
	}
	if err != nil {
		return nil, err
	}
	if !lock.HeldBy(token.Owner, now) {
		return nil, ErrLockExpired
	}
	return lock, nil
}

// renew extends the lease by the token's lease duration from now.
func renew(tx storage.StateTx, lock *core.Lock, token *core.LockToken, now time.Time) error {
	lock.ExpiresAt = now.Add(token.Lease)
	return tx.PutLock(lock)
}

// mutate runs fn against the current record under a valid lease and writes
// the result with a fresh version. A lost optimistic race is reported as
// ErrStaleTransition.
func (m *Manager) mutate(ctx context.Context, token *core.LockToken, fp core.Fingerprint,
	fn func(tx storage.StateTx, rec *core.ProcessingRecord, lock *core.Lock, now time.Time) error) (*core.ProcessingRecord, error) {
	var out *core.ProcessingRecord
	err := m.store.Update(ctx, func(tx storage.StateTx) error {
		now := m.now()
		lock, err := m.checkLock(tx, token, fp, now)
		if err != nil {
			return err
		}
		rec, err := tx.GetRecord(fp)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: record for %s no longer exists", ErrStaleTransition, fp.Short())
		}
		if err != nil {
			return err
		}
		if err := fn(tx, rec, lock, now); err != nil {
			return err
		}
		version, err := m.store.NextVersion()
		if err != nil {
			return err
		}
		rec.Version = version
		rec.UpdatedAt = now
		if err := core.ValidateRecord(rec); err != nil {
			return err
		}
		if err := tx.PutRecord(rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if errors.Is(err, storage.ErrConflict) {
		return nil, fmt.Errorf("%w: %w", ErrStaleTransition, err)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Hold confirms that token still owns fp, renews the lease and returns the
// current record. It fails with ErrLockExpired once the lease is lost.
func (m *Manager) Hold(ctx context.Context, token *core.LockToken, fp core.Fingerprint) (*core.ProcessingRecord, error) {
	var out *core.ProcessingRecord
	err := m.store.Update(ctx, func(tx storage.StateTx) error {
		now := m.now()
		lock, err := m.checkLock(tx, token, fp, now)
		if err != nil {
			return err
		}
		if out, err = tx.GetRecord(fp); err != nil {
			return err
		}
		return renew(tx, lock, token, now)
	})
	if errors.Is(err, storage.ErrConflict) {
		return nil, fmt.Errorf("%w: %w", ErrStaleTransition, err)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Initialize creates the UPLOADED record for fp on first observation.
// If a record already exists it is returned unchanged.
func (m *Manager) Initialize(ctx context.Context, token *core.LockToken, fp core.Fingerprint, source string) (*core.ProcessingRecord, error) {
	var out *core.ProcessingRecord
	err := m.store.Update(ctx, func(tx storage.StateTx) error {
		now := m.now()
		if _, err := m.checkLock(tx, token, fp, now); err != nil {
			return err
		}
		existing, err := tx.GetRecord(fp)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		version, err := m.store.NextVersion()
		if err != nil {
			return err
		}
		rec := &core.ProcessingRecord{
			Fingerprint: fp,
			Stage:       core.StageUploaded,
			ResumeStage: core.StageUploaded,
			Source:      source,
			CreatedAt:   now,
			UpdatedAt:   now,
			Version:     version,
		}
		if err := tx.PutRecord(rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if errors.Is(err, storage.ErrConflict) {
		return nil, fmt.Errorf("%w: %w", ErrStaleTransition, err)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AdvanceOption adjusts the record written by Advance.
type AdvanceOption func(rec *core.ProcessingRecord)

// WithChunkCount records the number of stored chunks.
func WithChunkCount(n int) AdvanceOption {
	return func(rec *core.ProcessingRecord) {
		rec.ChunkCount = n
	}
}

// Advance moves fp from one stage to the next in a single transaction.
//
// The lease must still be held by token, the record must currently be at
// from, and from -> to must be a forward step. An artifact is required for
// EXTRACTED and CHUNKED and rejected otherwise. Artifacts of earlier stages
// are cleared and the lease is renewed.
func (m *Manager) Advance(ctx context.Context, token *core.LockToken, fp core.Fingerprint,
	from, to core.Stage, artifact *core.Artifact, opts ...AdvanceOption) (*core.ProcessingRecord, error) {
	if to == core.StageFailed || !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if to.Cacheable() && (artifact == nil || len(artifact.Documents) == 0) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactRequired, to)
	}
	if !to.Cacheable() && artifact != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedArtifact, to)
	}

	rec, err := m.mutate(ctx, token, fp, func(tx storage.StateTx, rec *core.ProcessingRecord, lock *core.Lock, now time.Time) error {
		if rec.Stage != from {
			return fmt.Errorf("%w: expected %s, found %s", ErrStaleTransition, from, rec.Stage)
		}
		if err := tx.DeleteArtifacts(fp); err != nil {
			return err
		}
		rec.ArtifactRef = ""
		if artifact != nil {
			artifact.Fingerprint = fp
			artifact.Stage = to
			if artifact.CreatedAt.IsZero() {
				artifact.CreatedAt = now
			}
			if err := tx.PutArtifact(artifact); err != nil {
				return err
			}
			rec.ArtifactRef = artifact.Ref()
		}
		rec.Stage = to
		rec.ResumeStage = to
		rec.Failure = core.Failure{}
		for _, opt := range opts {
			opt(rec)
		}
		return renew(tx, lock, token, now)
	})
	if err != nil {
		return nil, err
	}
	m.logger.Debug("stage advanced",
		"fingerprint", fp.Short(),
		"from", from.String(),
		"to", to.String(),
		"version", rec.Version)
	return rec, nil
}

// MarkFailed moves fp to FAILED with failure attached. The last completed
// stage and its artifact are kept so a later Retry can resume. Marking an
// already failed record replaces its failure.
func (m *Manager) MarkFailed(ctx context.Context, token *core.LockToken, fp core.Fingerprint, failure core.Failure) (*core.ProcessingRecord, error) {
	rec, err := m.mutate(ctx, token, fp, func(tx storage.StateTx, rec *core.ProcessingRecord, lock *core.Lock, now time.Time) error {
		if rec.Stage == core.StageStored {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Stage, core.StageFailed)
		}
		if rec.Stage != core.StageFailed {
			rec.ResumeStage = rec.Stage
			if failure.Stage == 0 {
				failure.Stage = rec.Stage.Next()
			}
		} else if failure.Stage == 0 {
			failure.Stage = rec.Failure.Stage
		}
		if failure.Message == "" {
			failure.Message = string(failure.Kind)
		}
		rec.Stage = core.StageFailed
		rec.Failure = failure
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Warn("document failed",
		"fingerprint", fp.Short(),
		"stage", failure.Stage.String(),
		"kind", string(failure.Kind),
		"permanent", failure.Permanent,
		"err", failure.Message)
	return rec, nil
}

// Retry moves a transiently FAILED record back to the last completed stage.
// If the artifact of that stage has expired it restarts from UPLOADED.
func (m *Manager) Retry(ctx context.Context, token *core.LockToken, fp core.Fingerprint) (*core.ProcessingRecord, error) {
	rec, err := m.mutate(ctx, token, fp, func(tx storage.StateTx, rec *core.ProcessingRecord, lock *core.Lock, now time.Time) error {
		if rec.Stage != core.StageFailed {
			return fmt.Errorf("%w: cannot retry %s record", ErrInvalidTransition, rec.Stage)
		}
		if rec.Failure.Permanent {
			return fmt.Errorf("%w: %s", ErrPermanentFailure, rec.Failure.Message)
		}

		target := rec.ResumeStage
		if !target.Valid() || target.Terminal() {
			target = core.StageUploaded
		}
		rec.ArtifactRef = ""
		if target.Cacheable() {
			if _, err := tx.GetArtifact(fp, target); err == nil {
				rec.ArtifactRef = core.ArtifactRefFor(fp, target)
			} else if errors.Is(err, storage.ErrNotFound) {
				m.logger.Info("cached artifact expired, restarting from upload",
					"fingerprint", fp.Short(), "stage", target.String())
				target = core.StageUploaded
			} else {
				return err
			}
		}

		rec.Stage = target
		rec.ResumeStage = target
		rec.Failure = core.Failure{}
		return renew(tx, lock, token, now)
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("retrying document", "fingerprint", fp.Short(), "resume_stage", rec.Stage.String())
	return rec, nil
}

// Rewind resets a non-terminal record whose cached artifact is gone back to UPLOADED.
func (m *Manager) Rewind(ctx context.Context, token *core.LockToken, fp core.Fingerprint) (*core.ProcessingRecord, error) {
	return m.mutate(ctx, token, fp, func(tx storage.StateTx, rec *core.ProcessingRecord, lock *core.Lock, now time.Time) error {
		if rec.Stage.Terminal() {
			return fmt.Errorf("%w: cannot rewind %s record", ErrInvalidTransition, rec.Stage)
		}
		if err := tx.DeleteArtifacts(fp); err != nil {
			return err
		}
		rec.Stage = core.StageUploaded
		rec.ResumeStage = core.StageUploaded
		rec.ArtifactRef = ""
		return renew(tx, lock, token, now)
	})
}

// LoadArtifact returns the cached artifact referenced by rec, or
// storage.ErrNotFound if it has expired.
func (m *Manager) LoadArtifact(ctx context.Context, rec *core.ProcessingRecord) (*core.Artifact, error) {
	if rec == nil || rec.ArtifactRef == "" {
		return nil, storage.ErrNotFound
	}
	stage := rec.Stage
	if !stage.Cacheable() {
		stage = rec.ResumeStage
	}
	var artifact *core.Artifact
	err := m.store.View(ctx, func(tx storage.StateTx) error {
		var err error
		artifact, err = tx.GetArtifact(rec.Fingerprint, stage)
		return err
	})
	if err != nil {
		return nil, err
	}
	return artifact, nil
}

// Release drops the lease if token still owns it. Releasing twice, or
// after another owner took over, is a no-op.
func (m *Manager) Release(ctx context.Context, token *core.LockToken) error {
	if token == nil {
		return nil
	}
	var err error
	for range releaseAttempts {
		err = m.store.Update(ctx, func(tx storage.StateTx) error {
			lock, err := tx.GetLock(token.Fingerprint)
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if lock.Owner != token.Owner {
				return nil
			}
			return tx.DeleteLock(token.Fingerprint)
		})
		if !errors.Is(err, storage.ErrConflict) {
			break
		}
	}
	if err != nil {
		return err
	}
	m.logger.Debug("lock released", "fingerprint", token.Fingerprint.Short(), "owner", token.Owner)
	return nil
}

// Invalidate deletes the record and cached artifacts of fp. The lock, if
// any, is left for its owner to release.
func (m *Manager) Invalidate(ctx context.Context, fp core.Fingerprint) error {
	err := m.store.Update(ctx, func(tx storage.StateTx) error {
		if err := tx.DeleteArtifacts(fp); err != nil {
			return err
		}
		return tx.DeleteRecord(fp)
	})
	if err != nil {
		return err
	}
	m.logger.Info("document invalidated", "fingerprint", fp.Short())
	return nil
}

// InvalidateAll deletes every record and cached artifact and returns the
// number of records removed.
func (m *Manager) InvalidateAll(ctx context.Context) (int, error) {
	var fps []core.Fingerprint
	err := m.store.View(ctx, func(tx storage.StateTx) error {
		var err error
		fps, err = tx.Fingerprints()
		return err
	})
	if err != nil {
		return 0, err
	}

	deleted := 0
	for batch := range slices.Chunk(fps, invalidateBatchSize) {
		err := m.store.Update(ctx, func(tx storage.StateTx) error {
			for _, fp := range batch {
				if err := tx.DeleteArtifacts(fp); err != nil {
					return err
				}
				if err := tx.DeleteRecord(fp); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return deleted, err
		}
		deleted += len(batch)
	}
	m.logger.Info("all documents invalidated", "count", deleted)
	return deleted, nil
}

// List returns every record, oldest first.
func (m *Manager) List(ctx context.Context) ([]*core.ProcessingRecord, error) {
	var records []*core.ProcessingRecord
	err := m.store.View(ctx, func(tx storage.StateTx) error {
		fps, err := tx.Fingerprints()
		if err != nil {
			return err
		}
		for _, fp := range fps {
			rec, err := tx.GetRecord(fp)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(records, func(a, b *core.ProcessingRecord) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return records, nil
}
