package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/docpipe/core"
	"github.com/poiesic/docpipe/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStateStore(t *testing.T, opts ...Option) storage.StateStore {
	t.Helper()
	store, backend, err := NewMemoryStateStore(opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
		backend.Close()
	})
	return store
}

func TestStateStore_RecordLifecycle(t *testing.T) {
	store := newTestStateStore(t)
	ctx := context.Background()
	fp := core.FingerprintOf([]byte("record lifecycle"))

	err := store.View(ctx, func(tx storage.StateTx) error {
		_, err := tx.GetRecord(fp)
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	now := time.Now().UTC()
	rec := &core.ProcessingRecord{
		Fingerprint: fp,
		Stage:       core.StageUploaded,
		Source:      "report.pdf",
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	require.NoError(t, store.Update(ctx, func(tx storage.StateTx) error {
		return tx.PutRecord(rec)
	}))

	var got *core.ProcessingRecord
	require.NoError(t, store.View(ctx, func(tx storage.StateTx) error {
		var err error
		got, err = tx.GetRecord(fp)
		return err
	}))
	assert.Equal(t, core.StageUploaded, got.Stage)
	assert.Equal(t, "report.pdf", got.Source)
	assert.True(t, now.Equal(got.CreatedAt))

	require.NoError(t, store.Update(ctx, func(tx storage.StateTx) error {
		return tx.DeleteRecord(fp)
	}))
	err = store.View(ctx, func(tx storage.StateTx) error {
		_, err := tx.GetRecord(fp)
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStateStore_UpdateRollsBackOnError(t *testing.T) {
	store := newTestStateStore(t)
	ctx := context.Background()
	fp := core.FingerprintOf([]byte("rollback"))
	boom := errors.New("boom")

	err := store.Update(ctx, func(tx storage.StateTx) error {
		if err := tx.PutRecord(&core.ProcessingRecord{Fingerprint: fp, Stage: core.StageUploaded}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.View(ctx, func(tx storage.StateTx) error {
		_, err := tx.GetRecord(fp)
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStateStore_ConflictingUpdates(t *testing.T) {
	store := newTestStateStore(t)
	ctx := context.Background()
	fp := core.FingerprintOf([]byte("conflict"))

	require.NoError(t, store.Update(ctx, func(tx storage.StateTx) error {
		return tx.PutRecord(&core.ProcessingRecord{Fingerprint: fp, Stage: core.StageUploaded, Version: 1})
	}))

	// The outer transaction reads the record, then an inner transaction
	// commits a change to it before the outer one commits.
	err := store.Update(ctx, func(outer storage.StateTx) error {
		rec, err := outer.GetRecord(fp)
		if err != nil {
			return err
		}
		innerErr := store.Update(ctx, func(inner storage.StateTx) error {
			return inner.PutRecord(&core.ProcessingRecord{Fingerprint: fp, Stage: core.StageExtracted, Version: 2})
		})
		require.NoError(t, innerErr)

		rec.Stage = core.StageExtracted
		rec.Version = 3
		return outer.PutRecord(rec)
	})
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestStateStore_NextVersionMonotonic(t *testing.T) {
	store := newTestStateStore(t)

	var last uint64
	for i := 0; i < 250; i++ {
		v, err := store.NextVersion()
		require.NoError(t, err)
		assert.Greater(t, v, last)
		last = v
	}
}

func TestStateStore_Locks(t *testing.T) {
	store := newTestStateStore(t)
	ctx := context.Background()
	fp := core.FingerprintOf([]byte("locks"))
	now := time.Now().UTC()

	lock := &core.Lock{Fingerprint: fp, Owner: "owner-1", AcquiredAt: now, ExpiresAt: now.Add(30 * time.Second)}
	require.NoError(t, store.Update(ctx, func(tx storage.StateTx) error {
		return tx.PutLock(lock)
	}))

	var got *core.Lock
	require.NoError(t, store.View(ctx, func(tx storage.StateTx) error {
		var err error
		got, err = tx.GetLock(fp)
		return err
	}))
	assert.Equal(t, "owner-1", got.Owner)
	assert.True(t, lock.ExpiresAt.Equal(got.ExpiresAt))

	require.NoError(t, store.Update(ctx, func(tx storage.StateTx) error {
		return tx.DeleteLock(fp)
	}))
	err := store.View(ctx, func(tx storage.StateTx) error {
		_, err := tx.GetLock(fp)
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLockTTL(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		lease time.Duration
		want  time.Duration
	}{
		{"whole seconds", 30 * time.Second, 31*time.Second + lockSlack},
		{"fractional lease rounds up", 1500 * time.Millisecond, 2*time.Second + lockSlack},
		{"negative lease", -time.Second, time.Second + lockSlack},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lock := &core.Lock{AcquiredAt: now, ExpiresAt: now.Add(tt.lease)}
			assert.Equal(t, tt.want, lockTTL(lock))
			assert.Greater(t, lockTTL(lock), tt.lease)
		})
	}
}

func TestStateStore_Artifacts(t *testing.T) {
	store := newTestStateStore(t)
	ctx := context.Background()
	fp := core.FingerprintOf([]byte("artifacts"))
	other := core.FingerprintOf([]byte("other artifacts"))

	docs := []core.Document{
		{Content: "page one", Metadata: core.Metadata{Filename: "a.pdf", PageNo: 1, MimeType: "application/pdf"}},
		{Content: "page two", Metadata: core.Metadata{Filename: "a.pdf", PageNo: 2, MimeType: "application/pdf"}},
	}
	require.NoError(t, store.Update(ctx, func(tx storage.StateTx) error {
		for _, a := range []*core.Artifact{
			{Fingerprint: fp, Stage: core.StageExtracted, Documents: docs},
			{Fingerprint: fp, Stage: core.StageChunked, Documents: docs[:1]},
			{Fingerprint: other, Stage: core.StageExtracted, Documents: docs},
		} {
			if err := tx.PutArtifact(a); err != nil {
				return err
			}
		}
		return nil
	}))

	var got *core.Artifact
	require.NoError(t, store.View(ctx, func(tx storage.StateTx) error {
		var err error
		got, err = tx.GetArtifact(fp, core.StageExtracted)
		return err
	}))
	assert.Equal(t, docs, got.Documents)

	require.NoError(t, store.Update(ctx, func(tx storage.StateTx) error {
		return tx.DeleteArtifacts(fp)
	}))

	err := store.View(ctx, func(tx storage.StateTx) error {
		if _, err := tx.GetArtifact(fp, core.StageExtracted); !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if _, err := tx.GetArtifact(fp, core.StageChunked); !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		_, err := tx.GetArtifact(other, core.StageExtracted)
		return err
	})
	assert.NoError(t, err, "only the artifacts of the invalidated document are removed")
}

func TestStateStore_RejectsInvalidArtifact(t *testing.T) {
	store := newTestStateStore(t)
	fp := core.FingerprintOf([]byte("bad artifact"))

	err := store.Update(context.Background(), func(tx storage.StateTx) error {
		return tx.PutArtifact(&core.Artifact{Fingerprint: fp, Stage: core.StageStored, Documents: []core.Document{{Content: "x"}}})
	})
	assert.ErrorIs(t, err, core.ErrInvalidArtifact)
}

func TestStateStore_ArtifactTTLExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a badger TTL to lapse")
	}
	store := newTestStateStore(t, WithArtifactTTL(time.Second))
	ctx := context.Background()
	fp := core.FingerprintOf([]byte("expiring"))

	require.NoError(t, store.Update(ctx, func(tx storage.StateTx) error {
		return tx.PutArtifact(&core.Artifact{Fingerprint: fp, Stage: core.StageExtracted, Documents: []core.Document{{Content: "x"}}})
	}))

	time.Sleep(2100 * time.Millisecond)

	err := store.View(ctx, func(tx storage.StateTx) error {
		_, err := tx.GetArtifact(fp, core.StageExtracted)
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStateStore_Fingerprints(t *testing.T) {
	store := newTestStateStore(t)
	ctx := context.Background()
	fps := []core.Fingerprint{
		core.FingerprintOf([]byte("one")),
		core.FingerprintOf([]byte("two")),
		core.FingerprintOf([]byte("three")),
	}

	require.NoError(t, store.Update(ctx, func(tx storage.StateTx) error {
		for _, fp := range fps {
			if err := tx.PutRecord(&core.ProcessingRecord{Fingerprint: fp, Stage: core.StageUploaded}); err != nil {
				return err
			}
			// Locks and artifacts must not show up as records
			if err := tx.PutLock(&core.Lock{Fingerprint: fp, Owner: "o"}); err != nil {
				return err
			}
		}
		return nil
	}))

	var got []core.Fingerprint
	require.NoError(t, store.View(ctx, func(tx storage.StateTx) error {
		var err error
		got, err = tx.Fingerprints()
		return err
	}))
	assert.ElementsMatch(t, fps, got)
}

func TestStateStore_CancelledContext(t *testing.T) {
	store := newTestStateStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.View(ctx, func(tx storage.StateTx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewStateStore_NegativeTTL(t *testing.T) {
	backend, err := OpenMemoryBackend()
	require.NoError(t, err)
	defer backend.Close()

	_, err = NewStateStore(backend, WithArtifactTTL(-time.Second))
	assert.Error(t, err)
	_, err = NewStateStore(backend, WithRecordTTL(-time.Second))
	assert.Error(t, err)
}
