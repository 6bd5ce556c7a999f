package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docpipe/core"
	"github.com/poiesic/docpipe/storage"
)

const (
	// DefaultArtifactTTL bounds how long cached stage outputs are kept.
	DefaultArtifactTTL = 7 * 24 * time.Hour

	// lockSlack keeps a lock key alive past its lease so an expired lease
	// is observed through ExpiresAt rather than a missing key.
	lockSlack = time.Minute
)

// StateStore implements storage.StateStore for BadgerDB.
type StateStore struct {
	backend     *Backend
	versionSeq  *badger.Sequence
	recordTTL   time.Duration
	artifactTTL time.Duration
	logger      *slog.Logger
}

var _ storage.StateStore = (*StateStore)(nil)

// Option configures a StateStore.
type Option func(*StateStore) error

// WithRecordTTL sets the TTL of processing records. Zero means records never expire.
func WithRecordTTL(ttl time.Duration) Option {
	return func(s *StateStore) error {
		if ttl < 0 {
			return errors.New("record TTL cannot be negative")
		}
		s.recordTTL = ttl
		return nil
	}
}

// WithArtifactTTL sets the TTL of cached stage artifacts. Zero means artifacts never expire.
func WithArtifactTTL(ttl time.Duration) Option {
	return func(s *StateStore) error {
		if ttl < 0 {
			return errors.New("artifact TTL cannot be negative")
		}
		s.artifactTTL = ttl
		return nil
	}
}

// WithLogger sets the logger. If nil, uses slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *StateStore) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewStateStore creates a StateStore on top of backend.
func NewStateStore(backend *Backend, opts ...Option) (storage.StateStore, error) {
	return newStateStore(backend, opts...)
}

func newStateStore(backend *Backend, opts ...Option) (*StateStore, error) {
	s := &StateStore{
		backend:     backend,
		artifactTTL: DefaultArtifactTTL,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "state_store")

	seq, err := backend.GetSequence(versionSequence)
	if err != nil {
		return nil, err
	}
	s.versionSeq = seq
	return s, nil
}

// Close releases the version sequence.
func (s *StateStore) Close() error {
	return s.versionSeq.Release()
}

// NextVersion returns the next value of the store-wide version sequence.
func (s *StateStore) NextVersion() (uint64, error) {
	next, err := s.versionSeq.Next()
	if err != nil {
		return 0, storeError(err)
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if next == 0 {
		next, err = s.versionSeq.Next()
		if err != nil {
			return 0, storeError(err)
		}
	}
	return next, nil
}

// View runs fn in a read-only transaction.
func (s *StateStore) View(ctx context.Context, fn func(tx storage.StateTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		return fn(&stateTx{tx: tx, store: s})
	}, false)
}

// Update runs fn in a read-write transaction and commits it if fn succeeds.
func (s *StateStore) Update(ctx context.Context, fn func(tx storage.StateTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.backend.WithTx(func(tx *badger.Txn) error {
		if err := fn(&stateTx{tx: tx, store: s}); err != nil {
			return err
		}
		return storeError(tx.Commit())
	}, true)
}

// stateTx implements storage.StateTx on a BadgerDB transaction.
type stateTx struct {
	tx    *badger.Txn
	store *StateStore
}

var _ storage.StateTx = (*stateTx)(nil)

func (t *stateTx) set(key, value []byte, ttl time.Duration) error {
	entry := badger.NewEntry(key, value)
	if ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	return storeError(t.tx.SetEntry(entry))
}

func (t *stateTx) get(key []byte, decode func(val []byte) error) error {
	item, err := t.tx.Get(key)
	if err != nil {
		return storeError(err)
	}
	if err := item.Value(decode); err != nil {
		if errors.Is(err, storage.ErrSerializationFailed) {
			return err
		}
		return storeError(err)
	}
	return nil
}

func (t *stateTx) delete(key []byte) error {
	return storeError(t.tx.Delete(key))
}

// GetRecord reads the processing record for fp.
func (t *stateTx) GetRecord(fp core.Fingerprint) (*core.ProcessingRecord, error) {
	var rec *core.ProcessingRecord
	err := t.get(makeRecordKey(fp), func(val []byte) error {
		var err error
		rec, err = storage.UnmarshalRecord(val)
		return err
	})
	return rec, err
}

// PutRecord writes rec with the record TTL.
func (t *stateTx) PutRecord(rec *core.ProcessingRecord) error {
	return t.set(makeRecordKey(rec.Fingerprint), storage.MarshalRecord(rec), t.store.recordTTL)
}

// DeleteRecord removes the record for fp.
func (t *stateTx) DeleteRecord(fp core.Fingerprint) error {
	return t.delete(makeRecordKey(fp))
}

// GetLock reads the lock on fp.
func (t *stateTx) GetLock(fp core.Fingerprint) (*core.Lock, error) {
	var lock *core.Lock
	err := t.get(makeLockKey(fp), func(val []byte) error {
		var err error
		lock, err = storage.UnmarshalLock(val)
		return err
	})
	return lock, err
}

// PutLock writes lock with a TTL covering its lease plus slack.
func (t *stateTx) PutLock(lock *core.Lock) error {
	return t.set(makeLockKey(lock.Fingerprint), storage.MarshalLock(lock), lockTTL(lock))
}

// lockTTL rounds the lease up to whole seconds, the resolution of BadgerDB TTLs.
func lockTTL(lock *core.Lock) time.Duration {
	lease := lock.ExpiresAt.Sub(lock.AcquiredAt)
	if lease < 0 {
		lease = 0
	}
	return lease.Truncate(time.Second) + time.Second + lockSlack
}

// DeleteLock removes the lock on fp.
func (t *stateTx) DeleteLock(fp core.Fingerprint) error {
	return t.delete(makeLockKey(fp))
}

// GetArtifact reads the cached artifact of stage for fp.
func (t *stateTx) GetArtifact(fp core.Fingerprint, stage core.Stage) (*core.Artifact, error) {
	var artifact *core.Artifact
	err := t.get(makeArtifactKey(fp, stage), func(val []byte) error {
		var err error
		artifact, err = storage.UnmarshalArtifact(val)
		return err
	})
	return artifact, err
}

// PutArtifact writes artifact with the artifact TTL.
func (t *stateTx) PutArtifact(artifact *core.Artifact) error {
	if err := core.ValidateArtifact(artifact); err != nil {
		return err
	}
	key := makeArtifactKey(artifact.Fingerprint, artifact.Stage)
	return t.set(key, storage.MarshalArtifact(artifact), t.store.artifactTTL)
}

// DeleteArtifacts removes every cached artifact of fp.
func (t *stateTx) DeleteArtifacts(fp core.Fingerprint) error {
	keys := collectKeys(t.tx, makePartialArtifactKey(fp))
	for _, key := range keys {
		if err := t.delete(key); err != nil {
			return fmt.Errorf("deleting artifact %s: %w", key, err)
		}
	}
	return nil
}

// Fingerprints lists every fingerprint that has a processing record.
func (t *stateTx) Fingerprints() ([]core.Fingerprint, error) {
	var fps []core.Fingerprint
	for _, key := range collectKeys(t.tx, []byte(recordPrefix+":")) {
		if fp, ok := fingerprintFromRecordKey(key); ok {
			fps = append(fps, fp)
		}
	}
	return fps, nil
}
