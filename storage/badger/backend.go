package badger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/poiesic/docpipe/storage"
)

// sequenceLease is how many sequence values badger reserves per lease.
const sequenceLease = 100

// Backend owns the badger handle shared by the state store and the chunk
// repository.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger
}

// BackendOption adjusts the badger options used to open a Backend.
type BackendOption func(*backendConfig)

type backendConfig struct {
	logger     *slog.Logger
	syncWrites bool
}

// WithBackendLogger routes badger's internal log output to logger.
// Badger info messages are demoted to debug.
func WithBackendLogger(logger *slog.Logger) BackendOption {
	return func(c *backendConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSyncWrites makes every commit fsync before returning.
func WithSyncWrites(enabled bool) BackendOption {
	return func(c *backendConfig) {
		c.syncWrites = enabled
	}
}

// slogAdapter satisfies badger.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*slogAdapter)(nil)

func (a *slogAdapter) Errorf(format string, args ...any) {
	a.logger.Error(fmt.Sprintf(format, args...))
}

func (a *slogAdapter) Warningf(format string, args ...any) {
	a.logger.Warn(fmt.Sprintf(format, args...))
}

func (a *slogAdapter) Infof(format string, args ...any) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}

func (a *slogAdapter) Debugf(format string, args ...any) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBackend opens (creating if needed) a badger database in dir.
func OpenBackend(dir string, opts ...BackendOption) (*Backend, error) {
	if err := ensureDir(dir); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrStoreUnavailable, err)
	}
	return open(badger.DefaultOptions(dir), opts)
}

// OpenMemoryBackend opens a badger database that lives only in memory.
func OpenMemoryBackend(opts ...BackendOption) (*Backend, error) {
	return open(badger.DefaultOptions("").WithInMemory(true), opts)
}

func open(bopts badger.Options, opts []BackendOption) (*Backend, error) {
	cfg := backendConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger.With("component", "badger")

	bopts.Logger = &slogAdapter{logger: logger}
	bopts.Compression = options.None
	if !bopts.InMemory {
		bopts.SyncWrites = cfg.syncWrites
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrStoreUnavailable, err)
	}
	return &Backend{db: db, logger: logger}, nil
}

func ensureDir(dir string) error {
	if dir == "" {
		return errors.New("database directory is empty")
	}
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return os.MkdirAll(dir, 0o755)
	case err != nil:
		return err
	case !info.IsDir():
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

// Close closes the database. Stores built on the backend become unusable.
func (b *Backend) Close() error {
	return b.db.Close()
}

// IsClosed reports whether Close has been called.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx runs fn inside a transaction that is always discarded afterwards.
// Write transactions must call tx.Commit themselves.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// GetSequence returns the named monotonic sequence.
func (b *Backend) GetSequence(name string) (*badger.Sequence, error) {
	seq, err := b.db.GetSequence([]byte(name), sequenceLease)
	if err != nil {
		return nil, storeError(err)
	}
	return seq, nil
}

// DropPrefix removes every key starting with prefix.
func (b *Backend) DropPrefix(prefix string) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	return storeError(b.db.DropPrefix([]byte(prefix)))
}

// storeError maps a badger error onto the storage error contract.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return storage.ErrNotFound
	case errors.Is(err, badger.ErrConflict):
		return storage.ErrConflict
	case errors.Is(err, badger.ErrDBClosed):
		return storage.ErrStorageClosed
	}
	return fmt.Errorf("%w: %w", storage.ErrStoreUnavailable, err)
}
