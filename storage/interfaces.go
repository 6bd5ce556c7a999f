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

package storage

import (
	"context"
	"io"

	"github.com/poiesic/docpipe/core"
)

// StateStore persists processing records, locks and stage artifacts.
// Implementations must be thread-safe and support concurrent access.
type StateStore interface {
	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx StateTx) error) error

	// Update runs fn in a read-write transaction.
	// If fn returns an error, nothing is written.
	// If fn returns nil, the transaction is committed. Commit fails with
	// ErrConflict if another transaction modified a key that fn read.
	Update(ctx context.Context, fn func(tx StateTx) error) error

	// NextVersion returns the next value of a store-wide monotonic sequence.
	NextVersion() (uint64, error)

	// Close closes the storage backend and releases resources.
	Close() error
}

// StateTx is a transaction against a StateStore.
type StateTx interface {
	// GetRecord returns ErrNotFound if no record exists for fp.
	GetRecord(fp core.Fingerprint) (*core.ProcessingRecord, error)

	// PutRecord writes the record with the store's record TTL.
	PutRecord(rec *core.ProcessingRecord) error

	// DeleteRecord is a no-op if the record does not exist.
	DeleteRecord(fp core.Fingerprint) error

	// GetLock returns ErrNotFound if no lock key exists for fp.
	// Callers must still check ExpiresAt; key expiry is coarser than the lease.
	GetLock(fp core.Fingerprint) (*core.Lock, error)

	// PutLock writes the lock with a TTL covering its lease.
	PutLock(lock *core.Lock) error

	// DeleteLock is a no-op if the lock does not exist.
	DeleteLock(fp core.Fingerprint) error

	// GetArtifact returns ErrNotFound if the artifact is absent or expired.
	GetArtifact(fp core.Fingerprint, stage core.Stage) (*core.Artifact, error)

	// PutArtifact writes the artifact with the store's artifact TTL.
	PutArtifact(artifact *core.Artifact) error

	// DeleteArtifacts removes every cached artifact for fp.
	DeleteArtifacts(fp core.Fingerprint) error

	// Fingerprints lists every fingerprint that has a record.
	Fingerprints() ([]core.Fingerprint, error)
}

// ChunkRepository stores embedded chunks and searches them by vector similarity.
type ChunkRepository interface {
	// AddChunks stores chunks, replacing any chunk with the same key.
	// Sets InsertedAt if not already set.
	AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// GetChunks returns the chunks of a document ordered by index.
	GetChunks(ctx context.Context, fp core.Fingerprint) ([]*core.Chunk, error)

	// DeleteChunks removes every chunk of a document and returns how many were removed.
	DeleteChunks(ctx context.Context, fp core.Fingerprint) (int, error)

	// DeleteAllChunks removes every chunk and returns how many were removed.
	DeleteAllChunks(ctx context.Context) (int, error)

	// CountChunks returns the number of stored chunks.
	CountChunks(ctx context.Context) (int, error)

	// FindSimilar finds chunks similar to the given vector.
	// Returns chunks with similarity >= minSimilarity, up to limit results.
	// Results are ordered by similarity score (highest first).
	FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int) ([]*core.SearchResult, error)

	// Close closes the storage backend and releases resources.
	Close() error
}

// Archive stores raw document bytes keyed by fingerprint.
type Archive interface {
	// Put stores data under the archive key for fp. Storing the same
	// fingerprint twice is not an error.
	Put(ctx context.Context, fp core.Fingerprint, data io.Reader, size int64, contentType string) error

	// Exists reports whether the raw bytes for fp are archived.
	Exists(ctx context.Context, fp core.Fingerprint) (bool, error)
}

// ArchiveKey returns the object key raw bytes are archived under.
func ArchiveKey(fp core.Fingerprint) string {
	return "raw/" + string(fp)
}
