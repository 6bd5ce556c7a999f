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

package core

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for stored chunks.
// It is generated using content-based hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ChunkID derives the ID of the chunk at index within the document identified by fp.
// Re-storing the same chunk always yields the same ID, so storage is idempotent.
func ChunkID(fp Fingerprint, index int, content string) ID {
	return IDFromContent(string(fp) + ":" + strconv.Itoa(index) + ":" + content)
}

// ProcessingRecord is the persisted processing state for one fingerprint.
type ProcessingRecord struct {
	Fingerprint Fingerprint
	Stage       Stage
	Failure     Failure     // Zero unless Stage is StageFailed
	ResumeStage Stage       // Last successfully completed stage
	ArtifactRef ArtifactRef // Cached output of the latest cacheable stage
	Source      string      // Optional caller supplied name, e.g. a filename
	ChunkCount  int         // Number of chunks stored, set on StageStored
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     uint64
}

// Failed reports whether the record is in the FAILED stage.
func (r *ProcessingRecord) Failed() bool {
	return r.Stage == StageFailed
}

// PermanentlyFailed reports whether the record failed in a way that must not be retried.
func (r *ProcessingRecord) PermanentlyFailed() bool {
	return r.Stage == StageFailed && r.Failure.Permanent
}

// Clone returns a copy of the record.
func (r *ProcessingRecord) Clone() *ProcessingRecord {
	c := *r
	return &c
}

// FailureKind classifies a stage failure.
type FailureKind string

const (
	FailureExtraction     FailureKind = "extraction"
	FailureChunking       FailureKind = "chunking"
	FailureStorage        FailureKind = "storage"
	FailureTimeout        FailureKind = "timeout"
	FailurePermanentInput FailureKind = "permanent_input"
)

// Failure is the structured error attached to a FAILED record.
type Failure struct {
	Kind      FailureKind
	Stage     Stage // Stage that was being attempted
	Message   string
	Permanent bool
}

// IsZero reports whether no failure is recorded.
func (f Failure) IsZero() bool {
	return f.Kind == "" && f.Message == ""
}

// Error implements error so a recorded failure can be surfaced directly.
func (f Failure) Error() string {
	return string(f.Kind) + " failure at " + f.Stage.String() + ": " + f.Message
}

// ArtifactRef is an opaque reference to a cached stage artifact.
type ArtifactRef string

// ArtifactRefFor returns the reference under which the artifact of stage is cached.
func ArtifactRefFor(fp Fingerprint, stage Stage) ArtifactRef {
	return ArtifactRef(string(fp) + ":" + stage.String())
}

// Artifact is the immutable cached output of a completed stage.
type Artifact struct {
	Fingerprint Fingerprint
	Stage       Stage
	Documents   []Document
	CreatedAt   time.Time
}

// Ref returns the reference the artifact is cached under.
func (a *Artifact) Ref() ArtifactRef {
	return ArtifactRefFor(a.Fingerprint, a.Stage)
}

// Metadata describes where a piece of document content came from.
type Metadata struct {
	Source       string // Full path or URI of the original file
	Filename     string
	PageNo       int // 0 when unknown
	ContentLayer string
	MimeType     string
}

// Document is a unit of extracted or chunked text.
type Document struct {
	Content  string
	Metadata Metadata
}

// Chunk is a stored, embedded piece of a document.
type Chunk struct {
	Id          ID
	Fingerprint Fingerprint
	Index       int
	Content     string
	Metadata    Metadata
	Vector      []float32
	InsertedAt  time.Time
}

// SearchResult is a chunk match with its relevance score.
type SearchResult struct {
	Chunk *Chunk
	Score float32
}

// Lock is the persisted lease on a fingerprint.
type Lock struct {
	Fingerprint Fingerprint
	Owner       string
	AcquiredAt  time.Time
	ExpiresAt   time.Time
}

// HeldBy reports whether owner holds the lock at now.
func (l *Lock) HeldBy(owner string, now time.Time) bool {
	return l.Owner == owner && now.Before(l.ExpiresAt)
}

// Expired reports whether the lease has lapsed at now.
func (l *Lock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// LockToken is held by the caller that acquired a Lock.
type LockToken struct {
	Fingerprint Fingerprint
	Owner       string
	Lease       time.Duration
}
