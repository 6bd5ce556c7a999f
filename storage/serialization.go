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
	"fmt"
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/docpipe/core"
)

// Values are encoded as a fixed sequence of MUS primitives. Every encoding
// starts with a format version so fields can be appended later. Stages are
// stored by name.
const formatVersion = 2

// musWriter appends MUS encoded primitives to a preallocated buffer.
type musWriter struct {
	bs []byte
	n  int
}

func (w *musWriter) int(v int)          { w.n += varint.Int.Marshal(v, w.bs[w.n:]) }
func (w *musWriter) int64(v int64)      { w.n += varint.Int64.Marshal(v, w.bs[w.n:]) }
func (w *musWriter) uint64(v uint64)    { w.n += varint.Uint64.Marshal(v, w.bs[w.n:]) }
func (w *musWriter) float32(v float32)  { w.n += varint.Uint32.Marshal(math.Float32bits(v), w.bs[w.n:]) }
func (w *musWriter) string(v string)    { w.n += ord.String.Marshal(v, w.bs[w.n:]) }
func (w *musWriter) bool(v bool)        { w.int(boolToInt(v)) }
func (w *musWriter) time(v time.Time)   { w.int64(timeToNanos(v)) }
func (w *musWriter) stage(s core.Stage) { w.string(stageName(s)) }

// musReader consumes MUS encoded primitives and remembers the first error.
type musReader struct {
	bs  []byte
	n   int
	err error
}

func (r *musReader) int() int {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Int.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *musReader) int64() int64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *musReader) uint64() uint64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *musReader) float32() float32 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Uint32.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return math.Float32frombits(v)
}

func (r *musReader) string() string {
	if r.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *musReader) bool() bool           { return r.int() != 0 }
func (r *musReader) time() time.Time      { return nanosToTime(r.int64()) }
func (r *musReader) fp() core.Fingerprint { return core.Fingerprint(r.string()) }

func (r *musReader) stage() core.Stage {
	name := r.string()
	if r.err != nil || name == "" {
		return 0
	}
	stage, err := core.ParseStage(name)
	r.err = err
	return stage
}

// count reads a length prefix and rejects values that cannot fit in the
// remaining input.
func (r *musReader) count() int {
	c := r.int()
	if r.err == nil && (c < 0 || c > len(r.bs)-r.n) {
		r.err = fmt.Errorf("%w: length %d", ErrTruncatedData, c)
		return 0
	}
	return c
}

func (r *musReader) version() {
	if v := r.int(); r.err == nil && v != formatVersion {
		r.err = fmt.Errorf("unsupported format version %d", v)
	}
}

func (r *musReader) done(what string) error {
	if r.err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSerializationFailed, what, r.err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeToNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func nanosToTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// stageName is the persisted form of s. The zero stage, an unset failure
// stage, is stored as the empty string.
func stageName(s core.Stage) string {
	if s == 0 {
		return ""
	}
	return s.String()
}

func sizeStage(s core.Stage) int { return sizeString(stageName(s)) }
func sizeInt(v int) int          { return varint.Int.Size(v) }
func sizeString(v string) int    { return ord.String.Size(v) }
func sizeTime(t time.Time) int {
	return varint.Int64.Size(timeToNanos(t))
}

func metadataSize(m core.Metadata) int {
	return sizeString(m.Source) + sizeString(m.Filename) + sizeInt(m.PageNo) +
		sizeString(m.ContentLayer) + sizeString(m.MimeType)
}

func (w *musWriter) metadata(m core.Metadata) {
	w.string(m.Source)
	w.string(m.Filename)
	w.int(m.PageNo)
	w.string(m.ContentLayer)
	w.string(m.MimeType)
}

func (r *musReader) metadata() core.Metadata {
	return core.Metadata{
		Source:       r.string(),
		Filename:     r.string(),
		PageNo:       r.int(),
		ContentLayer: r.string(),
		MimeType:     r.string(),
	}
}

func recordSize(rec *core.ProcessingRecord) int {
	return sizeInt(formatVersion) +
		sizeString(string(rec.Fingerprint)) +
		sizeStage(rec.Stage) +
		sizeString(string(rec.Failure.Kind)) +
		sizeStage(rec.Failure.Stage) +
		sizeString(rec.Failure.Message) +
		sizeInt(boolToInt(rec.Failure.Permanent)) +
		sizeStage(rec.ResumeStage) +
		sizeString(string(rec.ArtifactRef)) +
		sizeString(rec.Source) +
		sizeInt(rec.ChunkCount) +
		sizeTime(rec.CreatedAt) +
		sizeTime(rec.UpdatedAt) +
		varint.Uint64.Size(rec.Version)
}

// MarshalRecord serializes a ProcessingRecord to bytes.
func MarshalRecord(rec *core.ProcessingRecord) []byte {
	w := &musWriter{bs: make([]byte, recordSize(rec))}
	w.int(formatVersion)
	w.string(string(rec.Fingerprint))
	w.stage(rec.Stage)
	w.string(string(rec.Failure.Kind))
	w.stage(rec.Failure.Stage)
	w.string(rec.Failure.Message)
	w.bool(rec.Failure.Permanent)
	w.stage(rec.ResumeStage)
	w.string(string(rec.ArtifactRef))
	w.string(rec.Source)
	w.int(rec.ChunkCount)
	w.time(rec.CreatedAt)
	w.time(rec.UpdatedAt)
	w.uint64(rec.Version)
	return w.bs[:w.n]
}

// UnmarshalRecord deserializes a ProcessingRecord from bytes.
func UnmarshalRecord(data []byte) (*core.ProcessingRecord, error) {
	r := &musReader{bs: data}
	r.version()
	rec := &core.ProcessingRecord{}
	rec.Fingerprint = r.fp()
	rec.Stage = r.stage()
	rec.Failure.Kind = core.FailureKind(r.string())
	rec.Failure.Stage = r.stage()
	rec.Failure.Message = r.string()
	rec.Failure.Permanent = r.bool()
	rec.ResumeStage = r.stage()
	rec.ArtifactRef = core.ArtifactRef(r.string())
	rec.Source = r.string()
	rec.ChunkCount = r.int()
	rec.CreatedAt = r.time()
	rec.UpdatedAt = r.time()
	rec.Version = r.uint64()
	if err := r.done("record"); err != nil {
		return nil, err
	}
	return rec, nil
}

// MarshalLock serializes a Lock to bytes.
func MarshalLock(lock *core.Lock) []byte {
	size := sizeInt(formatVersion) + sizeString(string(lock.Fingerprint)) +
		sizeString(lock.Owner) + sizeTime(lock.AcquiredAt) + sizeTime(lock.ExpiresAt)
	w := &musWriter{bs: make([]byte, size)}
	w.int(formatVersion)
	w.string(string(lock.Fingerprint))
	w.string(lock.Owner)
	w.time(lock.AcquiredAt)
	w.time(lock.ExpiresAt)
	return w.bs[:w.n]
}

// UnmarshalLock deserializes a Lock from bytes.
func UnmarshalLock(data []byte) (*core.Lock, error) {
	r := &musReader{bs: data}
	r.version()
	lock := &core.Lock{
		Fingerprint: r.fp(),
		Owner:       r.string(),
		AcquiredAt:  r.time(),
		ExpiresAt:   r.time(),
	}
	if err := r.done("lock"); err != nil {
		return nil, err
	}
	return lock, nil
}

// MarshalArtifact serializes an Artifact to bytes.
func MarshalArtifact(a *core.Artifact) []byte {
	size := sizeInt(formatVersion) + sizeString(string(a.Fingerprint)) +
		sizeStage(a.Stage) + sizeTime(a.CreatedAt) + sizeInt(len(a.Documents))
	for _, doc := range a.Documents {
		size += sizeString(doc.Content) + metadataSize(doc.Metadata)
	}
	w := &musWriter{bs: make([]byte, size)}
	w.int(formatVersion)
	w.string(string(a.Fingerprint))
	w.stage(a.Stage)
	w.time(a.CreatedAt)
	w.int(len(a.Documents))
	for _, doc := range a.Documents {
		w.string(doc.Content)
		w.metadata(doc.Metadata)
	}
	return w.bs[:w.n]
}

// UnmarshalArtifact deserializes an Artifact from bytes.
func UnmarshalArtifact(data []byte) (*core.Artifact, error) {
	r := &musReader{bs: data}
	r.version()
	a := &core.Artifact{
		Fingerprint: r.fp(),
		Stage:       r.stage(),
		CreatedAt:   r.time(),
	}
	count := r.count()
	if count > 0 {
		a.Documents = make([]core.Document, 0, count)
	}
	for i := 0; i < count && r.err == nil; i++ {
		a.Documents = append(a.Documents, core.Document{
			Content:  r.string(),
			Metadata: r.metadata(),
		})
	}
	if err := r.done("artifact"); err != nil {
		return nil, err
	}
	return a, nil
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(c *core.Chunk) []byte {
	size := sizeInt(formatVersion) + varint.Uint64.Size(uint64(c.Id)) +
		sizeString(string(c.Fingerprint)) + sizeInt(c.Index) + sizeString(c.Content) +
		metadataSize(c.Metadata) + sizeTime(c.InsertedAt) + sizeInt(len(c.Vector))
	for _, f := range c.Vector {
		size += varint.Uint32.Size(math.Float32bits(f))
	}
	w := &musWriter{bs: make([]byte, size)}
	w.int(formatVersion)
	w.uint64(uint64(c.Id))
	w.string(string(c.Fingerprint))
	w.int(c.Index)
	w.string(c.Content)
	w.metadata(c.Metadata)
	w.time(c.InsertedAt)
	w.int(len(c.Vector))
	for _, f := range c.Vector {
		w.float32(f)
	}
	return w.bs[:w.n]
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	r := &musReader{bs: data}
	r.version()
	c := &core.Chunk{
		Id:          core.ID(r.uint64()),
		Fingerprint: r.fp(),
		Index:       r.int(),
		Content:     r.string(),
		Metadata:    r.metadata(),
		InsertedAt:  r.time(),
	}
	dims := r.count()
	if dims > 0 {
		c.Vector = make([]float32, 0, dims)
	}
	for i := 0; i < dims && r.err == nil; i++ {
		c.Vector = append(c.Vector, r.float32())
	}
	if err := r.done("chunk"); err != nil {
		return nil, err
	}
	return c, nil
}
