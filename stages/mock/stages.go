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

package mock

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/poiesic/docpipe/core"
	"github.com/poiesic/docpipe/stages"
)

// MockExtractor is a test double for stages.Extractor.
type MockExtractor struct {
	// ExtractFunc is called by Extract if set.
	ExtractFunc func(ctx context.Context, data []byte, source string) ([]core.Document, error)

	calls atomic.Int64
}

var _ stages.Extractor = (*MockExtractor)(nil)

// NewMockExtractor creates an extractor that returns the input as one document.
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{}
}

// Extract counts the call and runs ExtractFunc or the default behavior.
func (m *MockExtractor) Extract(ctx context.Context, data []byte, source string) ([]core.Document, error) {
	m.calls.Add(1)
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, data, source)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return DefaultDocuments(data, source), nil
}

// Calls returns how many times Extract ran.
func (m *MockExtractor) Calls() int {
	return int(m.calls.Load())
}

// DefaultDocuments is the default extraction result: the raw text as a
// single document.
func DefaultDocuments(data []byte, source string) []core.Document {
	return []core.Document{{
		Content:  string(data),
		Metadata: core.Metadata{Source: source, Filename: source, MimeType: "text/plain"},
	}}
}

// MockChunker is a test double for stages.Chunker.
type MockChunker struct {
	// ChunkFunc is called by Chunk if set.
	ChunkFunc func(ctx context.Context, docs []core.Document) ([]core.Document, error)

	calls atomic.Int64
}

var _ stages.Chunker = (*MockChunker)(nil)

// NewMockChunker creates a chunker that splits documents on blank lines.
func NewMockChunker() *MockChunker {
	return &MockChunker{}
}

// Chunk counts the call and runs ChunkFunc or the default behavior.
func (m *MockChunker) Chunk(ctx context.Context, docs []core.Document) ([]core.Document, error) {
	m.calls.Add(1)
	if m.ChunkFunc != nil {
		return m.ChunkFunc(ctx, docs)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return DefaultChunks(docs), nil
}

// Calls returns how many times Chunk ran.
func (m *MockChunker) Calls() int {
	return int(m.calls.Load())
}

// DefaultChunks is the default chunking result: one chunk per paragraph.
func DefaultChunks(docs []core.Document) []core.Document {
	var chunks []core.Document
	for _, doc := range docs {
		for _, para := range strings.Split(doc.Content, "\n\n") {
			if strings.TrimSpace(para) == "" {
				continue
			}
			chunks = append(chunks, core.Document{Content: para, Metadata: doc.Metadata})
		}
	}
	return chunks
}

// MockDocumentStore is an in-memory stages.DocumentStore.
type MockDocumentStore struct {
	// StoreFunc is called by StoreWithEmbeddings if set, instead of saving.
	StoreFunc func(ctx context.Context, fp core.Fingerprint, chunks []core.Document) (int, error)

	calls  atomic.Int64
	mu     sync.Mutex
	chunks map[core.Fingerprint][]core.Document
}

var _ stages.DocumentStore = (*MockDocumentStore)(nil)

// NewMockDocumentStore creates an empty store.
func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{chunks: make(map[core.Fingerprint][]core.Document)}
}

// StoreWithEmbeddings counts the call and saves chunks, replacing any
// previously saved for fp.
func (m *MockDocumentStore) StoreWithEmbeddings(ctx context.Context, fp core.Fingerprint, chunks []core.Document) (int, error) {
	m.calls.Add(1)
	if m.StoreFunc != nil {
		return m.StoreFunc(ctx, fp, chunks)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, stages.ErrNoChunks
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[fp] = append([]core.Document(nil), chunks...)
	return len(chunks), nil
}

// DeleteByFingerprint removes the chunks saved for fp.
func (m *MockDocumentStore) DeleteByFingerprint(ctx context.Context, fp core.Fingerprint) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.chunks[fp])
	delete(m.chunks, fp)
	return n, nil
}

// DeleteAll removes every saved chunk.
func (m *MockDocumentStore) DeleteAll(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, chunks := range m.chunks {
		n += len(chunks)
	}
	clear(m.chunks)
	return n, nil
}

// Calls returns how many times StoreWithEmbeddings ran.
func (m *MockDocumentStore) Calls() int {
	return int(m.calls.Load())
}

// Stored returns the chunks saved for fp.
func (m *MockDocumentStore) Stored(fp core.Fingerprint) []core.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunks[fp]
}
