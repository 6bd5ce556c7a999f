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

// Package storage provides the storage abstraction layer for docpipe.
//
// This package defines the contracts that decouple persistence from the
// state manager and the pipeline:
//
//   - StateStore: transactional key/value store for processing records,
//     locks and cached stage artifacts, with per-key TTL
//   - StateTx: the operations available inside a StateStore transaction
//   - ChunkRepository: embedded chunks with vector similarity search
//   - Archive: optional blob storage for raw uploads
//
// # Constructor Return Type Pattern
//
// Public constructors in backend packages return these interfaces:
//
//	store, err := badger.NewStateStore(backend)  // returns storage.StateStore
//
// Internal package constructors may return concrete types since they're
// only used within the implementation package.
//
// # Error Contract
//
// ErrNotFound is a normal outcome and is never used to report an
// infrastructure problem. Backend failures are wrapped in
// ErrStoreUnavailable and must be propagated by callers. ErrConflict
// reports a lost optimistic race on Update.
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines and, through the shared store, multiple
// pipeline instances.
package storage
