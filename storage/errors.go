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

import "errors"

var (
	// ErrNotFound is a key miss: a document seen for the first time, or an
	// expired record or artifact. It is not a failure.
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable wraps backend failures. Callers propagate it.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrConflict reports a lost optimistic race: another transaction wrote
	// a key this one read.
	ErrConflict = errors.New("conflicting write")

	// ErrStorageClosed is returned after the backend has been closed.
	ErrStorageClosed = errors.New("store closed")

	// ErrInvalidQuery rejects a similarity query with a bad limit or vector.
	ErrInvalidQuery = errors.New("invalid similarity query")

	// ErrSerializationFailed reports a value that could not be encoded or
	// decoded.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrTruncatedData reports a stored value shorter than its length prefix.
	ErrTruncatedData = errors.New("value truncated")
)
