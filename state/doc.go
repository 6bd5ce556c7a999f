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

// Package state owns every write to processing state.
//
// A Manager wraps a storage.StateStore and enforces the document state
// machine:
//
//	UPLOADED -> EXTRACTED -> CHUNKED -> STORED
//	    \           \            \
//	     +-----------+------------+--> FAILED
//
// Writers first take a time-bounded lease with AcquireLock. Every mutation
// re-validates the lease and checks the expected current stage inside a
// single store transaction, so a writer whose lease lapsed, or who lost a
// race, gets ErrLockExpired or ErrStaleTransition instead of clobbering
// newer state.
//
// Retry after a transient failure resumes at the last completed stage when
// its cached artifact is still present, and from UPLOADED otherwise.
package state
