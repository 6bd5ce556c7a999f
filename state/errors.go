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

package state

import "errors"

var (
	// ErrAlreadyLocked indicates another owner holds an unexpired lease on the fingerprint.
	ErrAlreadyLocked = errors.New("document is locked by another owner")

	// ErrLockExpired indicates the caller's lease lapsed or was taken over.
	ErrLockExpired = errors.New("lock expired or not held")

	// ErrStaleTransition indicates the record is no longer at the expected stage.
	ErrStaleTransition = errors.New("stale stage transition")

	// ErrInvalidTransition indicates a transition the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid stage transition")

	// ErrArtifactRequired indicates a transition into a cacheable stage without output.
	ErrArtifactRequired = errors.New("artifact required for stage")

	// ErrUnexpectedArtifact indicates an artifact was supplied for a stage that caches none.
	ErrUnexpectedArtifact = errors.New("stage does not cache an artifact")

	// ErrPermanentFailure indicates the document failed permanently and must not be retried.
	ErrPermanentFailure = errors.New("document failed permanently")

	// ErrInvalidLease indicates a non-positive lease duration.
	ErrInvalidLease = errors.New("lease must be positive")
)
