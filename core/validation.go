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
	"fmt"
)

// ValidateRecord validates a ProcessingRecord according to domain rules.
//
// Validation rules:
//   - Fingerprint must be well formed
//   - Stage must be known
//   - A FAILED record must carry a failure; any other stage must not
//   - An artifact reference is only valid on EXTRACTED or CHUNKED records
//
// NOT validated:
//   - Version (assigned by the store)
//   - ChunkCount (0 is valid for documents that produced no chunks)
func ValidateRecord(record *ProcessingRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}

	if _, err := ParseFingerprint(string(record.Fingerprint)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	if !record.Stage.Valid() {
		return fmt.Errorf("%w: %w: %d", ErrInvalidRecord, ErrInvalidStage, record.Stage)
	}

	if record.Stage == StageFailed && record.Failure.IsZero() {
		return fmt.Errorf("%w: failed record without failure", ErrInvalidRecord)
	}
	if record.Stage != StageFailed && !record.Failure.IsZero() {
		return fmt.Errorf("%w: failure set on %s record", ErrInvalidRecord, record.Stage)
	}

	if record.ArtifactRef != "" && record.Stage != StageFailed && !record.Stage.Cacheable() {
		return fmt.Errorf("%w: artifact reference on %s record", ErrInvalidRecord, record.Stage)
	}

	return nil
}

// ValidateArtifact validates an Artifact before it is cached.
//
// Validation rules:
//   - Fingerprint must be well formed
//   - Stage must be EXTRACTED or CHUNKED
//   - Documents must not be empty
func ValidateArtifact(artifact *Artifact) error {
	if artifact == nil {
		return fmt.Errorf("%w: artifact is nil", ErrInvalidArtifact)
	}

	if _, err := ParseFingerprint(string(artifact.Fingerprint)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}

	if !artifact.Stage.Cacheable() {
		return fmt.Errorf("%w: stage %s is not cacheable", ErrInvalidArtifact, artifact.Stage)
	}

	if len(artifact.Documents) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidArtifact, ErrEmptyContent)
	}

	return nil
}
