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
	"errors"
	"fmt"
)

// Domain validation errors
var (
	// ErrInvalidFingerprint indicates a malformed fingerprint string.
	ErrInvalidFingerprint = errors.New("invalid fingerprint")

	// ErrInvalidStage indicates an unknown stage value or name.
	ErrInvalidStage = errors.New("invalid stage")

	// ErrInvalidRecord indicates a ProcessingRecord failed validation.
	ErrInvalidRecord = errors.New("invalid processing record")

	// ErrInvalidArtifact indicates an Artifact failed validation.
	ErrInvalidArtifact = errors.New("invalid artifact")

	// ErrEmptyContent indicates a document or chunk has no content.
	ErrEmptyContent = errors.New("content cannot be empty")
)

// Stage failure errors. A StageError matches the sentinel of its kind with errors.Is.
var (
	// ErrExtraction indicates the extractor failed.
	ErrExtraction = errors.New("extraction failed")

	// ErrChunking indicates the chunker failed.
	ErrChunking = errors.New("chunking failed")

	// ErrStorage indicates embedding or storing chunks failed.
	ErrStorage = errors.New("storage failed")

	// ErrStageTimeout indicates a stage exceeded its time budget.
	ErrStageTimeout = errors.New("stage timed out")

	// ErrPermanentInput indicates malformed or unsupported input that must not be retried.
	ErrPermanentInput = errors.New("permanent input error")
)

// StageError is a failure of one pipeline stage.
type StageError struct {
	Stage     Stage // Stage that was being attempted
	Kind      FailureKind
	Permanent bool
	Err       error
}

// NewStageError wraps err as a failure of kind while attempting stage.
func NewStageError(stage Stage, kind FailureKind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *StageError) Is(target error) bool {
	switch target {
	case ErrExtraction:
		return e.Kind == FailureExtraction
	case ErrChunking:
		return e.Kind == FailureChunking
	case ErrStorage:
		return e.Kind == FailureStorage
	case ErrStageTimeout:
		return e.Kind == FailureTimeout
	case ErrPermanentInput:
		return e.Permanent || e.Kind == FailurePermanentInput
	}
	return false
}

// Failure converts the error into the structured form persisted on a record.
func (e *StageError) Failure() Failure {
	return Failure{
		Kind:      e.Kind,
		Stage:     e.Stage,
		Message:   e.Err.Error(),
		Permanent: e.Permanent,
	}
}

// AsStageError rebuilds the StageError a recorded failure was created from.
func (f Failure) AsStageError() *StageError {
	return &StageError{Stage: f.Stage, Kind: f.Kind, Permanent: f.Permanent, Err: errors.New(f.Message)}
}

// Permanent wraps err so that it is classified as a permanent input error.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanentInput, err)
}
