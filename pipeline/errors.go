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

package pipeline

import "errors"

var (
	// ErrStateManagerRequired is returned when a state manager is not provided.
	ErrStateManagerRequired = errors.New("state manager required")

	// ErrExtractorRequired is returned when an extractor is not provided.
	ErrExtractorRequired = errors.New("extractor required")

	// ErrChunkerRequired is returned when a chunker is not provided.
	ErrChunkerRequired = errors.New("chunker required")

	// ErrDocumentStoreRequired is returned when a document store is not provided.
	ErrDocumentStoreRequired = errors.New("document store required")

	// ErrInvalidMaxAttempts is returned when maxAttempts <= 0.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrInvalidTimeouts is returned when the lease does not outlast the stage timeout.
	ErrInvalidTimeouts = errors.New("lease must be longer than the stage timeout")

	// ErrEmptyStageOutput is returned when a stage succeeds without producing anything.
	ErrEmptyStageOutput = errors.New("stage produced no output")

	// ErrStagePanic is returned when a stage executor panics.
	ErrStagePanic = errors.New("stage executor panicked")

	// ErrUnexpectedStage is returned when a record is in a stage the pipeline cannot continue from.
	ErrUnexpectedStage = errors.New("unexpected record stage")
)
