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

package ai

import "errors"

var (
	// ErrHostRequired indicates a config without an embedding endpoint.
	ErrHostRequired = errors.New("embedding host is required")

	// ErrModelRequired indicates a config without an embedding model.
	ErrModelRequired = errors.New("embedding model is required")

	// ErrInvalidBatchSize indicates a batch size below one.
	ErrInvalidBatchSize = errors.New("embedding batch size must be at least 1")

	// ErrEmptyText is returned when asked to embed blank text.
	ErrEmptyText = errors.New("cannot embed empty text")

	// ErrVectorCount indicates the service returned a different number of
	// vectors than texts submitted.
	ErrVectorCount = errors.New("embedding service returned wrong number of vectors")

	// ErrDimensionMismatch indicates vectors of differing length in one response.
	ErrDimensionMismatch = errors.New("embedding vectors have inconsistent dimensions")
)
