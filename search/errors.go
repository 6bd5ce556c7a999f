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

package search

import "errors"

var (
	ErrChunkRepositoryRequired = errors.New("searcher needs a chunk repository")
	ErrEmbedderRequired        = errors.New("searcher needs an embedder")
	// ErrInvalidMaxHits rejects a non-positive result limit.
	ErrInvalidMaxHits = errors.New("max hits must be positive")
	// ErrInvalidMinSimilarity rejects a threshold outside [-1, 1].
	ErrInvalidMinSimilarity = errors.New("min similarity must be between -1 and 1")
)
