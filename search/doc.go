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

// Package search provides similarity search over stored document chunks.
//
// The Searcher embeds a query, ranks chunks by cosine similarity of their
// vectors and boosts chunks that contain every significant query word
// verbatim. It is the consumer side of the pipeline: chunks only become
// searchable once a document reaches STORED.
package search
