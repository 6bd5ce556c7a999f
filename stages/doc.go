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

// Package stages defines the executors the pipeline runs for each stage
// transition and provides the default DocumentStore.
//
//   - Extractor: raw bytes to documents (UPLOADED -> EXTRACTED)
//   - Chunker: documents to chunks (EXTRACTED -> CHUNKED)
//   - DocumentStore: embeds and persists chunks (CHUNKED -> STORED)
//
// Implementations are resolved once, when the pipeline is composed.
// Errors wrapping core.ErrPermanentInput mark input that can never succeed;
// any other error is treated as transient and may be retried.
//
// Sub-packages:
//
//   - stages/loader: Extractor backed by langchaingo document loaders
//   - stages/splitter: Chunker backed by langchaingo text splitters
//   - stages/mock: call-counting test doubles
package stages
