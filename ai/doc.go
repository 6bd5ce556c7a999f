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

// Package ai defines the embedding service used to index document chunks
// and to embed search queries.
//
// ai/openai talks to any OpenAI-compatible embeddings endpoint (Ollama,
// vLLM, LocalAI or the hosted API). ai/mock produces deterministic vectors
// for tests.
//
// Production constructors return interfaces; mock constructors return
// concrete types so tests can inject failures and count calls:
//
//	provider, err := openai.NewProvider(ai.NewConfig(
//	    ai.WithEmbeddingHost("http://localhost:11434"),
//	    ai.WithEmbeddingModel("nomic-embed-text"),
//	))
//	if err != nil {
//	    return err
//	}
//	defer provider.Close()
//
//	vectors, err := provider.Embedder().EmbedTexts(ctx, chunkTexts)
package ai
