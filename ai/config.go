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

import "strings"

const (
	// DefaultBatchSize is the number of chunks sent per embedding request.
	DefaultBatchSize = 32

	DefaultEmbeddingHost  = "http://localhost:11434/v1"
	DefaultEmbeddingModel = "embeddinggemma"

	// anonymousToken is sent to local servers that ignore authentication.
	anonymousToken = "none"
)

// Config describes how to reach the embedding service.
type Config struct {
	// EmbeddingHost is the base URL of an OpenAI-compatible API.
	// A missing /v1 suffix is added by Normalize.
	EmbeddingHost string

	// EmbeddingModel names the model, e.g. "embeddinggemma" or
	// "text-embedding-3-small". Changing it requires reembedding stored chunks.
	EmbeddingModel string

	// Token authenticates against hosted APIs.
	Token string

	// BatchSize caps the number of texts per request.
	BatchSize int
}

// ConfigOption adjusts a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) { c.EmbeddingHost = host }
}

// WithEmbeddingModel sets the embedding model.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) { c.EmbeddingModel = model }
}

// WithToken sets the API token.
func WithToken(token string) ConfigOption {
	return func(c *Config) { c.Token = token }
}

// WithBatchSize sets the number of texts per request.
func WithBatchSize(size int) ConfigOption {
	return func(c *Config) { c.BatchSize = size }
}

// DefaultConfig targets a local Ollama-style server.
func DefaultConfig() *Config {
	return &Config{
		EmbeddingHost:  DefaultEmbeddingHost,
		EmbeddingModel: DefaultEmbeddingModel,
		Token:          anonymousToken,
		BatchSize:      DefaultBatchSize,
	}
}

// NewConfig applies opts on top of DefaultConfig.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize trims whitespace, appends /v1 to the host when missing and
// substitutes a placeholder for an empty token.
func (c *Config) Normalize() {
	c.EmbeddingHost = strings.TrimSpace(c.EmbeddingHost)
	c.EmbeddingModel = strings.TrimSpace(c.EmbeddingModel)
	if c.EmbeddingHost != "" && !strings.HasSuffix(c.EmbeddingHost, "/v1") {
		c.EmbeddingHost = strings.TrimSuffix(c.EmbeddingHost, "/") + "/v1"
	}
	if strings.TrimSpace(c.Token) == "" {
		c.Token = anonymousToken
	}
}

// Validate normalizes c and reports the first missing or invalid setting.
func (c *Config) Validate() error {
	c.Normalize()
	switch {
	case c.EmbeddingHost == "":
		return ErrHostRequired
	case c.EmbeddingModel == "":
		return ErrModelRequired
	case c.BatchSize < 1:
		return ErrInvalidBatchSize
	}
	return nil
}
