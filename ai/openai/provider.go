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

package openai

import (
	"log/slog"

	"github.com/poiesic/docpipe/ai"
)

// Provider implements ai.AIProvider for OpenAI-compatible services.
type Provider struct {
	host     string
	embedder *Embedder
	logger   *slog.Logger
}

var _ ai.AIProvider = (*Provider)(nil)

// Option configures a Provider or Embedder.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger. If nil, uses slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func applyOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// NewProvider validates config and builds the embedding client.
// No request is made until the embedder is used.
func NewProvider(config *ai.Config, opts ...Option) (ai.AIProvider, error) {
	o := applyOptions(opts)
	embedder, err := newEmbedder(config, o.logger)
	if err != nil {
		return nil, err
	}
	return &Provider{
		host:     config.EmbeddingHost,
		embedder: embedder,
		logger:   o.logger.With("component", "openai-provider"),
	}, nil
}

// Embedder returns the shared embedder.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (p *Provider) Close() error {
	p.logger.Debug("closing provider", "host", p.host)
	return nil
}
