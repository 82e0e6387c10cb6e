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


package gemini

import (
	"context"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"github.com/poiesic/docsync/ai"
	"google.golang.org/api/option"
)

// DefaultModel is used when the config names the generic default model.
const DefaultModel = "gemini-embedding-001"

// Provider implements ai.AIProvider using the Gemini API.
type Provider struct {
	client   *genai.Client
	config   *ai.Config
	embedder *Embedder
	logger   *slog.Logger
}

// NewProvider creates a Gemini-backed provider.
// The config must carry an API key.
func NewProvider(ctx context.Context, config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, err
	}

	return &Provider{
		client:   client,
		config:   config,
		embedder: newEmbedder(client, config),
		logger:   slog.Default().With("component", "gemini-provider"),
	}, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Model returns the configured embedding model.
func (p *Provider) Model() string {
	return p.config.EmbeddingModel
}

// Close releases the underlying client.
func (p *Provider) Close() error {
	p.logger.Debug("closing Gemini provider")
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
