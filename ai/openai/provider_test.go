package openai

import (
	"testing"

	"github.com/poiesic/docsync/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	cfg := ai.NewConfig(
		ai.WithEmbeddingHost("http://localhost:11434"),
		ai.WithEmbeddingModel("nomic-embed-text"),
	)

	p, err := NewProvider(cfg)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "nomic-embed-text", p.Model())
	assert.NotNil(t, p.Embedder())
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	cfg := ai.NewConfig(ai.WithEmbeddingHost(""))

	_, err := NewProvider(cfg)
	assert.Error(t, err)
}
