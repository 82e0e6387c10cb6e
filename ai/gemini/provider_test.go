package gemini

import (
	"context"
	"testing"

	"github.com/poiesic/docsync/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_RequiresAPIKey(t *testing.T) {
	cfg := ai.NewConfig(ai.WithProvider(ai.ProviderGemini), ai.WithEmbeddingModel(DefaultModel))

	_, err := NewProvider(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APIKey")
}

func TestNewEmbedder_ClampsBatchSize(t *testing.T) {
	cfg := ai.NewConfig(ai.WithMaxBatchSize(500))
	e := newEmbedder(nil, cfg)
	assert.Equal(t, maxAPIBatch, e.maxBatchSize)

	cfg = ai.NewConfig(ai.WithMaxBatchSize(10))
	e = newEmbedder(nil, cfg)
	assert.Equal(t, 10, e.maxBatchSize)
}
