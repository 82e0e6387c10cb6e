package mock

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	m := NewMockEmbedder()
	ctx := context.Background()

	v1, err := m.EmbedText(ctx, "hello")
	require.NoError(t, err)
	v2, err := m.EmbedText(ctx, "hello")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1, DefaultDimension)

	var sum float64
	for _, f := range v1 {
		sum += float64(f) * float64(f)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-4)
}

func TestMockEmbedder_RecordsBatches(t *testing.T) {
	m := NewMockEmbedder()
	m.Dimension = 8

	vectors, err := m.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], 8)
	assert.Equal(t, 1, m.BatchCalls())
	assert.Equal(t, []string{"a", "b"}, m.TextsEmbedded())

	m.Reset()
	assert.Equal(t, 0, m.CallCount())
	assert.Empty(t, m.TextsEmbedded())
}

func TestMockEmbedder_ConcurrentUse(t *testing.T) {
	m := NewMockEmbedder()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.EmbedTexts(context.Background(), []string{"x"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, m.BatchCalls())
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider().(*MockProvider)
	assert.Equal(t, DefaultModel, p.Model())
	assert.Same(t, p.GetMockEmbedder(), p.Embedder())
	require.NoError(t, p.Close())
	assert.True(t, p.Closed())

	custom := NewMockProviderWithEmbedder(NewMockEmbedder(), "other")
	assert.Equal(t, "other", custom.Model())
}
