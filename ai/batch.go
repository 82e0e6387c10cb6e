package ai

import (
	"context"
	"fmt"
)

// EmbedInBatches calls embed on consecutive slices of at most size texts and
// concatenates the results. It verifies one non-empty vector per text.
func EmbedInBatches(ctx context.Context, texts []string, size int, embed func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	if size <= 0 {
		size = len(texts)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		vectors, err := embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("%w: expected %d, received %d", ErrEmbeddingCountMismatch, end-start, len(vectors))
		}
		for i, v := range vectors {
			if len(v) == 0 {
				return nil, fmt.Errorf("%w: text %d", ErrEmptyEmbedding, start+i)
			}
		}
		out = append(out, vectors...)
	}
	return out, nil
}
