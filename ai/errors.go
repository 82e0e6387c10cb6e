package ai

import "errors"

var (
	// ErrEmbeddingCountMismatch indicates a provider returned a different number
	// of vectors than texts submitted.
	ErrEmbeddingCountMismatch = errors.New("embedding count mismatch")

	// ErrEmptyEmbedding indicates a provider returned an empty vector.
	ErrEmptyEmbedding = errors.New("empty embedding")
)
