package milvus

import "errors"

var (
	// ErrInvalidConfig indicates a Config that failed validation.
	ErrInvalidConfig = errors.New("invalid milvus config")

	// ErrCollectionMissing indicates a query or count against a collection
	// that has not been created yet.
	ErrCollectionMissing = errors.New("collection not created")
)
