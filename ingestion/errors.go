package ingestion

import "errors"

var (
	// ErrTrackerRequired is returned when a manifest tracker is not provided.
	ErrTrackerRequired = errors.New("manifest tracker required")

	// ErrExtractorRequired is returned when an extractor is not provided.
	ErrExtractorRequired = errors.New("extractor required")

	// ErrBuilderRequired is returned when a chunk builder is not provided.
	ErrBuilderRequired = errors.New("chunk builder required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")

	// ErrRunInProgress is returned when Run is called while another run holds the lock.
	ErrRunInProgress = errors.New("ingestion run already in progress")

	// ErrSourceDir is returned when the source directory cannot be scanned.
	ErrSourceDir = errors.New("source directory unavailable")

	// ErrManifestWrite is returned when a manifest update fails. The run stops.
	ErrManifestWrite = errors.New("manifest write failed")

	// ErrEmbedderUnavailable is returned when the embedding service cannot be
	// reached before any file is processed. The run stops.
	ErrEmbedderUnavailable = errors.New("embedding service unavailable")

	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)
