package manifest

import "errors"

var (
	// ErrStoreRequired is returned when a manifest store is not provided.
	ErrStoreRequired = errors.New("manifest store required")

	// ErrFingerprintFailed indicates a file could not be read for hashing.
	ErrFingerprintFailed = errors.New("fingerprint failed")
)
