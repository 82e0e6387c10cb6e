package chunking

import "errors"

var (
	// ErrInvalidChunkLength is returned for a non-positive maximum chunk length.
	ErrInvalidChunkLength = errors.New("max chunk length must be positive")

	// ErrInvalidOverlap is returned when overlap is negative or not smaller than the chunk length.
	ErrInvalidOverlap = errors.New("overlap must be in [0, max chunk length)")

	// ErrUnknownSplitter is returned for an unrecognised splitter name.
	ErrUnknownSplitter = errors.New("unknown splitter")
)
