package pgvector

import "errors"

var (
	// ErrInvalidTable indicates a table name that is not a plain SQL identifier.
	ErrInvalidTable = errors.New("invalid table name")

	// ErrURLRequired indicates a missing connection URL.
	ErrURLRequired = errors.New("database URL required")
)
