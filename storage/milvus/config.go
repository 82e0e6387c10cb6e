package milvus

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// DefaultCollection is the collection used when none is configured.
const DefaultCollection = "docsync_chunks"

var collectionPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,254}$`)

// Config holds the connection and collection settings.
type Config struct {
	// Address is the Milvus server address (host:port).
	Address string

	// Database is the database name to use.
	Database string

	// Username for authentication.
	Username string

	// Password for authentication.
	Password string

	// Collection holds the chunks.
	Collection string

	// Dimension of the embedding field. Zero defers collection creation
	// until the first upsert reveals it.
	Dimension int

	// Timeout bounds connection setup and Close.
	Timeout time.Duration
}

// DefaultConfig returns a Config for a local standalone server.
func DefaultConfig() *Config {
	return &Config{
		Address:    "localhost:19530",
		Database:   "default",
		Collection: DefaultCollection,
		Timeout:    30 * time.Second,
	}
}

// Validate reports every problem with the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Address == "" {
		errs = append(errs, errors.New("milvus address is required"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("milvus timeout must be positive"))
	}
	if !collectionPattern.MatchString(c.Collection) {
		errs = append(errs, fmt.Errorf("invalid milvus collection name %q", c.Collection))
	}
	if c.Dimension < 0 {
		errs = append(errs, fmt.Errorf("milvus dimension must not be negative, got %d", c.Dimension))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
