package extract

import (
	"errors"
	"fmt"

	"github.com/poiesic/docsync/core"
)

var (
	// ErrFormat indicates file content that its extractor cannot parse.
	// Retrying will fail again until the file changes.
	ErrFormat = errors.New("unparseable content")

	// ErrUnreadable indicates an I/O failure reading the file. It may succeed later.
	ErrUnreadable = errors.New("file unreadable")

	// ErrUnsupportedFormat indicates no extractor is registered for the format.
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// Error describes a failed extraction.
type Error struct {
	Path   string
	Format core.Format
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", e.Path, e.Format, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth retrying on a later run without the file changing.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnreadable)
}
