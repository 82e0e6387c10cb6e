package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/poiesic/docsync/core"
)

// ExtractFunc extracts records from size bytes of content readable through r.
type ExtractFunc func(ctx context.Context, r io.ReaderAt, size int64) ([]core.RawRecord, error)

// Extractor dispatches extraction on the file format.
// It is safe for concurrent use once constructed.
type Extractor struct {
	funcs  map[core.Format]ExtractFunc
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor) error

// WithExtractFunc replaces the extraction function for one format.
func WithExtractFunc(format core.Format, fn ExtractFunc) Option {
	return func(e *Extractor) error {
		if err := core.ValidateFormat(format); err != nil {
			return err
		}
		if fn == nil {
			return fmt.Errorf("nil extract func for %s", format)
		}
		e.funcs[format] = fn
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// New creates an Extractor with the built-in PDF, DOCX and CSV extractors.
func New(opts ...Option) (*Extractor, error) {
	e := &Extractor{
		logger: slog.Default(),
	}
	e.funcs = map[core.Format]ExtractFunc{
		core.FormatPDF:  ExtractPDF,
		core.FormatDOCX: ExtractDOCX,
		core.FormatCSV: func(ctx context.Context, r io.ReaderAt, size int64) ([]core.RawRecord, error) {
			return extractCSV(ctx, r, size, e.logger)
		},
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "extractor")
	return e, nil
}

// Extract reads the file at path and returns its records in document order.
func (e *Extractor) Extract(ctx context.Context, path string, format core.Format) ([]core.RawRecord, error) {
	fn, ok := e.funcs[format]
	if !ok {
		return nil, &Error{Path: path, Format: format, Err: ErrUnsupportedFormat}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Path: path, Format: format, Err: fmt.Errorf("%w: %w", ErrUnreadable, err)}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &Error{Path: path, Format: format, Err: fmt.Errorf("%w: %w", ErrUnreadable, err)}
	}

	records, err := fn(ctx, f, info.Size())
	if err != nil {
		return nil, &Error{Path: path, Format: format, Err: err}
	}

	e.logger.Debug("extracted records", "path", path, "format", format, "records", len(records))
	return records, nil
}
