package extract

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/docsync/core"
	"github.com/tmc/langchaingo/documentloaders"
)

// ExtractPDF returns one record per non-blank page. Record.Index is the 1-based page number.
func ExtractPDF(ctx context.Context, r io.ReaderAt, size int64) (records []core.RawRecord, err error) {
	// The underlying PDF reader panics on some malformed files.
	defer func() {
		if p := recover(); p != nil {
			records = nil
			err = fmt.Errorf("%w: pdf: %v", ErrFormat, p)
		}
	}()

	docs, err := documentloaders.NewPDF(r, size).Load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: pdf: %w", ErrFormat, err)
	}

	records = make([]core.RawRecord, 0, len(docs))
	for i, doc := range docs {
		text := strings.TrimSpace(doc.PageContent)
		if text == "" {
			continue
		}
		page := i + 1
		if p, ok := doc.Metadata["page"].(int); ok {
			page = p
		}
		records = append(records, core.RawRecord{
			Kind:  core.RecordPage,
			Index: page,
			Text:  text,
		})
	}
	return records, nil
}
