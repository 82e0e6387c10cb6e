package extract

import (
	"context"
	"fmt"
	"io"
	"strings"

	"code.sajari.com/docconv"
	"github.com/poiesic/docsync/core"
)

// ExtractDOCX returns one record per non-empty paragraph. Record.Index is the
// 1-based position among the non-empty paragraphs.
func ExtractDOCX(ctx context.Context, r io.ReaderAt, size int64) ([]core.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text, meta, err := docconv.ConvertDocx(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, fmt.Errorf("%w: docx: %w", ErrFormat, err)
	}

	paragraphs := splitParagraphs(text)
	records := make([]core.RawRecord, 0, len(paragraphs))
	for i, p := range paragraphs {
		rec := core.RawRecord{
			Kind:  core.RecordParagraph,
			Index: i + 1,
			Text:  p,
		}
		if title := meta["Title"]; title != "" {
			rec.Metadata = map[string]string{"title": title}
		}
		records = append(records, rec)
	}
	return records, nil
}

// splitParagraphs splits converted document text on line breaks, trimming
// whitespace and dropping empty paragraphs.
func splitParagraphs(text string) []string {
	lines := strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
