package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/docsync/core"
	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// candidate delimiters in order of preference on ties
var csvDelimiters = []rune{';', ',', '\t', '|'}

// ExtractCSV returns one record per data row using the default logger.
func ExtractCSV(ctx context.Context, r io.ReaderAt, size int64) ([]core.RawRecord, error) {
	return extractCSV(ctx, r, size, slog.Default())
}

// extractCSV parses a delimited file with a header row.
//
// Header names are trimmed and lowercased; blank names become column_N and
// repeated names get a numeric suffix. Every row is serialized as
// "name: value" pairs joined by " | " in column order, with all columns present.
// Rows whose cells are all null after trimming are skipped, as are rows with
// more cells than the header. Short rows are padded with empty cells.
// Record.Index is the 1-based data row number counting skipped rows, so
// positions stay stable when a blank row is filled in.
func extractCSV(ctx context.Context, r io.ReaderAt, size int64, logger *slog.Logger) ([]core.RawRecord, error) {
	data, err := io.ReadAll(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		data, err = charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("%w: csv: decoding latin1: %w", ErrFormat, err)
		}
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: csv header: %w", ErrFormat, err)
	}
	columns := normalizeHeader(header)

	var (
		records []core.RawRecord
		rowNum  int
		skipped int
	)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNum++
		if rowNum%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			skipped++
			logger.Warn("skipping malformed csv row", "row", rowNum, "err", err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv row %d: %w", ErrFormat, rowNum, err)
		}
		if len(row) > len(columns) {
			skipped++
			logger.Warn("skipping csv row with extra fields", "row", rowNum, "fields", len(row), "columns", len(columns))
			continue
		}

		fields := make([]core.Field, len(columns))
		empty := true
		for i, name := range columns {
			var value string
			if i < len(row) {
				value = strings.TrimSpace(row[i])
			}
			if !isNull(value) {
				empty = false
			}
			fields[i] = core.Field{Name: name, Value: value}
		}
		if empty {
			continue
		}

		records = append(records, core.RawRecord{
			Kind:   core.RecordRow,
			Index:  rowNum,
			Text:   rowNarrative(fields),
			Fields: fields,
		})
	}

	if skipped > 0 {
		logger.Info("csv rows skipped", "skipped", skipped, "kept", len(records))
	}
	return records, nil
}

// rowNarrative serializes fields as "name: value | name: value".
func rowNarrative(fields []core.Field) string {
	var sb strings.Builder
	for i, f := range fields {
		if i > 0 {
			sb.WriteString(" | ")
		}
		sb.WriteString(f.Name)
		sb.WriteString(": ")
		sb.WriteString(f.Value)
	}
	return sb.String()
}

func normalizeHeader(header []string) []string {
	columns := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = name + "_" + strconv.Itoa(n)
		}
		columns[i] = name
	}
	return columns
}

func isNull(v string) bool {
	switch strings.ToLower(v) {
	case "", "null", "nan":
		return true
	}
	return false
}

// sniffDelimiter picks the candidate delimiter occurring most often outside
// quotes on the first line. Defaults to comma.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}

	counts := make(map[rune]int, len(csvDelimiters))
	inQuotes := false
	for _, r := range string(line) {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[r]++
		}
	}

	best, bestCount := ',', 0
	for _, d := range csvDelimiters {
		if counts[d] > bestCount {
			best, bestCount = d, counts[d]
		}
	}
	return best
}
