package chunking

import (
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/poiesic/docsync/core"
)

// yearTextWindow bounds how much of a record's text is scanned for a year.
const yearTextWindow = 1000

var yearPattern = regexp.MustCompile(`(?:^|\D)((?:19|20)\d{2})(?:\D|$)`)

// YearColumns are CSV column names holding a row's reference year.
var YearColumns = []string{"exercicio", "ano", "num_ano_exercicio", "year"}

// MetadataExtractor derives extra metadata for a record.
// Returned keys are merged into every chunk built from the record.
type MetadataExtractor func(sourcePath string, format core.Format, rec core.RawRecord) map[string]string

// FindYear returns the first standalone 4-digit year between 1900 and 2099 in s.
func FindYear(s string) (string, bool) {
	m := yearPattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ReferenceYear detects the year a record refers to.
// A year in the file name applies to every record of the file. Otherwise CSV
// rows use a year column, and other records the first characters of their
// text. No year is invented.
func ReferenceYear(sourcePath string, format core.Format, rec core.RawRecord) map[string]string {
	if y, ok := FindYear(path.Base(sourcePath)); ok {
		return map[string]string{core.MetaYear: y}
	}

	if format == core.FormatCSV {
		for _, f := range rec.Fields {
			if !slices.Contains(YearColumns, f.Name) {
				continue
			}
			if y, ok := FindYear(strings.TrimSpace(f.Value)); ok {
				return map[string]string{core.MetaYear: y}
			}
		}
	}

	text := rec.Text
	if r := []rune(text); len(r) > yearTextWindow {
		text = string(r[:yearTextWindow])
	}
	if y, ok := FindYear(text); ok {
		return map[string]string{core.MetaYear: y}
	}
	return nil
}
