// Package extract turns source files into ordered raw records.
//
// Each supported format has an ExtractFunc:
//
//   - PDF: one record per non-blank page, in reading order
//   - DOCX: one record per non-empty paragraph, in document order
//   - CSV: one record per data row, fields serialized as "column: value" pairs
//
// Failures are returned as *Error wrapping ErrFormat when the content cannot be
// parsed and ErrUnreadable when the file could not be read.
package extract
