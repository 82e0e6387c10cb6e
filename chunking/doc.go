// Package chunking turns extracted records into identified, annotated chunks.
//
// Every chunk id is derived from the source path and the chunk's position in
// the file, so re-ingesting a modified file overwrites chunks in place.
// PDF pages and DOCX paragraphs longer than the maximum chunk length are split
// into overlapping windows. CSV rows are never split.
package chunking
