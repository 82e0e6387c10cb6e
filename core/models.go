package core

import (
	"encoding/hex"
	"io"
	"path"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// Format identifies the container format of a source file.
type Format int

const (
	// FormatUnknown is the zero value and is never ingested.
	FormatUnknown Format = iota
	// FormatPDF is a paginated PDF document.
	FormatPDF
	// FormatDOCX is an Office Open XML word processing document.
	FormatDOCX
	// FormatCSV is a delimited tabular file with a header row.
	FormatCSV
)

// String returns the lowercase name used in metadata and logs.
func (f Format) String() string {
	switch f {
	case FormatPDF:
		return "pdf"
	case FormatDOCX:
		return "docx"
	case FormatCSV:
		return "csv"
	default:
		return "unknown"
	}
}

// FormatFromPath maps a file extension to a Format.
// Returns FormatUnknown for unsupported extensions.
func FormatFromPath(p string) Format {
	switch strings.ToLower(path.Ext(p)) {
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDOCX
	case ".csv":
		return FormatCSV
	default:
		return FormatUnknown
	}
}

// ParseFormat parses a format name as produced by Format.String.
func ParseFormat(name string) Format {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "pdf":
		return FormatPDF
	case "docx":
		return FormatDOCX
	case "csv":
		return FormatCSV
	default:
		return FormatUnknown
	}
}

// Fingerprint is the hex encoded BLAKE2b-256 digest of a file's bytes.
type Fingerprint string

// ComputeFingerprint hashes an in-memory byte slice.
func ComputeFingerprint(data []byte) Fingerprint {
	h, _ := blake2b.New(32, nil)
	h.Write(data)
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// FingerprintReader streams r through the hash without buffering the whole content.
func FingerprintReader(r io.Reader) (Fingerprint, error) {
	h, _ := blake2b.New(32, nil)
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil))), nil
}

// ChunkID derives the stable identifier of a chunk from the relative path of
// its source file and its position inside that file.
// The same (path, position) pair always yields the same id.
func ChunkID(sourcePath, position string) string {
	h, _ := blake2b.New(16, nil) // 16 bytes = 128 bits
	h.Write([]byte(sourcePath))
	h.Write([]byte{0})
	h.Write([]byte(position))
	return hex.EncodeToString(h.Sum(nil))
}

// SourceFile is a candidate file discovered under the source directory.
type SourceFile struct {
	Path        string // Slash separated, relative to the source directory
	AbsPath     string
	Fingerprint Fingerprint // Empty until classified
	Size        int64
	ModTime     time.Time // Advisory only; never used for change detection
	Format      Format
}

// ManifestEntry records the last fully indexed version of a source file.
type ManifestEntry struct {
	Path           string
	Fingerprint    Fingerprint
	Format         Format
	Size           int64
	ModTime        time.Time
	ChunkIDs       []string // Exactly the ids written to the index for this version
	EmbeddingModel string
	LastIngestedAt time.Time
}

// RecordKind names the structural unit a raw record was extracted from.
type RecordKind string

const (
	RecordPage      RecordKind = "page"
	RecordParagraph RecordKind = "paragraph"
	RecordRow       RecordKind = "row"
)

// Field is a single named CSV cell.
type Field struct {
	Name  string
	Value string
}

// RawRecord is an intermediate extraction result before chunking.
type RawRecord struct {
	Kind     RecordKind
	Index    int // 1-based page, paragraph or data row number
	Text     string
	Fields   []Field // Populated for CSV rows only
	Metadata map[string]string
}

// Chunk is the unit submitted for embedding.
type Chunk struct {
	ID         string
	SourcePath string
	Position   string
	Text       string
	Metadata   map[string]string
}

// IndexEntry is a chunk together with its embedding, as stored in a vector index.
type IndexEntry struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]string
}

// QueryResult is a single nearest-neighbour hit.
type QueryResult struct {
	ID       string
	Score    float32
	Text     string
	Metadata map[string]string
}

// Filter restricts a query to entries whose metadata matches every key exactly.
type Filter map[string]string

// Matches reports whether metadata satisfies every constraint in f.
func (f Filter) Matches(metadata map[string]string) bool {
	for k, v := range f {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// Metadata keys written by the chunk builder.
const (
	MetaSource   = "source"
	MetaFile     = "file"
	MetaDir      = "dir"
	MetaFormat   = "format"
	MetaPosition = "position"
	MetaKind     = "kind"
	MetaIndex    = "index"
	MetaPart     = "part"
	MetaParts    = "parts"
	MetaYear     = "year"
)
