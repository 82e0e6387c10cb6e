package chunking

import (
	"fmt"
	"log/slog"
	"maps"
	"path"
	"strconv"
	"strings"

	"github.com/poiesic/docsync/core"
)

const (
	// DefaultMaxChunkLength is the default window size in runes.
	DefaultMaxChunkLength = 1000
	// DefaultOverlap is the default number of runes shared by consecutive windows.
	DefaultOverlap = 200
)

// Builder converts raw records into chunks.
// It is stateless after construction and safe for concurrent use.
type Builder struct {
	maxLength  int
	overlap    int
	splitName  string
	split      splitFunc
	extractors []MetadataExtractor
	logger     *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder) error

// WithMaxChunkLength sets the maximum PDF/DOCX chunk length in runes.
func WithMaxChunkLength(n int) Option {
	return func(b *Builder) error {
		if n <= 0 {
			return ErrInvalidChunkLength
		}
		b.maxLength = n
		return nil
	}
}

// WithOverlap sets the number of runes shared by consecutive sub-chunks.
func WithOverlap(n int) Option {
	return func(b *Builder) error {
		b.overlap = n
		return nil
	}
}

// WithSplitter selects the splitting strategy: SplitterWindow (default) or SplitterRecursive.
func WithSplitter(name string) Option {
	return func(b *Builder) error {
		fn, err := splitterByName(name)
		if err != nil {
			return err
		}
		b.splitName = name
		b.split = fn
		return nil
	}
}

// WithMetadataExtractor adds an extractor run after the defaults.
func WithMetadataExtractor(fn MetadataExtractor) Option {
	return func(b *Builder) error {
		if fn != nil {
			b.extractors = append(b.extractors, fn)
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) error {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
		return nil
	}
}

// NewBuilder creates a Builder. The reference-year extractor is always installed.
func NewBuilder(opts ...Option) (*Builder, error) {
	b := &Builder{
		maxLength:  DefaultMaxChunkLength,
		overlap:    DefaultOverlap,
		splitName:  SplitterWindow,
		split:      slidingWindow,
		extractors: []MetadataExtractor{ReferenceYear},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	if b.overlap < 0 || b.overlap >= b.maxLength {
		return nil, fmt.Errorf("%w: overlap %d, max length %d", ErrInvalidOverlap, b.overlap, b.maxLength)
	}
	b.logger = b.logger.With("component", "chunk-builder")
	return b, nil
}

// Build converts the records of the file at sourcePath (relative, slash separated)
// into chunks in document order.
func (b *Builder) Build(sourcePath string, format core.Format, records []core.RawRecord) ([]core.Chunk, error) {
	if err := core.ValidatePath(sourcePath); err != nil {
		return nil, err
	}

	base := map[string]string{
		core.MetaSource: sourcePath,
		core.MetaFile:   path.Base(sourcePath),
		core.MetaFormat: format.String(),
	}
	if dir := path.Dir(sourcePath); dir != "." {
		base[core.MetaDir] = path.Base(dir)
	}

	chunks := make([]core.Chunk, 0, len(records))
	for _, rec := range records {
		text := strings.TrimSpace(rec.Text)
		if text == "" {
			continue
		}

		meta := maps.Clone(base)
		maps.Copy(meta, rec.Metadata)
		for _, extract := range b.extractors {
			maps.Copy(meta, extract(sourcePath, format, rec))
		}
		meta[core.MetaKind] = string(rec.Kind)
		meta[core.MetaIndex] = strconv.Itoa(rec.Index)

		if format == core.FormatCSV {
			position := string(rec.Kind) + ":" + strconv.Itoa(rec.Index)
			chunks = append(chunks, b.newChunk(sourcePath, position, "source: "+sourcePath+"\n"+text, meta, 0, 1))
			continue
		}

		parts, err := b.split(text, b.maxLength, b.overlap)
		if err != nil {
			return nil, fmt.Errorf("splitting %s %s %d: %w", sourcePath, rec.Kind, rec.Index, err)
		}
		for i, part := range parts {
			position := string(rec.Kind) + ":" + strconv.Itoa(rec.Index) + "#" + strconv.Itoa(i)
			chunks = append(chunks, b.newChunk(sourcePath, position, part, meta, i, len(parts)))
		}
	}

	b.logger.Debug("built chunks", "path", sourcePath, "records", len(records), "chunks", len(chunks))
	return chunks, nil
}

func (b *Builder) newChunk(sourcePath, position, text string, meta map[string]string, part, parts int) core.Chunk {
	m := maps.Clone(meta)
	m[core.MetaPosition] = position
	m[core.MetaPart] = strconv.Itoa(part)
	m[core.MetaParts] = strconv.Itoa(parts)
	return core.Chunk{
		ID:         core.ChunkID(sourcePath, position),
		SourcePath: sourcePath,
		Position:   position,
		Text:       text,
		Metadata:   m,
	}
}

// MaxChunkLength returns the configured maximum chunk length in runes.
func (b *Builder) MaxChunkLength() int {
	return b.maxLength
}

// Overlap returns the configured overlap in runes.
func (b *Builder) Overlap() int {
	return b.overlap
}

// Splitter returns the configured splitter name.
func (b *Builder) Splitter() string {
	return b.splitName
}
