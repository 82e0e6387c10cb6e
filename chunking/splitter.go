package chunking

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// Splitter names accepted by WithSplitter.
const (
	SplitterWindow    = "window"
	SplitterRecursive = "recursive"
)

// splitFunc splits text into parts no longer than size runes, where
// consecutive parts share up to overlap runes.
type splitFunc func(text string, size, overlap int) ([]string, error)

func splitterByName(name string) (splitFunc, error) {
	switch name {
	case "", SplitterWindow:
		return slidingWindow, nil
	case SplitterRecursive:
		return recursiveSplit, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSplitter, name)
	}
}

// slidingWindow cuts text into fixed windows of size runes advancing by
// size-overlap runes. The last window ends at the end of the text.
func slidingWindow(text string, size, overlap int) ([]string, error) {
	if utf8.RuneCountInString(text) <= size {
		return []string{text}, nil
	}

	runes := []rune(text)
	step := size - overlap
	var parts []string
	for start := 0; ; start += step {
		end := min(start+size, len(runes))
		part := strings.TrimSpace(string(runes[start:end]))
		if part != "" {
			parts = append(parts, part)
		}
		if end == len(runes) {
			break
		}
	}
	return parts, nil
}

// recursiveSplit prefers paragraph, line and word boundaries over fixed cuts.
func recursiveSplit(text string, size, overlap int) ([]string, error) {
	if utf8.RuneCountInString(text) <= size {
		return []string{text}, nil
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
	)
	parts, err := splitter.SplitText(text)
	if err != nil {
		return nil, err
	}

	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}
