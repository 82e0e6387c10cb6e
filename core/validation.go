// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"path"
)

// ValidateManifestEntry validates a ManifestEntry according to domain rules.
//
// Validation rules:
//   - Path must be non-empty and relative
//   - Fingerprint must not be empty
//   - Format must be a known format
//
// NOT validated:
//   - ChunkIDs (an empty file legitimately owns zero chunks)
//   - EmbeddingModel (empty when the embedder does not report one)
func ValidateManifestEntry(entry *ManifestEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry is nil", ErrInvalidManifestEntry)
	}

	if err := ValidatePath(entry.Path); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidManifestEntry, err)
	}

	if entry.Fingerprint == "" {
		return fmt.Errorf("%w: %w", ErrInvalidManifestEntry, ErrEmptyFingerprint)
	}

	if err := ValidateFormat(entry.Format); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidManifestEntry, err)
	}

	return nil
}

// ValidateChunk validates a Chunk before it is sent for embedding.
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyID)
	}

	if chunk.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}

	if err := ValidatePath(chunk.SourcePath); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, err)
	}

	return nil
}

// ValidateIndexEntry validates an IndexEntry before it is upserted.
func ValidateIndexEntry(entry *IndexEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry is nil", ErrInvalidIndexEntry)
	}

	if entry.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidIndexEntry, ErrEmptyID)
	}

	if len(entry.Vector) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidIndexEntry, ErrEmptyVector)
	}

	return nil
}

// ValidateFormat validates that a Format has a known value.
func ValidateFormat(format Format) error {
	if format != FormatPDF && format != FormatDOCX && format != FormatCSV {
		return fmt.Errorf("%w: value %d", ErrInvalidFormat, format)
	}
	return nil
}

// ValidatePath checks that p is a non-empty relative slash path.
func ValidatePath(p string) error {
	if p == "" {
		return ErrEmptyPath
	}
	if path.IsAbs(p) {
		return fmt.Errorf("%w: %s", ErrAbsolutePath, p)
	}
	return nil
}
