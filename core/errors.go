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

import "errors"

// Domain validation errors
var (
	// ErrInvalidManifestEntry indicates a ManifestEntry failed validation.
	ErrInvalidManifestEntry = errors.New("invalid manifest entry")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidIndexEntry indicates an IndexEntry failed validation.
	ErrInvalidIndexEntry = errors.New("invalid index entry")

	// ErrEmptyPath indicates the source path is empty.
	ErrEmptyPath = errors.New("path cannot be empty")

	// ErrEmptyContent indicates the text field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyID indicates an identifier is empty.
	ErrEmptyID = errors.New("id cannot be empty")

	// ErrEmptyFingerprint indicates the fingerprint is empty.
	ErrEmptyFingerprint = errors.New("fingerprint cannot be empty")

	// ErrEmptyVector indicates an index entry has no embedding.
	ErrEmptyVector = errors.New("vector cannot be empty")

	// ErrInvalidFormat indicates an unknown Format value.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrAbsolutePath indicates a path that is not relative to the source directory.
	ErrAbsolutePath = errors.New("path must be relative")
)
