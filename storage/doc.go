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


// Package storage provides the storage abstraction layer for docsync.
//
// Two interfaces decouple persistence from the ingestion logic:
//
//   - ManifestStore: the per-file manifest of content fingerprints and owned chunk ids
//   - VectorIndex: the embedded chunks and nearest-neighbour queries
//
// # Implementations
//
//   - storage/badger: embedded BadgerDB manifest store and a brute-force local index
//   - storage/pgvector: PostgreSQL with the pgvector extension
//   - storage/milvus: Milvus vector database
//
// Use in tests with in-memory storage:
//
//	store, index, backend, err := badger.NewMemoryStores()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
// # Thread Safety
//
// All implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All methods accept context.Context for cancellation
// and timeout support.
package storage
