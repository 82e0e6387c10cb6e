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


// Package search answers natural language queries over the ingested chunks.
//
// The Searcher type combines:
//   - Semantic search using vector embeddings, optionally restricted by a
//     metadata filter such as {"year": "2023"}
//   - Verbatim keyword matching with stop-word filtering, which boosts
//     chunks containing every query word
//
// Search results are scored and ranked to provide the most relevant chunks
// for a given query.
package search
