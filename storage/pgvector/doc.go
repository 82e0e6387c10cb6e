// Package pgvector implements storage.VectorIndex on PostgreSQL with the
// pgvector extension.
//
// Chunks live in a single table keyed by chunk id. Metadata is stored as
// JSONB and filters are evaluated with the containment operator (@>), so a
// filter such as {"year": "2023"} is answered by the GIN index on the column.
// Similarity is cosine similarity, computed as 1 - (embedding <=> query).
package pgvector
