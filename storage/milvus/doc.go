// Package milvus implements storage.VectorIndex on a Milvus collection.
//
// Each chunk is one row keyed by its chunk id. The source, format and year
// metadata keys are promoted to scalar columns so filters on them run inside
// Milvus; the full metadata map travels as a JSON string. Similarity is
// cosine, so scores are comparable with the other index backends.
package milvus
