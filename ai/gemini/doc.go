// Package gemini provides the embedding service backed by Google's Gemini API.
//
// Documents are embedded with the RETRIEVAL_DOCUMENT task type and queries
// with RETRIEVAL_QUERY. Batches larger than MaxBatchSize (at most 100, the
// API limit) are split into several requests.
package gemini
