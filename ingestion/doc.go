// Package ingestion keeps a vector index in sync with a directory of documents.
//
// An Orchestrator run scans the source directory, classifies every supported
// file against the manifest and then, in order:
//   - deletes the chunks of files that disappeared
//   - extracts and chunks new and modified files on a bounded worker pool
//   - embeds chunks in batches coalesced across files
//   - upserts the vectors and commits each file's manifest entry once all of
//     its chunks are indexed
//
// Unchanged files cost one fingerprint and nothing else. Per-file failures are
// collected in the Report and leave the manifest untouched for that file, so
// the next run retries it. Only manifest corruption, manifest write failures
// and configuration errors abort a run.
package ingestion
