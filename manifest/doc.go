// Package manifest tracks which version of every source file is in the index.
//
// The Tracker keeps one entry per relative path holding the content
// fingerprint of the last fully indexed version and the chunk ids written for
// it. Classify compares the current directory listing against those entries
// and partitions files into new, modified, unchanged and deleted.
//
// Change detection is content-addressed: touching a file without changing its
// bytes leaves it unchanged. A file indexed with a different embedding model
// than the tracker's current one is reported as modified.
package manifest
