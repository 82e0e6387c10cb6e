package badger

// Key prefixes for different data types
const (
	manifestPrefix = "manifest:"
	chunkPrefix    = "chunk:"
)

// makeManifestKey generates a key for a manifest entry by relative path.
// Format: manifest:path
func makeManifestKey(path string) []byte {
	buf := make([]byte, len(manifestPrefix)+len(path))
	offset := copy(buf, manifestPrefix)
	copy(buf[offset:], path)
	return buf
}

// pathFromManifestKey strips the manifest prefix from a key.
func pathFromManifestKey(key []byte) string {
	return string(key[len(manifestPrefix):])
}

// makeChunkKey generates a key for an index entry by chunk id.
// Format: chunk:id
func makeChunkKey(id string) []byte {
	buf := make([]byte, len(chunkPrefix)+len(id))
	offset := copy(buf, chunkPrefix)
	copy(buf[offset:], id)
	return buf
}
