package fsnap

import "bytes"

// chunkEqual reports whether chunk equals snapshot[offset:offset+len(chunk)].
// A range running past the end of the snapshot is never equal.
func chunkEqual(chunk, snapshot []byte, offset int) bool {
	end := offset + len(chunk)
	if offset < 0 || end > len(snapshot) {
		return false
	}
	return bytes.Equal(chunk, snapshot[offset:end])
}
