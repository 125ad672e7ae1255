package fsnap

import "io"

// Vault stores captured snapshot bytes outside the working tree.
// All operations stream through io.Reader/io.Writer. Keys are relative
// slash-separated paths such as "<sessionID>/<fileID>".
type Vault interface {
	// PutSnapshot stores the blob under key, replacing any previous blob.
	// size is the number of bytes that will be read from r.
	PutSnapshot(key string, r io.Reader, size int64) error

	// GetSnapshot writes the blob stored under key to w. A missing key
	// returns an error wrapping ErrSnapshotNotFound.
	GetSnapshot(key string, w io.Writer) error

	// DeleteSnapshot removes the blob stored under key. Deleting a missing
	// key is not an error.
	DeleteSnapshot(key string) error

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
