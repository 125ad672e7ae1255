package fsnap

import (
	"context"
	"io"
)

// Predicate decides whether an entry found while listing dir is considered
// at all. Returning false for a directory prunes its whole subtree.
type Predicate func(dir, name string) bool

// FileIO is the file access a File needs for its own operations.
type FileIO interface {
	// Open opens a file for streaming reads.
	Open(path string) (io.ReadCloser, error)

	// ReadFile reads a whole file.
	ReadFile(path string) ([]byte, error)

	// WriteFile replaces the contents of a file, creating it if needed.
	WriteFile(path string, data []byte) error
}

// FilesystemManager provides an interface for filesystem operations.
// It abstracts file access to enable testing without touching the real filesystem.
type FilesystemManager interface {
	FileIO

	// Resolve validates a raw path and returns a Path object.
	Resolve(rawPath string) (*Path, error)

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(path string) error

	// NewFile creates a File bound to this manager with its configured chunk size.
	NewFile(path string) *File

	// Discover recursively finds the files under root accepted by match and by
	// the manager's own ignore rules. A nil match accepts every entry.
	Discover(ctx context.Context, root *Path, match Predicate) ([]*File, error)
}
