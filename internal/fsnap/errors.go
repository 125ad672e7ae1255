package fsnap

import (
	"errors"
	"fmt"
	"io/fs"
)

// ErrNoSnapshot is returned by operations that need a captured snapshot when
// the file has never been read.
var ErrNoSnapshot = errors.New("no snapshot captured")

// ErrSnapshotNotFound is returned by a Vault when no blob is stored under a key.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// ErrSessionNotFound is returned when a session ID does not match any
// recorded session.
var ErrSessionNotFound = errors.New("session not found")

// IOError reports a failed filesystem operation on a single path.
type IOError struct {
	Op   string // "readdir", "stat", "open", "read" or "write"
	Path string
	Err  error
}

// NewIOError wraps err for op on path. A *fs.PathError is flattened so the
// path is not repeated in the message.
func NewIOError(op, path string, err error) *IOError {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		err = pe.Err
	}
	return &IOError{Op: op, Path: path, Err: err}
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
