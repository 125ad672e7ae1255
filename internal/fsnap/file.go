package fsnap

import (
	"errors"
	"fmt"
	"io"
)

// DefaultChunkSize is the scratch buffer capacity used when comparing a file
// against its snapshot.
const DefaultChunkSize = 4096

// snapshotState is either unread or holds the bytes of the last read.
type snapshotState struct {
	read bool
	data []byte
}

// File is a single discovered file together with the snapshot of its content
// taken at the last explicit read.
//
// A File is not safe for concurrent use; callers must sequence its operations.
type File struct {
	path string
	fsio FileIO

	snapshot snapshotState

	// scratch is allocated on the first comparison and reused afterwards.
	// Its capacity never changes. After a comparison scratch[:scratchLen]
	// holds the last chunk read, not the whole file.
	chunkSize  int
	scratch    []byte
	scratchLen int
}

// NewFile creates a File for path with no snapshot. chunkSize is the fixed
// scratch capacity; values <= 0 select DefaultChunkSize.
func NewFile(path string, fsio FileIO, chunkSize int) *File {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &File{
		path:      path,
		fsio:      fsio,
		chunkSize: chunkSize,
	}
}

// Path returns the file path the File was created with.
func (f *File) Path() string {
	return f.path
}

// ChunkSize returns the scratch buffer capacity.
func (f *File) ChunkSize() int {
	return f.chunkSize
}

// Snapshot returns the captured content and whether a snapshot exists.
func (f *File) Snapshot() ([]byte, bool) {
	return f.snapshot.data, f.snapshot.read
}

// ReadContent reads the whole file and replaces the snapshot with its bytes.
// On failure the previous snapshot is left untouched.
func (f *File) ReadContent() ([]byte, error) {
	data, err := f.fsio.ReadFile(f.path)
	if err != nil {
		return nil, NewIOError("read", f.path, err)
	}
	f.snapshot = snapshotState{read: true, data: data}
	return data, nil
}

// LoadSnapshot installs data as the snapshot, as if ReadContent had returned
// it. It is used to rehydrate a baseline captured by an earlier process.
// The File takes ownership of data.
func (f *File) LoadSnapshot(data []byte) {
	if data == nil {
		data = []byte{}
	}
	f.snapshot = snapshotState{read: true, data: data}
}

// HasChanges reports whether the bytes on disk differ from the snapshot.
// The file is streamed through the scratch buffer one chunk at a time and
// reading stops at the first mismatching chunk. A file without a snapshot is
// reported as unchanged.
func (f *File) HasChanges() (bool, error) {
	if !f.snapshot.read {
		return false, nil
	}
	if f.scratch == nil {
		f.scratch = make([]byte, f.chunkSize)
	}

	r, err := f.fsio.Open(f.path)
	if err != nil {
		return false, NewIOError("open", f.path, err)
	}
	defer r.Close()

	snapshot := f.snapshot.data
	offset := 0
	for {
		n, err := io.ReadFull(r, f.scratch)
		f.scratchLen = n

		last := false
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			last = true
		} else if err != nil {
			return false, NewIOError("read", f.path, err)
		}

		if !chunkEqual(f.scratch[:n], snapshot, offset) {
			return true, nil
		}
		offset += n

		if last {
			break
		}
	}

	// A file shorter than the snapshot matches chunk by chunk but is still
	// a change.
	return offset != len(snapshot), nil
}

// Restore overwrites the file with the contents of the scratch buffer, which
// is the last chunk read by the most recent HasChanges call. It does NOT
// write the snapshot back: after a mismatch in chunk k the file ends up
// holding only that chunk, and without a prior HasChanges the file is
// truncated to zero bytes. Use RestoreSnapshot to revert a file.
func (f *File) Restore() error {
	if err := f.fsio.WriteFile(f.path, f.scratch[:f.scratchLen]); err != nil {
		return NewIOError("write", f.path, err)
	}
	return nil
}

// RestoreSnapshot overwrites the file with the full snapshot.
func (f *File) RestoreSnapshot() error {
	if !f.snapshot.read {
		return fmt.Errorf("restoring %s: %w", f.path, ErrNoSnapshot)
	}
	if err := f.fsio.WriteFile(f.path, f.snapshot.data); err != nil {
		return NewIOError("write", f.path, err)
	}
	return nil
}
