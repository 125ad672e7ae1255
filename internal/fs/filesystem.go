package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"fsnap-go/internal/fsnap"
)

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
// It performs actual filesystem operations using the os package.
type OSFilesystemManager struct {
	ignorePatterns []string
	chunkSize      int
}

// NewOSFilesystemManager creates a new filesystem manager that operates on the real filesystem.
// ignorePatterns are applied to every discovery in addition to the root's
// ignore file. chunkSize is the scratch capacity of the Files it creates.
func NewOSFilesystemManager(ignorePatterns []string, chunkSize int) *OSFilesystemManager {
	if chunkSize <= 0 {
		chunkSize = fsnap.DefaultChunkSize
	}
	return &OSFilesystemManager{
		ignorePatterns: ignorePatterns,
		chunkSize:      chunkSize,
	}
}

// Resolve validates a raw path and returns a Path object.
func (m *OSFilesystemManager) Resolve(rawPath string) (*fsnap.Path, error) {
	// Convert to absolute path
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	// Check for special file types we don't support
	mode := info.Mode()
	if mode&os.ModeDevice != 0 {
		return nil, fmt.Errorf("device files not supported: %s", absPath)
	}
	if mode&os.ModeNamedPipe != 0 {
		return nil, fmt.Errorf("named pipes not supported: %s", absPath)
	}
	if mode&os.ModeSocket != 0 {
		return nil, fmt.Errorf("sockets not supported: %s", absPath)
	}

	return fsnap.NewPath(absPath, info.IsDir(), info), nil
}

// Open opens a file for reading.
func (m *OSFilesystemManager) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// ReadFile reads a whole file.
func (m *OSFilesystemManager) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile truncates and rewrites a file. An existing file keeps its mode.
func (m *OSFilesystemManager) WriteFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0644)
}

// ReadDir lists a directory.
func (m *OSFilesystemManager) ReadDir(path string) ([]fs.DirEntry, error) {
	return os.ReadDir(path)
}

// MkdirAll creates a directory and any missing parents.
func (m *OSFilesystemManager) MkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

// NewFile creates a File backed by the real filesystem.
func (m *OSFilesystemManager) NewFile(path string) *fsnap.File {
	return fsnap.NewFile(path, m, m.chunkSize)
}

// Discover finds the files under root that pass both the ignore rules and match.
// Symlinks are never followed during the walk; one is returned only when it
// resolves to something other than a directory.
func (m *OSFilesystemManager) Discover(ctx context.Context, root *fsnap.Path, match fsnap.Predicate) ([]*fsnap.File, error) {
	if !root.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", root.String())
	}

	filePatterns, err := ParseIgnoreFile(filepath.Join(root.String(), IgnoreFileName))
	if err != nil {
		return nil, err
	}
	patterns := append(append([]string{}, m.ignorePatterns...), filePatterns...)
	ignore := NewIgnoreMatcher(patterns).Predicate(root.String())

	pred := func(dir, name string) bool {
		if !ignore(dir, name) {
			return false
		}
		return match == nil || match(dir, name)
	}

	files, err := Discover(ctx, m, root.String(), pred, m.chunkSize)
	if err != nil {
		return nil, err
	}

	kept := files[:0]
	for _, f := range files {
		ok, err := readable(f.Path())
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, f)
		}
	}
	return kept, nil
}

// readable reports whether a discovered entry can be read as a file. Symlinks
// to directories and dangling symlinks are not, and neither is an entry that
// vanished after it was listed.
func readable(path string) (bool, error) {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fsnap.NewIOError("stat", path, err)
	}
	if info.Mode()&fs.ModeSymlink == 0 {
		return true, nil
	}

	target, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fsnap.NewIOError("stat", path, err)
	}
	return !target.IsDir(), nil
}

// Compile-time check that OSFilesystemManager implements fsnap.FilesystemManager interface
var _ fsnap.FilesystemManager = (*OSFilesystemManager)(nil)
