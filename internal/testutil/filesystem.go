package testutil

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"testing/fstest"
	"time"

	fsnapfs "fsnap-go/internal/fs"
	"fsnap-go/internal/fsnap"
)

// MockFilesystemManager is an in-memory filesystem for testing, backed by
// fstest.MapFS. Paths are absolute slash paths such as "/home/user/a.txt".
// Any operation can be made to fail for a path with FailOn.
type MockFilesystemManager struct {
	mu        sync.RWMutex
	fsys      fstest.MapFS
	failures  map[string]error
	chunkSize int
}

// NewMockFilesystemManager creates a new mock filesystem using the default chunk size.
func NewMockFilesystemManager() *MockFilesystemManager {
	return NewMockFilesystemManagerWithChunkSize(fsnap.DefaultChunkSize)
}

// NewMockFilesystemManagerWithChunkSize creates a mock filesystem whose Files
// compare in chunks of chunkSize bytes.
func NewMockFilesystemManagerWithChunkSize(chunkSize int) *MockFilesystemManager {
	return &MockFilesystemManager{
		fsys:      fstest.MapFS{},
		failures:  make(map[string]error),
		chunkSize: chunkSize,
	}
}

// AddFile adds a file to the mock filesystem. Parent directories are implied.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fsys[mapKey(path)] = &fstest.MapFile{
		Data:    append([]byte(nil), content...),
		Mode:    0644,
		ModTime: time.Now(),
	}
}

// AddDirectory adds an empty directory to the mock filesystem.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fsys[mapKey(path)] = &fstest.MapFile{
		Mode:    fs.ModeDir | 0755,
		ModTime: time.Now(),
	}
}

// RemoveFile deletes a file from the mock filesystem.
func (m *MockFilesystemManager) RemoveFile(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fsys, mapKey(path))
}

// Content returns the bytes of a file and whether it exists.
func (m *MockFilesystemManager) Content(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.fsys[mapKey(path)]
	if !ok || f.Mode.IsDir() {
		return nil, false
	}
	return append([]byte(nil), f.Data...), true
}

// FailOn makes op ("open", "read", "write", "readdir" or "mkdir") on path
// return err until ClearFailures is called.
func (m *MockFilesystemManager) FailOn(op, path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op+" "+mapKey(path)] = err
}

// ClearFailures removes every injected failure.
func (m *MockFilesystemManager) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = make(map[string]error)
}

func (m *MockFilesystemManager) failure(op, path string) error {
	return m.failures[op+" "+mapKey(path)]
}

func (m *MockFilesystemManager) Resolve(rawPath string) (*fsnap.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	info, err := fs.Stat(m.fsys, mapKey(absPath))
	if err != nil {
		return nil, fmt.Errorf("file not found: %s", absPath)
	}
	return fsnap.NewPath(absPath, info.IsDir(), info), nil
}

func (m *MockFilesystemManager) Open(path string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure("open", path); err != nil {
		return nil, err
	}
	f, err := m.fsys.Open(mapKey(path))
	if err != nil {
		return nil, err
	}
	if err := m.failure("read", path); err != nil {
		return &failingReader{File: f, err: err}, nil
	}
	return f, nil
}

func (m *MockFilesystemManager) ReadFile(path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure("read", path); err != nil {
		return nil, err
	}
	return m.fsys.ReadFile(mapKey(path))
}

func (m *MockFilesystemManager) WriteFile(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("write", path); err != nil {
		return err
	}

	key := mapKey(path)
	if parent := filepath.Dir(key); parent != "." {
		info, err := fs.Stat(m.fsys, parent)
		if err != nil || !info.IsDir() {
			return &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
		}
	}
	m.fsys[key] = &fstest.MapFile{
		Data:    append([]byte(nil), data...),
		Mode:    0644,
		ModTime: time.Now(),
	}
	return nil
}

func (m *MockFilesystemManager) ReadDir(path string) ([]fs.DirEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure("readdir", path); err != nil {
		return nil, err
	}
	return m.fsys.ReadDir(mapKey(path))
}

func (m *MockFilesystemManager) MkdirAll(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("mkdir", path); err != nil {
		return err
	}
	key := mapKey(path)
	if _, err := fs.Stat(m.fsys, key); err == nil {
		return nil
	}
	m.fsys[key] = &fstest.MapFile{Mode: fs.ModeDir | 0755, ModTime: time.Now()}
	return nil
}

func (m *MockFilesystemManager) NewFile(path string) *fsnap.File {
	return fsnap.NewFile(path, m, m.chunkSize)
}

func (m *MockFilesystemManager) Discover(ctx context.Context, root *fsnap.Path, match fsnap.Predicate) ([]*fsnap.File, error) {
	if !root.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", root.String())
	}
	return fsnapfs.Discover(ctx, m, root.String(), match, m.chunkSize)
}

// mapKey converts an absolute path to an fs.FS name.
func mapKey(path string) string {
	key := strings.TrimPrefix(filepath.ToSlash(filepath.Clean(path)), "/")
	if key == "" {
		return "."
	}
	return key
}

// failingReader returns err from every Read after the file was opened.
type failingReader struct {
	fs.File
	err error
}

func (r *failingReader) Read([]byte) (int, error) {
	return 0, r.err
}

// Compile-time checks
var (
	_ fsnap.FilesystemManager = (*MockFilesystemManager)(nil)
	_ fsnapfs.Tree            = (*MockFilesystemManager)(nil)
)
