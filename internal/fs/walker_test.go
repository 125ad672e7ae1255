package fs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"fsnap-go/internal/fsnap"
)

// writeFile creates root/rel with content, making parent directories.
func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating parent of %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", rel, err)
	}
}

// relPaths returns the slash-separated paths of files relative to root, sorted.
func relPaths(t *testing.T, root string, files []*fsnap.File) []string {
	t.Helper()
	paths := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(root, f.Path())
		if err != nil {
			t.Fatalf("relative path of %s: %v", f.Path(), err)
		}
		paths = append(paths, filepath.ToSlash(rel))
	}
	sort.Strings(paths)
	return paths
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// faultyTree wraps a Tree and fails or intercepts listings of chosen directories.
type faultyTree struct {
	Tree
	fail   map[string]error
	before func(dir string)

	mu     sync.Mutex
	listed []string
}

func (f *faultyTree) ReadDir(name string) ([]fs.DirEntry, error) {
	f.mu.Lock()
	f.listed = append(f.listed, name)
	f.mu.Unlock()

	if f.before != nil {
		f.before(name)
	}
	if err, ok := f.fail[name]; ok {
		return nil, err
	}
	return f.Tree.ReadDir(name)
}

func (f *faultyTree) wasListed(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.listed {
		if l == name {
			return true
		}
	}
	return false
}

func TestDiscover(t *testing.T) {
	tree := NewOSFilesystemManager(nil, 0)

	t.Run("finds files at every level", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		writeFile(t, root, "a.txt", "a")
		writeFile(t, root, "b.txt", "b")
		writeFile(t, root, "sub/c.txt", "c")

		files, err := Discover(context.Background(), tree, root, func(string, string) bool { return true }, 0)
		if err != nil {
			t.Fatalf("Discover() error = %v", err)
		}

		got := relPaths(t, root, files)
		want := []string{"a.txt", "b.txt", "sub/c.txt"}
		if !equalStrings(got, want) {
			t.Errorf("Discover() = %v, want %v", got, want)
		}
	})

	t.Run("nil predicate matches everything", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		writeFile(t, root, "x/y/z/deep.txt", "deep")
		writeFile(t, root, "top.txt", "top")

		files, err := Discover(context.Background(), tree, root, nil, 0)
		if err != nil {
			t.Fatalf("Discover() error = %v", err)
		}

		got := relPaths(t, root, files)
		want := []string{"top.txt", "x/y/z/deep.txt"}
		if !equalStrings(got, want) {
			t.Errorf("Discover() = %v, want %v", got, want)
		}
	})

	t.Run("rejected directory is never listed", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		writeFile(t, root, "keep.txt", "k")
		writeFile(t, root, "skip/hidden.txt", "h")
		writeFile(t, root, "skip/nested/also.txt", "a")

		ft := &faultyTree{Tree: tree}
		match := func(dir, name string) bool { return name != "skip" }

		files, err := Discover(context.Background(), ft, root, match, 0)
		if err != nil {
			t.Fatalf("Discover() error = %v", err)
		}

		got := relPaths(t, root, files)
		if !equalStrings(got, []string{"keep.txt"}) {
			t.Errorf("Discover() = %v, want [keep.txt]", got)
		}
		if ft.wasListed(filepath.Join(root, "skip")) {
			t.Error("pruned directory was listed")
		}
	})

	t.Run("predicate sees the listing directory", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		writeFile(t, root, "docs/readme.md", "r")
		writeFile(t, root, "src/readme.md", "r")

		docs := filepath.Join(root, "docs")
		match := func(dir, name string) bool {
			return !(dir == docs && name == "readme.md")
		}

		files, err := Discover(context.Background(), tree, root, match, 0)
		if err != nil {
			t.Fatalf("Discover() error = %v", err)
		}

		got := relPaths(t, root, files)
		if !equalStrings(got, []string{"src/readme.md"}) {
			t.Errorf("Discover() = %v, want [src/readme.md]", got)
		}
	})

	t.Run("empty directory yields no files", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		if err := os.Mkdir(filepath.Join(root, "empty"), 0755); err != nil {
			t.Fatalf("creating dir: %v", err)
		}

		files, err := Discover(context.Background(), tree, root, nil, 0)
		if err != nil {
			t.Fatalf("Discover() error = %v", err)
		}
		if len(files) != 0 {
			t.Errorf("Discover() returned %d files, want 0", len(files))
		}
	})

	t.Run("files carry the chunk size", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		writeFile(t, root, "a.txt", "a")

		files, err := Discover(context.Background(), tree, root, nil, 16)
		if err != nil {
			t.Fatalf("Discover() error = %v", err)
		}
		if len(files) != 1 {
			t.Fatalf("Discover() returned %d files, want 1", len(files))
		}
		if files[0].ChunkSize() != 16 {
			t.Errorf("ChunkSize() = %d, want 16", files[0].ChunkSize())
		}
	})

	t.Run("discovered files can be read", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		writeFile(t, root, "a.txt", "alpha")

		files, err := Discover(context.Background(), tree, root, nil, 0)
		if err != nil {
			t.Fatalf("Discover() error = %v", err)
		}
		data, err := files[0].ReadContent()
		if err != nil {
			t.Fatalf("ReadContent() error = %v", err)
		}
		if string(data) != "alpha" {
			t.Errorf("ReadContent() = %q, want %q", data, "alpha")
		}
	})
}

func TestDiscover_Errors(t *testing.T) {
	tree := NewOSFilesystemManager(nil, 0)

	t.Run("missing root", func(t *testing.T) {
		t.Parallel()
		root := filepath.Join(t.TempDir(), "nope")

		files, err := Discover(context.Background(), tree, root, nil, 0)
		if err == nil {
			t.Fatal("Discover() expected error for missing root")
		}
		if files != nil {
			t.Errorf("Discover() returned files alongside error: %v", files)
		}

		var ioErr *fsnap.IOError
		if !errors.As(err, &ioErr) {
			t.Fatalf("error = %T, want *fsnap.IOError", err)
		}
		if ioErr.Op != "readdir" || ioErr.Path != root {
			t.Errorf("IOError = {%s %s}, want {readdir %s}", ioErr.Op, ioErr.Path, root)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("errors.Is(err, fs.ErrNotExist) = false for %v", err)
		}
	})

	t.Run("failing subdirectory fails the whole discovery", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		writeFile(t, root, "ok/a.txt", "a")
		writeFile(t, root, "bad/b.txt", "b")
		writeFile(t, root, "c.txt", "c")

		injected := errors.New("permission denied")
		bad := filepath.Join(root, "bad")
		ft := &faultyTree{Tree: tree, fail: map[string]error{bad: injected}}

		files, err := Discover(context.Background(), ft, root, nil, 0)
		if err == nil {
			t.Fatal("Discover() expected error")
		}
		if files != nil {
			t.Errorf("Discover() returned files alongside error: %v", files)
		}
		if !errors.Is(err, injected) {
			t.Errorf("error = %v, want wrapped %v", err, injected)
		}

		var ioErr *fsnap.IOError
		if !errors.As(err, &ioErr) || ioErr.Path != bad {
			t.Errorf("error = %v, want IOError for %s", err, bad)
		}
	})

	t.Run("cancellation stops further listings", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()
		writeFile(t, root, "sub/a.txt", "a")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ft := &faultyTree{Tree: tree}
		ft.before = func(dir string) {
			if dir == root {
				cancel()
			}
		}

		_, err := Discover(ctx, ft, root, nil, 0)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Discover() error = %v, want context.Canceled", err)
		}
		if ft.wasListed(filepath.Join(root, "sub")) {
			t.Error("subdirectory was listed after cancellation")
		}
	})

	t.Run("already cancelled context", func(t *testing.T) {
		t.Parallel()
		root := t.TempDir()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := Discover(ctx, tree, root, nil, 0)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Discover() error = %v, want context.Canceled", err)
		}
	})
}

func TestDiscover_ManyDirectories(t *testing.T) {
	root := t.TempDir()
	var want []string
	for i := 0; i < 20; i++ {
		for j := 0; j < 5; j++ {
			rel := filepath.ToSlash(filepath.Join("d"+string(rune('a'+i)), "f"+string(rune('0'+j))+".txt"))
			writeFile(t, root, rel, rel)
			want = append(want, rel)
		}
	}
	sort.Strings(want)

	files, err := Discover(context.Background(), NewOSFilesystemManager(nil, 0), root, nil, 0)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	got := relPaths(t, root, files)
	if !equalStrings(got, want) {
		t.Errorf("Discover() found %d files, want %d", len(got), len(want))
	}
}
