package fs

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"fsnap-go/internal/fsnap"
)

// Tree is the filesystem access Discover needs: directory listings for the
// walk and file access for the Files it creates.
type Tree interface {
	fsnap.FileIO
	ReadDir(name string) ([]fs.DirEntry, error)
}

// Discover lists root and every matching subdirectory concurrently and
// returns one File per matching non-directory entry, in no particular order.
//
// match is called for every entry of every listed directory, possibly from
// several goroutines at once. A directory it rejects is never listed. A nil
// match accepts everything. Entries are classified with DirEntry.IsDir, so
// symlinks are returned as files and never followed.
//
// The first listing error cancels the remaining listings and is returned as
// an *fsnap.IOError.
func Discover(ctx context.Context, tree Tree, root string, match fsnap.Predicate, chunkSize int) ([]*fsnap.File, error) {
	if match == nil {
		match = func(string, string) bool { return true }
	}

	g, gctx := errgroup.WithContext(ctx)
	w := &walker{
		ctx:       gctx,
		group:     g,
		tree:      tree,
		match:     match,
		chunkSize: chunkSize,
	}

	w.spawn(root)
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return w.files, nil
}

type walker struct {
	ctx       context.Context
	group     *errgroup.Group
	tree      Tree
	match     fsnap.Predicate
	chunkSize int

	mu    sync.Mutex
	files []*fsnap.File
}

// spawn registers a listing of dir with the group. It is only called by
// Discover before Wait or by a listing that is still running, so the group
// cannot drain while a child listing is pending.
func (w *walker) spawn(dir string) {
	w.group.Go(func() error {
		return w.list(dir)
	})
}

// list reads one directory, spawns listings for matching subdirectories and
// records matching files.
func (w *walker) list(dir string) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}

	entries, err := w.tree.ReadDir(dir)
	if err != nil {
		return fsnap.NewIOError("readdir", dir, err)
	}

	var found []*fsnap.File
	for _, entry := range entries {
		name := entry.Name()
		if !w.match(dir, name) {
			continue
		}

		path := filepath.Join(dir, name)
		if entry.IsDir() {
			if err := w.ctx.Err(); err != nil {
				return err
			}
			w.spawn(path)
			continue
		}
		found = append(found, fsnap.NewFile(path, w.tree, w.chunkSize))
	}

	if len(found) > 0 {
		w.mu.Lock()
		w.files = append(w.files, found...)
		w.mu.Unlock()
	}
	return nil
}
