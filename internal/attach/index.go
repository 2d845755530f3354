// Package attach resolves attachment references from message bodies to
// files in the export source directory and assigns every referenced file a
// single canonical identity (bucket, destination name, relative path) for
// the run.
package attach

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
)

// Index is a lazily built name→relative-path lookup over a source directory
// tree. The tree is scanned exactly once per directory per Index lifetime:
// re-scanning per attachment would be quadratic in attachment count for
// exports with thousands of referenced files.
//
// The build is guarded by a condition variable: a caller that needs an index
// already being built blocks until the builder publishes its result instead
// of performing a redundant scan.
type Index struct {
	mu   sync.Mutex
	cond *sync.Cond
	dirs map[string]*dirIndex
}

type dirIndex struct {
	building bool
	built    bool
	byName   map[string]string // base name → relative path
	err      error
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	ix := &Index{dirs: make(map[string]*dirIndex)}
	ix.cond = sync.NewCond(&ix.mu)
	return ix
}

// Lookup returns the relative path of the file named fileName anywhere under
// sourceDir, building the directory's index on first use. The second return
// is false when no file with that base name exists.
func (ix *Index) Lookup(sourceDir, fileName string) (string, bool, error) {
	ix.mu.Lock()
	di, ok := ix.dirs[sourceDir]
	if !ok {
		di = &dirIndex{}
		ix.dirs[sourceDir] = di
	}

	for di.building {
		ix.cond.Wait()
	}

	if !di.built {
		di.building = true
		ix.mu.Unlock()

		byName, err := scan(sourceDir)

		ix.mu.Lock()
		di.building = false
		di.built = true
		di.byName = byName
		di.err = err
		ix.cond.Broadcast()
	}
	defer ix.mu.Unlock()

	if di.err != nil {
		return "", false, di.err
	}
	rel, found := di.byName[fileName]
	return rel, found, nil
}

// Reset discards all cached indexes. Call between independent export runs
// when the source tree may have changed.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.dirs = make(map[string]*dirIndex)
}

// scan walks the tree once and records one relative path per distinct base
// name. Collisions (the same base name in different subdirectories) resolve
// to the lexicographically first relative path, deterministically.
func scan(sourceDir string) (map[string]string, error) {
	byName := make(map[string]string)
	err := filepath.WalkDir(sourceDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(sourceDir, p)
		if err != nil {
			return err
		}
		name := d.Name()
		if existing, ok := byName[name]; !ok || rel < existing {
			byName[name] = rel
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", sourceDir, err)
	}
	return byName, nil
}
