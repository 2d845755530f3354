package attach

import (
	"fmt"
	"path/filepath"
	"strings"

	"wet-go/internal/fsutil"
)

// MediaSubdir is the conventional media subfolder some export layouts use.
const MediaSubdir = "Media"

// Resolver maps a referenced attachment filename to an absolute path inside
// a source directory using a three-tier search: direct sibling, known media
// subfolder, then the cached recursive index.
type Resolver struct {
	index *Index
}

// NewResolver creates a Resolver backed by the given index.
func NewResolver(index *Index) *Resolver {
	return &Resolver{index: index}
}

// Resolve returns the absolute path of fileName within sourceDir. The second
// return is false when the file cannot be found anywhere under sourceDir.
// Reference names that would escape sourceDir are rejected.
func (r *Resolver) Resolve(fileName, sourceDir string) (string, bool, error) {
	clean := filepath.Clean(filepath.FromSlash(fileName))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", false, fmt.Errorf("unsafe attachment reference: %q", fileName)
	}

	// (a) direct sibling of the chat file
	if p := filepath.Join(sourceDir, clean); fsutil.FileExists(p) {
		return p, true, nil
	}

	// (b) conventional media subfolder
	if p := filepath.Join(sourceDir, MediaSubdir, clean); fsutil.FileExists(p) {
		return p, true, nil
	}

	// (c) full recursive index, built once per source directory
	rel, found, err := r.index.Lookup(sourceDir, filepath.Base(clean))
	if err != nil {
		return "", false, fmt.Errorf("resolving %q: %w", fileName, err)
	}
	if !found {
		return "", false, nil
	}
	return filepath.Join(sourceDir, rel), true, nil
}
