// Package verify compares an original source tree against its published
// sidecar copy and reports which originals are byte-identical and therefore
// safe to delete. The verifier never mutates either side; its result is
// advisory data for the caller.
package verify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

const defaultChunkSize = 256 * 1024

// Options tune a comparison.
type Options struct {
	// TrustModTime enables the fast path: files with equal size and equal
	// modification time are assumed identical without reading content.
	// Disable for strict byte verification.
	TrustModTime bool
	// ChunkSize is the read size for content comparison; 0 means default.
	ChunkSize int
}

// Mismatch explains one compared path that was not identical.
type Mismatch struct {
	RelPath string
	Reason  string
}

// Result is the outcome of a tree comparison.
type Result struct {
	// Identical is true when every file matched and both sides hold the
	// same set of relative paths.
	Identical bool
	// FilesCompared counts the file pairs examined.
	FilesCompared int
	Mismatches    []Mismatch
	// Deletable holds the original paths that are provably safe to delete.
	// Deletion is all-or-nothing per logical unit: for a tree comparison it
	// contains the original root only when everything matched.
	Deletable []string
}

// Files reports whether the files a and b are byte-identical: sizes first,
// then the optional mtime fast-path, then chunked content comparison
// short-circuiting on the first differing chunk.
func Files(ctx context.Context, a, b string, opts Options) (bool, error) {
	infoA, err := os.Stat(a)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", a, err)
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", b, err)
	}
	if !infoA.Mode().IsRegular() || !infoB.Mode().IsRegular() {
		return false, fmt.Errorf("not regular files: %s, %s", a, b)
	}

	if infoA.Size() != infoB.Size() {
		return false, nil
	}
	if opts.TrustModTime && infoA.ModTime().Equal(infoB.ModTime()) {
		return true, nil
	}
	return equalContent(ctx, a, b, opts.chunkSize())
}

func (o Options) chunkSize() int {
	if o.ChunkSize > 0 {
		return o.ChunkSize
	}
	return defaultChunkSize
}

func equalContent(ctx context.Context, a, b string, chunkSize int) (bool, error) {
	fa, err := os.Open(a)
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", a, err)
	}
	defer fa.Close()
	fb, err := os.Open(b)
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", b, err)
	}
	defer fb.Close()

	bufA := make([]byte, chunkSize)
	bufB := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		nA, errA := io.ReadFull(fa, bufA)
		nB, errB := io.ReadFull(fb, bufB)
		if nA != nB || !bytes.Equal(bufA[:nA], bufB[:nB]) {
			return false, nil
		}
		atEndA := errA == io.EOF || errA == io.ErrUnexpectedEOF
		atEndB := errB == io.EOF || errB == io.ErrUnexpectedEOF
		if atEndA || atEndB {
			return atEndA == atEndB, nil
		}
		if errA != nil {
			return false, fmt.Errorf("reading %s: %w", a, errA)
		}
		if errB != nil {
			return false, fmt.Errorf("reading %s: %w", b, errB)
		}
	}
}

// Trees compares the directory original against published. Equality requires
// an identical set of relative paths and pairwise file equality; extra or
// missing files on either side fail the comparison. Cancellation is checked
// between entries.
func Trees(ctx context.Context, original, published string, opts Options) (*Result, error) {
	origFiles, err := listFiles(original)
	if err != nil {
		return nil, fmt.Errorf("listing original tree: %w", err)
	}
	pubFiles, err := listFiles(published)
	if err != nil {
		return nil, fmt.Errorf("listing published tree: %w", err)
	}

	res := &Result{}

	pubSet := make(map[string]bool, len(pubFiles))
	for _, rel := range pubFiles {
		pubSet[rel] = true
	}
	origSet := make(map[string]bool, len(origFiles))
	for _, rel := range origFiles {
		origSet[rel] = true
	}

	for _, rel := range pubFiles {
		if !origSet[rel] {
			res.Mismatches = append(res.Mismatches, Mismatch{RelPath: rel, Reason: "extra file in published copy"})
		}
	}
	for _, rel := range origFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !pubSet[rel] {
			res.Mismatches = append(res.Mismatches, Mismatch{RelPath: rel, Reason: "missing from published copy"})
			continue
		}
		res.FilesCompared++
		same, err := Files(ctx, filepath.Join(original, rel), filepath.Join(published, rel), opts)
		if err != nil {
			return nil, err
		}
		if !same {
			res.Mismatches = append(res.Mismatches, Mismatch{RelPath: rel, Reason: "content differs"})
		}
	}

	sort.Slice(res.Mismatches, func(i, j int) bool {
		return res.Mismatches[i].RelPath < res.Mismatches[j].RelPath
	})
	res.Identical = len(res.Mismatches) == 0
	if res.Identical {
		res.Deletable = []string{original}
	}
	return res, nil
}

// listFiles returns the sorted relative paths of all regular files under root.
func listFiles(root string) ([]string, error) {
	var rels []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rels = append(rels, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(rels)
	return rels, nil
}
