// Package thumb implements the content-addressed, deduplicating thumbnail
// store. Cache entries are keyed by a stable hash of the attachment's
// canonical relative path plus codec parameters, so identical source content
// and parameters always map to the same cache file, within a run and across
// runs when the store directory is persistent.
package thumb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"wet-go/internal/attach"
	"wet-go/internal/limit"
	"wet-go/internal/wet"
)

// DirName is the thumbnail folder name inside a sidecar bundle.
const DirName = "_thumbs"

// Ext is the extension of stored thumbnail files.
const Ext = ".jpg"

// Params are the codec parameters that participate in cache keys. Changing
// any of them invalidates every key, which is the point: a key must never be
// derived from mutable signals like wall-clock time.
type Params struct {
	CodecVersion string
	MaxDim       int
	Quality      int
}

// Policy decides which file types receive thumbnails at all. The exclusion
// of editable document formats is a product choice, so it is configuration,
// not code.
type Policy func(fileName string) bool

// PolicyFromExtensions builds a Policy admitting exactly the given
// extensions (case-insensitive, leading dot required).
func PolicyFromExtensions(exts []string) Policy {
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		set[strings.ToLower(e)] = true
	}
	return func(fileName string) bool {
		return set[strings.ToLower(filepath.Ext(fileName))]
	}
}

// DefaultEligible is the default thumbnail policy input: images, videos and
// PDFs are eligible, office documents are deliberately not.
var DefaultEligible = []string{
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic", ".bmp",
	".mp4", ".mov", ".avi", ".mkv", ".webm", ".3gp",
	".pdf",
}

// KeyFor derives the cache key for a canonical relative path under the given
// parameters.
func KeyFor(p Params, canonicalRelPath string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%d", canonicalRelPath, p.CodecVersion, p.MaxDim, p.Quality)
	return hex.EncodeToString(h.Sum(nil))
}

// Store is the write-capable side of the thumbnail cache: it may generate
// missing entries. Rendering code should hold only the read-only View, so
// generation is statically confined to the pre-computation phase.
type Store struct {
	dir      string
	renderer wet.ThumbnailRenderer
	policy   Policy
	params   Params
	cpu      *limit.Limiter
	logger   wet.Logger
	group    singleflight.Group
}

// NewStore creates a Store rooted at dir, creating the directory if needed.
func NewStore(dir string, renderer wet.ThumbnailRenderer, policy Policy, params Params, cpu *limit.Limiter, logger wet.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating thumbnail directory: %w", err)
	}
	return &Store{
		dir:      dir,
		renderer: renderer,
		policy:   policy,
		params:   params,
		cpu:      cpu,
		logger:   logger,
	}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// View returns the read-only handle over the same cache directory.
func (s *Store) View() *View {
	return &View{dir: s.dir, policy: s.policy, params: s.params}
}

// Ensure materializes the thumbnail for entry and returns its cache path.
// The second return is false when the file type has no thumbnail policy or
// generation failed. Generation failure is logged, not fatal; callers fall
// back to an original-file embed or a placeholder.
//
// Only one generation task is ever in flight per cache key: concurrent
// callers for the same key attach to the in-flight call instead of racing.
func (s *Store) Ensure(ctx context.Context, entry attach.CanonicalEntry) (string, bool, error) {
	if !s.policy(entry.FileName) {
		return "", false, nil
	}

	key := KeyFor(s.params, entry.CanonicalRelPath)
	dest := filepath.Join(s.dir, key+Ext)

	_, err, _ := s.group.Do(key, func() (any, error) {
		if validCacheFile(dest) {
			return nil, nil
		}
		return nil, s.generate(ctx, entry, dest)
	})
	if err != nil {
		if isCancellation(err) {
			return "", false, err
		}
		s.logger.Warn("thumbnail generation failed", "file", entry.FileName, "error", err)
		return "", false, nil
	}
	return dest, true, nil
}

// generate renders to memory under the CPU limiter, writes a uniquely-named
// temp file next to the destination and atomically installs it. If another
// run created the destination meanwhile, the existing file wins: thumbnail
// content is a pure function of the source, so any valid existing file is
// equally correct.
func (s *Store) generate(ctx context.Context, entry attach.CanonicalEntry, dest string) error {
	var data []byte
	err := s.cpu.Do(ctx, func() error {
		var err error
		data, err = s.renderer.Render(ctx, entry.SourcePath, s.params.MaxDim)
		return err
	})
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("renderer produced empty thumbnail for %s", entry.FileName)
	}

	tmp, err := os.CreateTemp(s.dir, ".gen-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing thumbnail: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing thumbnail: %w", err)
	}

	// First-writer-wins install.
	if validCacheFile(dest) {
		os.Remove(tmpPath)
		return nil
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("installing thumbnail: %w", err)
	}
	return nil
}

// PrecomputeAll eagerly materializes every candidate under the concurrency
// cap so the rendering phase can run as a pure read-side pass. Individual
// generation failures are absorbed; only cancellation aborts.
func (s *Store) PrecomputeAll(ctx context.Context, entries []attach.CanonicalEntry) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			g.Wait()
			return err
		}
		g.Go(func() error {
			_, _, err := s.Ensure(ctx, entry)
			return err
		})
	}
	return g.Wait()
}

// View is the read-only side of the cache used by the rendering pass. It can
// never trigger generation.
type View struct {
	dir    string
	policy Policy
	params Params
}

// NewView opens a read-only view over an existing cache directory.
func NewView(dir string, policy Policy, params Params) *View {
	return &View{dir: dir, policy: policy, params: params}
}

// Data returns the cached thumbnail bytes for entry, or false when the entry
// has no thumbnail (no policy, never generated, or an invalid zero-byte file
// left by a crashed run).
func (v *View) Data(entry attach.CanonicalEntry) ([]byte, bool) {
	p, ok := v.path(entry)
	if !ok {
		return nil, false
	}
	data, err := os.ReadFile(p)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

// Href returns a relative path reference "<prefix>/<key>.jpg" for modes that
// keep thumbnails as sibling files instead of inlining bytes.
func (v *View) Href(entry attach.CanonicalEntry, prefix string) (string, bool) {
	if _, ok := v.path(entry); !ok {
		return "", false
	}
	return path.Join(prefix, KeyFor(v.params, entry.CanonicalRelPath)+Ext), true
}

// FileName returns the bare cache file name for entry when a valid cached
// thumbnail exists.
func (v *View) FileName(entry attach.CanonicalEntry) (string, bool) {
	if _, ok := v.path(entry); !ok {
		return "", false
	}
	return KeyFor(v.params, entry.CanonicalRelPath) + Ext, true
}

func (v *View) path(entry attach.CanonicalEntry) (string, bool) {
	if !v.policy(entry.FileName) {
		return "", false
	}
	p := filepath.Join(v.dir, KeyFor(v.params, entry.CanonicalRelPath)+Ext)
	if !validCacheFile(p) {
		return "", false
	}
	return p, true
}

// validCacheFile reports whether p is a usable cache entry. A zero-byte or
// missing file is always a miss: a crashed run must never poison the cache.
func validCacheFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
