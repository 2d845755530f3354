// Package manifest computes the deterministic file-hash manifest of a
// published bundle and its aggregate bundle hash, a compact integrity
// fingerprint over the sorted per-file hash listing.
package manifest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"wet-go/internal/fsutil"
	"wet-go/internal/wet"
)

// Suffixes of the two files the writer itself produces; both are excluded
// from the hash listing.
const (
	ManifestSuffix = ".manifest.json"
	ChecksumSuffix = ".sha256"
)

// transient names that may appear in a tree but are not part of the bundle.
var transientNames = map[string]bool{
	".DS_Store": true,
	"Thumbs.db": true,
}

// FileEntry is one hashed file in the bundle, path in slash form.
type FileEntry struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Meta is the caller-supplied summary information embedded in the manifest.
type Meta struct {
	Participants []string
	FirstMessage time.Time
	LastMessage  time.Time
	MessageCount int
	MediaCounts  map[string]int
	Sidecar      bool
	Encrypted    bool
}

// Manifest is the serialized structure written to <base>.manifest.json.
type Manifest struct {
	Generator    string         `json:"generator"`
	BaseName     string         `json:"base_name"`
	Participants []string       `json:"participants"`
	FirstMessage time.Time      `json:"first_message"`
	LastMessage  time.Time      `json:"last_message"`
	MessageCount int            `json:"message_count"`
	MediaCounts  map[string]int `json:"media_counts"`
	Sidecar      bool           `json:"sidecar"`
	Encrypted    bool           `json:"encrypted"`
	Files        []FileEntry    `json:"files"`
	BundleSHA256 string         `json:"bundle_sha256"`
}

// Writer computes and writes manifests.
type Writer struct {
	logger wet.Logger
}

// NewWriter creates a Writer.
func NewWriter(logger wet.Logger) *Writer {
	return &Writer{logger: logger}
}

// Write hashes every bundle file under dir (excluding the manifest and
// checksum files themselves and known transient names), sorts entries by
// path byte-wise, and writes <base>.manifest.json and <base>.sha256 into
// dir using atomic temp-file writes. It returns both paths and the bundle
// hash.
func (w *Writer) Write(ctx context.Context, dir, baseName string, meta Meta) (manifestPath, checksumPath, bundleHash string, err error) {
	files, err := w.collect(ctx, dir, baseName)
	if err != nil {
		return "", "", "", err
	}

	bundleHash = BundleHash(files)

	m := Manifest{
		Generator:    "wet",
		BaseName:     baseName,
		Participants: meta.Participants,
		FirstMessage: meta.FirstMessage,
		LastMessage:  meta.LastMessage,
		MessageCount: meta.MessageCount,
		MediaCounts:  meta.MediaCounts,
		Sidecar:      meta.Sidecar,
		Encrypted:    meta.Encrypted,
		Files:        files,
		BundleSHA256: bundleHash,
	}

	data, err := json.MarshalIndent(&m, "", "  ")
	if err != nil {
		return "", "", "", fmt.Errorf("encoding manifest: %w", err)
	}
	data = append(data, '\n')

	manifestPath = filepath.Join(dir, baseName+ManifestSuffix)
	if err := fsutil.WriteFileAtomic(manifestPath, data, 0644); err != nil {
		return "", "", "", fmt.Errorf("writing manifest: %w", err)
	}

	// The checksum file covers every bundle file plus the manifest itself,
	// in sha256sum-compatible format.
	manifestSum := sha256.Sum256(data)
	var sb strings.Builder
	for _, f := range files {
		fmt.Fprintf(&sb, "%s  %s\n", f.SHA256, f.Path)
	}
	fmt.Fprintf(&sb, "%s  %s\n", hex.EncodeToString(manifestSum[:]), baseName+ManifestSuffix)

	checksumPath = filepath.Join(dir, baseName+ChecksumSuffix)
	if err := fsutil.WriteFileAtomic(checksumPath, []byte(sb.String()), 0644); err != nil {
		return "", "", "", fmt.Errorf("writing checksum file: %w", err)
	}

	w.logger.Debug("manifest written", "files", len(files), "bundle_sha256", bundleHash)
	return manifestPath, checksumPath, bundleHash, nil
}

// BundleHash computes the aggregate hash over a sorted file listing.
func BundleHash(files []FileEntry) string {
	h := sha256.New()
	for _, f := range files {
		fmt.Fprintf(h, "%s  %s\n", f.SHA256, f.Path)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (w *Writer) collect(ctx context.Context, dir, baseName string) ([]FileEntry, error) {
	var files []FileEntry
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		name := d.Name()
		if d.IsDir() {
			if p != dir && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || transientNames[name] {
			return nil
		}
		// Hidden backup files from an interrupted overwrite, and our own
		// outputs, never participate in the listing.
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if name == baseName+ManifestSuffix || name == baseName+ChecksumSuffix {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		sum, size, err := hashFile(p)
		if err != nil {
			return err
		}
		files = append(files, FileEntry{Path: filepath.ToSlash(rel), SHA256: sum, Size: size})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hashing bundle tree: %w", err)
	}

	// Byte-wise, locale-independent ordering keeps the listing and the
	// bundle hash stable across runs and platforms.
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func hashFile(p string) (string, int64, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", 0, fmt.Errorf("opening %s: %w", p, err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hashing %s: %w", p, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
