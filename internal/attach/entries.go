package attach

import (
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"wet-go/internal/chat"
	"wet-go/internal/wet"
)

// Bucket names inside the sidecar folder.
const (
	BucketImages    = "images"
	BucketVideos    = "videos"
	BucketAudios    = "audios"
	BucketDocuments = "documents"
)

// TimestampLayout is the fixed-width, locale-independent destination-name
// prefix. Lexical sort order of the prefix equals chronological order, which
// keeps bucket folders sorted and makes the canonical path stable input for
// content-addressed thumbnail caching.
const TimestampLayout = "2006 01 02 15 04 05"

var bucketByExt = map[string]string{
	".jpg": BucketImages, ".jpeg": BucketImages, ".png": BucketImages,
	".gif": BucketImages, ".webp": BucketImages, ".heic": BucketImages,
	".bmp": BucketImages, ".tiff": BucketImages,

	".mp4": BucketVideos, ".mov": BucketVideos, ".avi": BucketVideos,
	".mkv": BucketVideos, ".webm": BucketVideos, ".3gp": BucketVideos,

	".opus": BucketAudios, ".mp3": BucketAudios, ".m4a": BucketAudios,
	".aac": BucketAudios, ".ogg": BucketAudios, ".wav": BucketAudios,
	".amr": BucketAudios,
}

// BucketFor maps a filename to its sidecar bucket. Anything without a known
// media extension lands in documents.
func BucketFor(fileName string) string {
	if b, ok := bucketByExt[strings.ToLower(filepath.Ext(fileName))]; ok {
		return b
	}
	return BucketDocuments
}

var mimeByExt = map[string]string{
	".jpg": "image/jpeg", ".jpeg": "image/jpeg", ".png": "image/png",
	".gif": "image/gif", ".webp": "image/webp",
}

// MimeForName returns the MIME type for embeddable image names, or
// application/octet-stream for everything else.
func MimeForName(fileName string) string {
	if m, ok := mimeByExt[strings.ToLower(filepath.Ext(fileName))]; ok {
		return m
	}
	return "application/octet-stream"
}

// IsImage reports whether fileName is a true embeddable image.
func IsImage(fileName string) bool {
	return strings.HasPrefix(MimeForName(fileName), "image/")
}

// CanonicalEntry is the single deterministic identity assigned to a
// referenced attachment for one export run. Built once, read-only afterward.
type CanonicalEntry struct {
	FileName        string
	SourcePath      string
	Bucket          string
	DestinationName string
	// CanonicalRelPath is "<bucket>/<timestamp prefix> <fileName>", using
	// forward slashes on every platform.
	CanonicalRelPath string
	FirstReferenced  time.Time
}

// Builder derives canonical entries from a parsed message stream.
type Builder struct {
	resolver *Resolver
	logger   wet.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(resolver *Resolver, logger wet.Logger) *Builder {
	return &Builder{resolver: resolver, logger: logger}
}

// Build produces exactly one entry per distinct referenced filename. The
// same filename referenced by multiple messages keeps only the earliest
// referencing timestamp. References that resolve to no file are logged and
// dropped, never fatal. The result is sorted by canonical relative path so
// downstream iteration is deterministic.
func (b *Builder) Build(msgs []chat.Message, sourceDir string) ([]CanonicalEntry, error) {
	earliest := make(map[string]time.Time)
	for _, m := range msgs {
		for _, name := range chat.FindAttachments(m.Text) {
			if ts, ok := earliest[name]; !ok || m.TS.Before(ts) {
				earliest[name] = m.TS
			}
		}
	}

	entries := make([]CanonicalEntry, 0, len(earliest))
	for name, ts := range earliest {
		src, found, err := b.resolver.Resolve(name, sourceDir)
		if err != nil {
			b.logger.Warn("attachment reference skipped", "name", name, "error", err)
			continue
		}
		if !found {
			b.logger.Warn("attachment not found in source directory", "name", name)
			continue
		}
		bucket := BucketFor(name)
		dest := ts.Format(TimestampLayout) + " " + filepath.Base(name)
		entries = append(entries, CanonicalEntry{
			FileName:         name,
			SourcePath:       src,
			Bucket:           bucket,
			DestinationName:  dest,
			CanonicalRelPath: path.Join(bucket, dest),
			FirstReferenced:  ts,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CanonicalRelPath < entries[j].CanonicalRelPath
	})
	return entries, nil
}
