// Package fsutil provides the filesystem primitives the export pipeline is
// built on: atomic writes (temp file + rename in the destination directory),
// copies that preserve modification times, and tree moves with a cross-device
// fallback.
package fsutil

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Exists reports whether path exists at all.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// WriteFileAtomic writes data to path via a uniquely-named temp file in the
// same directory followed by a rename, so readers never observe a partial
// file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	success = true
	return nil
}

// CopyFile copies a regular file, creating parent directories as needed.
// The source modification time is preserved on the copy, which keeps
// re-exports byte-and-timestamp reproducible and lets the verifier's
// mtime fast-path fire.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", src)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copying content: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing destination: %w", err)
	}

	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("preserving modification time: %w", err)
	}
	return nil
}

// CopyTree recursively copies the directory src to dst, preserving file
// modification times. Cancellation is checked between entries.
func CopyTree(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if !d.Type().IsRegular() {
			// Symlinks, devices and the like have no place in a bundle.
			return nil
		}
		return CopyFile(p, target)
	})
}

// Move renames src to dst. When the rename fails because src and dst live on
// different filesystems, the tree is copied and the source removed.
func Move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	} else if !isCrossDevice(err) {
		return fmt.Errorf("renaming %s: %w", src, err)
	}

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if info.IsDir() {
		if err := CopyTree(context.Background(), src, dst); err != nil {
			os.RemoveAll(dst)
			return fmt.Errorf("copying tree across filesystems: %w", err)
		}
	} else {
		if err := CopyFile(src, dst); err != nil {
			os.Remove(dst)
			return fmt.Errorf("copying file across filesystems: %w", err)
		}
	}
	return os.RemoveAll(src)
}
