package fsutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wet-go/internal/testutil"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	if err := WriteFileAtomic(path, []byte("first"), 0644); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}
	if got, _ := os.ReadFile(path); string(got) != "first" {
		t.Errorf("content = %q, want first", got)
	}

	// Overwriting replaces the content in one step.
	if err := WriteFileAtomic(path, []byte("second"), 0644); err != nil {
		t.Fatalf("WriteFileAtomic() overwrite error = %v", err)
	}
	if got, _ := os.ReadFile(path); string(got) != "second" {
		t.Errorf("content after overwrite = %q, want second", got)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("leftover temp file: %s", e.Name())
		}
	}
}

func TestWriteFileAtomicMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.json")
	if err := WriteFileAtomic(path, []byte("x"), 0644); err == nil {
		t.Fatal("WriteFileAtomic() should fail when the directory does not exist")
	}
}

func TestCopyFilePreservesModTime(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	dst := filepath.Join(dir, "nested", "dst.jpg")

	if err := os.WriteFile(src, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Date(2019, 4, 13, 18, 59, 6, 0, time.UTC)
	if err := os.Chtimes(src, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile() error = %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "payload" {
		t.Errorf("content = %q", got)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Errorf("ModTime = %v, want %v", info.ModTime(), mtime)
	}
}

func TestCopyFileRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := CopyFile(dir, filepath.Join(dir, "copy")); err == nil {
		t.Fatal("CopyFile() should reject a directory source")
	}
}

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "copy")
	testutil.WriteTree(t, src, map[string]string{
		"a.txt":            "a",
		"images/b.jpg":     "b",
		"images/deep/c.md": "c",
	})

	if err := CopyTree(context.Background(), src, dst); err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}

	for rel, want := range map[string]string{
		"a.txt":            "a",
		"images/b.jpg":     "b",
		"images/deep/c.md": "c",
	} {
		got, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(rel)))
		if err != nil {
			t.Errorf("missing %s: %v", rel, err)
			continue
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", rel, got, want)
		}
	}
}

func TestCopyTreeCancellation(t *testing.T) {
	src := t.TempDir()
	testutil.WriteTree(t, src, map[string]string{"a.txt": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := CopyTree(ctx, src, filepath.Join(t.TempDir(), "copy")); err == nil {
		t.Fatal("CopyTree() should fail when the context is cancelled")
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	if err := os.WriteFile(src, []byte("move me"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Move(src, dst); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if Exists(src) {
		t.Error("source still exists after move")
	}
	if got, _ := os.ReadFile(dst); string(got) != "move me" {
		t.Errorf("destination content = %q", got)
	}
}

func TestMoveDirectory(t *testing.T) {
	src := t.TempDir()
	testutil.WriteTree(t, src, map[string]string{"images/a.jpg": "a"})
	dst := filepath.Join(t.TempDir(), "bundle")

	if err := Move(src, dst); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if Exists(src) {
		t.Error("source directory still exists after move")
	}
	if !FileExists(filepath.Join(dst, "images", "a.jpg")) {
		t.Error("moved tree is missing its file")
	}
}

func TestExistsAndFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}

	if !Exists(dir) || !Exists(file) {
		t.Error("Exists() = false for existing paths")
	}
	if Exists(filepath.Join(dir, "nope")) {
		t.Error("Exists() = true for missing path")
	}
	if !FileExists(file) {
		t.Error("FileExists() = false for a regular file")
	}
	if FileExists(dir) {
		t.Error("FileExists() = true for a directory")
	}
}
