package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"wet-go/internal/testutil"
	"wet-go/internal/wet"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func TestNewWorkspace(t *testing.T) {
	t.Run("creates unique directory", func(t *testing.T) {
		root := t.TempDir()
		w, err := NewWorkspace(root, testutil.NewStubIDGenerator(), wet.NewNopLogger())
		if err != nil {
			t.Fatalf("NewWorkspace() error = %v", err)
		}
		info, err := os.Stat(w.Dir())
		if err != nil || !info.IsDir() {
			t.Errorf("workspace directory missing: %v", err)
		}
		if filepath.Dir(w.Dir()) != root {
			t.Errorf("workspace %s not under root %s", w.Dir(), root)
		}
	})

	t.Run("retries name collisions", func(t *testing.T) {
		root := t.TempDir()
		gen := testutil.NewStubIDGenerator()
		// Occupy the first two names the generator will produce.
		if err := os.Mkdir(filepath.Join(root, "wet-export-id-1"), 0700); err != nil {
			t.Fatal(err)
		}
		if err := os.Mkdir(filepath.Join(root, "wet-export-id-2"), 0700); err != nil {
			t.Fatal(err)
		}

		w, err := NewWorkspace(root, gen, wet.NewNopLogger())
		if err != nil {
			t.Fatalf("NewWorkspace() error = %v", err)
		}
		if filepath.Base(w.Dir()) != "wet-export-id-3" {
			t.Errorf("workspace = %s, want wet-export-id-3", w.Dir())
		}
	})

	t.Run("persistent collision is fatal", func(t *testing.T) {
		root := t.TempDir()
		gen := testutil.NewFixedIDGenerator("stuck")
		if err := os.Mkdir(filepath.Join(root, "wet-export-stuck"), 0700); err != nil {
			t.Fatal(err)
		}
		if _, err := NewWorkspace(root, gen, wet.NewNopLogger()); err == nil {
			t.Error("NewWorkspace() succeeded despite persistent collision")
		}
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		w, err := NewWorkspace(t.TempDir(), testutil.NewStubIDGenerator(), wet.NewNopLogger())
		if err != nil {
			t.Fatal(err)
		}
		if err := w.Remove(); err != nil {
			t.Errorf("Remove() error = %v", err)
		}
		if err := w.Remove(); err != nil {
			t.Errorf("second Remove() error = %v", err)
		}
	})
}

func stageArtifacts(t *testing.T, staged, out string, names ...string) []Artifact {
	t.Helper()
	var artifacts []Artifact
	for _, name := range names {
		writeFile(t, filepath.Join(staged, name), "content of "+name)
		artifacts = append(artifacts, Artifact{
			Name:   name,
			Staged: filepath.Join(staged, name),
			Final:  filepath.Join(out, name),
		})
	}
	return artifacts
}

func TestPublishMovesAllArtifacts(t *testing.T) {
	staged, out := t.TempDir(), t.TempDir()
	artifacts := stageArtifacts(t, staged, out, "chat.html", "chat.md")

	p := NewPublisher(wet.NewNopLogger(), testutil.NewStubIDGenerator())
	if err := p.Publish(artifacts, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	for _, a := range artifacts {
		if got := readFile(t, a.Final); got != "content of "+a.Name {
			t.Errorf("%s content = %q", a.Name, got)
		}
		if _, err := os.Stat(a.Staged); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("staged copy of %s still present", a.Name)
		}
	}
}

func TestPublishCollisionFailsBeforeAnyMove(t *testing.T) {
	staged, out := t.TempDir(), t.TempDir()
	artifacts := stageArtifacts(t, staged, out, "chat.html", "chat.md")

	// Second artifact's destination is occupied.
	writeFile(t, filepath.Join(out, "chat.md"), "pre-existing")

	p := NewPublisher(wet.NewNopLogger(), testutil.NewStubIDGenerator())
	err := p.Publish(artifacts, false)

	var collision *CollisionError
	if !errors.As(err, &collision) {
		t.Fatalf("Publish() error = %v, want CollisionError", err)
	}
	if collision.Path != filepath.Join(out, "chat.md") {
		t.Errorf("collision path = %s", collision.Path)
	}

	// Nothing may have been touched, including the first artifact.
	if _, err := os.Stat(filepath.Join(out, "chat.html")); !errors.Is(err, os.ErrNotExist) {
		t.Error("first artifact was published despite collision")
	}
	if got := readFile(t, filepath.Join(out, "chat.md")); got != "pre-existing" {
		t.Errorf("existing file modified: %q", got)
	}
}

func TestPublishOverwriteReplacesAndDropsBackup(t *testing.T) {
	staged, out := t.TempDir(), t.TempDir()
	artifacts := stageArtifacts(t, staged, out, "chat.html")
	writeFile(t, filepath.Join(out, "chat.html"), "old version")

	p := NewPublisher(wet.NewNopLogger(), testutil.NewStubIDGenerator())
	if err := p.Publish(artifacts, true); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if got := readFile(t, filepath.Join(out, "chat.html")); got != "content of chat.html" {
		t.Errorf("destination = %q", got)
	}
	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "chat.html" {
			t.Errorf("leftover entry after publish: %s", e.Name())
		}
	}
}

func TestPublishMidSequenceFailureRollsBack(t *testing.T) {
	staged, out := t.TempDir(), t.TempDir()
	artifacts := stageArtifacts(t, staged, out, "chat.html", "chat.md", "chat.sha256")

	// The destination of the first artifact holds an old version that must
	// survive the failed run byte-identically.
	writeFile(t, filepath.Join(out, "chat.html"), "old html")

	p := NewPublisher(wet.NewNopLogger(), testutil.NewStubIDGenerator())
	failOn := filepath.Join(out, "chat.sha256")
	realMove := p.moveFn
	p.moveFn = func(src, dst string) error {
		if dst == failOn {
			return fmt.Errorf("simulated move failure")
		}
		return realMove(src, dst)
	}

	err := p.Publish(artifacts, true)
	var pubErr *PublishError
	if !errors.As(err, &pubErr) {
		t.Fatalf("Publish() error = %v, want PublishError", err)
	}
	if pubErr.Artifact != "chat.sha256" {
		t.Errorf("failed artifact = %s", pubErr.Artifact)
	}

	// The previously published artifacts must be gone again and the old
	// version restored unchanged.
	if got := readFile(t, filepath.Join(out, "chat.html")); got != "old html" {
		t.Errorf("original not restored: %q", got)
	}
	if _, err := os.Stat(filepath.Join(out, "chat.md")); !errors.Is(err, os.ErrNotExist) {
		t.Error("chat.md from failed run still present")
	}
	if _, err := os.Stat(failOn); !errors.Is(err, os.ErrNotExist) {
		t.Error("chat.sha256 present despite simulated failure")
	}

	// No hidden backups may remain.
	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "chat.html" {
			t.Errorf("leftover entry after rollback: %s", e.Name())
		}
	}
}

func TestPublishDirectoryArtifact(t *testing.T) {
	staged, out := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(staged, "sidecar", "images", "a.jpg"), "img")
	artifacts := []Artifact{{
		Name:   "sidecar",
		Staged: filepath.Join(staged, "sidecar"),
		Final:  filepath.Join(out, "chat-sdc"),
	}}

	p := NewPublisher(wet.NewNopLogger(), testutil.NewStubIDGenerator())
	if err := p.Publish(artifacts, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got := readFile(t, filepath.Join(out, "chat-sdc", "images", "a.jpg")); got != "img" {
		t.Errorf("sidecar content = %q", got)
	}
}
