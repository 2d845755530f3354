// Package staging implements the all-or-nothing publication step: artifacts
// are rendered into an isolated workspace and only made visible at the final
// output location through a fixed-order sequence of moves with backup and
// rollback, so a failed run never leaves a half-published bundle.
package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"wet-go/internal/wet"
)

// workspace name collisions are retried a bounded number of times; running
// out of retries indicates a broken temp root, not bad luck.
const maxCreateAttempts = 10

// Workspace is a uniquely-named, exclusively-created directory under the
// temp root. It is owned by exactly one export invocation and removed on
// every exit path: success moves its contents out first, failure simply
// deletes it.
type Workspace struct {
	dir    string
	logger wet.Logger
}

// NewWorkspace allocates a fresh workspace under tempRoot.
func NewWorkspace(tempRoot string, idgen wet.IDGenerator, logger wet.Logger) (*Workspace, error) {
	if tempRoot == "" {
		tempRoot = os.TempDir()
	}
	if err := os.MkdirAll(tempRoot, 0700); err != nil {
		return nil, fmt.Errorf("creating staging root: %w", err)
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		dir := filepath.Join(tempRoot, "wet-export-"+idgen.New())
		err := os.Mkdir(dir, 0700)
		if err == nil {
			logger.Debug("staging workspace created", "dir", dir)
			return &Workspace{dir: dir, logger: logger}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("creating staging workspace: %w", err)
		}
	}
	return nil, fmt.Errorf("could not allocate a staging workspace under %s after %d attempts", tempRoot, maxCreateAttempts)
}

// Dir returns the workspace root.
func (w *Workspace) Dir() string { return w.dir }

// Path joins elements onto the workspace root.
func (w *Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{w.dir}, elem...)...)
}

// Remove deletes the workspace recursively. Safe to call more than once.
func (w *Workspace) Remove() error {
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("removing staging workspace: %w", err)
	}
	return nil
}
