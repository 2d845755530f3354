package staging

import (
	"fmt"
	"os"
	"path/filepath"

	"wet-go/internal/fsutil"
	"wet-go/internal/wet"
)

// Artifact is one staged file or directory and its final destination.
type Artifact struct {
	// Name is a short label used in logs and errors ("html", "sidecar", ...).
	Name   string
	Staged string
	Final  string
}

// CollisionError reports that an artifact's final destination already exists
// and overwrite was not authorized. It is raised before any artifact is
// moved.
type CollisionError struct {
	Path string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("destination already exists: %s", e.Path)
}

// PublishError reports a failure while moving a staged artifact into place.
// By the time it surfaces, all artifacts published earlier in the sequence
// have been rolled back (best effort).
type PublishError struct {
	Artifact string
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publishing artifact %s: %v", e.Artifact, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Publisher performs the staged → final commit.
type Publisher struct {
	logger wet.Logger
	idgen  wet.IDGenerator

	// moveFn is swappable for failure injection in tests.
	moveFn func(src, dst string) error
}

// NewPublisher creates a Publisher.
func NewPublisher(logger wet.Logger, idgen wet.IDGenerator) *Publisher {
	return &Publisher{logger: logger, idgen: idgen, moveFn: fsutil.Move}
}

// publishedArtifact records one completed move so it can be undone.
type publishedArtifact struct {
	final  string
	backup string // non-empty when an existing destination was set aside
}

// Publish moves every staged artifact to its final destination, in the given
// fixed order, sequentially.
//
// Without overwrite authorization, any pre-existing destination fails the
// whole run before a single file is touched. With authorization, an existing
// destination is renamed to a hidden backup first; backups are deleted only
// after the entire sequence succeeds, so a mid-sequence failure can restore
// every destination to its pre-run state while the artifacts already moved
// in are deleted again.
func (p *Publisher) Publish(artifacts []Artifact, overwrite bool) error {
	// Preflight: fail fast on collisions before any move.
	for _, a := range artifacts {
		if fsutil.Exists(a.Final) {
			if !overwrite {
				return &CollisionError{Path: a.Final}
			}
		}
	}

	runID := p.idgen.New()
	var done []publishedArtifact

	for _, a := range artifacts {
		pub, err := p.publishOne(a, overwrite, runID)
		if err != nil {
			p.rollback(done)
			return &PublishError{Artifact: a.Name, Err: err}
		}
		done = append(done, pub)
		p.logger.Debug("artifact published", "artifact", a.Name, "path", a.Final)
	}

	// Commit: drop the backups.
	for _, pub := range done {
		if pub.backup != "" {
			if err := os.RemoveAll(pub.backup); err != nil {
				p.logger.Warn("could not remove backup", "path", pub.backup, "error", err)
			}
		}
	}
	return nil
}

func (p *Publisher) publishOne(a Artifact, overwrite bool, runID string) (publishedArtifact, error) {
	pub := publishedArtifact{final: a.Final}

	if err := os.MkdirAll(filepath.Dir(a.Final), 0755); err != nil {
		return pub, fmt.Errorf("creating output directory: %w", err)
	}

	if fsutil.Exists(a.Final) {
		if !overwrite {
			// Appeared between preflight and now.
			return pub, &CollisionError{Path: a.Final}
		}
		backup := filepath.Join(filepath.Dir(a.Final), "."+filepath.Base(a.Final)+".bak-"+runID)
		if err := os.Rename(a.Final, backup); err != nil {
			return pub, fmt.Errorf("setting aside existing destination: %w", err)
		}
		pub.backup = backup
	}

	if err := p.moveFn(a.Staged, a.Final); err != nil {
		// Restore the destination we just displaced before reporting.
		if pub.backup != "" {
			if rerr := os.Rename(pub.backup, a.Final); rerr != nil {
				p.logger.Error("could not restore backup", "path", pub.backup, "error", rerr)
			}
			pub.backup = ""
		}
		return pub, err
	}
	return pub, nil
}

// rollback undoes completed moves after a mid-sequence failure: artifacts
// from this run are deleted and displaced originals restored. Best effort; a
// mixed-version bundle is worse than a leftover backup file.
func (p *Publisher) rollback(done []publishedArtifact) {
	for i := len(done) - 1; i >= 0; i-- {
		pub := done[i]
		if err := os.RemoveAll(pub.final); err != nil {
			p.logger.Error("rollback: could not remove artifact", "path", pub.final, "error", err)
			continue
		}
		if pub.backup != "" {
			if err := os.Rename(pub.backup, pub.final); err != nil {
				p.logger.Error("rollback: could not restore backup", "path", pub.backup, "error", err)
			}
		}
	}
}
