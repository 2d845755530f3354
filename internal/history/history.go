// Package history records export runs in a local SQLite database so past
// exports can be listed and their bundle hashes looked up later.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wet-go/internal/history/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Run statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one recorded export run.
type Run struct {
	ID              string
	StartedAt       time.Time
	FinishedAt      time.Time
	SourcePath      string
	OutputDir       string
	BaseName        string
	MessageCount    int64
	AttachmentCount int64
	BundleSHA256    string
	Status          string
	Error           string
}

// DB is the run-history store backed by SQLite.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the history database at path and migrates it to
// the latest schema. path can be ":memory:" for tests.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating history database: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the underlying connection.
func (h *DB) Close() error {
	return h.db.Close()
}

// Record inserts one run.
func (h *DB) Record(ctx context.Context, run Run) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, started_at, finished_at, source_path, output_dir, base_name,
			message_count, attachment_count, bundle_sha256, status, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt, run.FinishedAt, run.SourcePath, run.OutputDir,
		run.BaseName, run.MessageCount, run.AttachmentCount, run.BundleSHA256,
		run.Status, run.Error,
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	return nil
}

// List returns the most recent runs, newest first, up to limit. A limit of
// zero or less means no limit.
func (h *DB) List(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, started_at, finished_at, source_path, output_dir, base_name,
		       message_count, attachment_count, bundle_sha256, status, error
		FROM runs
		ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(
			&r.ID, &r.StartedAt, &r.FinishedAt, &r.SourcePath, &r.OutputDir,
			&r.BaseName, &r.MessageCount, &r.AttachmentCount, &r.BundleSHA256,
			&r.Status, &r.Error,
		); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}
