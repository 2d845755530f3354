// Package app is the application layer between the CLI and the export
// service. It constructs all dependencies from config, exposes high-level
// operations, and manages the history database and log file lifecycle on
// Close.
package app

import (
	"context"
	"fmt"
	"os"

	"wet-go/internal/config"
	"wet-go/internal/encryption"
	"wet-go/internal/export"
	"wet-go/internal/history"
	"wet-go/internal/limit"
	"wet-go/internal/thumb"
	"wet-go/internal/verify"
	"wet-go/internal/wet"
)

// WetApp wires the export service, run history and logging together for one
// CLI invocation. The caller must call Close when done.
type WetApp struct {
	cfg     *config.Config
	service *export.Service
	hist    *history.DB
	clock   wet.Clock
	idgen   wet.IDGenerator
	logFile *os.File
}

// NewWetApp creates a fully wired WetApp from the given config. operation
// identifies the CLI command being run ("export", "verify", "history").
func NewWetApp(cfg *config.Config, operation string) (*WetApp, error) {
	clock := wet.RealClock{}
	idgen := wet.UUIDGenerator{}

	opID := operation + "-" + clock.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	var hist *history.DB
	if cfg.History.Enabled {
		hist, err = history.Open(cfg.History.Path)
		if err != nil {
			logFile.Close()
			return nil, fmt.Errorf("opening history database: %w", err)
		}
	}

	pools := limit.NewPools(cfg.Concurrency.CPU, cfg.Concurrency.IO)
	svc := export.NewService(cfg, &slogAdapter{l: logger}, clock, idgen,
		thumb.PassthroughRenderer{}, pools, encryption.NewAgeEncryptor(cfg.Encryption))

	return &WetApp{
		cfg:     cfg,
		service: svc,
		hist:    hist,
		clock:   clock,
		idgen:   idgen,
		logFile: logFile,
	}, nil
}

// Config returns the loaded configuration.
func (a *WetApp) Config() *config.Config { return a.cfg }

// Export runs one export and records the outcome in the run history,
// successful or not.
func (a *WetApp) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	started := a.clock.Now().UTC()
	res, err := a.service.Export(ctx, req)
	finished := a.clock.Now().UTC()

	if a.hist != nil {
		run := history.Run{
			ID:         a.idgen.New(),
			StartedAt:  started,
			FinishedAt: finished,
			SourcePath: req.ChatPath,
			OutputDir:  req.OutDir,
			Status:     history.StatusSucceeded,
		}
		if err != nil {
			run.Status = history.StatusFailed
			run.Error = err.Error()
		} else {
			run.BaseName = res.BaseName
			run.MessageCount = int64(res.MessageCount)
			run.AttachmentCount = int64(res.AttachmentCount)
			run.BundleSHA256 = res.BundleSHA256
		}
		if rerr := a.hist.Record(ctx, run); rerr != nil && err == nil {
			return res, fmt.Errorf("recording run history: %w", rerr)
		}
	}
	return res, err
}

// Verify byte-compares an original media tree against its published sidecar
// copy. strict disables the mtime fast-path.
func (a *WetApp) Verify(ctx context.Context, originalDir, publishedDir string, strict bool) (*verify.Result, error) {
	opts := verify.Options{TrustModTime: !strict}
	res, err := verify.Trees(ctx, originalDir, publishedDir, opts)
	if err != nil {
		return nil, fmt.Errorf("verifying trees: %w", err)
	}
	return res, nil
}

// History returns the most recent export runs.
func (a *WetApp) History(ctx context.Context, limit int) ([]history.Run, error) {
	if a.hist == nil {
		return nil, fmt.Errorf("run history is disabled in the configuration")
	}
	return a.hist.List(ctx, limit)
}

// Close releases the history database and the log file.
func (a *WetApp) Close() error {
	var firstErr error
	if a.hist != nil {
		if err := a.hist.Close(); err != nil {
			firstErr = fmt.Errorf("closing history database: %w", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
