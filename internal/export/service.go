package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"wet-go/internal/attach"
	"wet-go/internal/chat"
	"wet-go/internal/config"
	"wet-go/internal/encryption"
	"wet-go/internal/fsutil"
	"wet-go/internal/limit"
	"wet-go/internal/manifest"
	"wet-go/internal/render"
	"wet-go/internal/staging"
	"wet-go/internal/thumb"
	"wet-go/internal/verify"
	"wet-go/internal/wet"
)

// Names of the special folders inside a sidecar bundle.
const (
	SidecarSuffix = "-sdc"
	PreviewsDir   = "_previews"
	SourceDir     = "_source"
)

// Request describes one export invocation.
type Request struct {
	// ChatPath is the WhatsApp transcript file. Attachments are resolved
	// relative to its directory.
	ChatPath string
	// OutDir is the final output directory.
	OutDir string
	// Me is the display name rendered as the right-hand side. Empty means
	// auto-detect, interactively when Interactive is set.
	Me string
	// In and Out carry the interactive perspective prompt.
	In          io.Reader
	Out         io.Writer
	Interactive bool
	// Sidecar enables the media bundle folder next to the documents.
	Sidecar bool
	// Overwrite authorizes replacing existing destinations.
	Overwrite bool
	// Encrypt additionally writes an age-encrypted copy of the Markdown
	// artifact.
	Encrypt bool
	// Previews enables the link index inside the sidecar bundle.
	Previews bool
}

// Result summarizes a completed export.
type Result struct {
	BaseName        string
	Me              string
	MessageCount    int
	AttachmentCount int
	BundleSHA256    string
	// Published lists the final paths created, in publication order.
	Published []string
}

// Service runs exports. All collaborators are injected so runs are
// deterministic under test.
type Service struct {
	cfg       *config.Config
	logger    wet.Logger
	clock     wet.Clock
	idgen     wet.IDGenerator
	renderer  wet.ThumbnailRenderer
	pools     limit.Pools
	encryptor *encryption.AgeEncryptor
}

// NewService creates a Service.
func NewService(cfg *config.Config, logger wet.Logger, clock wet.Clock, idgen wet.IDGenerator, renderer wet.ThumbnailRenderer, pools limit.Pools, encryptor *encryption.AgeEncryptor) *Service {
	return &Service{
		cfg:       cfg,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		renderer:  renderer,
		pools:     pools,
		encryptor: encryptor,
	}
}

// Export runs the full pipeline: parse, resolve attachments, pre-compute
// thumbnails, render everything into an isolated workspace, write the
// manifest over the staged tree, and finally publish the whole bundle
// atomically. Nothing appears under OutDir unless every step succeeded.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	msgs, err := chat.ParseFile(req.ChatPath)
	if err != nil {
		return nil, fmt.Errorf("parsing chat: %w", err)
	}
	s.logger.Info("chat parsed", "path", req.ChatPath, "messages", len(msgs))

	participants := chat.Participants(msgs)
	me := req.Me
	if me == "" {
		me = chat.ChooseMe(participants, req.In, req.Out, req.Interactive)
	}

	sourceDir := filepath.Dir(req.ChatPath)
	index := attach.NewIndex()
	builder := attach.NewBuilder(attach.NewResolver(index), s.logger)
	entries, err := builder.Build(msgs, sourceDir)
	if err != nil {
		return nil, fmt.Errorf("resolving attachments: %w", err)
	}
	s.logger.Info("attachments resolved", "count", len(entries))

	ws, err := staging.NewWorkspace(s.cfg.Staging.TempRoot, s.idgen, s.logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Remove(); err != nil {
			s.logger.Warn("could not remove staging workspace", "error", err)
		}
	}()

	store, err := s.newThumbStore(ws)
	if err != nil {
		return nil, err
	}
	if err := store.PrecomputeAll(ctx, entries); err != nil {
		return nil, fmt.Errorf("pre-computing thumbnails: %w", err)
	}

	baseName := BaseName(msgs, me, s.clock.Now())
	sidecarName := baseName + SidecarSuffix

	entryMap := make(map[string]attach.CanonicalEntry, len(entries))
	for _, e := range entries {
		entryMap[e.FileName] = e
	}
	opts := render.Options{
		Me:          me,
		Title:       Title(msgs, me),
		SourceName:  filepath.Base(req.ChatPath),
		GeneratedAt: s.clock.Now(),
		Entries:     entryMap,
		Thumbs:      store.View(),
		Sidecar:     req.Sidecar,
		SidecarDir:  sidecarName,
	}

	if err := s.renderDocuments(ctx, msgs, opts, ws, baseName, sidecarName); err != nil {
		return nil, err
	}

	if req.Sidecar {
		if err := s.buildSidecar(ctx, req, ws.Path(sidecarName), entries, msgs, store); err != nil {
			return nil, err
		}
	}

	encrypted := false
	if req.Encrypt {
		if !s.encryptor.IsConfigured() {
			return nil, fmt.Errorf("encryption requested but no recipients file is configured")
		}
		mdPath := ws.Path(baseName + ".md")
		if err := s.encryptor.EncryptFile(mdPath, mdPath+".age"); err != nil {
			return nil, fmt.Errorf("encrypting markdown: %w", err)
		}
		encrypted = true
	}

	meta := bundleMeta(msgs, participants, entries, req.Sidecar, encrypted)
	writer := manifest.NewWriter(s.logger)
	_, _, bundleHash, err := writer.Write(ctx, ws.Dir(), baseName, meta)
	if err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}

	artifacts := s.artifacts(ws, req, baseName, sidecarName, encrypted)
	publisher := staging.NewPublisher(s.logger, s.idgen)
	if err := publisher.Publish(artifacts, req.Overwrite); err != nil {
		return nil, err
	}

	published := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		published = append(published, a.Final)
	}
	s.logger.Info("export published", "base", baseName, "outdir", req.OutDir, "bundle_sha256", bundleHash)

	return &Result{
		BaseName:        baseName,
		Me:              me,
		MessageCount:    len(msgs),
		AttachmentCount: len(entries),
		BundleSHA256:    bundleHash,
		Published:       published,
	}, nil
}

// newThumbStore places the cache under base_dir for persistent mode so
// thumbnails survive across runs, or inside the workspace for temp mode.
func (s *Service) newThumbStore(ws *staging.Workspace) (*thumb.Store, error) {
	// The temp cache lives inside the workspace under a hidden name so the
	// manifest walk over the staged tree never picks it up.
	dir := filepath.Join(s.cfg.BaseDir, "thumbs")
	if s.cfg.Thumbnails.Cache == "temp" {
		dir = ws.Path(".thumb-cache")
	}

	eligible := s.cfg.Thumbnails.Eligible
	if len(eligible) == 0 {
		eligible = thumb.DefaultEligible
	}
	params := thumb.Params{
		CodecVersion: s.cfg.Thumbnails.CodecVersion,
		MaxDim:       s.cfg.Thumbnails.MaxDimension,
		Quality:      s.cfg.Thumbnails.Quality,
	}
	return thumb.NewStore(dir, s.renderer, thumb.PolicyFromExtensions(eligible), params, s.pools.CPU, s.logger)
}

// renderDocuments writes the document artifacts into the workspace: the
// self-contained embedded HTML and the Markdown always, plus the
// sidecar-referencing HTML variant when a sidecar bundle is requested.
func (s *Service) renderDocuments(ctx context.Context, msgs []chat.Message, opts render.Options, ws *staging.Workspace, baseName, sidecarName string) error {
	embeddedOpts := opts
	embeddedOpts.Sidecar = false
	if err := s.renderTo(ws.Path(baseName+".html"), func(w io.Writer) error {
		return render.NewHTML(embeddedOpts, s.pools.CPU).Render(ctx, msgs, w)
	}); err != nil {
		return fmt.Errorf("rendering html: %w", err)
	}

	if err := s.renderTo(ws.Path(baseName+".md"), func(w io.Writer) error {
		return render.NewMarkdown(opts, s.pools.CPU).Render(ctx, msgs, w)
	}); err != nil {
		return fmt.Errorf("rendering markdown: %w", err)
	}

	if opts.Sidecar {
		if err := s.renderTo(ws.Path(sidecarName+".html"), func(w io.Writer) error {
			return render.NewHTML(opts, s.pools.CPU).Render(ctx, msgs, w)
		}); err != nil {
			return fmt.Errorf("rendering sidecar html: %w", err)
		}
	}
	return nil
}

func (s *Service) renderTo(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return err
	}
	return f.Close()
}

// buildSidecar populates the staged sidecar folder: bucket copies of every
// attachment, the thumbnail files, the link index, and a verbatim copy of the
// whole source folder. Every copy is byte-verified against its original
// before the bundle may publish; the source copy is what later lets
// "wet verify" authorize deleting the originals.
func (s *Service) buildSidecar(ctx context.Context, req Request, sidecarDir string, entries []attach.CanonicalEntry, msgs []chat.Message, store *thumb.Store) error {
	if err := os.MkdirAll(sidecarDir, 0755); err != nil {
		return fmt.Errorf("creating sidecar folder: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, entry := range entries {
		g.Go(func() error {
			return s.pools.IO.Do(gctx, func() error {
				dst := filepath.Join(sidecarDir, filepath.FromSlash(entry.CanonicalRelPath))
				if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
					return fmt.Errorf("creating bucket folder: %w", err)
				}
				if err := fsutil.CopyFile(entry.SourcePath, dst); err != nil {
					return fmt.Errorf("copying %s: %w", entry.FileName, err)
				}
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := s.copyThumbnails(ctx, sidecarDir, entries, store); err != nil {
		return err
	}

	if req.Previews {
		if err := writeLinkIndex(sidecarDir, msgs); err != nil {
			return err
		}
	}

	srcDir := filepath.Join(sidecarDir, SourceDir)
	if err := fsutil.CopyTree(ctx, filepath.Dir(req.ChatPath), srcDir); err != nil {
		return fmt.Errorf("copying source tree: %w", err)
	}

	return s.verifySidecar(ctx, req, sidecarDir, entries)
}

func (s *Service) copyThumbnails(ctx context.Context, sidecarDir string, entries []attach.CanonicalEntry, store *thumb.Store) error {
	view := store.View()
	thumbDir := filepath.Join(sidecarDir, thumb.DirName)
	if err := os.MkdirAll(thumbDir, 0755); err != nil {
		return fmt.Errorf("creating thumbnail folder: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, entry := range entries {
		name, ok := view.FileName(entry)
		if !ok {
			continue
		}
		g.Go(func() error {
			return s.pools.IO.Do(gctx, func() error {
				src := filepath.Join(store.Dir(), name)
				if err := fsutil.CopyFile(src, filepath.Join(thumbDir, name)); err != nil {
					return fmt.Errorf("copying thumbnail for %s: %w", entry.FileName, err)
				}
				return nil
			})
		})
	}
	return g.Wait()
}

// writeLinkIndex records every URL mentioned in the chat, in order of first
// appearance, as a plain text index under the previews folder.
func writeLinkIndex(sidecarDir string, msgs []chat.Message) error {
	seen := make(map[string]bool)
	var links []string
	for _, m := range msgs {
		for _, u := range chat.ExtractURLs(m.Text) {
			if !seen[u] {
				seen[u] = true
				links = append(links, u)
			}
		}
	}

	dir := filepath.Join(sidecarDir, PreviewsDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating previews folder: %w", err)
	}
	data := ""
	if len(links) > 0 {
		data = strings.Join(links, "\n") + "\n"
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(dir, "links.txt"), []byte(data), 0644); err != nil {
		return fmt.Errorf("writing link index: %w", err)
	}
	return nil
}

// verifySidecar byte-compares every staged copy against its original. A
// mismatch aborts the run before anything publishes.
func (s *Service) verifySidecar(ctx context.Context, req Request, sidecarDir string, entries []attach.CanonicalEntry) error {
	opts := verify.Options{TrustModTime: true}
	for _, entry := range entries {
		dst := filepath.Join(sidecarDir, filepath.FromSlash(entry.CanonicalRelPath))
		same, err := verify.Files(ctx, entry.SourcePath, dst, opts)
		if err != nil {
			return fmt.Errorf("verifying %s: %w", entry.FileName, err)
		}
		if !same {
			return fmt.Errorf("staged copy of %s does not match its original", entry.FileName)
		}
	}

	res, err := verify.Trees(ctx, filepath.Dir(req.ChatPath), filepath.Join(sidecarDir, SourceDir), opts)
	if err != nil {
		return fmt.Errorf("verifying source tree copy: %w", err)
	}
	if !res.Identical {
		return fmt.Errorf("staged copy of the source tree does not match: %d mismatch(es)", len(res.Mismatches))
	}
	return nil
}

// artifacts lists the staged files in publication order. The sidecar folder
// goes first so documents never reference a folder that is not there yet.
func (s *Service) artifacts(ws *staging.Workspace, req Request, baseName, sidecarName string, encrypted bool) []staging.Artifact {
	var artifacts []staging.Artifact
	add := func(name, file string) {
		artifacts = append(artifacts, staging.Artifact{
			Name:   name,
			Staged: ws.Path(file),
			Final:  filepath.Join(req.OutDir, file),
		})
	}

	if req.Sidecar {
		add("sidecar", sidecarName)
		add("sidecar-html", sidecarName+".html")
	}
	add("html", baseName+".html")
	add("markdown", baseName+".md")
	if encrypted {
		add("markdown.age", baseName+".md.age")
	}
	add("manifest", baseName+manifest.ManifestSuffix)
	add("checksums", baseName+manifest.ChecksumSuffix)
	return artifacts
}

func bundleMeta(msgs []chat.Message, participants []string, entries []attach.CanonicalEntry, sidecar, encrypted bool) manifest.Meta {
	meta := manifest.Meta{
		Participants: participants,
		MessageCount: len(msgs),
		MediaCounts:  make(map[string]int),
		Sidecar:      sidecar,
		Encrypted:    encrypted,
	}
	for _, m := range msgs {
		if meta.FirstMessage.IsZero() || m.TS.Before(meta.FirstMessage) {
			meta.FirstMessage = m.TS
		}
		if m.TS.After(meta.LastMessage) {
			meta.LastMessage = m.TS
		}
	}
	for _, e := range entries {
		meta.MediaCounts[e.Bucket]++
	}
	return meta
}
