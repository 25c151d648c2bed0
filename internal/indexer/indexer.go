// Package indexer orchestrates bulk ingestion of a remote content tree:
// it walks notebooks → sections → pages, dispatches page work to a bounded
// worker pool, tracks progress, and emits resumable checkpoints.
package indexer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/othala/internal/cache"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/remote"
	"github.com/starford/othala/internal/search"
	"github.com/starford/othala/internal/transform"
)

// Pipeline bundles the transform collaborators used for page work.
type Pipeline struct {
	Converter  transform.Converter
	Assets     transform.AssetExtractor
	Links      transform.LinkResolver
	Downloader transform.Downloader
}

// Config controls indexer runtime behaviour.
type Config struct {
	// Concurrency bounds simultaneous page work. Chosen to respect remote
	// rate limits and local I/O at the same time.
	Concurrency int
	// CheckpointEvery takes a checkpoint snapshot after this many processed
	// pages.
	CheckpointEvery int
	// MaxErrors bounds error-string retention in progress reports.
	MaxErrors int
}

func (c *Config) defaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = 25
	}
	if c.MaxErrors <= 0 {
		c.MaxErrors = 50
	}
}

// Option customises indexer construction.
type Option func(*Indexer)

// WithProgressCallback sets the fire-and-forget progress listener, invoked
// after every page attempt. Panics in the callback are logged, never fatal.
func WithProgressCallback(fn func(models.Progress)) Option {
	return func(ix *Indexer) { ix.onProgress = fn }
}

// WithCheckpointCallback sets the checkpoint listener. The indexer owns the
// snapshot's content; the listener owns its persistence.
func WithCheckpointCallback(fn func(*models.Checkpoint)) Option {
	return func(ix *Indexer) { ix.onCheckpoint = fn }
}

// Indexer ingests remote content trees into the cache store and search
// index.
type Indexer struct {
	remote   remote.Client
	store    cache.Store
	index    search.PageIndex
	pipeline Pipeline
	logger   *slog.Logger
	cfg      Config

	onProgress   func(models.Progress)
	onCheckpoint func(*models.Checkpoint)
}

// New creates an Indexer.
func New(client remote.Client, store cache.Store, index search.PageIndex, pipeline Pipeline, logger *slog.Logger, cfg Config, opts ...Option) *Indexer {
	cfg.defaults()
	ix := &Indexer{
		remote:   client,
		store:    store,
		index:    index,
		pipeline: pipeline,
		logger:   logger,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// RunOptions parameterises one bulk run.
type RunOptions struct {
	// Resume seeds the completed-page set from a prior checkpoint so those
	// pages are skipped, not reprocessed.
	Resume *models.Checkpoint
	// ForceReindex reprocesses every page regardless of currency checks and
	// checkpoint state.
	ForceReindex bool
	// NotebookScope restricts the run to these notebook ids (empty = all).
	NotebookScope []string
}

// runState aggregates the mutable per-run bookkeeping the worker pool
// shares. All access is serialized through its mutex.
type runState struct {
	mu        sync.Mutex
	completed []string
	failed    []string
	sinceCp   int
}

// IndexAll walks the remote tree and ingests every page, bounded by the
// configured worker pool. Sections act as batch barriers: a section's pages
// all finish before the next section starts. The passed Control observes
// and steers the run.
//
// Run-level failures (cannot list notebooks) abort; page-level failures are
// counted and retained, and leave the run Completed.
func (ix *Indexer) IndexAll(ctx context.Context, userID string, opts RunOptions, ctl *Control) (models.Progress, error) {
	opID := newOperationID()
	scope := opts.NotebookScope
	st := &runState{}
	if opts.Resume != nil && !opts.ForceReindex {
		opID = opts.Resume.OperationID
		st.completed = append(st.completed, opts.Resume.CompletedIDs...)
		if len(scope) == 0 {
			scope = opts.Resume.NotebookScope
		}
	}
	completedSet := make(map[string]struct{}, len(st.completed))
	for _, id := range st.completed {
		completedSet[id] = struct{}{}
	}

	ctl.transition(models.RunRunning)
	ctl.update(func(p *models.Progress) {
		p.OperationID = opID
		p.UserID = userID
		p.StartedAt = time.Now().UTC()
		p.UpdatedAt = p.StartedAt
	})

	notebooks, err := ix.remote.ListNotebooks(ctx)
	if err != nil {
		ctl.transition(models.RunFailed)
		return ctl.Progress(), fmt.Errorf("indexer: list notebooks: %w", err)
	}
	notebooks = filterNotebooks(notebooks, scope)

	ix.computeTotals(ctx, notebooks, ctl)

	for _, nb := range notebooks {
		if !ctl.proceed() {
			break
		}
		sections, err := ix.remote.ListSections(ctx, nb.ID)
		if err != nil {
			ix.recordError(ctl, fmt.Sprintf("list sections of %s: %v", nb.ID, err))
			continue
		}
		for _, sec := range sections {
			if !ctl.proceed() {
				break
			}
			ix.indexSection(ctx, userID, opID, nb, sec, opts, scope, completedSet, st, ctl)
			ctl.update(func(p *models.Progress) { p.ProcessedSections++ })
		}
		ctl.update(func(p *models.Progress) { p.ProcessedNotebooks++ })
	}

	ix.takeCheckpoint(userID, opID, opts, scope, st, ctl)
	ctl.transition(models.RunCompleted)
	final := ctl.Progress()
	ix.logger.Info("indexer: run finished",
		slog.String("operation", opID),
		slog.String("status", string(final.Status)),
		slog.Int("successful", final.SuccessfulPages),
		slog.Int("failed", final.FailedPages),
		slog.Int("skipped", final.SkippedPages))
	return final, nil
}

// indexSection processes one section's pages as an unordered batch bounded
// by the worker pool, waiting for the whole batch before returning so peak
// in-flight work stays bounded.
func (ix *Indexer) indexSection(ctx context.Context, userID, opID string, nb models.Notebook, sec models.Section, opts RunOptions, scope []string, completedSet map[string]struct{}, st *runState, ctl *Control) {
	pages, err := ix.remote.ListPages(ctx, sec.ID)
	if err != nil {
		ix.recordError(ctl, fmt.Sprintf("list pages of %s: %v", sec.ID, err))
		return
	}

	knownPages := make(map[string]string, len(pages))
	for _, p := range pages {
		knownPages[p.ID] = p.Title
	}
	knownSections := map[string]string{sec.ID: sec.Name}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.cfg.Concurrency)
	for _, ref := range pages {
		if !ctl.proceed() {
			break
		}
		g.Go(func() error {
			ix.indexOnePage(gctx, userID, opID, nb, sec, ref, opts, scope, completedSet, knownPages, knownSections, st, ctl)
			return nil
		})
	}
	_ = g.Wait() // section barrier; page failures are aggregated, not returned
}

func (ix *Indexer) indexOnePage(ctx context.Context, userID, opID string, nb models.Notebook, sec models.Section, ref models.PageRef, opts RunOptions, scope []string, completedSet map[string]struct{}, knownPages, knownSections map[string]string, st *runState, ctl *Control) {
	skip := false
	if !opts.ForceReindex {
		if _, done := completedSet[ref.ID]; done {
			skip = true
		} else if rec, err := ix.store.GetPage(userID, ref.ID); err == nil &&
			rec.Complete() &&
			!rec.LastModified.Before(ref.LastModified) &&
			ix.store.TextArtifactExists(userID, rec) {
			skip = true
		}
	}

	var pageErr error
	if !skip {
		pageErr = ix.ProcessPage(ctx, userID, PageJob{
			Ref:           ref,
			NotebookID:    nb.ID,
			NotebookName:  nb.Name,
			SectionName:   sec.Name,
			KnownPages:    knownPages,
			KnownSections: knownSections,
		})
	}

	st.mu.Lock()
	switch {
	case skip:
	case pageErr != nil:
		st.failed = append(st.failed, ref.ID)
	default:
		st.completed = append(st.completed, ref.ID)
	}
	st.sinceCp++
	checkpointDue := st.sinceCp >= ix.cfg.CheckpointEvery
	if checkpointDue {
		st.sinceCp = 0
	}
	st.mu.Unlock()

	snapshot := ctl.update(func(p *models.Progress) {
		p.ProcessedPages++
		p.UpdatedAt = time.Now().UTC()
		switch {
		case skip:
			p.SkippedPages++
		case pageErr != nil:
			p.FailedPages++
			p.Errors = appendBounded(p.Errors, fmt.Sprintf("page %s: %v", ref.ID, pageErr), ix.cfg.MaxErrors)
		default:
			p.SuccessfulPages++
		}
	})
	if pageErr != nil {
		ix.logger.Warn("indexer: page failed", slog.String("page", ref.ID), slog.String("error", pageErr.Error()))
	}
	ix.notifyProgress(snapshot)
	if checkpointDue {
		// scope is the effective scope, which a resumed run may have
		// inherited from its checkpoint rather than from opts.
		ix.takeCheckpoint(userID, opID, opts, scope, st, ctl)
	}
}

// computeTotals counts notebooks, sections, and pages for progress
// reporting. Counting failures degrade to conservative estimates; they
// never abort the run.
func (ix *Indexer) computeTotals(ctx context.Context, notebooks []models.Notebook, ctl *Control) {
	totalSections, totalPages := 0, 0
	for _, nb := range notebooks {
		sections, err := ix.remote.ListSections(ctx, nb.ID)
		if err != nil {
			ix.logger.Warn("indexer: totals for notebook unavailable, estimating",
				slog.String("notebook", nb.ID), slog.String("error", err.Error()))
			continue
		}
		totalSections += len(sections)
		for _, sec := range sections {
			pages, err := ix.remote.ListPages(ctx, sec.ID)
			if err != nil {
				continue
			}
			totalPages += len(pages)
		}
	}
	ctl.update(func(p *models.Progress) {
		p.TotalNotebooks = len(notebooks)
		p.TotalSections = totalSections
		p.TotalPages = totalPages
	})
}

func (ix *Indexer) takeCheckpoint(userID, opID string, opts RunOptions, scope []string, st *runState, ctl *Control) {
	if ix.onCheckpoint == nil {
		return
	}
	st.mu.Lock()
	cp := &models.Checkpoint{
		OperationID:   opID,
		UserID:        userID,
		TakenAt:       time.Now().UTC(),
		CompletedIDs:  append([]string(nil), st.completed...),
		FailedIDs:     append([]string(nil), st.failed...),
		ForceReindex:  opts.ForceReindex,
		NotebookScope: append([]string(nil), scope...),
	}
	st.mu.Unlock()
	cp.Progress = ctl.Progress()

	defer func() {
		if r := recover(); r != nil {
			ix.logger.Error("indexer: checkpoint callback panicked", slog.Any("panic", r))
		}
	}()
	ix.onCheckpoint(cp)
}

func (ix *Indexer) notifyProgress(p models.Progress) {
	if ix.onProgress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			ix.logger.Error("indexer: progress callback panicked", slog.Any("panic", r))
		}
	}()
	ix.onProgress(p)
}

func (ix *Indexer) recordError(ctl *Control, msg string) {
	ix.logger.Warn("indexer: " + msg)
	ctl.update(func(p *models.Progress) {
		p.Errors = appendBounded(p.Errors, msg, ix.cfg.MaxErrors)
	})
}

func appendBounded(errs []string, msg string, limit int) []string {
	errs = append(errs, msg)
	if len(errs) > limit {
		errs = errs[len(errs)-limit:]
	}
	return errs
}

func filterNotebooks(notebooks []models.Notebook, scope []string) []models.Notebook {
	if len(scope) == 0 {
		return notebooks
	}
	want := make(map[string]struct{}, len(scope))
	for _, id := range scope {
		want[id] = struct{}{}
	}
	var out []models.Notebook
	for _, nb := range notebooks {
		if _, ok := want[nb.ID]; ok {
			out = append(out, nb)
		}
	}
	return out
}

func newOperationID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return "idx-" + hex.EncodeToString(buf)
}
