// Package mirror is the engine façade: it wires the cache store, search
// index, bulk indexer, and syncer behind the operations exposed to
// callers, and scopes every sync or bulk-index run with the cache lease.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/cache"
	"github.com/starford/othala/internal/checkpoint"
	"github.com/starford/othala/internal/indexer"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/search"
	"github.com/starford/othala/internal/syncer"
)

// DefaultLeaseTTL bounds how long a crashed run can block its successors.
const DefaultLeaseTTL = 30 * time.Minute

// Service coordinates cache, index, indexer, and syncer operations.
type Service struct {
	store       *cache.FS
	index       search.PageIndex
	checkpoints *checkpoint.Store
	indexer     *indexer.Indexer
	syncer      *syncer.Syncer
	logger      *slog.Logger
	leaseTTL    time.Duration

	mu        sync.Mutex
	activeCtl *indexer.Control
}

// NewService creates the engine façade. A non-positive leaseTTL falls back
// to DefaultLeaseTTL.
func NewService(store *cache.FS, index search.PageIndex, checkpoints *checkpoint.Store, ix *indexer.Indexer, sy *syncer.Syncer, logger *slog.Logger, leaseTTL time.Duration) *Service {
	if leaseTTL <= 0 {
		leaseTTL = DefaultLeaseTTL
	}
	return &Service{
		store:       store,
		index:       index,
		checkpoints: checkpoints,
		indexer:     ix,
		syncer:      sy,
		logger:      logger,
		leaseTTL:    leaseTTL,
	}
}

// InitializeCache creates the user's cache skeleton. Idempotent.
func (s *Service) InitializeCache(userID string) error {
	return s.store.InitializeUser(userID)
}

// CacheExists reports whether a cache tree exists for the user.
func (s *Service) CacheExists(userID string) bool {
	return s.store.UserExists(userID)
}

// Statistics walks the user's cache tree and returns counts and sizes.
func (s *Service) Statistics(userID string) (*models.CacheStatistics, error) {
	return s.store.Statistics(userID)
}

// Metadata returns the user's cache metadata record.
func (s *Service) Metadata(userID string) (*models.CacheMetadata, error) {
	return s.store.Metadata(userID)
}

// Search queries the full-text index.
func (s *Service) Search(userID string, q search.Query) ([]search.Result, error) {
	return s.index.Search(userID, q)
}

// FallbackSearch is the linear cache scan for callers without the index.
func (s *Service) FallbackSearch(userID, substring string) ([]models.PageRecord, error) {
	return s.store.SearchStoredPages(userID, substring)
}

// GetPage returns one cached page record.
func (s *Service) GetPage(userID, pageID string) (*models.PageRecord, error) {
	return s.store.GetPage(userID, pageID)
}

// ReadPageText returns the searchable text artifact of one cached page.
func (s *Service) ReadPageText(userID, pageID string) ([]byte, error) {
	record, err := s.store.GetPage(userID, pageID)
	if err != nil {
		return nil, err
	}
	return s.store.ReadText(userID, record)
}

// DetectChanges compares remote and local state without mutating anything.
func (s *Service) DetectChanges(ctx context.Context, userID string, scope syncer.Scope, since time.Time) ([]models.ContentChange, error) {
	return s.syncer.DetectChanges(ctx, userID, scope, since)
}

// PlanSync maps changes to operations without executing them. Deferred
// conflicts are returned, not queued.
func (s *Service) PlanSync(changes []models.ContentChange, strategy models.ConflictStrategy) ([]models.SyncOperation, []models.ContentChange) {
	return s.syncer.PlanOperations(changes, strategy)
}

// ExecuteSync runs the full detect → plan → execute pipeline under the
// user's run lease. The lease is released on success and failure alike.
func (s *Service) ExecuteSync(ctx context.Context, userID string, scope syncer.Scope, since time.Time, strategy models.ConflictStrategy, dryRun bool) (*models.SyncReport, error) {
	if !dryRun {
		lease, err := s.store.AcquireLease(userID, s.leaseTTL)
		if err != nil {
			return nil, err
		}
		defer func() {
			if relErr := s.store.ReleaseLease(lease); relErr != nil {
				s.logger.Warn("mirror: release lease failed", slog.String("error", relErr.Error()))
			}
		}()
	}

	report, err := s.syncer.Sync(ctx, userID, scope, since, strategy, dryRun)
	if err != nil {
		return report, err
	}
	if !dryRun {
		s.refreshMetadata(userID, false)
	}
	return report, nil
}

// ResolveConflict applies a strategy to one pending conflict.
func (s *Service) ResolveConflict(ctx context.Context, userID, pageID string, strategy models.ConflictStrategy) (*models.SyncReport, error) {
	return s.syncer.ResolveConflict(ctx, userID, pageID, strategy)
}

// PendingConflicts lists conflicts awaiting manual resolution.
func (s *Service) PendingConflicts() []models.ContentChange {
	return s.syncer.PendingConflicts()
}

// IndexAll starts a bulk indexing run in the background and returns its
// control handle. Only one run may be active in the process at a time;
// overlapping requests fail with apperr.ErrConflict. With resume set, the
// user's latest checkpoint seeds the completed-page set.
func (s *Service) IndexAll(ctx context.Context, userID string, resume, force bool, notebookScope []string) (*indexer.Control, error) {
	s.mu.Lock()
	if s.activeCtl != nil && !s.activeCtl.Status().Terminal() {
		s.mu.Unlock()
		return nil, fmt.Errorf("mirror: an indexing run is already active: %w", apperr.ErrConflict)
	}
	s.mu.Unlock()

	lease, err := s.store.AcquireLease(userID, s.leaseTTL)
	if err != nil {
		return nil, err
	}

	opts := indexer.RunOptions{ForceReindex: force, NotebookScope: notebookScope}
	if resume && !force {
		cp, err := s.checkpoints.Latest(userID)
		switch {
		case err == nil:
			opts.Resume = cp
		case apperr.IsNotFound(err):
			// Nothing to resume; fresh run.
		default:
			_ = s.store.ReleaseLease(lease)
			return nil, err
		}
	}

	ctl := indexer.NewControl()
	s.mu.Lock()
	s.activeCtl = ctl
	s.mu.Unlock()

	// The run outlives the caller's request; cancellation is cooperative
	// through the control handle, never a hard context kill.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if relErr := s.store.ReleaseLease(lease); relErr != nil {
				s.logger.Warn("mirror: release lease failed", slog.String("error", relErr.Error()))
			}
		}()
		done := make(chan struct{})
		go s.heartbeat(lease, done)
		_, runErr := s.indexer.IndexAll(runCtx, userID, opts, ctl)
		close(done)
		if runErr != nil {
			s.logger.Error("mirror: indexing run failed", slog.String("error", runErr.Error()))
			return
		}
		s.refreshMetadata(userID, true)
	}()
	return ctl, nil
}

// heartbeat renews the run lease while a long bulk run is in flight.
func (s *Service) heartbeat(lease *cache.Lease, done <-chan struct{}) {
	ticker := time.NewTicker(s.leaseTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := s.store.RenewLease(lease, s.leaseTTL); err != nil {
				s.logger.Warn("mirror: lease renewal failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

// IndexingStatus returns the active (or last started) run's progress.
func (s *Service) IndexingStatus() (models.Progress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeCtl == nil {
		return models.Progress{}, false
	}
	return s.activeCtl.Progress(), true
}

// PauseIndexing suspends the active run before its next unit of work.
func (s *Service) PauseIndexing() error { return s.withActiveRun((*indexer.Control).Pause) }

// ResumeIndexing continues a paused run.
func (s *Service) ResumeIndexing() error { return s.withActiveRun((*indexer.Control).Resume) }

// CancelIndexing stops the active run cooperatively.
func (s *Service) CancelIndexing() error { return s.withActiveRun((*indexer.Control).Cancel) }

func (s *Service) withActiveRun(fn func(*indexer.Control)) error {
	s.mu.Lock()
	ctl := s.activeCtl
	s.mu.Unlock()
	if ctl == nil || ctl.Status().Terminal() {
		return fmt.Errorf("mirror: no active indexing run: %w", apperr.ErrNotFound)
	}
	fn(ctl)
	return nil
}

// DeleteUserCache removes the user's cache tree and every index entry.
func (s *Service) DeleteUserCache(userID string) error {
	if err := s.store.DeleteUser(userID); err != nil {
		return err
	}
	return s.index.DeleteUser(userID)
}

// CleanupOrphanedAssets removes unreferenced asset files and reports what
// was freed.
func (s *Service) CleanupOrphanedAssets(userID string) (*cache.CleanupReport, error) {
	return s.store.CleanupOrphanedAssets(userID)
}

// RebuildIndex clears and rebuilds the user's search index from the cache.
func (s *Service) RebuildIndex(userID string) (*search.RebuildReport, error) {
	return search.Rebuild(s.index, s.store, userID, s.logger)
}

// IndexStats reports search-index counters for observability.
func (s *Service) IndexStats(userID string) (*search.Stats, error) {
	return s.index.Stats(userID)
}

// refreshMetadata re-counts aggregates after a run and stamps the sync
// time. Failures here are logged; the run itself already succeeded.
func (s *Service) refreshMetadata(userID string, fullRun bool) {
	stats, err := s.store.Statistics(userID)
	if err != nil {
		s.logger.Warn("mirror: refresh metadata: statistics failed", slog.String("error", err.Error()))
		return
	}
	err = s.store.UpdateMetadata(userID, func(m *models.CacheMetadata) {
		now := time.Now().UTC()
		m.TotalNotebooks = stats.Notebooks
		m.TotalSections = stats.Sections
		m.TotalPages = stats.Pages
		m.TotalSizeBytes = stats.TotalSizeBytes
		if fullRun {
			m.LastFullSync = now
		} else {
			m.LastIncrementalSync = now
		}
	})
	if err != nil {
		s.logger.Warn("mirror: update metadata failed", slog.String("error", err.Error()))
	}
}
