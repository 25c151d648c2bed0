// Package syncer detects differences between the remote content store and
// the local cache, plans strategy-resolved operations for them, and applies
// those operations with best-effort batch semantics.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/cache"
	"github.com/starford/othala/internal/indexer"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/remote"
	"github.com/starford/othala/internal/search"
)

// DefaultSkewWindow is the ambiguity window for conflict classification:
// when local and remote modification times land within it, neither side is
// trusted automatically.
const DefaultSkewWindow = 5 * time.Minute

// Syncer coordinates change detection, planning, and execution. The
// pending-conflicts list survives across runs within the process so
// UserPrompt and MergeAttempt conflicts are never silently discarded.
type Syncer struct {
	remote  remote.Client
	store   cache.Store
	index   search.PageIndex
	indexer *indexer.Indexer
	logger  *slog.Logger
	skew    time.Duration

	mu      sync.Mutex
	pending []models.ContentChange
}

// New creates a Syncer. A non-positive skew falls back to
// DefaultSkewWindow.
func New(client remote.Client, store cache.Store, index search.PageIndex, ix *indexer.Indexer, logger *slog.Logger, skew time.Duration) *Syncer {
	if skew <= 0 {
		skew = DefaultSkewWindow
	}
	return &Syncer{
		remote:  client,
		store:   store,
		index:   index,
		indexer: ix,
		logger:  logger,
		skew:    skew,
	}
}

// PendingConflicts returns the conflicts awaiting manual resolution.
func (s *Syncer) PendingConflicts() []models.ContentChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ContentChange(nil), s.pending...)
}

func (s *Syncer) addPending(changes []models.ContentChange) {
	if len(changes) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range changes {
		if !s.hasPendingLocked(c.PageID) {
			s.pending = append(s.pending, c)
		}
	}
}

func (s *Syncer) hasPendingLocked(pageID string) bool {
	for _, p := range s.pending {
		if p.PageID == pageID {
			return true
		}
	}
	return false
}

// takePending removes and returns the pending conflict for pageID.
func (s *Syncer) takePending(pageID string) (models.ContentChange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.pending {
		if p.PageID == pageID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return p, true
		}
	}
	return models.ContentChange{}, false
}

// ResolveConflict re-plans and executes a single pending conflict with the
// given strategy. UserPrompt and MergeAttempt are not valid here: they
// would put the change straight back on the pending list.
func (s *Syncer) ResolveConflict(ctx context.Context, userID, pageID string, strategy models.ConflictStrategy) (*models.SyncReport, error) {
	if strategy == models.UserPrompt || strategy == models.MergeAttempt {
		return nil, fmt.Errorf("syncer: resolve conflict: strategy %s cannot resolve: %w", strategy, apperr.ErrValidation)
	}
	change, ok := s.takePending(pageID)
	if !ok {
		return nil, fmt.Errorf("syncer: no pending conflict for page %s: %w", pageID, apperr.ErrNotFound)
	}
	ops, pending := s.PlanOperations([]models.ContentChange{change}, strategy)
	s.addPending(pending)
	return s.ExecuteOperations(ctx, userID, ops, false)
}
