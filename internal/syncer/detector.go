package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/othala/internal/models"
)

// Scope restricts change detection to particular notebooks. Empty means
// the whole tree.
type Scope struct {
	NotebookIDs []string
}

func (sc Scope) includes(notebookID string) bool {
	if len(sc.NotebookIDs) == 0 {
		return true
	}
	for _, id := range sc.NotebookIDs {
		if id == notebookID {
			return true
		}
	}
	return false
}

// DetectChanges lists remote and local pages in scope and computes set
// differences on page id: remote-only is Added, local-only is Deleted, and
// pages on both sides are compared by modification time. A remote page that
// is not newer than the local copy emits no change. A remote page newer
// within the skew window is Conflicted rather than Modified, since both
// sides changed too close together to trust either automatically.
//
// since, when non-zero, drops remote pages not modified after it
// (incremental detection).
func (s *Syncer) DetectChanges(ctx context.Context, userID string, scope Scope, since time.Time) ([]models.ContentChange, error) {
	notebooks, err := s.remote.ListNotebooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("syncer: list notebooks: %w", err)
	}

	type remotePage struct {
		ref models.PageRef
		nb  string
	}
	remotePages := make(map[string]remotePage)
	for _, nb := range notebooks {
		if !scope.includes(nb.ID) {
			continue
		}
		sections, err := s.remote.ListSections(ctx, nb.ID)
		if err != nil {
			return nil, fmt.Errorf("syncer: list sections of %s: %w", nb.ID, err)
		}
		for _, sec := range sections {
			pages, err := s.remote.ListPages(ctx, sec.ID)
			if err != nil {
				return nil, fmt.Errorf("syncer: list pages of %s: %w", sec.ID, err)
			}
			for _, ref := range pages {
				if ref.SectionID == "" {
					ref.SectionID = sec.ID
				}
				remotePages[ref.ID] = remotePage{ref: ref, nb: nb.ID}
			}
		}
	}

	localAll, err := s.store.ListPages(userID, "", "")
	if err != nil {
		return nil, err
	}
	local := make(map[string]*models.PageRecord, len(localAll))
	for i := range localAll {
		rec := &localAll[i]
		if !scope.includes(rec.NotebookID) {
			continue
		}
		local[rec.PageID] = rec
	}

	var changes []models.ContentChange

	for id, rp := range remotePages {
		if !since.IsZero() && !rp.ref.LastModified.After(since) {
			continue
		}
		rec, exists := local[id]
		if !exists {
			changes = append(changes, models.ContentChange{
				Type:           models.ChangeAdded,
				PageID:         id,
				Title:          rp.ref.Title,
				NotebookID:     rp.nb,
				SectionID:      rp.ref.SectionID,
				RemoteModified: rp.ref.LastModified,
			})
			continue
		}
		if change, ok := s.classify(rec, rp.ref, rp.nb); ok {
			changes = append(changes, change)
		}
	}

	for id, rec := range local {
		if _, exists := remotePages[id]; exists {
			continue
		}
		changes = append(changes, models.ContentChange{
			Type:          models.ChangeDeleted,
			PageID:        id,
			Title:         rec.Title,
			NotebookID:    rec.NotebookID,
			SectionID:     rec.SectionID,
			LocalModified: rec.LastModified,
		})
	}

	return changes, nil
}

// classify compares timestamps for a page present on both sides. No change
// is emitted when remote is not newer; this is an optimization over
// re-downloading identical content, not a correctness rule.
func (s *Syncer) classify(local *models.PageRecord, ref models.PageRef, notebookID string) (models.ContentChange, bool) {
	if !ref.LastModified.After(local.LastModified) {
		return models.ContentChange{}, false
	}
	change := models.ContentChange{
		PageID:         ref.ID,
		Title:          ref.Title,
		NotebookID:     notebookID,
		SectionID:      ref.SectionID,
		LocalModified:  local.LastModified,
		RemoteModified: ref.LastModified,
	}
	if ref.LastModified.Sub(local.LastModified) <= s.skew {
		change.Type = models.ChangeConflicted
		change.ConflictReason = fmt.Sprintf("local and remote modified within %s of each other", s.skew)
	} else {
		change.Type = models.ChangeModified
	}
	return change, true
}
