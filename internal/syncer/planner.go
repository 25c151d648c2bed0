package syncer

import (
	"sort"

	"github.com/starford/othala/internal/models"
)

// PlanOperations maps each detected change to a sync operation. Direct
// changes map one-to-one (Added→create, Deleted→delete, Modified→update);
// conflicted changes resolve per strategy. UserPrompt defers to manual
// resolution and MergeAttempt is documented but not implemented; both
// return the change in the pending slice instead of an operation, never
// silently discarded.
//
// Operations come back ordered: conflict resolutions first, then deletes,
// creates, updates, skips.
func (s *Syncer) PlanOperations(changes []models.ContentChange, strategy models.ConflictStrategy) ([]models.SyncOperation, []models.ContentChange) {
	var ops []models.SyncOperation
	var pending []models.ContentChange

	for _, c := range changes {
		switch c.Type {
		case models.ChangeAdded:
			ops = append(ops, models.SyncOperation{Op: models.OpCreate, Change: c, Priority: models.PriorityCreate})
		case models.ChangeDeleted:
			ops = append(ops, models.SyncOperation{Op: models.OpDelete, Change: c, Priority: models.PriorityDelete})
		case models.ChangeModified:
			ops = append(ops, models.SyncOperation{Op: models.OpUpdate, Change: c, Priority: models.PriorityUpdate})
		case models.ChangeConflicted:
			op, deferred := resolveConflict(c, strategy)
			if deferred {
				pending = append(pending, c)
				continue
			}
			ops = append(ops, op)
		}
	}

	sort.SliceStable(ops, func(i, j int) bool {
		return ops[i].Priority < ops[j].Priority
	})
	return ops, pending
}

// resolveConflict applies the strategy table to one conflicted change.
func resolveConflict(c models.ContentChange, strategy models.ConflictStrategy) (models.SyncOperation, bool) {
	op := models.SyncOperation{Change: c, Strategy: strategy, Priority: models.PriorityConflict}
	switch strategy {
	case models.RemoteWins:
		op.Op = models.OpUpdate
	case models.LocalWins:
		op.Op = models.OpSkip
	case models.NewerWins:
		if c.RemoteModified.After(c.LocalModified) {
			op.Op = models.OpUpdate
		} else {
			op.Op = models.OpSkip
		}
	default:
		// UserPrompt, MergeAttempt, or anything unknown: defer.
		return models.SyncOperation{}, true
	}
	return op, false
}
