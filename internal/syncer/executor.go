package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/othala/internal/indexer"
	"github.com/starford/othala/internal/models"
)

// ExecuteOperations applies planned operations in order with best-effort
// batch semantics: every failure is recorded in the report and the
// remaining operations still run. With dryRun set, nothing is mutated and
// the report counts intended actions only.
func (s *Syncer) ExecuteOperations(ctx context.Context, userID string, ops []models.SyncOperation, dryRun bool) (*models.SyncReport, error) {
	report := &models.SyncReport{
		UserID:    userID,
		DryRun:    dryRun,
		StartedAt: time.Now().UTC(),
	}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("aborted: %v", err))
			return report, nil
		}
		if dryRun {
			if op.Strategy != "" {
				report.ConflictsResolved++
			}
			countOp(report, op.Op)
			continue
		}
		if err := s.applyOperation(ctx, userID, op); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s %s: %v", op.Op, op.Change.PageID, err))
			s.logger.Warn("syncer: operation failed",
				slog.String("op", string(op.Op)),
				slog.String("page", op.Change.PageID),
				slog.String("error", err.Error()))
			continue
		}
		// A conflict counts as resolved only once its operation applied.
		if op.Strategy != "" {
			report.ConflictsResolved++
		}
		countOp(report, op.Op)
	}
	return report, nil
}

func (s *Syncer) applyOperation(ctx context.Context, userID string, op models.SyncOperation) error {
	c := op.Change
	switch op.Op {
	case models.OpCreate, models.OpUpdate:
		// Both route through the same single-page path so the StorePage
		// contract enforces invariants exactly once.
		return s.indexer.ProcessPage(ctx, userID, indexer.PageJob{
			Ref: models.PageRef{
				ID:           c.PageID,
				SectionID:    c.SectionID,
				Title:        c.Title,
				LastModified: c.RemoteModified,
			},
			NotebookID:    c.NotebookID,
			KnownSections: map[string]string{c.SectionID: ""},
		})
	case models.OpDelete:
		if err := s.store.DeletePage(userID, c.PageID); err != nil {
			return err
		}
		return s.index.DeletePage(userID, c.PageID)
	case models.OpSkip:
		return nil
	default:
		return fmt.Errorf("syncer: unknown operation %q", op.Op)
	}
}

func countOp(report *models.SyncReport, op models.OpType) {
	switch op {
	case models.OpCreate:
		report.Created++
	case models.OpUpdate:
		report.Updated++
	case models.OpDelete:
		report.Deleted++
	case models.OpSkip:
		report.Skipped++
	}
}

// Sync runs the full detect → plan → execute pipeline for one user and
// returns the consolidated report. Deferred conflicts land on the pending
// list and are reported, not dropped.
func (s *Syncer) Sync(ctx context.Context, userID string, scope Scope, since time.Time, strategy models.ConflictStrategy, dryRun bool) (*models.SyncReport, error) {
	changes, err := s.DetectChanges(ctx, userID, scope, since)
	if err != nil {
		return nil, err
	}

	detected := 0
	for _, c := range changes {
		if c.Type == models.ChangeConflicted {
			detected++
		}
	}

	ops, pending := s.PlanOperations(changes, strategy)
	if !dryRun {
		s.addPending(pending)
	}

	report, err := s.ExecuteOperations(ctx, userID, ops, dryRun)
	if err != nil {
		return report, err
	}
	report.ConflictsDetected = detected
	report.ConflictsPending = len(pending)
	return report, nil
}
