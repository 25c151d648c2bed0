package models

import "time"

// ChangeType classifies a detected difference between local and remote
// state for one page.
type ChangeType string

const (
	ChangeAdded      ChangeType = "added"
	ChangeModified   ChangeType = "modified"
	ChangeDeleted    ChangeType = "deleted"
	ChangeConflicted ChangeType = "conflicted"
)

// ContentChange is one detected delta. Derived during a sync run, never
// persisted beyond it.
type ContentChange struct {
	Type           ChangeType `json:"type"`
	PageID         string     `json:"page_id"`
	Title          string     `json:"title,omitempty"`
	NotebookID     string     `json:"notebook_id"`
	SectionID      string     `json:"section_id"`
	LocalModified  time.Time  `json:"local_modified,omitempty"`
	RemoteModified time.Time  `json:"remote_modified,omitempty"`
	ConflictReason string     `json:"conflict_reason,omitempty"`
}

// ConflictStrategy selects how conflicted changes are resolved.
type ConflictStrategy string

const (
	RemoteWins   ConflictStrategy = "remote_wins"
	LocalWins    ConflictStrategy = "local_wins"
	NewerWins    ConflictStrategy = "newer_wins"
	UserPrompt   ConflictStrategy = "user_prompt"
	MergeAttempt ConflictStrategy = "merge_attempt" // named but unimplemented; lands on the pending list
)

// OpType is the planned action for one change.
type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
	OpSkip   OpType = "skip"
)

// Operation priorities. Conflict resolutions run before everything else.
const (
	PriorityConflict = 0
	PriorityDelete   = 1
	PriorityCreate   = 2
	PriorityUpdate   = 3
	PrioritySkip     = 4
)

// SyncOperation is a planned, strategy-resolved action bound to one change.
// Consumed once by the executor.
type SyncOperation struct {
	Op       OpType           `json:"op"`
	Change   ContentChange    `json:"change"`
	Strategy ConflictStrategy `json:"strategy,omitempty"`
	Priority int              `json:"priority"`
}

// SyncReport summarises one sync run. Immutable once the run ends.
type SyncReport struct {
	UserID            string        `json:"user_id"`
	DryRun            bool          `json:"dry_run,omitempty"`
	Created           int           `json:"created"`
	Updated           int           `json:"updated"`
	Deleted           int           `json:"deleted"`
	Skipped           int           `json:"skipped"`
	ConflictsDetected int           `json:"conflicts_detected"`
	ConflictsResolved int           `json:"conflicts_resolved"`
	ConflictsPending  int           `json:"conflicts_pending"`
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
	Errors            []string      `json:"errors,omitempty"`
}
