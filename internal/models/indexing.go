package models

import "time"

// RunStatus is the lifecycle state of a bulk indexing run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunPaused    RunStatus = "paused"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the run can no longer make progress.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}

// Progress is the mutable state of a bulk indexing run. A copy is handed to
// the progress callback after every page attempt.
type Progress struct {
	OperationID string    `json:"operation_id"`
	UserID      string    `json:"user_id"`
	Status      RunStatus `json:"status"`

	TotalNotebooks     int `json:"total_notebooks"`
	TotalSections      int `json:"total_sections"`
	TotalPages         int `json:"total_pages"`
	ProcessedNotebooks int `json:"processed_notebooks"`
	ProcessedSections  int `json:"processed_sections"`
	ProcessedPages     int `json:"processed_pages"`
	SuccessfulPages    int `json:"successful_pages"`
	FailedPages        int `json:"failed_pages"`
	SkippedPages       int `json:"skipped_pages"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Errors    []string  `json:"errors,omitempty"` // bounded retention, most recent last
}

// Checkpoint is a resumable snapshot of an in-progress bulk run. The bulk
// indexer owns its content; the checkpoint store owns its persistence.
type Checkpoint struct {
	OperationID   string    `json:"operation_id"`
	UserID        string    `json:"user_id"`
	TakenAt       time.Time `json:"taken_at"`
	CompletedIDs  []string  `json:"completed_ids"`
	FailedIDs     []string  `json:"failed_ids,omitempty"`
	ForceReindex  bool      `json:"force_reindex"`
	NotebookScope []string  `json:"notebook_scope,omitempty"`
	Progress      Progress  `json:"progress"`
}
