package api

import (
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/search"
)

// InitCacheRequest is the request body for initializing a user cache.
type InitCacheRequest struct {
	UserID string `json:"user_id" example:"u-123" validate:"required"`
}

// SyncRequest is the request body for a sync run.
type SyncRequest struct {
	UserID    string   `json:"user_id" example:"u-123" validate:"required"`
	Notebooks []string `json:"notebooks,omitempty" example:"nb-1"`
	Since     string   `json:"since,omitempty" example:"2026-01-15T00:00:00Z"`
	Strategy  string   `json:"strategy,omitempty" example:"newer_wins"`
	DryRun    bool     `json:"dry_run,omitempty"`
}

// IndexRequest is the request body for starting a bulk indexing run.
type IndexRequest struct {
	UserID    string   `json:"user_id" example:"u-123" validate:"required"`
	Resume    bool     `json:"resume,omitempty"`
	Force     bool     `json:"force,omitempty"`
	Notebooks []string `json:"notebooks,omitempty" example:"nb-1"`
}

// ResolveConflictRequest is the request body for resolving one pending conflict.
type ResolveConflictRequest struct {
	UserID   string `json:"user_id" example:"u-123" validate:"required"`
	PageID   string `json:"page_id" example:"p-42" validate:"required"`
	Strategy string `json:"strategy" example:"remote_wins" validate:"required"`
}

// SearchResponse wraps full-text search results.
type SearchResponse struct {
	Results []search.Result `json:"results" validate:"required"`
	Total   int             `json:"total" example:"7" validate:"required"`
}

// ChangesResponse wraps detected changes.
type ChangesResponse struct {
	Changes []models.ContentChange `json:"changes" validate:"required"`
	Total   int                    `json:"total" example:"3" validate:"required"`
}

// ConflictsResponse wraps the pending conflict queue.
type ConflictsResponse struct {
	Conflicts []models.ContentChange `json:"conflicts" validate:"required"`
	Total     int                    `json:"total" example:"1" validate:"required"`
}

// IndexStatusResponse reports the active (or last) bulk run's progress.
type IndexStatusResponse struct {
	Active   bool            `json:"active"`
	Progress models.Progress `json:"progress"`
}

// IndexStartedResponse acknowledges a background bulk run.
type IndexStartedResponse struct {
	OperationID string `json:"operation_id" example:"idx-a1b2c3" validate:"required"`
	Status      string `json:"status" example:"running" validate:"required"`
}
