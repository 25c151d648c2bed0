// Package remote defines the boundary to the remote content store. The
// engine consumes listings and page content through the Client interface;
// the concrete transport (HTTP, auth, retry) lives in the implementation.
//
// Implementations must return typed payloads (models.Notebook et al.) and
// classify failures: wrap apperr.ErrNotFound for missing entities and
// apperr.ErrRemoteFetch for transport/auth failures, so callers can tell
// "skip" from "abort".
package remote

import (
	"context"

	"github.com/starford/othala/internal/models"
)

// Client lists the remote hierarchy and fetches page content.
type Client interface {
	ListNotebooks(ctx context.Context) ([]models.Notebook, error)
	ListSections(ctx context.Context, notebookID string) ([]models.Section, error)
	ListPages(ctx context.Context, sectionID string) ([]models.PageRef, error)
	// FetchPageContent returns the page's raw markup.
	FetchPageContent(ctx context.Context, pageID string) ([]byte, error)
}
