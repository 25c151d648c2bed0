// Package cache implements the on-disk mirror of the remote content store:
// a user → notebook → section → page hierarchy holding per-page metadata
// and byte artifacts (raw markup, converted text, attachments).
package cache

import "github.com/starford/othala/internal/models"

// Artifacts carries the byte payloads stored alongside a page record.
// Nil slices mean "leave the existing artifact untouched".
type Artifacts struct {
	RawMarkup []byte
	Text      []byte
}

// CleanupReport summarises an orphaned-asset cleanup pass.
type CleanupReport struct {
	FilesRemoved int      `json:"files_removed"`
	BytesFreed   int64    `json:"bytes_freed"`
	Errors       []string `json:"errors,omitempty"`
}

// Store is the interface for cache tree operations. Consumers should depend
// on this interface rather than the concrete *FS type to facilitate testing.
type Store interface {
	// InitializeUser creates the user's cache skeleton and initial metadata.
	// Idempotent.
	InitializeUser(userID string) error
	// UserExists reports whether a cache tree exists for the user.
	UserExists(userID string) bool
	// StorePage writes artifacts then metadata for one page. The record must
	// carry page, notebook, and section ids.
	StorePage(userID string, record *models.PageRecord, artifacts Artifacts) error
	// GetPage returns the full record, or an error wrapping apperr.ErrNotFound.
	GetPage(userID, pageID string) (*models.PageRecord, error)
	// DeletePage removes one page's metadata and artifacts. Deleting an
	// absent page succeeds.
	DeletePage(userID, pageID string) error
	// ListPages returns all page records, optionally scoped to a notebook
	// and/or section id. Records only; artifact bytes are read separately.
	ListPages(userID, notebookID, sectionID string) ([]models.PageRecord, error)
	// ReadText returns the converted-text artifact for a page record.
	ReadText(userID string, record *models.PageRecord) ([]byte, error)
	// AssetDir returns the absolute directory where a page's assets live.
	AssetDir(userID string, record *models.PageRecord) string
	// TextArtifactExists reports whether the converted-text artifact for a
	// record is present on the medium (the bulk indexer's currency check).
	TextArtifactExists(userID string, record *models.PageRecord) bool
	// SearchStoredPages is the fallback linear scan over titles and text for
	// callers without a search index. Not for primary query serving.
	SearchStoredPages(userID, substring string) ([]models.PageRecord, error)
	// Statistics walks the tree and counts notebooks, sections, pages,
	// assets, and bytes.
	Statistics(userID string) (*models.CacheStatistics, error)
	// Metadata returns the user's cache metadata record.
	Metadata(userID string) (*models.CacheMetadata, error)
	// UpdateMetadata applies fn to the user's metadata and persists it.
	UpdateMetadata(userID string, fn func(*models.CacheMetadata)) error
	// DeleteUser removes the entire user subtree. Idempotent.
	DeleteUser(userID string) error
	// CleanupOrphanedAssets removes on-disk asset files no page references.
	CleanupOrphanedAssets(userID string) (*CleanupReport, error)
}

// Verify *FS satisfies Store at compile time.
var _ Store = (*FS)(nil)
