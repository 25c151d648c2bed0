// Package models defines the domain types for Othala.
package models

import "time"

// DownloadState tracks the lifecycle of a mirrored attachment.
type DownloadState string

const (
	DownloadPending  DownloadState = "pending"
	DownloadComplete DownloadState = "complete"
	DownloadFailed   DownloadState = "failed"
)

// AttachmentRef describes one asset (image or file) owned by a page.
type AttachmentRef struct {
	Type      string        `json:"type"` // "image" or "file"
	SourceURL string        `json:"source_url"`
	LocalPath string        `json:"local_path,omitempty"`
	SizeBytes int64         `json:"size_bytes,omitempty"`
	MimeType  string        `json:"mime_type,omitempty"`
	State     DownloadState `json:"state"`
}

// PageLink is a link found in a page's content. Internal links point at
// other pages or sections of the same remote store; external links point
// anywhere else.
type PageLink struct {
	Anchor       string `json:"anchor,omitempty"`
	TargetURL    string `json:"target_url"`
	TargetPageID string `json:"target_page_id,omitempty"`
	Internal     bool   `json:"internal"`
	Resolved     bool   `json:"resolved"`
}

// PageRecord is the cached representation of one remote page. It is the
// unit the Cache Store persists and the Search Index projects from.
type PageRecord struct {
	PageID       string    `json:"page_id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"` // remote authoritative timestamp

	NotebookID   string `json:"notebook_id"`
	NotebookName string `json:"notebook_name,omitempty"`
	SectionID    string `json:"section_id"`
	SectionName  string `json:"section_name,omitempty"`

	ContentURL    string `json:"content_url,omitempty"`
	RawMarkupPath string `json:"raw_markup_path,omitempty"`
	TextPath      string `json:"text_path,omitempty"`

	Attachments []AttachmentRef `json:"attachments,omitempty"`
	Links       []PageLink      `json:"links,omitempty"`

	CachedAt      time.Time `json:"cached_at"`
	LastSyncedAt  time.Time `json:"last_synced_at"`
	Downloaded    bool      `json:"downloaded"`
	Converted     bool      `json:"converted"`
	LinksResolved bool      `json:"links_resolved"`
}

// Complete reports whether the record may be surfaced as authoritative.
// Partially processed pages (content fetched but not yet converted, or the
// reverse) must never be indexed or returned as finished mirrors.
func (p *PageRecord) Complete() bool {
	return p.Downloaded && p.Converted
}

// CacheMetadata holds per-user aggregate bookkeeping for the cache tree.
type CacheMetadata struct {
	UserID              string    `json:"user_id"`
	TotalNotebooks      int       `json:"total_notebooks"`
	TotalSections       int       `json:"total_sections"`
	TotalPages          int       `json:"total_pages"`
	TotalSizeBytes      int64     `json:"total_size_bytes"`
	CreatedAt           time.Time `json:"created_at"`
	LastFullSync        time.Time `json:"last_full_sync,omitempty"`
	LastIncrementalSync time.Time `json:"last_incremental_sync,omitempty"`
}

// CacheStatistics is the result of walking a user's cache tree.
type CacheStatistics struct {
	Notebooks      int   `json:"notebooks"`
	Sections       int   `json:"sections"`
	Pages          int   `json:"pages"`
	Assets         int   `json:"assets"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
}

// Notebook is a typed remote notebook listing entry.
type Notebook struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	LastModified time.Time `json:"last_modified"`
}

// Section is a typed remote section listing entry.
type Section struct {
	ID           string    `json:"id"`
	NotebookID   string    `json:"notebook_id"`
	Name         string    `json:"name"`
	LastModified time.Time `json:"last_modified"`
}

// PageRef is a typed remote page listing entry. Content is fetched
// separately via the remote client.
type PageRef struct {
	ID           string    `json:"id"`
	SectionID    string    `json:"section_id"`
	Title        string    `json:"title"`
	ContentURL   string    `json:"content_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
}
