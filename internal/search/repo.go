package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/models"
)

// Document is the index-only projection of a cached page. Body concatenates
// everything searchable besides the title: converted text, link anchor
// text, and attachment filenames.
type Document struct {
	UserID     string
	PageID     string
	NotebookID string
	SectionID  string
	Title      string
	Body       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Query is a parsed search request.
type Query struct {
	Text       string
	Limit      int
	NotebookID string // optional scope filter
	SectionID  string // optional scope filter
	TitleOnly  bool
}

// Result is one search hit, ordered by the index's relevance rank.
type Result struct {
	PageID     string `json:"page_id"`
	NotebookID string `json:"notebook_id"`
	SectionID  string `json:"section_id"`
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
}

// Stats reports index size for observability.
type Stats struct {
	Pages          int   `json:"pages"`
	Notebooks      int   `json:"notebooks"`
	Sections       int   `json:"sections"`
	IndexSizeBytes int64 `json:"index_size_bytes"`
}

// NewDocument projects a page record plus its converted text into a
// Document. Anchor text and attachment filenames are folded into the body
// so they are searchable.
func NewDocument(userID string, rec *models.PageRecord, text string) Document {
	var extra strings.Builder
	for _, l := range rec.Links {
		if l.Anchor != "" {
			extra.WriteByte('\n')
			extra.WriteString(l.Anchor)
		}
	}
	for _, a := range rec.Attachments {
		name := a.LocalPath
		if i := strings.LastIndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
		if name != "" {
			extra.WriteByte('\n')
			extra.WriteString(name)
		}
	}
	return Document{
		UserID:     userID,
		PageID:     rec.PageID,
		NotebookID: rec.NotebookID,
		SectionID:  rec.SectionID,
		Title:      rec.Title,
		Body:       text + extra.String(),
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.LastModified,
	}
}

// IndexPage upserts a document keyed by (user, page), replacing any prior
// entry for that id. Re-indexing the same page is always safe.
func (db *DB) IndexPage(doc Document) error {
	if doc.PageID == "" {
		return fmt.Errorf("search: index page: empty page id: %w", apperr.ErrValidation)
	}
	if doc.UserID == "" {
		return fmt.Errorf("search: index page %s: empty user id: %w", doc.PageID, apperr.ErrValidation)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("search: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO pages (user_id, page_id, notebook_id, section_id, title, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, page_id) DO UPDATE SET
			notebook_id = excluded.notebook_id,
			section_id  = excluded.section_id,
			title       = excluded.title,
			body        = excluded.body,
			created_at  = excluded.created_at,
			updated_at  = excluded.updated_at
	`, doc.UserID, doc.PageID, doc.NotebookID, doc.SectionID, doc.Title, doc.Body,
		doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("search: upsert page: %w", err)
	}

	if err := ftsUpsert(tx, doc); err != nil {
		return err
	}
	return tx.Commit()
}

// DeletePage removes a page's index entry. Absent entries delete cleanly.
func (db *DB) DeletePage(userID, pageID string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("search: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, userID, pageID)
	_, _ = tx.Exec(`DELETE FROM pages WHERE user_id = ? AND page_id = ?`, userID, pageID)
	return tx.Commit()
}

// DeleteUser removes every index entry for the user.
func (db *DB) DeleteUser(userID string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("search: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDeleteUser(tx, userID)
	_, _ = tx.Exec(`DELETE FROM pages WHERE user_id = ?`, userID)
	return tx.Commit()
}

// IndexedIDs returns the set of indexed page ids for the user.
func (db *DB) IndexedIDs(userID string) (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT page_id FROM pages WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("search: indexed ids: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// Stats returns indexed page/notebook/section counts and the on-disk size
// of the index database.
func (db *DB) Stats(userID string) (*Stats, error) {
	s := &Stats{}
	err := db.conn.QueryRow(`
		SELECT count(*), count(DISTINCT notebook_id), count(DISTINCT section_id)
		FROM pages WHERE user_id = ?
	`, userID).Scan(&s.Pages, &s.Notebooks, &s.Sections)
	if err != nil {
		return nil, fmt.Errorf("search: stats: %w", err)
	}
	var pageCount, pageSize int64
	if err := db.conn.QueryRow(`PRAGMA page_count`).Scan(&pageCount); err == nil {
		if err := db.conn.QueryRow(`PRAGMA page_size`).Scan(&pageSize); err == nil {
			s.IndexSizeBytes = pageCount * pageSize
		}
	}
	return s, nil
}
