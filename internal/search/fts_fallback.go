//go:build !sqlite_fts5

package search

import (
	"database/sql"
	"fmt"

	"github.com/starford/othala/internal/apperr"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not compiled in; search falls back to LIKE over the pages table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _ Document) error {
	// Body is already stored in the pages table; nothing extra to do.
	return nil
}

func ftsDelete(_ *sql.Tx, _, _ string) {}

func ftsDeleteUser(_ *sql.Tx, _ string) {}

// Search performs a LIKE-based scan (fallback when FTS5 is not compiled
// in). Every term and quoted phrase must appear; prefix semantics and
// ranking are approximated by substring match and recency order.
func (db *DB) Search(userID string, q Query) ([]Result, error) {
	pq := parseQuery(q.Text)
	if pq.empty() {
		return nil, fmt.Errorf("search: empty query: %w", apperr.ErrValidation)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	sqlQ := `
		SELECT page_id, notebook_id, section_id, title, substr(body, 1, 200)
		FROM pages
		WHERE user_id = ?`
	args := []any{userID}
	for _, needle := range append(pq.terms, pq.phrases...) {
		like := "%" + needle + "%"
		if q.TitleOnly {
			sqlQ += ` AND title LIKE ?`
			args = append(args, like)
		} else {
			sqlQ += ` AND (title LIKE ? OR body LIKE ?)`
			args = append(args, like, like)
		}
	}
	if q.NotebookID != "" {
		sqlQ += ` AND notebook_id = ?`
		args = append(args, q.NotebookID)
	}
	if q.SectionID != "" {
		sqlQ += ` AND section_id = ?`
		args = append(args, q.SectionID)
	}
	sqlQ += `
		ORDER BY updated_at DESC
		LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.Query(sqlQ, args...)
	if err != nil {
		return nil, fmt.Errorf("search: query: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.PageID, &r.NotebookID, &r.SectionID, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
