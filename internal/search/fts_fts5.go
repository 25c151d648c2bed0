//go:build sqlite_fts5

package search

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/othala/internal/apperr"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS pages_fts USING fts5(
			user_id UNINDEXED,
			page_id UNINDEXED,
			notebook_id UNINDEXED,
			section_id UNINDEXED,
			title,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, doc Document) error {
	_, _ = tx.Exec(`DELETE FROM pages_fts WHERE user_id = ? AND page_id = ?`, doc.UserID, doc.PageID)
	_, err := tx.Exec(`
		INSERT INTO pages_fts (user_id, page_id, notebook_id, section_id, title, body)
		VALUES (?, ?, ?, ?, ?, ?)
	`, doc.UserID, doc.PageID, doc.NotebookID, doc.SectionID, doc.Title, doc.Body)
	if err != nil {
		return fmt.Errorf("search: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, userID, pageID string) {
	_, _ = tx.Exec(`DELETE FROM pages_fts WHERE user_id = ? AND page_id = ?`, userID, pageID)
}

func ftsDeleteUser(tx *sql.Tx, userID string) {
	_, _ = tx.Exec(`DELETE FROM pages_fts WHERE user_id = ?`, userID)
}

// ftsExpr builds the FTS5 MATCH expression: every bare term prefix-matched,
// quoted substrings as verbatim phrases, and a phrase alternative appended
// for multi-term queries so exact phrase hits rank ahead of scattered ones.
func ftsExpr(pq parsedQuery, titleOnly bool) string {
	quote := func(s string) string {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}

	var parts []string
	for _, t := range pq.terms {
		parts = append(parts, quote(t)+"*")
	}
	for _, ph := range pq.phrases {
		parts = append(parts, quote(ph))
	}
	expr := strings.Join(parts, " AND ")
	if len(pq.terms) > 1 {
		expr = "(" + expr + `) OR ` + quote(strings.Join(pq.terms, " "))
	}
	if titleOnly {
		expr = "title : (" + expr + ")"
	}
	return expr
}

// Search runs an FTS5 query scoped to one user, with optional notebook and
// section filters, ordered by bm25 rank with the title column weighted.
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
		SELECT page_id, notebook_id, section_id, title,
		       snippet(pages_fts, 5, '<b>', '</b>', '...', 64)
		FROM pages_fts
		WHERE user_id = ? AND pages_fts MATCH ?`
	args := []any{userID, ftsExpr(pq, q.TitleOnly)}
	if q.NotebookID != "" {
		sqlQ += ` AND notebook_id = ?`
		args = append(args, q.NotebookID)
	}
	if q.SectionID != "" {
		sqlQ += ` AND section_id = ?`
		args = append(args, q.SectionID)
	}
	sqlQ += `
		ORDER BY bm25(pages_fts, 0, 0, 0, 0, 10.0, 1.0)
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
