// Package search provides the SQLite-backed full-text index over cached
// pages, with FTS5 behind the sqlite_fts5 build tag and a LIKE fallback.
package search

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS pages (
	user_id     TEXT NOT NULL,
	page_id     TEXT NOT NULL,
	notebook_id TEXT NOT NULL DEFAULT '',
	section_id  TEXT NOT NULL DEFAULT '',
	title       TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	created_at  DATETIME,
	updated_at  DATETIME,
	PRIMARY KEY (user_id, page_id)
);

CREATE INDEX IF NOT EXISTS idx_pages_notebook ON pages(user_id, notebook_id);
CREATE INDEX IF NOT EXISTS idx_pages_section  ON pages(user_id, section_id);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("search: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("search: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("search: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("search: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
