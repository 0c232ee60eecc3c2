//go:build sqlite_fts5

package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS templates_fts USING fts5(
			slug UNINDEXED,
			name,
			description,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, slug, name, description, body string) error {
	_, _ = tx.Exec(`DELETE FROM templates_fts WHERE slug = ?`, slug)
	_, err := tx.Exec(`INSERT INTO templates_fts (slug, name, description, body) VALUES (?, ?, ?, ?)`,
		slug, name, description, body)
	if err != nil {
		return fmt.Errorf("catalog: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, slug string) {
	_, _ = tx.Exec(`DELETE FROM templates_fts WHERE slug = ?`, slug)
}

// Search performs an FTS5 full-text search with snippets.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT slug,
		       name,
		       snippet(templates_fts, 3, '<b>', '</b>', '...', 32)
		FROM templates_fts
		WHERE templates_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: search: %w", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Slug, &r.Name, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
