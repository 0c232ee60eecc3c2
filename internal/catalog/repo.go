package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/stencil/internal/apperr"
)

// Template is one indexed catalog entry.
type Template struct {
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ExportName  string    `json:"exportName,omitempty"`
	Checksum    string    `json:"checksum"`
	FileCount   int       `json:"fileCount"`
	NpmPackages []string  `json:"npmPackages"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SearchResult is one search hit.
type SearchResult struct {
	Slug    string `json:"slug"`
	Name    string `json:"name"`
	Snippet string `json:"snippet"`
}

// Upsert inserts or replaces a template row and its search entry.
func (db *DB) Upsert(ctx context.Context, t Template, body string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if t.NpmPackages == nil {
		t.NpmPackages = []string{}
	}
	pkgs, _ := json.Marshal(t.NpmPackages)
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO templates (slug, name, description, export_name, checksum, file_count, npm_packages, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name         = excluded.name,
			description  = excluded.description,
			export_name  = excluded.export_name,
			checksum     = excluded.checksum,
			file_count   = excluded.file_count,
			npm_packages = excluded.npm_packages,
			body         = excluded.body,
			updated_at   = excluded.updated_at
	`, t.Slug, t.Name, t.Description, t.ExportName, t.Checksum, t.FileCount, string(pkgs), body, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("catalog: upsert template: %w", err)
	}
	if err := ftsUpsert(tx, t.Slug, t.Name, t.Description, body); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a template row and its search entry.
func (db *DB) Delete(ctx context.Context, slug string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, slug)
	if _, err := tx.ExecContext(ctx, `DELETE FROM templates WHERE slug = ?`, slug); err != nil {
		return fmt.Errorf("catalog: delete template: %w", err)
	}
	return tx.Commit()
}

const templateColumns = `slug, name, description, export_name, checksum, file_count, npm_packages, updated_at`

// Get returns one template or an error wrapping apperr.ErrNotFound.
func (db *DB) Get(ctx context.Context, slug string) (*Template, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE slug = ?`, slug)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog: template %q: %w", slug, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get template: %w", err)
	}
	return t, nil
}

// List returns a page of templates, most recently updated first, and the
// total count.
func (db *DB) List(ctx context.Context, limit, offset int) ([]Template, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM templates`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count templates: %w", err)
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+templateColumns+`
		FROM templates
		ORDER BY updated_at DESC, slug
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list templates: %w", err)
	}
	defer rows.Close()

	out := []Template{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *t)
	}
	return out, total, rows.Err()
}

// AllChecksums maps every indexed slug to its stored checksum.
func (db *DB) AllChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT slug, checksum FROM templates`)
	if err != nil {
		return nil, fmt.Errorf("catalog: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var slug, cs string
		if err := rows.Scan(&slug, &cs); err != nil {
			return nil, err
		}
		out[slug] = cs
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(sc scanner) (*Template, error) {
	var t Template
	var pkgs string
	if err := sc.Scan(&t.Slug, &t.Name, &t.Description, &t.ExportName, &t.Checksum, &t.FileCount, &pkgs, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(pkgs), &t.NpmPackages); err != nil {
		t.NpmPackages = []string{}
	}
	return &t, nil
}
