//go:build sqlite_fts5

package catalog

import (
	"context"
	"strings"
	"testing"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM templates_fts`).Scan(&count); err != nil {
		t.Fatalf("templates_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if err := db.Upsert(ctx, Template{Slug: "glow-card", Name: "Glow Card"}, "export const GlowCard = () => <div className=\"shimmering\" />"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	results, err := db.Search(ctx, "shimmering", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !strings.Contains(results[0].Snippet, "<b>shimmering</b>") {
		t.Errorf("snippet = %q", results[0].Snippet)
	}

	if err := db.Delete(ctx, "glow-card"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	results, _ = db.Search(ctx, "shimmering", 10)
	if len(results) != 0 {
		t.Errorf("expected no results after delete, got %d", len(results))
	}
}
