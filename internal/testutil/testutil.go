// Package testutil provides shared test helpers for catalogs, databases
// and job stores.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/stencil/internal/catalog"
	"github.com/starford/stencil/internal/jobs"
	"github.com/starford/stencil/internal/storage"
)

// HeroPrompt is a small but complete prompt used across package tests.
const HeroPrompt = "# Hero\n\n" +
	"## Component\n```tsx export=Hero\nexport const Hero = () => null\n```\n\n" +
	"## Demo\n```tsx\nexport default () => Hero()\n```\n\n" +
	"## Styles\n```css filename=hero.css\n.hero { color: teal; }\n```\n\n" +
	"## NPM\n- react: ^18.2.0\n\n" +
	"## Notes\n- @field headline: string = Hello\n"

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestDB creates a temporary catalog database that is automatically cleaned up.
func TestDB(t *testing.T) *catalog.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "stencil-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := catalog.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestCatalog creates a temporary catalog directory with a storage.FS.
func TestCatalog(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// TestJobs opens a job store in a temp directory.
func TestJobs(t *testing.T) *jobs.SQLiteStore {
	t.Helper()
	s, err := jobs.OpenSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
