package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/starford/stencil/internal/builder"
	"github.com/starford/stencil/internal/cache"
	"github.com/starford/stencil/internal/checksum"
	"github.com/starford/stencil/internal/models"
	"github.com/starford/stencil/internal/pipeline"
	"github.com/starford/stencil/internal/storage"
)

// Changes lists the slugs touched by one sync.
type Changes struct {
	Added   []string `json:"added"`
	Updated []string `json:"updated"`
	Removed []string `json:"removed"`
}

// Empty reports whether the sync changed nothing.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0
}

// Index keeps the templates table in step with the catalog directory, where
// every top-level directory is one template package.
type Index struct {
	db     *DB
	store  *storage.FS
	logger *slog.Logger

	mu sync.Mutex // serializes Sync
}

// NewIndex binds db to the catalog tree in store.
func NewIndex(db *DB, store *storage.FS, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{db: db, store: store, logger: logger}
}

// DB returns the underlying database.
func (x *Index) DB() *DB { return x.db }

// Root returns the catalog directory.
func (x *Index) Root() string { return x.store.Root() }

// Refresh implements cache.IndexRefresher.
func (x *Index) Refresh(ctx context.Context, req cache.Request) error {
	changes, err := x.Sync(ctx)
	if err != nil {
		return err
	}
	x.logger.Debug("catalog: refreshed",
		slog.String("reason", req.Reason),
		slog.String("import_id", req.ImportID),
		slog.Int("added", len(changes.Added)),
		slog.Int("updated", len(changes.Updated)),
		slog.Int("removed", len(changes.Removed)))
	return nil
}

// Sync walks the catalog and brings the index up to date:
//   - new or changed template directories are re-read and upserted
//   - rows without a directory are deleted
//
// Unreadable packages are logged and skipped; database errors abort.
func (x *Index) Sync(ctx context.Context) (Changes, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	var changes Changes
	checksums, err := x.db.AllChecksums(ctx)
	if err != nil {
		return changes, err
	}
	slugs, err := x.templateDirs()
	if err != nil {
		return changes, err
	}

	disk := make(map[string]struct{}, len(slugs))
	for _, slug := range slugs {
		if err := ctx.Err(); err != nil {
			return changes, err
		}
		disk[slug] = struct{}{}

		files, err := x.store.List(slug)
		if err != nil {
			x.logger.Warn("sync: list failed", slog.String("slug", slug), slog.String("error", err.Error()))
			continue
		}
		sum := treeChecksum(slug, files)
		prev, known := checksums[slug]
		if known && prev == sum {
			continue
		}
		t, body := x.describe(slug, files)
		t.Checksum = sum
		if err := x.db.Upsert(ctx, t, body); err != nil {
			return changes, err
		}
		if known {
			changes.Updated = append(changes.Updated, slug)
		} else {
			changes.Added = append(changes.Added, slug)
		}
		x.logger.Debug("sync: indexed", slog.String("slug", slug))
	}

	for slug := range checksums {
		if _, ok := disk[slug]; ok {
			continue
		}
		if err := x.db.Delete(ctx, slug); err != nil {
			return changes, err
		}
		changes.Removed = append(changes.Removed, slug)
		x.logger.Debug("sync: removed stale", slog.String("slug", slug))
	}
	sort.Strings(changes.Removed)
	return changes, nil
}

func (x *Index) templateDirs() ([]string, error) {
	entries, err := os.ReadDir(x.store.Root())
	if err != nil {
		return nil, fmt.Errorf("catalog: read root: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// describe builds the index row from the package's manifest.json, falling
// back to the directory name when the manifest is missing or malformed.
func (x *Index) describe(slug string, files []models.FileMetadata) (Template, string) {
	t := Template{Slug: slug, Name: slug, FileCount: len(files)}
	for _, f := range files {
		if f.UpdatedAt.After(t.UpdatedAt) {
			t.UpdatedAt = f.UpdatedAt.UTC()
		}
	}

	raw, err := x.store.Read(path.Join(slug, pipeline.ManifestFile))
	if err != nil {
		x.logger.Warn("sync: manifest missing", slog.String("slug", slug), slog.String("error", err.Error()))
		return t, ""
	}
	var m pipeline.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		x.logger.Warn("sync: manifest invalid", slog.String("slug", slug), slog.String("error", err.Error()))
		return t, ""
	}
	if m.Name != "" {
		t.Name = m.Name
	}
	t.Description = m.Description
	t.ExportName = m.ExportName
	for _, p := range m.NpmPackages {
		name := p.Name
		if p.Version != "" {
			name += "@" + p.Version
		}
		t.NpmPackages = append(t.NpmPackages, name)
	}

	var body strings.Builder
	for _, a := range m.Files {
		if a.Kind != builder.KindComponent {
			continue
		}
		src, err := x.store.Read(path.Join(slug, a.Path))
		if err == nil {
			body.Write(src)
		}
		break
	}
	return t, body.String()
}

// treeChecksum digests the relative paths and contents of a package.
func treeChecksum(slug string, files []models.FileMetadata) string {
	sorted := append([]models.FileMetadata(nil), files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	var b strings.Builder
	for _, f := range sorted {
		b.WriteString(strings.TrimPrefix(f.Path, slug+"/"))
		b.WriteByte(':')
		b.WriteString(f.Checksum)
		b.WriteByte('\n')
	}
	return checksum.SumString(b.String())
}
