package catalog

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/starford/stencil/internal/builder"
	"github.com/starford/stencil/internal/events"
	"github.com/starford/stencil/internal/jobs"
	"github.com/starford/stencil/internal/pipeline"
	"github.com/starford/stencil/internal/prompt"
	"github.com/starford/stencil/internal/storage"
)

// maxEntrySize bounds a single decompressed package file.
const maxEntrySize = 16 << 20

var ErrInvalidPackage = errors.New("catalog: invalid package")

// ImportResult is returned to the pipeline as its opaque import result.
type ImportResult struct {
	ImportID string `json:"importId"`
	Slug     string `json:"slug"`
	Files    int    `json:"files"`
	JobID    string `json:"jobId,omitempty"`
}

// Importer unpacks pipeline zips into catalog/<slug>/ and announces the
// outcome on the event bus.
type Importer struct {
	store  *storage.FS
	bus    *events.Bus
	jobs   jobs.Store
	logger *slog.Logger
}

var _ pipeline.Importer = (*Importer)(nil)

// NewImporter creates an importer writing into store. jobStore may be nil.
func NewImporter(store *storage.FS, bus *events.Bus, jobStore jobs.Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	if bus == nil {
		bus = events.NewBus(logger)
	}
	return &Importer{store: store, bus: bus, jobs: jobStore, logger: logger}
}

// Import replaces the catalog entry for the package's slug. Success emits
// Imported; any failure emits ImportFailed and returns the error. When a
// job store is configured each import is tracked as a job, and failed
// imports are left ON_HOLD for the retry sweep.
func (im *Importer) Import(ctx context.Context, data []byte, userID string, opts pipeline.ImportOptions) (any, error) {
	start := time.Now()
	importID := uuid.NewString()
	log := im.logger.With("import_id", importID, "request_id", opts.RequestID)

	jobID := im.startJob(ctx, opts.Slug, importID, userID, log)

	slug, files, err := im.unpack(ctx, data, opts.Slug, importID)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		log.Warn("import failed", "error", err)
		im.finishJob(ctx, jobID, jobs.StatusOnHold, err, log)
		im.bus.EmitImportFailed(ctx, events.TemplateImportFailedPayload{
			ImportID:   importID,
			UserID:     userID,
			Pages:      []string{},
			Components: nonEmpty(slug),
			DurationMs: elapsed,
			RequestID:  opts.RequestID,
			Error:      err.Error(),
		})
		return nil, err
	}

	im.finishJob(ctx, jobID, jobs.StatusSuccess, nil, log)
	log.Info("template imported", "slug", slug, "files", files)
	im.bus.EmitImported(ctx, events.TemplateImportedPayload{
		ImportID:   importID,
		UserID:     userID,
		Pages:      []string{},
		Components: []string{slug},
		DurationMs: elapsed,
		RequestID:  opts.RequestID,
	})
	return &ImportResult{ImportID: importID, Slug: slug, Files: files, JobID: jobID}, nil
}

// unpack validates every entry, writes the package into a hidden staging
// directory and only then swaps it in for the slug directory. A failed
// write leaves the previous package untouched.
func (im *Importer) unpack(ctx context.Context, data []byte, fallbackSlug, importID string) (string, int, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fallbackSlug, 0, fmt.Errorf("%w: %v", ErrInvalidPackage, err)
	}

	type entry struct {
		rel  string
		data []byte
	}
	var entries []entry
	var manifest *pipeline.Manifest
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rel, err := builder.SafeJoin("", f.Name)
		if err != nil {
			return fallbackSlug, 0, fmt.Errorf("%w: %v", ErrInvalidPackage, err)
		}
		body, err := readEntry(f)
		if err != nil {
			return fallbackSlug, 0, fmt.Errorf("%w: %s: %v", ErrInvalidPackage, f.Name, err)
		}
		if rel == pipeline.ManifestFile {
			var m pipeline.Manifest
			if err := json.Unmarshal(body, &m); err != nil {
				return fallbackSlug, 0, fmt.Errorf("%w: manifest: %v", ErrInvalidPackage, err)
			}
			manifest = &m
		}
		entries = append(entries, entry{rel: rel, data: body})
	}
	if manifest == nil {
		return fallbackSlug, 0, fmt.Errorf("%w: missing %s", ErrInvalidPackage, pipeline.ManifestFile)
	}

	slug := prompt.Slugify(manifest.Slug)
	if slug == "" {
		slug = prompt.Slugify(fallbackSlug)
	}
	if slug == "" {
		return fallbackSlug, 0, fmt.Errorf("%w: package has no slug", ErrInvalidPackage)
	}

	stage := ".import-" + importID
	for _, e := range entries {
		err := ctx.Err()
		if err == nil {
			if err = im.store.Write(path.Join(stage, e.rel), e.data); err != nil {
				err = fmt.Errorf("catalog: write %s: %w", e.rel, err)
			}
		}
		if err != nil {
			im.discard(stage)
			return slug, 0, err
		}
	}
	if err := im.swap(stage, slug, importID); err != nil {
		im.discard(stage)
		return slug, 0, err
	}
	return slug, len(entries), nil
}

// swap moves stage into place as slug, parking any previous package under a
// hidden name until the new one is in.
func (im *Importer) swap(stage, slug, importID string) error {
	parked := ".replaced-" + importID
	hadPrevious := true
	if err := im.store.Rename(slug, parked); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("catalog: park %s: %w", slug, err)
		}
		hadPrevious = false
	}
	if err := im.store.Rename(stage, slug); err != nil {
		if hadPrevious {
			if rerr := im.store.Rename(parked, slug); rerr != nil {
				im.logger.Error("previous package not restored", "slug", slug, "parked", parked, "error", rerr)
			}
		}
		return fmt.Errorf("catalog: install %s: %w", slug, err)
	}
	if hadPrevious {
		im.discard(parked)
	}
	return nil
}

func (im *Importer) discard(rel string) {
	if err := im.store.Delete(rel); err != nil {
		im.logger.Warn("leftover import directory", "path", rel, "error", err)
	}
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxEntrySize {
		return nil, fmt.Errorf("entry exceeds %d bytes", maxEntrySize)
	}
	return data, nil
}

func (im *Importer) startJob(ctx context.Context, slug, importID, userID string, log *slog.Logger) string {
	if im.jobs == nil {
		return ""
	}
	j, err := im.jobs.Create(ctx, jobs.Job{
		TemplateSlug: slug,
		Status:       jobs.StatusRunning,
		Metadata:     map[string]any{"importId": importID, "userId": userID},
	})
	if err != nil {
		log.Warn("import job not recorded", "error", err)
		return ""
	}
	return j.ID
}

func (im *Importer) finishJob(ctx context.Context, id string, status jobs.Status, cause error, log *slog.Logger) {
	if id == "" {
		return
	}
	var meta map[string]any
	if cause != nil {
		if j, err := im.jobs.Get(ctx, id); err == nil {
			meta = j.Metadata
			if meta == nil {
				meta = make(map[string]any)
			}
			meta["lastError"] = cause.Error()
		}
	}
	if _, err := im.jobs.Update(ctx, id, jobs.Update{Status: status, Metadata: meta}); err != nil {
		log.Warn("import job not updated", "job_id", id, "error", err)
	}
}

func nonEmpty(s string) []string {
	if s == "" {
		return []string{}
	}
	return []string{s}
}
