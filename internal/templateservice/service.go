// Package templateservice is the domain layer shared by the REST API and
// the MCP server: it compiles prompts, reads the catalog index and exposes
// pipeline health.
package templateservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/starford/stencil/internal/apperr"
	"github.com/starford/stencil/internal/catalog"
	"github.com/starford/stencil/internal/metrics"
	"github.com/starford/stencil/internal/models"
	"github.com/starford/stencil/internal/pipeline"
	"github.com/starford/stencil/internal/scheduler"
	"github.com/starford/stencil/internal/storage"
)

// Compiler runs the prompt pipeline.
type Compiler interface {
	Compile(ctx context.Context, raw string, opts pipeline.Options) (*pipeline.Result, error)
}

// SnapshotSource reports pipeline health.
type SnapshotSource interface {
	Snapshot(window time.Duration) metrics.Snapshot
}

// Jobs triggers scheduler tasks on demand.
type Jobs interface {
	RunRetrySweep(ctx context.Context) (*scheduler.SweepResult, error)
	RunWeeklyReport(ctx context.Context) (*scheduler.Report, error)
}

// CompileRequest is one compile call.
type CompileRequest struct {
	Prompt     string
	UserID     string
	AutoImport bool
	IncludeZip bool
}

// CompileResponse is the compile result with the working directory already
// removed.
type CompileResponse struct {
	RequestID    string         `json:"requestId"`
	Slug         string         `json:"slug"`
	Schema       map[string]any `json:"schema"`
	Defaults     map[string]any `json:"defaults"`
	Manifest     any            `json:"manifest"`
	PackagePatch any            `json:"packagePatch"`
	ImportResult any            `json:"importResult,omitempty"`
	Warnings     any            `json:"warnings"`
	Zip          []byte         `json:"zip,omitempty"`
	ZipSize      int            `json:"zipSize"`
}

// TemplateDetail is an index row plus the package's file listing.
type TemplateDetail struct {
	catalog.Template
	Files []models.FileMetadata `json:"files"`
}

// Config holds paths the pipeline patches against. AutoImport imports
// every compiled package, whatever the request asks for.
type Config struct {
	PackageJSONPath    string
	TailwindConfigPath string
	AutoImport         bool
}

// Service coordinates the pipeline, catalog and job scheduler.
type Service struct {
	compiler Compiler
	importer pipeline.Importer
	db       *catalog.DB
	store    *storage.FS
	metrics  SnapshotSource
	jobs     Jobs
	cfg      Config
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithImporter enables AutoImport requests.
func WithImporter(im pipeline.Importer) Option { return func(s *Service) { s.importer = im } }

// WithJobs enables on-demand sweeps and reports.
func WithJobs(j Jobs) Option { return func(s *Service) { s.jobs = j } }

// WithConfig sets the patch target paths.
func WithConfig(cfg Config) Option { return func(s *Service) { s.cfg = cfg } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// New creates a service over the catalog db and tree.
func New(compiler Compiler, db *catalog.DB, store *storage.FS, source SnapshotSource, opts ...Option) *Service {
	s := &Service{compiler: compiler, db: db, store: store, metrics: source, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Compile runs the pipeline and returns a self-contained response.
func (s *Service) Compile(ctx context.Context, req CompileRequest) (*CompileResponse, error) {
	autoImport := req.AutoImport || s.cfg.AutoImport
	if autoImport && s.importer == nil {
		return nil, fmt.Errorf("templateservice: auto import: %w", apperr.ErrUnavailable)
	}
	res, err := s.compiler.Compile(ctx, req.Prompt, pipeline.Options{
		UserID:                     req.UserID,
		AutoImport:                 autoImport,
		Importer:                   s.importer,
		ExistingPackageJSONPath:    s.cfg.PackageJSONPath,
		ExistingTailwindConfigPath: s.cfg.TailwindConfigPath,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := res.Cleanup(); cerr != nil {
			s.logger.Warn("compile: cleanup failed", "request_id", res.RequestID, "error", cerr)
		}
	}()

	out := &CompileResponse{
		RequestID:    res.RequestID,
		Slug:         res.Slug,
		Schema:       res.Schema,
		Defaults:     res.Defaults,
		Manifest:     res.Manifest,
		PackagePatch: res.PackagePatch,
		ImportResult: res.ImportResult,
		Warnings:     res.Warnings,
		ZipSize:      len(res.Zip),
	}
	if req.IncludeZip {
		out.Zip = res.Zip
	}
	return out, nil
}

// ListTemplates returns a page of indexed templates, newest first.
func (s *Service) ListTemplates(ctx context.Context, limit, offset int) ([]catalog.Template, int, error) {
	return s.db.List(ctx, limit, offset)
}

// GetTemplate returns the index row for slug and its files.
func (s *Service) GetTemplate(ctx context.Context, slug string) (*TemplateDetail, error) {
	t, err := s.db.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	files, err := s.store.List(slug)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("templateservice: %s: %w", slug, apperr.ErrNotFound)
		}
		return nil, err
	}
	if files == nil {
		files = []models.FileMetadata{}
	}
	return &TemplateDetail{Template: *t, Files: files}, nil
}

// ReadFile returns one file from a template package.
func (s *Service) ReadFile(_ context.Context, slug, rel string) ([]byte, error) {
	data, err := s.store.Read(path.Join(slug, rel))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// SearchTemplates delegates to the index.
func (s *Service) SearchTemplates(ctx context.Context, query string, limit int) ([]catalog.SearchResult, error) {
	return s.db.Search(ctx, query, limit)
}

// Snapshot aggregates pipeline events recorded within window.
func (s *Service) Snapshot(window time.Duration) metrics.Snapshot {
	return s.metrics.Snapshot(window)
}

// RunRetrySweep requeues stale ON_HOLD jobs now.
func (s *Service) RunRetrySweep(ctx context.Context) (*scheduler.SweepResult, error) {
	if s.jobs == nil {
		return nil, fmt.Errorf("templateservice: scheduler: %w", apperr.ErrUnavailable)
	}
	return s.jobs.RunRetrySweep(ctx)
}

// RunWeeklyReport builds and publishes the weekly digest now.
func (s *Service) RunWeeklyReport(ctx context.Context) (*scheduler.Report, error) {
	if s.jobs == nil {
		return nil, fmt.Errorf("templateservice: scheduler: %w", apperr.ErrUnavailable)
	}
	return s.jobs.RunWeeklyReport(ctx)
}
