// Package pipeline sequences parse, build, schema, preview, patch and zip
// into one compile run and optionally hands the package to an importer.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/starford/stencil/internal/apperr"
	"github.com/starford/stencil/internal/builder"
	"github.com/starford/stencil/internal/metrics"
	"github.com/starford/stencil/internal/patch"
	"github.com/starford/stencil/internal/preview"
	"github.com/starford/stencil/internal/prompt"
	"github.com/starford/stencil/internal/schema"
	"github.com/starford/stencil/internal/storage"
)

// Files written next to the built artifacts.
const (
	SchemaFile   = "schema.json"
	DefaultsFile = "defaults.json"
	ManifestFile = "manifest.json"
)

// Recorder receives stage outcomes. *metrics.Collector implements it.
type Recorder interface {
	RecordSuccess(ctx context.Context, e metrics.PipelineEvent)
	RecordFailure(ctx context.Context, e metrics.PipelineEvent, reason string)
}

type nopRecorder struct{}

func (nopRecorder) RecordSuccess(context.Context, metrics.PipelineEvent)         {}
func (nopRecorder) RecordFailure(context.Context, metrics.PipelineEvent, string) {}

// Manifest is written to manifest.json in every package.
type Manifest struct {
	Name        string              `json:"name"`
	Slug        string              `json:"slug"`
	Description string              `json:"description,omitempty"`
	ExportName  string              `json:"exportName,omitempty"`
	NpmPackages []prompt.NpmPackage `json:"npmPackages"`
	Files       []builder.Artifact  `json:"files"`
}

// Result of a pipeline run. Paths are absolute and remain valid until
// Cleanup.
type Result struct {
	RequestID    string             `json:"requestId"`
	Slug         string             `json:"slug"`
	OutDir       string             `json:"outDir"`
	Zip          []byte             `json:"-"`
	SchemaPath   string             `json:"schemaPath"`
	DefaultsPath string             `json:"defaultsPath"`
	PreviewPath  string             `json:"previewPath"`
	ManifestPath string             `json:"manifestPath"`
	Schema       map[string]any     `json:"schema"`
	Defaults     map[string]any     `json:"defaults"`
	Manifest     []builder.Artifact `json:"manifest"`
	PackagePatch *patch.Result      `json:"packagePatch"`
	ImportResult any                `json:"importResult,omitempty"`
	Warnings     []prompt.Warning   `json:"warnings"`

	tempDir bool
}

// Cleanup removes the working directory when the pipeline created it.
func (r *Result) Cleanup() error {
	if r == nil || !r.tempDir || r.OutDir == "" {
		return nil
	}
	return os.RemoveAll(r.OutDir)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder sets where stage outcomes are recorded.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// Pipeline is safe for concurrent runs; each run owns its working directory.
type Pipeline struct {
	recorder Recorder
	logger   *slog.Logger
}

// New creates a Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{recorder: nopRecorder{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Compile parses raw and runs the pipeline on the result. Parse warnings
// come first in Result.Warnings.
func (pl *Pipeline) Compile(ctx context.Context, raw string, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: options: %w: %w", apperr.ErrInvalidInput, err)
	}
	if opts.RequestID == "" {
		opts.RequestID = uuid.NewString()
	}
	start := time.Now()
	parsed, warnings, err := prompt.Parse(raw)
	event := metrics.PipelineEvent{Stage: metrics.StagePlanner, RequestID: opts.RequestID, DurationMs: sinceMs(start)}
	if err != nil {
		pl.recorder.RecordFailure(ctx, event, err.Error())
		return nil, err
	}
	event.TemplateSlug = parsed.Slug
	pl.recorder.RecordSuccess(ctx, event)

	res, err := pl.Run(ctx, parsed, opts)
	if err != nil {
		return nil, err
	}
	res.Warnings = append(warnings, res.Warnings...)
	if res.Warnings == nil {
		res.Warnings = []prompt.Warning{}
	}
	return res, nil
}

// Run compiles an already parsed prompt. Stages run strictly in order:
// build, schema, manifest, preview, patch, zip, then the optional import.
// Any stage error aborts the run and removes a temporary working directory.
func (pl *Pipeline) Run(ctx context.Context, p *prompt.ParsedPrompt, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: options: %w: %w", apperr.ErrInvalidInput, err)
	}
	if opts.RequestID == "" {
		opts.RequestID = uuid.NewString()
	}
	log := pl.logger.With("request_id", opts.RequestID, "user_id", opts.UserID)

	start := time.Now()
	event := metrics.PipelineEvent{Stage: metrics.StageComposer, RequestID: opts.RequestID}
	if p != nil {
		event.TemplateSlug = p.Slug
	}

	res, err := pl.compose(ctx, p, opts)
	event.DurationMs = sinceMs(start)
	if err != nil {
		pl.recorder.RecordFailure(ctx, event, err.Error())
		log.Error("compose failed", "error", err)
		return nil, err
	}
	event.Metadata = map[string]any{"files": len(res.Manifest)}
	pl.recorder.RecordSuccess(ctx, event)
	log.Info("package composed", "slug", res.Slug, "files", len(res.Manifest), "zip_bytes", len(res.Zip), "warnings", len(res.Warnings))

	if !opts.AutoImport {
		return res, nil
	}

	start = time.Now()
	imported, err := opts.Importer.Import(ctx, res.Zip, opts.UserID, ImportOptions{RequestID: opts.RequestID, Slug: res.Slug})
	event = metrics.PipelineEvent{Stage: metrics.StageImporter, RequestID: opts.RequestID, TemplateSlug: res.Slug, DurationMs: sinceMs(start)}
	if err != nil {
		pl.recorder.RecordFailure(ctx, event, err.Error())
		_ = res.Cleanup()
		return nil, fmt.Errorf("pipeline: import: %w", err)
	}
	pl.recorder.RecordSuccess(ctx, event)
	res.ImportResult = imported
	log.Info("package imported", "slug", res.Slug)
	return res, nil
}

func (pl *Pipeline) compose(ctx context.Context, p *prompt.ParsedPrompt, opts Options) (_ *Result, err error) {
	built, err := builder.Build(ctx, p, builder.Options{OutDir: opts.OutDir})
	if err != nil {
		return nil, err
	}
	res := &Result{
		RequestID: opts.RequestID,
		Slug:      built.Slug,
		OutDir:    built.OutDir,
		Manifest:  built.Manifest,
		Warnings:  append([]prompt.Warning{}, built.Warnings...),
		tempDir:   built.TempDir,
	}
	defer func() {
		if err != nil {
			_ = res.Cleanup()
		}
	}()

	fs, err := storage.NewFS(built.OutDir)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	gen, err := schema.Generate(p)
	if err != nil {
		return nil, err
	}
	res.Schema, res.Defaults = gen.Schema, gen.Defaults
	res.Warnings = append(res.Warnings, gen.Warnings...)
	if res.SchemaPath, err = writeJSON(fs, SchemaFile, gen.Schema); err != nil {
		return nil, err
	}
	if res.DefaultsPath, err = writeJSON(fs, DefaultsFile, gen.Defaults); err != nil {
		return nil, err
	}

	exportName := p.Component.ExportName
	if res.ManifestPath, err = writeJSON(fs, ManifestFile, Manifest{
		Name:        p.Name,
		Slug:        built.Slug,
		Description: p.Description,
		ExportName:  exportName,
		NpmPackages: built.NpmPackages,
		Files:       built.Manifest,
	}); err != nil {
		return nil, err
	}

	pv, err := preview.Build(preview.Options{
		OutDir:        built.OutDir,
		ComponentFile: built.ComponentFile,
		DemoFile:      built.DemoFile,
		Slug:          built.Slug,
		Title:         p.Name,
		ExportName:    exportName,
	})
	if err != nil {
		return nil, err
	}
	res.PreviewPath = filepath.Join(built.OutDir, pv.Path)
	res.Warnings = append(res.Warnings, pv.Warnings...)

	res.PackagePatch = patch.Reconcile(built.NpmPackages, built.StyleEntries, patch.Options{
		ExistingPackageJSONPath:    opts.ExistingPackageJSONPath,
		ExistingTailwindConfigPath: opts.ExistingTailwindConfigPath,
	})
	res.Warnings = append(res.Warnings, res.PackagePatch.Warnings...)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if res.Zip, err = ZipDir(built.OutDir); err != nil {
		return nil, err
	}
	return res, nil
}

func writeJSON(fs *storage.FS, name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("pipeline: encode %s: %w", name, err)
	}
	if err := fs.Write(name, append(data, '\n')); err != nil {
		return "", fmt.Errorf("pipeline: write %s: %w", name, err)
	}
	return filepath.Join(fs.Root(), name), nil
}

func sinceMs(t time.Time) int64 {
	return time.Since(t).Milliseconds()
}

// IsInputError reports whether err came from the prompt or the options
// rather than from I/O.
func IsInputError(err error) bool {
	var pe *prompt.ParseError
	return errors.As(err, &pe) ||
		errors.Is(err, builder.ErrMissingComponent) ||
		errors.Is(err, builder.ErrPathTraversal) ||
		errors.Is(err, schema.ErrMissingComponent) ||
		errors.Is(err, apperr.ErrInvalidInput)
}
