package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/starford/stencil/internal/mcpserver"
	"github.com/starford/stencil/internal/pipeline"
)

// CompileInput describes a one-shot compile from the command line.
type CompileInput struct {
	Prompt     string
	UserID     string
	OutDir     string // keep the package directory here; empty means a temp dir
	ZipPath    string // write the zip here when set
	AutoImport bool
}

// Compile runs the pipeline once and prints a JSON summary to w.
func Compile(ctx context.Context, in CompileInput, w io.Writer, opts ...Option) error {
	c, err := build(ctx, newApplication(opts))
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.pipeline.Compile(ctx, in.Prompt, pipeline.Options{
		UserID:                     in.UserID,
		AutoImport:                 in.AutoImport || c.cfg.Pipeline.AutoImport,
		Importer:                   c.importer,
		OutDir:                     in.OutDir,
		ExistingPackageJSONPath:    c.cfg.Pipeline.PackageJSONPath,
		ExistingTailwindConfigPath: c.cfg.Pipeline.TailwindConfigPath,
	})
	if err != nil {
		return err
	}
	defer res.Cleanup()

	if in.ZipPath != "" {
		if err := os.WriteFile(in.ZipPath, res.Zip, 0o644); err != nil {
			return fmt.Errorf("write zip: %w", err)
		}
	}

	summary := map[string]any{
		"requestId":    res.RequestID,
		"slug":         res.Slug,
		"files":        res.Manifest,
		"packagePatch": res.PackagePatch,
		"warnings":     res.Warnings,
		"zipBytes":     len(res.Zip),
	}
	if in.OutDir != "" {
		summary["outDir"] = res.OutDir
	}
	if in.ZipPath != "" {
		summary["zip"] = in.ZipPath
	}
	if res.ImportResult != nil {
		summary["import"] = res.ImportResult
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

// Sweep runs one retry sweep and prints the result to w.
func Sweep(ctx context.Context, w io.Writer, opts ...Option) error {
	c, err := build(ctx, newApplication(opts))
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.service.RunRetrySweep(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// Report builds and publishes the weekly report and prints its text to w.
func Report(ctx context.Context, w io.Writer, opts ...Option) error {
	c, err := build(ctx, newApplication(opts))
	if err != nil {
		return err
	}
	defer c.Close()

	rep, err := c.service.RunWeeklyReport(ctx)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, rep.Text)
	return err
}

// ServeMCP syncs the catalog once and serves MCP tools over stdio.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	c, err := build(ctx, app)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.index.Sync(ctx); err != nil {
		c.logger.Warn("initial sync failed", "error", err)
	}
	return mcpserver.New(c.service, app.version).ServeStdio()
}
