// Package preview renders the static preview.html that module-imports a
// built component and mounts it into a root container.
package preview

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"path"

	"github.com/starford/stencil/internal/prompt"
	"github.com/starford/stencil/internal/storage"
)

// FileName is the preview document written at the output root.
const FileName = "preview.html"

const placeholder = "Preview unavailable: the component did not render to text or a DOM node."

var ErrMissingComponent = errors.New("preview: component file is required")

//go:embed preview.html.tmpl
var pageSource string

var page = template.Must(template.New("preview").Parse(pageSource))

// Options describes the files produced by the builder. ComponentFile and
// DemoFile are slash paths relative to OutDir.
type Options struct {
	OutDir        string
	ComponentFile string
	DemoFile      string
	Slug          string
	Title         string
	ExportName    string
}

// Result holds the rendered document and where it was written.
type Result struct {
	HTML     string
	Path     string // relative to OutDir
	Warnings []prompt.Warning
}

type pageData struct {
	Title         string
	Slug          string
	ComponentPath string
	DemoPath      string
	ExportName    string
	Placeholder   string
}

// Build renders and writes preview.html into opts.OutDir.
func Build(opts Options) (*Result, error) {
	if opts.ComponentFile == "" {
		return nil, ErrMissingComponent
	}
	fs, err := storage.NewFS(opts.OutDir)
	if err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}

	data := pageData{
		Title:         opts.Title,
		Slug:          opts.Slug,
		ComponentPath: modulePath(opts.ComponentFile),
		ExportName:    opts.ExportName,
		Placeholder:   placeholder,
	}
	if data.Title == "" {
		data.Title = opts.Slug
	}

	var warnings []prompt.Warning
	if opts.DemoFile != "" {
		data.DemoPath = modulePath(opts.DemoFile)
	} else {
		warnings = append(warnings, prompt.Warning{
			Section: "preview",
			Message: "no demo file; rendering the component export directly",
		})
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("preview: render: %w", err)
	}
	if err := fs.Write(FileName, buf.Bytes()); err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}
	return &Result{HTML: buf.String(), Path: FileName, Warnings: warnings}, nil
}

func modulePath(rel string) string {
	return "./" + path.Clean(rel)
}
