// Package builder materializes a parsed prompt into a working directory and
// records a manifest of every written file.
package builder

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/starford/stencil/internal/prompt"
	"github.com/starford/stencil/internal/storage"
)

// Fixed output layout.
const (
	ComponentDir  = "components"
	DemoDir       = "components/demos"
	DependencyDir = "lib"
	StyleDir      = "styles"
	AssetDir      = "public/assets"
)

var (
	ErrMissingComponent = errors.New("builder: prompt has no component code")
	ErrPathTraversal    = errors.New("builder: path escapes output directory")
)

// Kind classifies a written artifact.
type Kind string

const (
	KindComponent  Kind = "component"
	KindDemo       Kind = "demo"
	KindDependency Kind = "dependency"
	KindStyle      Kind = "style"
	KindAsset      Kind = "asset"
)

// Artifact is one manifest entry.
type Artifact struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Kind Kind   `json:"kind"`
}

// StyleEntry is a written stylesheet, used for style patch reconciliation.
type StyleEntry struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Options configures a build. An empty OutDir creates a temporary directory.
type Options struct {
	OutDir string
}

// Result describes a completed build. All file paths are slash-separated
// and relative to OutDir.
type Result struct {
	OutDir          string              `json:"outDir"`
	Slug            string              `json:"slug"`
	ComponentFile   string              `json:"componentFile"`
	DemoFile        string              `json:"demoFile,omitempty"`
	DependencyFiles []string            `json:"dependencyFiles"`
	StyleFiles      []string            `json:"styleFiles"`
	AssetFiles      []string            `json:"assetFiles"`
	NpmPackages     []prompt.NpmPackage `json:"npmPackages"`
	StyleEntries    []StyleEntry        `json:"styleEntries"`
	Manifest        []Artifact          `json:"manifest"`
	Warnings        []prompt.Warning    `json:"warnings,omitempty"`
	// TempDir is true when OutDir was created by Build.
	TempDir bool `json:"-"`
}

type writer struct {
	fs   *storage.FS
	res  *Result
	seen map[string]struct{}
}

// Build writes the component, demo, dependency, style and asset files of p
// under the output directory. Every path is sanitized and confined to the
// output root before anything is written.
func Build(ctx context.Context, p *prompt.ParsedPrompt, opts Options) (*Result, error) {
	if p == nil || p.Component == nil || strings.TrimSpace(p.Component.Code) == "" {
		return nil, ErrMissingComponent
	}
	slug := p.Slug
	if slug == "" {
		slug = prompt.Slugify(p.Name)
	}
	if slug == "" {
		slug = "component"
	}

	outDir, temp, err := prepareOutDir(opts.OutDir)
	if err != nil {
		return nil, err
	}
	fs, err := storage.NewFS(outDir)
	if err != nil {
		return nil, fmt.Errorf("builder: %w", err)
	}

	w := &writer{
		fs: fs,
		res: &Result{
			OutDir:          fs.Root(),
			Slug:            slug,
			DependencyFiles: []string{},
			StyleFiles:      []string{},
			AssetFiles:      []string{},
			NpmPackages:     append([]prompt.NpmPackage{}, p.NpmPackages...),
			StyleEntries:    []StyleEntry{},
			Manifest:        []Artifact{},
			TempDir:         temp,
		},
		seen: make(map[string]struct{}),
	}

	if err := w.writeAll(ctx, p, slug); err != nil {
		if temp {
			_ = os.RemoveAll(outDir)
		}
		return nil, err
	}
	return w.res, nil
}

func prepareOutDir(dir string) (string, bool, error) {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "stencil-build-*")
		if err != nil {
			return "", false, fmt.Errorf("builder: create temp dir: %w", err)
		}
		return tmp, true, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("builder: create out dir: %w", err)
	}
	return dir, false, nil
}

func (w *writer) writeAll(ctx context.Context, p *prompt.ParsedPrompt, slug string) error {
	componentName := p.Component.Filename
	if componentName == "" {
		componentName = slug + ".tsx"
	}
	rel, ok, err := w.write(ComponentDir, componentName, []byte(p.Component.Code), KindComponent)
	if err != nil {
		return err
	}
	if ok {
		w.res.ComponentFile = rel
	}

	if p.Demo != nil && strings.TrimSpace(p.Demo.Code) != "" {
		name := p.Demo.Filename
		if name == "" {
			name = slug + ".demo.tsx"
		}
		if rel, ok, err = w.write(DemoDir, name, []byte(p.Demo.Code), KindDemo); err != nil {
			return err
		} else if ok {
			w.res.DemoFile = rel
		}
	} else {
		w.warn("demo", "no demo content; the preview renders the component export directly")
	}

	for _, dep := range p.Dependencies {
		if err := ctx.Err(); err != nil {
			return err
		}
		dir, kind := DependencyDir, KindDependency
		if dep.Kind == "demo" {
			dir = DemoDir
		}
		if rel, ok, err = w.write(dir, dep.Filename, []byte(dep.Content), kind); err != nil {
			return err
		} else if ok {
			w.res.DependencyFiles = append(w.res.DependencyFiles, rel)
		}
	}

	for _, st := range p.Styles {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rel, ok, err = w.write(StyleDir, st.Filename, []byte(st.Content), KindStyle); err != nil {
			return err
		} else if ok {
			w.res.StyleFiles = append(w.res.StyleFiles, rel)
			w.res.StyleEntries = append(w.res.StyleEntries, StyleEntry{Path: rel, Content: st.Content})
		}
	}

	for _, asset := range p.Assets {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := decodeAsset(asset)
		if err != nil {
			return err
		}
		if rel, ok, err = w.write(AssetDir, asset.Filename, data, KindAsset); err != nil {
			return err
		} else if ok {
			w.res.AssetFiles = append(w.res.AssetFiles, rel)
		}
	}
	return nil
}

// write stores data at dir/name and appends a manifest entry sized from a
// post-write stat. A path already written in this build is skipped with a
// warning (ok=false).
func (w *writer) write(dir, name string, data []byte, kind Kind) (string, bool, error) {
	rel, err := SafeJoin(dir, name)
	if err != nil {
		return "", false, err
	}
	if _, dup := w.seen[rel]; dup {
		w.warn(string(kind), fmt.Sprintf("%s is produced more than once; keeping the first file", rel))
		return rel, false, nil
	}
	abs, err := w.fs.Resolve(rel)
	if err != nil {
		return "", false, fmt.Errorf("%w: %s", ErrPathTraversal, rel)
	}
	if err := w.fs.Write(rel, data); err != nil {
		return "", false, fmt.Errorf("builder: write %s: %w", rel, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", false, fmt.Errorf("builder: stat %s: %w", rel, err)
	}
	w.seen[rel] = struct{}{}
	w.res.Manifest = append(w.res.Manifest, Artifact{Path: rel, Size: info.Size(), Kind: kind})
	return rel, true, nil
}

func (w *writer) warn(section, msg string) {
	w.res.Warnings = append(w.res.Warnings, prompt.Warning{Section: section, Message: msg})
}

func decodeAsset(a prompt.Asset) ([]byte, error) {
	if !strings.EqualFold(a.Encoding, "base64") {
		return []byte(a.Content), nil
	}
	compact := strings.Join(strings.Fields(a.Content), "")
	data, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, fmt.Errorf("builder: decode asset %s: %w", a.Filename, err)
	}
	return data, nil
}

// SanitizeFilename normalizes separators to "/" and replaces every character
// outside [a-zA-Z0-9-_./] with "-".
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), `\`, "/")
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.' || r == '/':
			return r
		}
		return '-'
	}, name)
}

// SafeJoin sanitizes name and joins it under dir. Absolute names and any
// ".." segment are rejected. A name already prefixed with dir is not nested
// a second time.
func SafeJoin(dir, name string) (string, error) {
	clean := SanitizeFilename(name)
	if strings.HasPrefix(clean, "/") {
		return "", fmt.Errorf("%w: absolute path %q", ErrPathTraversal, name)
	}
	var segs []string
	for _, seg := range strings.Split(clean, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", fmt.Errorf("%w: %q", ErrPathTraversal, name)
		}
		segs = append(segs, seg)
	}
	if len(segs) == 0 {
		return "", fmt.Errorf("builder: empty filename %q", name)
	}
	rel := path.Join(segs...)
	if dir == "" || rel == dir || strings.HasPrefix(rel, dir+"/") {
		return rel, nil
	}
	return path.Join(dir, rel), nil
}
