// Package patch reconciles the npm packages and styles a component asks for
// against an existing project's package.json and tailwind config.
package patch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/starford/stencil/internal/builder"
	"github.com/starford/stencil/internal/checksum"
	"github.com/starford/stencil/internal/prompt"
)

// Options points at the target project's files. Both are optional and read
// best-effort.
type Options struct {
	ExistingPackageJSONPath    string
	ExistingTailwindConfigPath string
}

// Conflict is a requested package whose range is not covered by the range
// the project already declares. Version is the existing declaration.
type Conflict struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Requested string `json:"requested"`
}

// Result is the package patch to merge into the target project.
type Result struct {
	AddDependencies   []prompt.NpmPackage  `json:"addDependencies"`
	ExistingConflicts []Conflict           `json:"existingConflicts"`
	StylePatch        []builder.StyleEntry `json:"stylePatch"`
	Warnings          []prompt.Warning     `json:"warnings,omitempty"`
}

type packageJSON struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// Reconcile computes the dependency additions, conflicts and style patch.
// Unreadable project files degrade to "nothing to compare against".
func Reconcile(deps []prompt.NpmPackage, styles []builder.StyleEntry, opts Options) *Result {
	res := &Result{
		AddDependencies:   []prompt.NpmPackage{},
		ExistingConflicts: []Conflict{},
		StylePatch:        []builder.StyleEntry{},
	}

	existing, warn := readDependencies(opts.ExistingPackageJSONPath)
	if warn != nil {
		res.Warnings = append(res.Warnings, *warn)
	}

	seen := make(map[string]struct{}, len(deps))
	for _, dep := range deps {
		name := strings.TrimSpace(dep.Name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			res.warn("npm", fmt.Sprintf("%s is requested more than once; using the first entry", name))
			continue
		}
		seen[name] = struct{}{}

		current, ok := existing[name]
		if !ok {
			res.AddDependencies = append(res.AddDependencies, prompt.NpmPackage{Name: name, Version: dep.Version})
			continue
		}
		if dep.Version == "" || current == "" {
			res.warn("npm", fmt.Sprintf("%s: cannot compare versions (requested %q, existing %q); skipped", name, dep.Version, current))
			continue
		}
		if IsSubset(dep.Version, current) {
			res.warn("npm", fmt.Sprintf("%s@%s is already satisfied by %s", name, dep.Version, current))
			continue
		}
		res.ExistingConflicts = append(res.ExistingConflicts, Conflict{Name: name, Version: current, Requested: dep.Version})
	}

	config := readText(opts.ExistingTailwindConfigPath)
	type styleKey struct{ path, sum string }
	unique := make(map[styleKey]struct{}, len(styles))
	for _, st := range styles {
		key := styleKey{st.Path, checksum.SumString(st.Content)}
		if _, dup := unique[key]; dup {
			continue
		}
		unique[key] = struct{}{}
		if trimmed := strings.TrimSpace(st.Content); trimmed != "" && config != "" && strings.Contains(config, trimmed) {
			res.warn("styles", fmt.Sprintf("%s already exists in the tailwind config; skipped", st.Path))
			continue
		}
		res.StylePatch = append(res.StylePatch, st)
	}
	return res
}

func (r *Result) warn(section, msg string) {
	r.Warnings = append(r.Warnings, prompt.Warning{Section: section, Message: msg})
}

// readDependencies merges devDependencies and dependencies, production
// entries winning. A missing file yields an empty map; a malformed one also
// yields a warning.
func readDependencies(path string) (map[string]string, *prompt.Warning) {
	out := make(map[string]string)
	if path == "" {
		return out, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return out, nil
		}
		return out, &prompt.Warning{Section: "npm", Message: fmt.Sprintf("package.json unreadable: %v", err)}
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return out, &prompt.Warning{Section: "npm", Message: fmt.Sprintf("package.json is not valid JSON: %v", err)}
	}
	for name, v := range pkg.DevDependencies {
		out[name] = strings.TrimSpace(v)
	}
	for name, v := range pkg.Dependencies {
		out[name] = strings.TrimSpace(v)
	}
	return out, nil
}

func readText(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}
