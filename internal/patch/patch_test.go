package patch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/stencil/internal/builder"
	"github.com/starford/stencil/internal/prompt"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

const pkgJSON = `{
  "dependencies": {"react": "^18.0.0", "clsx": "2.0.0", "lodash": ""},
  "devDependencies": {"react": "^17.0.0", "typescript": "~5.3.0", "odd": "workspace:*"}
}`

func TestReconcile_Dependencies(t *testing.T) {
	opts := Options{ExistingPackageJSONPath: writeFile(t, "package.json", pkgJSON)}
	deps := []prompt.NpmPackage{
		{Name: "react", Version: "^18.2.0"},
		{Name: "clsx", Version: "^2.1.0"},
		{Name: "framer-motion", Version: "11.0.3"},
		{Name: "lodash", Version: "4.17.21"},
		{Name: "typescript", Version: "5.3.3"},
		{Name: "odd", Version: "workspace:*"},
		{Name: "react", Version: "^16.0.0"},
	}
	res := Reconcile(deps, nil, opts)

	assert.Equal(t, []prompt.NpmPackage{{Name: "framer-motion", Version: "11.0.3"}}, res.AddDependencies)
	assert.Equal(t, []Conflict{{Name: "clsx", Version: "2.0.0", Requested: "^2.1.0"}}, res.ExistingConflicts)
	// react satisfied, lodash uncomparable, typescript satisfied, odd equal, react duplicate.
	assert.Len(t, res.Warnings, 5)

	for _, add := range res.AddDependencies {
		for _, c := range res.ExistingConflicts {
			assert.NotEqual(t, add.Name, c.Name)
		}
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	opts := Options{ExistingPackageJSONPath: writeFile(t, "package.json", pkgJSON)}
	deps := []prompt.NpmPackage{{Name: "react", Version: "^19.0.0"}, {Name: "zod", Version: "^3.22.0"}}
	first := Reconcile(deps, nil, opts)
	second := Reconcile(deps, nil, opts)
	assert.Equal(t, first.AddDependencies, second.AddDependencies)
	assert.Equal(t, first.ExistingConflicts, second.ExistingConflicts)
	assert.Equal(t, []Conflict{{Name: "react", Version: "^18.0.0", Requested: "^19.0.0"}}, first.ExistingConflicts)
}

func TestReconcile_MissingAndBrokenManifest(t *testing.T) {
	deps := []prompt.NpmPackage{{Name: "react", Version: "^18.2.0"}}

	res := Reconcile(deps, nil, Options{ExistingPackageJSONPath: filepath.Join(t.TempDir(), "missing.json")})
	assert.Equal(t, deps, res.AddDependencies)
	assert.Empty(t, res.Warnings)

	res = Reconcile(deps, nil, Options{ExistingPackageJSONPath: writeFile(t, "package.json", "{not json")})
	assert.Equal(t, deps, res.AddDependencies)
	require.Len(t, res.Warnings, 1)
}

func TestReconcile_StyleDedup(t *testing.T) {
	styles := []builder.StyleEntry{{Path: "a.css", Content: "x"}, {Path: "a.css", Content: "x"}}
	res := Reconcile(nil, styles, Options{})
	assert.Equal(t, []builder.StyleEntry{{Path: "a.css", Content: "x"}}, res.StylePatch)
}

func TestReconcile_StyleExcludedByConfig(t *testing.T) {
	cfg := writeFile(t, "tailwind.config.js", "module.exports = { theme: { extend: {} } }\n/* .glow { box-shadow: 0 0 4px; } */\n")
	styles := []builder.StyleEntry{
		{Path: "styles/glow.css", Content: "\n.glow { box-shadow: 0 0 4px; }\n"},
		{Path: "styles/card.css", Content: ".card { padding: 1rem; }"},
		{Path: "styles/empty.css", Content: "   "},
		{Path: "styles/card.css", Content: ".card { padding: 2rem; }"},
	}
	res := Reconcile(nil, styles, Options{ExistingTailwindConfigPath: cfg})
	require.Len(t, res.StylePatch, 3)
	assert.Equal(t, "styles/card.css", res.StylePatch[0].Path)
	assert.Equal(t, "styles/empty.css", res.StylePatch[1].Path)
	assert.Equal(t, ".card { padding: 2rem; }", res.StylePatch[2].Content)
}

func TestIsSubset(t *testing.T) {
	cases := []struct {
		requested, existing string
		want                bool
	}{
		{"^18.2.0", "^18.0.0", true},
		{"18.2.0", "^18.0.0", true},
		{"^18.0.0", "^18.2.0", false},
		{"^17.0.0", "^18.0.0", false},
		{"~1.2.3", "^1.0.0", true},
		{"^1.0.0", "~1.2.3", false},
		{">=2.0.0 <3.0.0", "^2.0.0", true},
		{"*", "^1.0.0", false},
		{"1.2.x", ">=1.0.0", true},
		{"latest", "latest", true},
		{"latest", "^1.0.0", false},
		{"^0.2.0", "^0.2.1", false},
		{"^1.0.0-beta.1", "^1.0.0", false},
		{"^1.0.0-beta.2", "^1.0.0-beta.1", true},
		{"1.0.0-rc.1", "1.0.0-rc.1", true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsSubset(c.requested, c.existing), "%s ⊆ %s", c.requested, c.existing)
	}
}
