package preview

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_WithDemo(t *testing.T) {
	out := t.TempDir()
	res, err := Build(Options{
		OutDir:        out,
		ComponentFile: "components/hero.tsx",
		DemoFile:      "components/demos/hero.demo.tsx",
		Slug:          "hero",
		Title:         "Hero <Banner>",
		ExportName:    "Hero",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, FileName, res.Path)

	assert.Contains(t, res.HTML, `<div id="root" data-slug="hero">`)
	assert.Contains(t, res.HTML, "hero.tsx")
	assert.Contains(t, res.HTML, "hero.demo.tsx")
	assert.Contains(t, res.HTML, "Hero &lt;Banner&gt; preview")
	assert.Contains(t, res.HTML, `<script type="module">`)

	onDisk, err := os.ReadFile(filepath.Join(out, FileName))
	require.NoError(t, err)
	assert.Equal(t, res.HTML, string(onDisk))
}

func TestBuild_WithoutDemoWarns(t *testing.T) {
	res, err := Build(Options{OutDir: t.TempDir(), ComponentFile: "components/card.tsx", Slug: "card"})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "preview", res.Warnings[0].Section)
	assert.NotContains(t, res.HTML, "const demo")
	assert.Contains(t, res.HTML, "card preview")
}

func TestBuild_RequiresComponent(t *testing.T) {
	_, err := Build(Options{OutDir: t.TempDir(), Slug: "x"})
	assert.ErrorIs(t, err, ErrMissingComponent)
}

func TestBuild_MissingOutDir(t *testing.T) {
	_, err := Build(Options{OutDir: filepath.Join(t.TempDir(), "nope"), ComponentFile: "a.tsx"})
	assert.Error(t, err)
}
