package prompt

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullPrompt = "---\nslug: Fancy Card\ndescription: A card with a glow\n---\n" +
	"# Fancy Card\n\n" +
	"## Component\n```tsx filename=ui/fancy-card.tsx export=FancyCard\nexport function FancyCard() { return null }\n```\n\n" +
	"## Demo\n```tsx\nexport default () => <FancyCard />\n```\n```ts\nexport const extra = 1\n```\n\n" +
	"## Dependencies\n```ts filename=\"utils/glow.ts\"\nexport const glow = 1\n```\n```js\nmodule.exports = {}\n```\n\n" +
	"## Styles\n```css\n.card { color: red; }\n```\n\n" +
	"## Assets\n```svg\n<svg/>\n```\n```txt filename=logo.png encoding=base64 type=image/png\naGVsbG8=\n```\n\n" +
	"## NPM Packages\n- react: ^18.2.0\n- framer-motion@v11.0.3\n- clsx 2.1.0,\n- @radix-ui/react-slot@^1.0.2\n- not a package line\n\n" +
	"## Notes\n- @field title: string = Hello\n1. @field count: number = 3\n* keep it accessible\n"

func TestParse_FullMarkdown(t *testing.T) {
	p, warnings, err := Parse(fullPrompt)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, "Fancy Card", p.Name)
	assert.Equal(t, "fancy-card", p.Slug)
	assert.Equal(t, "A card with a glow", p.Description)

	require.NotNil(t, p.Component)
	assert.Equal(t, "export function FancyCard() { return null }", p.Component.Code)
	assert.Equal(t, "ui/fancy-card.tsx", p.Component.Filename)
	assert.Equal(t, "FancyCard", p.Component.ExportName)

	require.NotNil(t, p.Demo)
	assert.Equal(t, "export default () => <FancyCard />", p.Demo.Code)
	assert.Empty(t, p.Demo.Filename)

	require.Len(t, p.Dependencies, 3)
	assert.Equal(t, Dependency{Filename: "demo-2.ts", Content: "export const extra = 1", Kind: "demo"}, p.Dependencies[0])
	assert.Equal(t, "utils/glow.ts", p.Dependencies[1].Filename)
	assert.Equal(t, "dependency-2.js", p.Dependencies[2].Filename)

	require.Len(t, p.Styles, 1)
	assert.Equal(t, Style{Filename: "style-1.css", Content: ".card { color: red; }"}, p.Styles[0])

	require.Len(t, p.Assets, 2)
	assert.Equal(t, "asset-1.svg", p.Assets[0].Filename)
	assert.Equal(t, Asset{Filename: "logo.png", Content: "aGVsbG8=", Encoding: "base64", ContentType: "image/png"}, p.Assets[1])

	assert.Equal(t, []NpmPackage{
		{Name: "react", Version: "^18.2.0"},
		{Name: "framer-motion", Version: "11.0.3"},
		{Name: "clsx", Version: "2.1.0"},
		{Name: "@radix-ui/react-slot", Version: "^1.0.2"},
	}, p.NpmPackages)

	assert.Equal(t, []string{"@field title: string = Hello", "@field count: number = 3", "keep it accessible"}, p.Notes)
}

func TestParse_MinimalCJKHeading(t *testing.T) {
	p, warnings, err := Parse("# Hero\n## 主组件\n```tsx\nexport const Hero=()=>null\n```")
	require.NoError(t, err)
	assert.Equal(t, "Hero", p.Name)
	assert.Equal(t, "hero", p.Slug)
	assert.Equal(t, "export const Hero=()=>null", p.Component.Code)

	require.Len(t, warnings, 5)
	var sections []string
	for _, w := range warnings {
		sections = append(sections, w.Section)
		assert.NotEmpty(t, w.Message)
	}
	assert.Equal(t, []string{"demo", "dependencies", "styles", "assets", "npm"}, sections)
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"empty":             "   \n\t",
		"unterminated":      "# X\n## Component\n```tsx\nconst a = 1\n",
		"unterminated demo": "# X\n## Component\n```tsx\nconst a = 1\n```\n## Demo\n```tsx\n<X/>\n",
		"no component":      "# X\n## Demo\n```tsx\nx\n```",
		"component no code": "# X\n## Component\njust prose\n",
		"json array":        `[{"component":{"code":"x"}}]`,
		"json no code":      `{"name":"x","component":{}}`,
		"json invalid":      `{"name":`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := Parse(input)
			require.Error(t, err)
			var pe *ParseError
			assert.True(t, errors.As(err, &pe), "want *ParseError, got %T", err)
		})
	}
}

func TestParse_UnterminatedFenceReportsLine(t *testing.T) {
	_, _, err := Parse("# X\n## Component\n```tsx\na\n```\n## Styles\n```css\n.a{}")
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 7, pe.Line)
	assert.Contains(t, pe.Error(), "unterminated code fence")
}

func TestParse_JSONPassthrough(t *testing.T) {
	p, warnings, err := Parse(`  {"name":"Pricing Table","component":{"code":"export default 1","exportName":"Pricing"},"npmPackages":[{"name":"react","version":"18.2.0"}]}`)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "pricing-table", p.Slug)
	assert.Equal(t, "Pricing", p.Component.ExportName)
	require.Len(t, p.NpmPackages, 1)
}

func TestParse_HeadingInsideFenceIgnored(t *testing.T) {
	p, _, err := Parse("# Doc\n## Component\n```md\n## Demo\nnot a heading\n```\n")
	require.NoError(t, err)
	assert.Equal(t, "## Demo\nnot a heading", p.Component.Code)
	assert.Nil(t, p.Demo)
}

func TestParse_FrontMatterColons(t *testing.T) {
	p, _, err := Parse("名称：按钮\nslug: Primary Button\n描述： 主要按钮\n## Component\n```tsx\nx\n```")
	require.NoError(t, err)
	assert.Equal(t, "按钮", p.Name)
	assert.Equal(t, "primary-button", p.Slug)
	assert.Equal(t, "主要按钮", p.Description)
}

func TestParse_CJKNameGetsStableSlug(t *testing.T) {
	p1, _, err := Parse("# 按钮\n## Component\n```tsx\nx\n```")
	require.NoError(t, err)
	p2, _, _ := Parse("# 按钮\n## Component\n```tsx\ny\n```")
	assert.True(t, strings.HasPrefix(p1.Slug, "component-"))
	assert.Equal(t, p1.Slug, p2.Slug)
}

func TestParse_PresentButEmptySectionsWarn(t *testing.T) {
	_, warnings, err := Parse("# A\n## Component\n```tsx\nx\n```\n## Styles\nnone\n## npm\nnothing to install here\n## Demo\n## Assets\n## Deps\n")
	require.NoError(t, err)
	require.Len(t, warnings, 5)
	for _, w := range warnings {
		assert.NotContains(t, w.Message, "no "+w.Section+" section found")
	}
}

func TestParse_NeverFailsWithComponentFence(t *testing.T) {
	inputs := []string{
		"## Component\n```\nplain\n```",
		"## component code:\n```tsx   filename='a b.tsx'\nx\n```\n## Random Heading\ntext",
		"Intro text\n## 🚀 Main Component 🚀\n```jsx\nx\n```\n# Late Title",
	}
	for _, in := range inputs {
		p, _, err := Parse(in)
		require.NoError(t, err, in)
		assert.NotEmpty(t, p.Component.Code)
		assert.NotEmpty(t, p.Slug)
	}
}

func TestMatchSection_Scoring(t *testing.T) {
	cases := map[string]SectionKind{
		"Component":            SectionComponent,
		"主组件":                  SectionComponent,
		"ＤＥＭＯ":                 SectionDemo,
		"Demo Component":       SectionDemo,
		"NPM Dependencies":     SectionNpm,
		"Helper Dependencies":  SectionDependencies,
		"Stylesheets (global)": SectionStyles,
		"Static Assets":        SectionAssets,
		"Notes & Schema":       SectionNotes,
	}
	for heading, want := range cases {
		got, ok := matchSection(heading)
		assert.True(t, ok, heading)
		assert.Equal(t, want, got, heading)
	}
	_, ok := matchSection("Changelog")
	assert.False(t, ok)
}

func TestMatchSection_TieKeepsFirstKind(t *testing.T) {
	// "组件" (component) and "示例" (demo) both score 2.
	got, ok := matchSection("示例 组件 说明文字")
	require.True(t, ok)
	assert.Equal(t, SectionComponent, got)
}

func TestParseInfo(t *testing.T) {
	lang, attrs := parseInfo(`TSX filename="my file.tsx" export=Hero data-x='a=b'`)
	assert.Equal(t, "tsx", lang)
	assert.Equal(t, "my file.tsx", attrs["filename"])
	assert.Equal(t, "Hero", attrs["export"])
	assert.Equal(t, "a=b", attrs["data-x"])
}

func TestParseNpmLines(t *testing.T) {
	got := parseNpmLines([]string{
		"```json",
		`"react": "^18.2.0",`,
		"```",
		"+ lodash",
		"3) dayjs：v1.11.10；",
		"https://example.com",
	})
	assert.Equal(t, []NpmPackage{
		{Name: "react", Version: "^18.2.0"},
		{Name: "lodash"},
		{Name: "dayjs", Version: "1.11.10"},
	}, got)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "hero-banner-v2", Slugify("  Hero Banner -- V2!! "))
	assert.Equal(t, "abc", Slugify("ＡＢＣ"))
	assert.Equal(t, "", Slugify("按钮"))
}

func TestParse_LeadingByteOrderMark(t *testing.T) {
	p, _, err := Parse("\uFEFF# Hero\n## Component\n```tsx\nx\n```")
	require.NoError(t, err)
	assert.Equal(t, "Hero", p.Name)
	assert.Equal(t, "hero", p.Slug)
}

func TestParse_OddInlineFenceMarkerInNotes(t *testing.T) {
	_, _, err := Parse("# X\n## Component\n```tsx\nx\n```\n## Notes\n- wrap snippets in ``` before sending\n")
	var pe *ParseError
	require.True(t, errors.As(err, &pe), "want *ParseError, got %v", err)
	assert.Equal(t, 7, pe.Line)
	assert.Contains(t, pe.Error(), "unterminated code fence")
}
