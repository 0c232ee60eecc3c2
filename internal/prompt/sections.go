package prompt

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/width"
)

const exactMatchScore = 1000

// sectionAliases is scanned in order; on equal scores the earlier kind wins.
var sectionAliases = []struct {
	kind    SectionKind
	aliases []string
}{
	{SectionComponent, []string{"component", "main component", "component code", "source", "组件", "主组件", "组件代码", "核心组件"}},
	{SectionDemo, []string{"demo", "demo component", "example", "examples", "usage", "preview", "示例", "示例组件", "示例代码", "演示", "预览", "用法"}},
	{SectionDependencies, []string{"dependencies", "dependency", "deps", "helpers", "helper files", "依赖", "依赖文件", "辅助文件", "工具函数"}},
	{SectionStyles, []string{"styles", "style", "css", "stylesheet", "样式", "样式文件"}},
	{SectionAssets, []string{"assets", "asset", "images", "static files", "资源", "静态资源", "图片"}},
	{SectionNpm, []string{"npm", "npm packages", "npm dependencies", "packages", "package json", "依赖包", "npm 依赖", "第三方包"}},
	{SectionNotes, []string{"notes", "note", "guidance", "schema", "fields", "config", "备注", "说明", "注意事项", "配置", "字段"}},
}

// matchSection resolves a heading to a section kind by alias scoring.
// An exact normalized match beats any containment; containment scores the
// alias length in runes. Only a strictly higher score replaces the current
// best, so ties keep the first kind found.
func matchSection(heading string) (SectionKind, bool) {
	norm := normalizeHeading(heading)
	if norm == "" {
		return "", false
	}
	var best SectionKind
	bestScore := 0
	for _, entry := range sectionAliases {
		for _, alias := range entry.aliases {
			if s := scoreAlias(norm, alias); s > bestScore {
				best, bestScore = entry.kind, s
			}
		}
	}
	return best, bestScore > 0
}

func scoreAlias(norm, alias string) int {
	if norm == alias {
		return exactMatchScore
	}
	if strings.Contains(norm, alias) {
		return utf8.RuneCountInString(alias)
	}
	return 0
}

// normalizeHeading folds full-width forms, lowercases, turns punctuation and
// symbols into spaces and collapses whitespace.
func normalizeHeading(s string) string {
	s = strings.ToLower(width.Fold.String(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
