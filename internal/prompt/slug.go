package prompt

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"

	"github.com/starford/stencil/internal/checksum"
)

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s, collapses every run of non-alphanumeric characters
// into a single hyphen and trims leading/trailing hyphens.
func Slugify(s string) string {
	s = strings.ToLower(width.Fold.String(s))
	s = nonSlugRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// deriveSlug returns Slugify(name), or a stable "component-<hash>" slug when
// the name has no ASCII letters or digits (e.g. a CJK-only name).
func deriveSlug(name string) string {
	if s := Slugify(name); s != "" {
		return s
	}
	if strings.TrimSpace(name) == "" {
		return "component"
	}
	return "component-" + checksum.SumString(name)[:8]
}
