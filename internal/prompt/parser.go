// Package prompt parses component prompts (markdown sections or JSON) into a
// ParsedPrompt.
package prompt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	headingRe     = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)
	frontLineRe   = regexp.MustCompile(`^\s*(?:[-*+]\s+)?([\p{L}\p{N}_-]+)\s*[:：]\s*(.*?)\s*$`)
	listMarkerRe  = regexp.MustCompile(`^(?:[-*+]|\d+[.)])\s+`)
	optionalKinds = []SectionKind{SectionDemo, SectionDependencies, SectionStyles, SectionAssets, SectionNpm}
)

// frontKeys maps accepted front matter keys to the metadata field they set.
var frontKeys = map[string]string{
	"name":        "name",
	"title":       "name",
	"名称":          "name",
	"slug":        "slug",
	"description": "description",
	"desc":        "description",
	"描述":          "description",
	"简介":          "description",
}

type section struct {
	kind SectionKind
	line int // 1-based line of the first body line
	body []string
}

type document struct {
	title    string
	front    []string
	sections map[SectionKind][]section
}

// Parse converts raw prompt text into a ParsedPrompt plus non-fatal warnings.
// It returns a *ParseError when the input is empty, a code fence is never
// closed, a JSON prompt is malformed, or no component code can be found.
func Parse(raw string) (*ParsedPrompt, []Warning, error) {
	raw = strings.TrimPrefix(raw, "\uFEFF")
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil, &ParseError{Reason: "input is empty"}
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		p, err := parseJSON(trimmed)
		return p, nil, err
	}

	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	if line, open := unterminatedFence(lines); open {
		return nil, nil, &ParseError{Reason: "unterminated code fence", Line: line}
	}

	doc := splitDocument(lines)
	p := &ParsedPrompt{}
	applyFrontMatter(p, doc.front)
	if p.Name == "" {
		p.Name = doc.title
	}

	if err := parseComponent(p, doc.sections[SectionComponent]); err != nil {
		return nil, nil, err
	}

	var warnings []Warning
	for _, kind := range optionalKinds {
		secs, ok := doc.sections[kind]
		if !ok {
			warnings = append(warnings, Warning{
				Section: string(kind),
				Message: fmt.Sprintf("no %s section found; the package is built without it", kind),
			})
			continue
		}
		if w := parseOptional(p, kind, secs); w != nil {
			warnings = append(warnings, *w)
		}
	}
	for _, sec := range doc.sections[SectionNotes] {
		p.Notes = append(p.Notes, parseNotes(sec.body)...)
	}

	finalizeIdentity(p)
	return p, warnings, nil
}

// splitDocument separates front matter (everything before the first level-2+
// heading) from heading sections. Headings inside fences are ignored; the
// first level-1 heading becomes the document title.
func splitDocument(lines []string) document {
	doc := document{sections: make(map[SectionKind][]section)}
	var cur *section
	inFence := false
	flush := func() {
		if cur != nil && cur.kind != "" {
			doc.sections[cur.kind] = append(doc.sections[cur.kind], *cur)
		}
	}
	for i, line := range lines {
		if isFenceLine(line) {
			inFence = !inFence
		} else if !inFence {
			if m := headingRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
				if len(m[1]) == 1 {
					if doc.title == "" {
						doc.title = strings.TrimSpace(m[2])
					}
					continue
				}
				flush()
				kind, _ := matchSection(m[2])
				cur = &section{kind: kind, line: i + 2}
				continue
			}
		}
		if cur == nil {
			doc.front = append(doc.front, line)
		} else {
			cur.body = append(cur.body, line)
		}
	}
	flush()
	return doc
}

// applyFrontMatter reads name/slug/description. A leading `---` block is
// decoded as YAML; anything else is scanned as `key: value` lines with an
// ASCII or full-width colon.
func applyFrontMatter(p *ParsedPrompt, front []string) {
	meta := make(map[string]string)
	if block, ok := yamlBlock(front); ok {
		var fm map[string]any
		if err := yaml.Unmarshal([]byte(block), &fm); err == nil {
			for k, v := range fm {
				if s, ok := v.(string); ok {
					setMeta(meta, k, s)
				}
			}
		}
	}
	for _, line := range front {
		if m := frontLineRe.FindStringSubmatch(line); m != nil {
			setMeta(meta, m[1], strings.Trim(m[2], `"'`))
		}
	}
	p.Name = meta["name"]
	p.Slug = meta["slug"]
	p.Description = meta["description"]
}

func setMeta(meta map[string]string, key, value string) {
	field, ok := frontKeys[strings.ToLower(strings.TrimSpace(key))]
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return
	}
	if _, seen := meta[field]; !seen {
		meta[field] = value
	}
}

func yamlBlock(front []string) (string, bool) {
	start := -1
	for i, line := range front {
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		if start < 0 {
			if t != "---" {
				return "", false
			}
			start = i + 1
			continue
		}
		if t == "---" {
			return strings.Join(front[start:i], "\n"), true
		}
	}
	return "", false
}

func parseComponent(p *ParsedPrompt, secs []section) error {
	if len(secs) == 0 {
		return &ParseError{Reason: "missing component section"}
	}
	for _, sec := range secs {
		fences := extractFences(sec.body, sec.line)
		if len(fences) == 0 {
			continue
		}
		f := fences[0]
		if strings.TrimSpace(f.code) == "" {
			return &ParseError{Reason: "component code fence is empty", Line: f.line}
		}
		p.Component = &Component{
			Code:       f.code,
			Filename:   firstAttr(f.attrs, "filename", "file", "path"),
			ExportName: firstAttr(f.attrs, "export", "exportname"),
		}
		return nil
	}
	return &ParseError{Reason: "component section has no code fence", Line: secs[0].line}
}

// parseOptional fills the artifacts of one optional section kind and
// returns a warning when the section yielded nothing.
func parseOptional(p *ParsedPrompt, kind SectionKind, secs []section) *Warning {
	if kind == SectionNpm {
		for _, sec := range secs {
			p.NpmPackages = append(p.NpmPackages, parseNpmLines(sec.body)...)
		}
		if len(p.NpmPackages) == 0 {
			return &Warning{Section: string(kind), Message: "npm section lists no recognizable packages"}
		}
		return nil
	}

	var fences []fence
	for _, sec := range secs {
		fences = append(fences, extractFences(sec.body, sec.line)...)
	}
	if len(fences) == 0 {
		return &Warning{Section: string(kind), Message: fmt.Sprintf("%s section contains no code fences", kind)}
	}
	for i, f := range fences {
		n := i + 1
		name := firstAttr(f.attrs, "filename", "file", "path")
		switch kind {
		case SectionDemo:
			if i == 0 {
				p.Demo = &Demo{Code: f.code, Filename: name}
				continue
			}
			if name == "" {
				name = fmt.Sprintf("demo-%d.%s", n, inferExtension(f.lang, "tsx"))
			}
			p.Dependencies = append(p.Dependencies, Dependency{Filename: name, Content: f.code, Kind: "demo"})
		case SectionDependencies:
			if name == "" {
				name = fmt.Sprintf("dependency-%d.%s", n, inferExtension(f.lang, "ts"))
			}
			p.Dependencies = append(p.Dependencies, Dependency{Filename: name, Content: f.code, Kind: firstAttr(f.attrs, "kind")})
		case SectionStyles:
			if name == "" {
				name = fmt.Sprintf("style-%d.%s", n, inferExtension(f.lang, "css"))
			}
			p.Styles = append(p.Styles, Style{Filename: name, Content: f.code})
		case SectionAssets:
			if name == "" {
				name = fmt.Sprintf("asset-%d.%s", n, inferExtension(f.lang, "txt"))
			}
			p.Assets = append(p.Assets, Asset{
				Filename:    name,
				Content:     f.code,
				Encoding:    strings.ToLower(firstAttr(f.attrs, "encoding")),
				ContentType: firstAttr(f.attrs, "type", "contenttype", "content-type"),
			})
		}
	}
	return nil
}

func parseNotes(lines []string) []string {
	var out []string
	for _, line := range lines {
		if isFenceLine(line) {
			continue
		}
		t := strings.TrimSpace(listMarkerRe.ReplaceAllString(strings.TrimSpace(line), ""))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseJSON(text string) (*ParsedPrompt, error) {
	if text[0] != '{' {
		return nil, &ParseError{Reason: "JSON prompt must be an object"}
	}
	var p ParsedPrompt
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("invalid JSON prompt: %v", err)}
	}
	if p.Component == nil || strings.TrimSpace(p.Component.Code) == "" {
		return nil, &ParseError{Reason: "JSON prompt lacks component.code"}
	}
	finalizeIdentity(&p)
	return &p, nil
}

// finalizeIdentity guarantees a name and a filesystem-safe slug.
func finalizeIdentity(p *ParsedPrompt) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Slug != "" {
		p.Slug = Slugify(p.Slug)
	}
	if p.Slug == "" {
		p.Slug = deriveSlug(p.Name)
	}
	if p.Name == "" {
		p.Name = p.Slug
	}
}
