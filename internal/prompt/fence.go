package prompt

import (
	"strings"
	"unicode"
)

const fenceMarker = "```"

// fence is one fenced code block.
type fence struct {
	lang  string
	attrs map[string]string
	code  string
	line  int
}

func isFenceLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), fenceMarker)
}

// unterminatedFence reports the line of the last unpaired fence marker.
// Every marker counts, including ones in the middle of a line, so an odd
// total always yields ok=true.
func unterminatedFence(lines []string) (int, bool) {
	open := 0
	for i, line := range lines {
		for range strings.Count(line, fenceMarker) {
			if open == 0 {
				open = i + 1
			} else {
				open = 0
			}
		}
	}
	return open, open != 0
}

// extractFences returns every fenced block in lines, in order. base is the
// 1-based document line number of lines[0].
func extractFences(lines []string, base int) []fence {
	var out []fence
	var cur *fence
	var indent string
	var body []string
	for i, line := range lines {
		if !isFenceLine(line) {
			if cur != nil {
				body = append(body, strings.TrimPrefix(line, indent))
			}
			continue
		}
		if cur == nil {
			trimmed := strings.TrimSpace(line)
			indent = line[:strings.Index(line, fenceMarker)]
			lang, attrs := parseInfo(strings.TrimLeft(trimmed, "`"))
			cur = &fence{lang: lang, attrs: attrs, line: base + i}
			body = body[:0]
			continue
		}
		cur.code = strings.Join(body, "\n")
		out = append(out, *cur)
		cur = nil
	}
	return out
}

// parseInfo splits a fence info string of the form
// `language attr=value attr="quoted value"`.
func parseInfo(info string) (string, map[string]string) {
	attrs := make(map[string]string)
	lang := ""
	for _, tok := range tokenizeInfo(info) {
		if k, v, ok := strings.Cut(tok, "="); ok {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				attrs[k] = v
			}
			continue
		}
		if lang == "" {
			lang = strings.ToLower(tok)
		}
	}
	return lang, attrs
}

// tokenizeInfo splits on whitespace outside quotes and drops the quotes.
func tokenizeInfo(info string) []string {
	var tokens []string
	var b strings.Builder
	var quote rune
	inToken := false
	for _, r := range info {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				b.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inToken = true
		case unicode.IsSpace(r):
			if inToken {
				tokens = append(tokens, b.String())
				b.Reset()
				inToken = false
			}
		default:
			b.WriteRune(r)
			inToken = true
		}
	}
	if inToken {
		tokens = append(tokens, b.String())
	}
	return tokens
}

// inferExtension maps a fence language to a file extension.
func inferExtension(lang, fallback string) string {
	switch lang {
	case "ts", "typescript":
		return "ts"
	case "tsx":
		return "tsx"
	case "js", "javascript":
		return "js"
	case "jsx":
		return "jsx"
	case "css", "scss", "less", "json", "html", "svg":
		return lang
	case "md", "markdown":
		return "md"
	}
	return fallback
}

func firstAttr(attrs map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(attrs[k]); v != "" {
			return v
		}
	}
	return ""
}
