package prompt

import (
	"regexp"
	"strings"
)

var (
	npmNameRe    = regexp.MustCompile(`^(?:@[a-z0-9~-][a-z0-9._~-]*/)?[a-z0-9~-][a-z0-9._~-]*$`)
	versionishRe = regexp.MustCompile(`^(?:[vV]?\d|[\^~<>=*xX]|latest$|next$)`)
)

const trailingPunct = ",;.，；。、"

// parseNpmLines reads packages from free text. Accepted forms per line are
// `name: version`, `name version` and `name@version`; a bare name has no
// version. Lines whose name is not a valid npm package name are skipped.
func parseNpmLines(lines []string) []NpmPackage {
	var out []NpmPackage
	for _, line := range lines {
		if isFenceLine(line) {
			continue
		}
		t := strings.TrimSpace(listMarkerRe.ReplaceAllString(strings.TrimSpace(line), ""))
		t = strings.TrimRight(t, trailingPunct)
		if t == "" || strings.HasPrefix(t, "//") || strings.Contains(t, "://") || t == "{" || t == "}" {
			continue
		}
		name, version := splitNpmLine(t)
		name = strings.ToLower(cleanNpmToken(name))
		if !npmNameRe.MatchString(name) {
			continue
		}
		out = append(out, NpmPackage{Name: name, Version: normalizeVersion(version)})
	}
	return out
}

func splitNpmLine(t string) (string, string) {
	if i := strings.IndexAny(t, ":："); i > 0 {
		sep := ":"
		if strings.HasPrefix(t[i:], "：") {
			sep = "："
		}
		return t[:i], t[i+len(sep):]
	}
	if fields := strings.Fields(t); len(fields) == 2 && versionishRe.MatchString(cleanNpmToken(fields[1])) {
		return fields[0], fields[1]
	}
	if i := strings.LastIndex(t, "@"); i > 0 {
		return t[:i], t[i+1:]
	}
	return t, ""
}

func cleanNpmToken(s string) string {
	return strings.Trim(strings.TrimSpace(s), "\"'`")
}

// normalizeVersion strips quotes, trailing punctuation and a leading "v".
func normalizeVersion(v string) string {
	v = strings.TrimRight(cleanNpmToken(v), trailingPunct)
	v = cleanNpmToken(v)
	if len(v) > 1 && (v[0] == 'v' || v[0] == 'V') && v[1] >= '0' && v[1] <= '9' {
		v = v[1:]
	}
	return v
}
