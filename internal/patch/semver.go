package patch

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var versionTokenRe = regexp.MustCompile(`\d+(?:\.\d+){0,2}(?:-[0-9A-Za-z][0-9A-Za-z.-]*)?`)

// IsSubset reports whether every version satisfying requested also
// satisfies existing. When either side is not a valid range the two strings
// must match exactly.
//
// Ranges are compared at the boundary versions named by either constraint
// plus their neighbours, which is exact for the caret, tilde, comparison and
// hyphen ranges npm manifests use in practice. A boundary with a prerelease
// tag also probes the prerelease itself, the next prerelease after it and
// the lowest prerelease of that version.
func IsSubset(requested, existing string) bool {
	want, err := semver.NewConstraint(requested)
	if err != nil {
		return requested == existing
	}
	have, err := semver.NewConstraint(existing)
	if err != nil {
		return requested == existing
	}
	for _, v := range probeVersions(requested, existing) {
		if want.Check(v) && !have.Check(v) {
			return false
		}
	}
	return true
}

func probeVersions(ranges ...string) []*semver.Version {
	out := []*semver.Version{semver.New(0, 0, 0, "", ""), semver.New(999999, 0, 0, "", "")}
	for _, r := range ranges {
		for _, tok := range versionTokenRe.FindAllString(r, -1) {
			base, pre, _ := strings.Cut(tok, "-")
			major, minor, patch := splitVersion(base)
			out = append(out, neighbours(major, minor, patch)...)
			if pre != "" {
				out = append(out,
					semver.New(major, minor, patch, pre, ""),
					semver.New(major, minor, patch, pre+".1", ""),
					semver.New(major, minor, patch, "0", ""),
				)
			}
		}
	}
	return out
}

func neighbours(major, minor, patch uint64) []*semver.Version {
	v := func(a, b, c uint64) *semver.Version { return semver.New(a, b, c, "", "") }
	out := []*semver.Version{
		v(major, minor, patch),
		v(major, minor, patch+1),
		v(major, minor+1, 0),
		v(major+1, 0, 0),
	}
	if patch > 0 {
		out = append(out, v(major, minor, patch-1))
	}
	if minor > 0 {
		out = append(out, v(major, minor-1, 0), v(major, minor-1, 999))
	}
	if major > 0 {
		out = append(out, v(major-1, 0, 0), v(major-1, 999, 999))
	}
	return out
}

func splitVersion(tok string) (major, minor, patch uint64) {
	var parts [3]uint64
	for i, p := range strings.SplitN(tok, ".", 3) {
		parts[i], _ = strconv.ParseUint(p, 10, 64)
	}
	return parts[0], parts[1], parts[2]
}
