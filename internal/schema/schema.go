// Package schema derives a JSON Schema and default values from the
// `@field name: type = default` directives in a prompt's notes.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/starford/stencil/internal/prompt"
)

const (
	section = "schema"
	draft07 = "http://json-schema.org/draft-07/schema#"
)

var (
	fieldRe = regexp.MustCompile(`^@field\s+([A-Za-z_$][\w$.-]*)\s*:\s*([A-Za-z]+)\s*(?:=\s*(.*?))?\s*$`)
	trueRe  = regexp.MustCompile(`(?i)true`)
)

// ErrMissingComponent is returned for a prompt without a component.
var ErrMissingComponent = errors.New("schema: prompt has no component")

// Field types understood by the generator. Anything else is a string.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
)

// Field is one parsed @field directive.
type Field struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Default any    `json:"default"`
}

// Result holds the generated schema and its sibling defaults map.
type Result struct {
	Schema   map[string]any   `json:"schema"`
	Defaults map[string]any   `json:"defaults"`
	Fields   []Field          `json:"fields"`
	Warnings []prompt.Warning `json:"warnings,omitempty"`
}

// Generate builds the configuration schema for p. Having no fields is a
// warning, not an error.
func Generate(p *prompt.ParsedPrompt) (*Result, error) {
	if p == nil || p.Component == nil {
		return nil, ErrMissingComponent
	}

	props := make(map[string]any)
	res := &Result{Defaults: make(map[string]any)}

	for _, note := range p.Notes {
		m := fieldRe.FindStringSubmatch(strings.TrimSpace(note))
		if m == nil {
			continue
		}
		name := m[1]
		if _, dup := props[name]; dup {
			res.warn("field %q is declared more than once; keeping the first declaration", name)
			continue
		}
		typ := normalizeType(m[2])
		raw, hasDefault := m[3], strings.TrimSpace(m[3]) != ""

		props[name] = property(typ)
		def := res.coerce(name, typ, raw, hasDefault)
		res.Defaults[name] = def
		res.Fields = append(res.Fields, Field{Name: name, Type: typ, Default: def})
	}

	res.Schema = map[string]any{
		"$schema":              draft07,
		"title":                p.Name,
		"type":                 "object",
		"properties":           props,
		"additionalProperties": true,
	}

	if len(res.Fields) == 0 {
		res.warn("no @field directives found in notes; schema has no properties")
		return res, nil
	}
	res.validateDefaults()
	return res, nil
}

func normalizeType(t string) string {
	switch t = strings.ToLower(t); t {
	case TypeNumber, TypeBoolean, TypeArray:
		return t
	}
	return TypeString
}

func property(typ string) map[string]any {
	prop := map[string]any{"type": typ}
	switch typ {
	case TypeBoolean:
		return prop
	case TypeArray:
		prop["items"] = map[string]any{"type": TypeString}
	}
	prop["nullable"] = true
	return prop
}

// coerce converts the raw default text for typ. A missing default is false
// for booleans and nil for everything else.
func (r *Result) coerce(name, typ, raw string, ok bool) any {
	raw = strings.TrimSpace(raw)
	if !ok {
		if typ == TypeBoolean {
			return false
		}
		return nil
	}
	switch typ {
	case TypeNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			r.warn("default %q for number field %q is not a number; using null", raw, name)
			return nil
		}
		return n
	case TypeBoolean:
		return trueRe.MatchString(raw)
	case TypeArray:
		var arr []any
		if err := json.Unmarshal([]byte(raw), &arr); err != nil {
			return []any{raw}
		}
		return arr
	}
	return raw
}

// validateDefaults checks every non-null default against the generated
// schema. Violations are reported as warnings.
func (r *Result) validateDefaults() {
	doc := make(map[string]any, len(r.Defaults))
	for k, v := range r.Defaults {
		if v != nil {
			doc[k] = v
		}
	}
	out, err := gojsonschema.Validate(gojsonschema.NewGoLoader(r.Schema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		r.warn("defaults could not be validated: %v", err)
		return
	}
	for _, e := range out.Errors() {
		r.warn("default for %s does not match schema: %s", e.Field(), e.Description())
	}
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, prompt.Warning{Section: section, Message: fmt.Sprintf(format, args...)})
}
