package prompt

import "fmt"

// SectionKind is the canonical kind a markdown heading resolves to.
type SectionKind string

const (
	SectionComponent    SectionKind = "component"
	SectionDemo         SectionKind = "demo"
	SectionDependencies SectionKind = "dependencies"
	SectionStyles       SectionKind = "styles"
	SectionAssets       SectionKind = "assets"
	SectionNpm          SectionKind = "npm"
	SectionNotes        SectionKind = "notes"
)

// ParsedPrompt is the structured form of a component prompt.
type ParsedPrompt struct {
	Name         string       `json:"name"`
	Slug         string       `json:"slug,omitempty"`
	Description  string       `json:"description,omitempty"`
	Component    *Component   `json:"component"`
	Demo         *Demo        `json:"demo,omitempty"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
	Styles       []Style      `json:"styles,omitempty"`
	Assets       []Asset      `json:"assets,omitempty"`
	NpmPackages  []NpmPackage `json:"npmPackages,omitempty"`
	Notes        []string     `json:"notes,omitempty"`
}

// Component is the primary source file of a prompt.
type Component struct {
	Code       string `json:"code"`
	Filename   string `json:"filename,omitempty"`
	ExportName string `json:"exportName,omitempty"`
}

// Demo is an optional usage example for the component.
type Demo struct {
	Code     string `json:"code"`
	Filename string `json:"filename,omitempty"`
}

// Dependency is a helper source file shipped next to the component.
// Kind "demo" marks extra files that belong with the demo.
type Dependency struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Kind     string `json:"kind,omitempty"`
}

// Style is a stylesheet shipped with the component.
type Style struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// Asset is a static file; Encoding "base64" means Content must be decoded.
type Asset struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	Encoding    string `json:"encoding,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// NpmPackage is a requested npm dependency; Version may be empty.
type NpmPackage struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Warning is a non-fatal parse finding tied to one section kind.
type Warning struct {
	Section string `json:"section"`
	Message string `json:"message"`
}

// ParseError is a hard parse failure. Line is 1-based, 0 when unknown.
type ParseError struct {
	Reason string
	Line   int
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("prompt: line %d: %s", e.Line, e.Reason)
	}
	return "prompt: " + e.Reason
}
