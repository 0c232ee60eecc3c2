package pipeline

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ImportOptions is passed through to the importer.
type ImportOptions struct {
	RequestID string
	Slug      string
}

// Importer persists a packaged zip. Its result is opaque to the pipeline.
type Importer interface {
	Import(ctx context.Context, zip []byte, userID string, opts ImportOptions) (any, error)
}

// ImporterFunc adapts a function to Importer.
type ImporterFunc func(ctx context.Context, zip []byte, userID string, opts ImportOptions) (any, error)

// Import calls f.
func (f ImporterFunc) Import(ctx context.Context, zip []byte, userID string, opts ImportOptions) (any, error) {
	return f(ctx, zip, userID, opts)
}

// Options configures one pipeline run.
type Options struct {
	UserID                     string
	RequestID                  string
	AutoImport                 bool
	Importer                   Importer
	ExistingPackageJSONPath    string
	ExistingTailwindConfigPath string
	// OutDir is the working directory; empty creates a temporary one that
	// Result.Cleanup removes.
	OutDir string
}

// Validate validates the run options.
func (o *Options) Validate() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.UserID, validation.Required),
		validation.Field(&o.Importer, validation.When(o.AutoImport, validation.Required.Error("is required when auto import is enabled"))),
	)
}
