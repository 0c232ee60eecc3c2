package api

import (
	"context"
	"time"

	"github.com/starford/stencil/internal/catalog"
	"github.com/starford/stencil/internal/metrics"
	"github.com/starford/stencil/internal/scheduler"
	"github.com/starford/stencil/internal/templateservice"
)

// Service is the domain surface the handlers need. *templateservice.Service
// satisfies it.
type Service interface {
	Compile(ctx context.Context, req templateservice.CompileRequest) (*templateservice.CompileResponse, error)
	ListTemplates(ctx context.Context, limit, offset int) ([]catalog.Template, int, error)
	GetTemplate(ctx context.Context, slug string) (*templateservice.TemplateDetail, error)
	SearchTemplates(ctx context.Context, query string, limit int) ([]catalog.SearchResult, error)
	Snapshot(window time.Duration) metrics.Snapshot
	RunRetrySweep(ctx context.Context) (*scheduler.SweepResult, error)
	RunWeeklyReport(ctx context.Context) (*scheduler.Report, error)
}

var _ Service = (*templateservice.Service)(nil)
