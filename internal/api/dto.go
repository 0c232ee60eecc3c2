package api

import (
	"github.com/starford/stencil/internal/catalog"
	"github.com/starford/stencil/internal/metrics"
	"github.com/starford/stencil/internal/templateservice"
)

// CompileRequest is the request body for compiling a prompt.
type CompileRequest struct {
	Prompt     string `json:"prompt" example:"# Hero\n## Component\n..." validate:"required"`
	UserID     string `json:"userId" example:"u-42"`
	AutoImport bool   `json:"autoImport" example:"false"`
	IncludeZip bool   `json:"includeZip" example:"false"`
}

// CompileResponse is the compile result (aliased from the domain layer).
type CompileResponse = templateservice.CompileResponse

// TemplateDetail is a single catalog entry with its files.
type TemplateDetail = templateservice.TemplateDetail

// TemplateListResponse wraps paginated template listings.
type TemplateListResponse struct {
	Templates []catalog.Template `json:"templates" validate:"required"`
	Total     int                `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []catalog.SearchResult `json:"results" validate:"required"`
}

// MetricsResponse is the pipeline health snapshot.
type MetricsResponse struct {
	metrics.Snapshot
	SuccessRate float64 `json:"successRate" example:"0.97"`
	Window      string  `json:"window" example:"24h0m0s"`
}
