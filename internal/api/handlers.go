package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/stencil/internal/catalog"
	"github.com/starford/stencil/internal/templateservice"
)

const (
	maxPromptBytes = 4 << 20
	defaultWindow  = 24 * time.Hour
)

// Handler holds API route handlers.
type Handler struct {
	svc Service
}

// NewHandler creates a new Handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Compile handles POST /api/prompts/compile.
//
//	@Summary		Compile a component prompt into a template package
//	@Tags			prompts
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CompileRequest	true	"Prompt to compile"
//	@Success		200		{object}	CompileResponse
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/prompts/compile [post]
func (h *Handler) Compile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPromptBytes)
	var req CompileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("prompt is required"))
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("userId is required"))
		return
	}
	res, err := h.svc.Compile(r.Context(), templateservice.CompileRequest{
		Prompt:     req.Prompt,
		UserID:     req.UserID,
		AutoImport: req.AutoImport,
		IncludeZip: req.IncludeZip,
	})
	if err != nil {
		writeError(w, "compile", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListTemplates handles GET /api/templates.
//
//	@Summary		List catalog templates, newest first
//	@Tags			templates
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Page offset"
//	@Success		200		{object}	TemplateListResponse
//	@Security		BearerAuth
//	@Router			/templates [get]
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListTemplates(r.Context(), limit, offset)
	if err != nil {
		writeError(w, "list templates", err)
		return
	}
	if items == nil {
		items = []catalog.Template{}
	}
	writeJSON(w, http.StatusOK, TemplateListResponse{Templates: items, Total: total})
}

// GetTemplate handles GET /api/templates/{slug}.
//
//	@Summary		Get a catalog template and its files
//	@Tags			templates
//	@Produce		json
//	@Param			slug	path		string	true	"Template slug"
//	@Success		200		{object}	TemplateDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/templates/{slug} [get]
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	t, err := h.svc.GetTemplate(r.Context(), slug)
	if err != nil {
		writeError(w, "get template", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Search handles GET /api/templates/search.
//
//	@Summary		Full-text search across templates
//	@Tags			templates
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/templates/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.SearchTemplates(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// PipelineMetrics handles GET /api/pipeline/metrics.
//
//	@Summary		Pipeline success/failure snapshot
//	@Tags			pipeline
//	@Produce		json
//	@Param			window	query		string	false	"Go duration, e.g. 1h or 168h; 0 for all retained events"
//	@Success		200		{object}	MetricsResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pipeline/metrics [get]
func (h *Handler) PipelineMetrics(w http.ResponseWriter, r *http.Request) {
	window := defaultWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("window must be a non-negative duration"))
			return
		}
		window = d
	}
	snap := h.svc.Snapshot(window)
	writeJSON(w, http.StatusOK, MetricsResponse{
		Snapshot:    snap,
		SuccessRate: snap.SuccessRate(),
		Window:      window.String(),
	})
}

// RetrySweep handles POST /api/jobs/retry-sweep.
//
//	@Summary		Requeue stale ON_HOLD jobs now
//	@Tags			jobs
//	@Produce		json
//	@Success		200	{object}	scheduler.SweepResult
//	@Failure		409	{object}	errResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/jobs/retry-sweep [post]
func (h *Handler) RetrySweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.RunRetrySweep(r.Context())
	if err != nil {
		writeError(w, "retry sweep", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// WeeklyReport handles POST /api/reports/weekly.
//
//	@Summary		Build and publish the weekly pipeline digest now
//	@Tags			jobs
//	@Produce		json
//	@Success		200	{object}	scheduler.Report
//	@Failure		409	{object}	errResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/reports/weekly [post]
func (h *Handler) WeeklyReport(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.RunWeeklyReport(r.Context())
	if err != nil {
		writeError(w, "weekly report", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
