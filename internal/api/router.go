package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Post("/prompts/compile", h.Compile)

	r.Get("/templates", h.ListTemplates)
	r.Get("/templates/search", h.Search)
	r.Get("/templates/{slug}", h.GetTemplate)

	r.Get("/pipeline/metrics", h.PipelineMetrics)
	r.Post("/jobs/retry-sweep", h.RetrySweep)
	r.Post("/reports/weekly", h.WeeklyReport)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
