package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/stencil/internal/alerts"
	"github.com/starford/stencil/internal/catalog"
	"github.com/starford/stencil/internal/jobs"
	"github.com/starford/stencil/internal/metrics"
	"github.com/starford/stencil/internal/pipeline"
	"github.com/starford/stencil/internal/scheduler"
	"github.com/starford/stencil/internal/templateservice"
	"github.com/starford/stencil/internal/testutil"
)

type testEnv struct {
	router http.Handler
	index  *catalog.Index
	jobs   *jobs.SQLiteStore
}

// newTestEnv wires a real pipeline, catalog and scheduler over temp
// storage. An empty token means auth is disabled.
func newTestEnv(t *testing.T, token string) testEnv {
	t.Helper()
	return newTestEnvWithSSE(t, token, nil)
}

func newTestEnvWithSSE(t *testing.T, token string, sse http.Handler) testEnv {
	t.Helper()
	_, store := testutil.TestCatalog(t)
	db := testutil.TestDB(t)
	js := testutil.TestJobs(t)
	log := testutil.Logger()

	col := metrics.NewCollector()
	sched, err := scheduler.New(scheduler.DefaultConfig(), js, col, alerts.NewPublisher(log), log)
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	svc := templateservice.New(pipeline.New(pipeline.WithRecorder(col)), db, store, col,
		templateservice.WithImporter(catalog.NewImporter(store, nil, js, log)),
		templateservice.WithJobs(sched),
		templateservice.WithLogger(log),
	)
	return testEnv{
		router: NewRouter(svc, token != "", token, sse),
		index:  catalog.NewIndex(db, store, log),
		jobs:   js,
	}
}

func (e testEnv) do(t *testing.T, method, target string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestCompilePrompt(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/prompts/compile", CompileRequest{Prompt: testutil.HeroPrompt, UserID: "u1", IncludeZip: true}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("compile status = %d, body = %s", w.Code, w.Body.String())
	}
	var res CompileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Slug != "hero" {
		t.Errorf("slug = %q", res.Slug)
	}
	if len(res.Zip) == 0 || res.ZipSize != len(res.Zip) {
		t.Errorf("zip = %d bytes, zipSize = %d", len(res.Zip), res.ZipSize)
	}
}

func TestCompilePrompt_BadInput(t *testing.T) {
	env := newTestEnv(t, "")

	req := httptest.NewRequest(http.MethodPost, "/prompts/compile", strings.NewReader("{"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodPost, "/prompts/compile", CompileRequest{UserID: "u1"}, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty prompt = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodPost, "/prompts/compile", CompileRequest{Prompt: testutil.HeroPrompt}, "")
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "userId is required") {
		t.Errorf("missing userId = %d %s, want 400", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodPost, "/prompts/compile", CompileRequest{Prompt: "# Title only", UserID: "u1"}, "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("no component = %d, want 422", w.Code)
	}
}

func TestAutoImportThenBrowse(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/prompts/compile", CompileRequest{Prompt: testutil.HeroPrompt, UserID: "u1", AutoImport: true}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("compile status = %d, body = %s", w.Code, w.Body.String())
	}
	if _, err := env.index.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	w = env.do(t, http.MethodGet, "/templates", nil, "")
	var list TemplateListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 1 || len(list.Templates) != 1 || list.Templates[0].Slug != "hero" {
		t.Errorf("list = %+v", list)
	}

	w = env.do(t, http.MethodGet, "/templates/hero", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var detail TemplateDetail
	_ = json.Unmarshal(w.Body.Bytes(), &detail)
	if detail.Name != "Hero" || len(detail.Files) == 0 {
		t.Errorf("detail = %+v", detail)
	}

	w = env.do(t, http.MethodGet, "/templates/search?q=Hero", nil, "")
	var sr SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &sr)
	if len(sr.Results) != 1 {
		t.Errorf("search results = %d, want 1", len(sr.Results))
	}
}

func TestGetTemplate_NotFound(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(t, http.MethodGet, "/templates/nope", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing template = %d, want 404", w.Code)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(t, http.MethodGet, "/templates/search", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestPipelineMetrics(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/prompts/compile", CompileRequest{Prompt: testutil.HeroPrompt, UserID: "u1"}, "")
	env.do(t, http.MethodPost, "/prompts/compile", CompileRequest{Prompt: "# broken", UserID: "u1"}, "")

	w := env.do(t, http.MethodGet, "/pipeline/metrics?window=1h", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	var m MetricsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &m)
	if m.Total != 3 || m.Failures != 1 {
		t.Errorf("total = %d failures = %d, want 3 and 1", m.Total, m.Failures)
	}
	if m.Window != "1h0m0s" {
		t.Errorf("window = %q", m.Window)
	}

	w = env.do(t, http.MethodGet, "/pipeline/metrics?window=soon", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad window = %d, want 400", w.Code)
	}
}

func TestRetrySweepAndReport(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	j, err := env.jobs.Create(ctx, jobs.Job{TemplateSlug: "hero", Status: jobs.StatusOnHold})
	if err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodPost, "/jobs/retry-sweep", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("sweep status = %d, body = %s", w.Code, w.Body.String())
	}
	var sweep scheduler.SweepResult
	_ = json.Unmarshal(w.Body.Bytes(), &sweep)
	if len(sweep.Requeued) != 1 || sweep.Requeued[0] != j.ID {
		t.Errorf("requeued = %v, want [%s]", sweep.Requeued, j.ID)
	}

	w = env.do(t, http.MethodPost, "/reports/weekly", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("report status = %d", w.Code)
	}
	var rep scheduler.Report
	_ = json.Unmarshal(w.Body.Bytes(), &rep)
	if rep.Text == "" || rep.JobCounts[jobs.StatusQueued] != 1 {
		t.Errorf("report = %+v", rep)
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, "secret123")

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{"valid", "secret123", http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "wrong", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		w := env.do(t, http.MethodGet, "/templates", nil, tc.token)
		if w.Code != tc.want {
			t.Errorf("%s token = %d, want %d", tc.name, w.Code, tc.want)
		}
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(t, http.MethodGet, "/templates", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// blockingSSE writes headers and blocks until the request is cancelled.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	env := newTestEnvWithSSE(t, "secret", blockingSSE)
	w := env.do(t, http.MethodGet, "/events", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	env := newTestEnvWithSSE(t, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}
