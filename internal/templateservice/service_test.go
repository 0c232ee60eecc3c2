package templateservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/stencil/internal/apperr"
	"github.com/starford/stencil/internal/catalog"
	"github.com/starford/stencil/internal/metrics"
	"github.com/starford/stencil/internal/pipeline"
	"github.com/starford/stencil/internal/scheduler"
	"github.com/starford/stencil/internal/testutil"
)

type fakeJobs struct {
	sweeps, reports int
}

func (f *fakeJobs) RunRetrySweep(context.Context) (*scheduler.SweepResult, error) {
	f.sweeps++
	return &scheduler.SweepResult{Requeued: []string{"j1"}}, nil
}

func (f *fakeJobs) RunWeeklyReport(context.Context) (*scheduler.Report, error) {
	f.reports++
	return &scheduler.Report{Text: "digest"}, nil
}

type env struct {
	svc   *Service
	index *catalog.Index
	col   *metrics.Collector
	jobs  *fakeJobs
}

func newEnv(t *testing.T) env {
	t.Helper()
	_, store := testutil.TestCatalog(t)
	db := testutil.TestDB(t)
	log := testutil.Logger()
	col := metrics.NewCollector()
	fj := &fakeJobs{}
	svc := New(pipeline.New(pipeline.WithRecorder(col)), db, store, col,
		WithImporter(catalog.NewImporter(store, nil, nil, log)),
		WithJobs(fj),
		WithLogger(log),
	)
	return env{svc: svc, index: catalog.NewIndex(db, store, log), col: col, jobs: fj}
}

func TestCompile_ReturnsResultWithoutZipByDefault(t *testing.T) {
	e := newEnv(t)
	res, err := e.svc.Compile(context.Background(), CompileRequest{Prompt: testutil.HeroPrompt, UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "hero", res.Slug)
	assert.NotEmpty(t, res.RequestID)
	assert.Nil(t, res.Zip)
	assert.Positive(t, res.ZipSize)
	assert.Equal(t, "Hello", res.Defaults["headline"])
	assert.Nil(t, res.ImportResult)

	snap := e.svc.Snapshot(0)
	assert.Equal(t, 2, snap.Successes, "planner and composer")
}

func TestCompile_AutoImportThenCatalogLookup(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res, err := e.svc.Compile(ctx, CompileRequest{Prompt: testutil.HeroPrompt, UserID: "u1", AutoImport: true, IncludeZip: true})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Zip)
	require.NotNil(t, res.ImportResult)

	_, err = e.index.Sync(ctx)
	require.NoError(t, err)

	detail, err := e.svc.GetTemplate(ctx, "hero")
	require.NoError(t, err)
	assert.Equal(t, "Hero", detail.Name)
	assert.NotEmpty(t, detail.Files)

	items, total, err := e.svc.ListTemplates(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "hero", items[0].Slug)

	hits, err := e.svc.SearchTemplates(ctx, "Hero", 5)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	css, err := e.svc.ReadFile(ctx, "hero", "styles/hero.css")
	require.NoError(t, err)
	assert.Contains(t, string(css), "teal")
}

func TestCompile_ConfigAutoImportAppliesToEveryRequest(t *testing.T) {
	_, store := testutil.TestCatalog(t)
	log := testutil.Logger()
	svc := New(pipeline.New(), testutil.TestDB(t), store, metrics.NewCollector(),
		WithImporter(catalog.NewImporter(store, nil, nil, log)),
		WithConfig(Config{AutoImport: true}),
		WithLogger(log),
	)
	res, err := svc.Compile(context.Background(), CompileRequest{Prompt: testutil.HeroPrompt, UserID: "u1"})
	require.NoError(t, err)
	require.NotNil(t, res.ImportResult)

	_, err = store.Read("hero/manifest.json")
	assert.NoError(t, err)
}

func TestCompile_ParseErrorIsInputError(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Compile(context.Background(), CompileRequest{Prompt: "   ", UserID: "u1"})
	require.Error(t, err)
	assert.True(t, pipeline.IsInputError(err))
}

func TestAutoImportWithoutImporter(t *testing.T) {
	_, store := testutil.TestCatalog(t)
	svc := New(pipeline.New(), testutil.TestDB(t), store, metrics.NewCollector())
	_, err := svc.Compile(context.Background(), CompileRequest{Prompt: testutil.HeroPrompt, UserID: "u1", AutoImport: true})
	assert.True(t, errors.Is(err, apperr.ErrUnavailable))
}

func TestGetTemplate_NotFound(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.GetTemplate(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = e.svc.ReadFile(context.Background(), "missing", "a.tsx")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestJobsDelegation(t *testing.T) {
	e := newEnv(t)
	sweep, err := e.svc.RunRetrySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"j1"}, sweep.Requeued)

	report, err := e.svc.RunWeeklyReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "digest", report.Text)
	assert.Equal(t, 1, e.jobs.sweeps)
	assert.Equal(t, 1, e.jobs.reports)

	_, store := testutil.TestCatalog(t)
	bare := New(pipeline.New(), testutil.TestDB(t), store, metrics.NewCollector())
	_, err = bare.RunRetrySweep(context.Background())
	assert.True(t, errors.Is(err, apperr.ErrUnavailable))
	_, err = bare.RunWeeklyReport(context.Background())
	assert.True(t, errors.Is(err, apperr.ErrUnavailable))
}

func TestSnapshotWindow(t *testing.T) {
	e := newEnv(t)
	e.col.RecordSuccess(context.Background(), metrics.PipelineEvent{Stage: metrics.StagePlanner, Timestamp: time.Now().Add(-48 * time.Hour)})
	e.col.RecordSuccess(context.Background(), metrics.PipelineEvent{Stage: metrics.StagePlanner})
	assert.Equal(t, 1, e.svc.Snapshot(time.Hour).Total)
	assert.Equal(t, 2, e.svc.Snapshot(0).Total)
}
