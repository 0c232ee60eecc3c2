package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/starford/stencil/internal/alerts"
	"github.com/starford/stencil/internal/cache"
	"github.com/starford/stencil/internal/catalog"
	"github.com/starford/stencil/internal/events"
	"github.com/starford/stencil/internal/jobs"
	"github.com/starford/stencil/internal/metrics"
	"github.com/starford/stencil/internal/pipeline"
	"github.com/starford/stencil/internal/scheduler"
	"github.com/starford/stencil/internal/storage"
	"github.com/starford/stencil/internal/templateservice"
)

// components is the wired object graph shared by every command.
type components struct {
	cfg      *Config
	logger   *slog.Logger
	registry *prometheus.Registry

	store     *storage.FS
	db        *catalog.DB
	index     *catalog.Index
	jobs      *jobs.SQLiteStore
	bus       *events.Bus
	refresher *cache.Refresher
	alerts    *alerts.Publisher
	collector *metrics.Collector
	pipeline  *pipeline.Pipeline
	importer  *catalog.Importer
	scheduler *scheduler.Scheduler
	service   *templateservice.Service

	closers []io.Closer
}

type closeFunc func() error

func (f closeFunc) Close() error { return f() }

// build wires storage, the catalog index, the job store, the event bus and
// the pipeline. The caller owns the returned components and must Close them.
func build(ctx context.Context, app *application) (_ *components, err error) {
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config
	c := &components{cfg: cfg, registry: app.registry}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	if app.logger != nil {
		c.logger = app.logger
	} else {
		var lc io.Closer
		c.logger, lc = newLogger(cfg.App, app.logOut)
		c.closers = append(c.closers, lc)
	}
	if c.registry == nil {
		c.registry = prometheus.NewRegistry()
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c.store, err = storage.EnsureFS(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	c.db, err = catalog.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init catalog index: %w", err)
	}
	c.closers = append(c.closers, c.db)
	c.index = catalog.NewIndex(c.db, c.store, c.logger.With("component", "catalog"))

	c.jobs, err = jobs.OpenSQLite(cfg.SQLite.JobsPath)
	if err != nil {
		return nil, fmt.Errorf("init job store: %w", err)
	}
	c.closers = append(c.closers, c.jobs)

	c.alerts = alerts.NewPublisher(c.logger, alerts.NewLogSink(c.logger.With("component", "alerts")))
	if sns := cfg.Alerts.SNS; sns.Enabled {
		sink, err := alerts.NewSNSSink(ctx, sns.Region, sns.TopicARN)
		if err != nil {
			return nil, fmt.Errorf("init sns alerts: %w", err)
		}
		c.alerts.AddSink(sink)
	}

	c.collector = metrics.NewCollector(
		metrics.WithPublisher(c.alerts),
		metrics.WithRegisterer(c.registry),
	)

	c.bus = events.NewBus(c.logger.With("component", "events"))
	c.refresher = cache.New(c.index, cfg.Cache, c.logger.With("component", "cache"))
	dispose := c.refresher.Attach(c.bus)
	c.closers = append(c.closers, closeFunc(func() error { dispose(); return nil }))

	c.importer = catalog.NewImporter(c.store, c.bus, c.jobs, c.logger.With("component", "importer"))
	c.pipeline = pipeline.New(pipeline.WithRecorder(c.collector), pipeline.WithLogger(c.logger.With("component", "pipeline")))

	// A disabled scheduler is still built when its settings are valid so
	// sweeps and reports can be triggered on demand.
	sched, schedErr := scheduler.New(cfg.Scheduler.Config, c.jobs, c.collector, c.alerts, c.logger)
	switch {
	case schedErr == nil:
		c.scheduler = sched
	case cfg.Scheduler.Enabled:
		return nil, schedErr
	default:
		c.logger.Info("scheduler disabled", "reason", schedErr.Error())
	}
	opts := []templateservice.Option{
		templateservice.WithImporter(c.importer),
		templateservice.WithConfig(templateservice.Config{
			PackageJSONPath:    cfg.Pipeline.PackageJSONPath,
			TailwindConfigPath: cfg.Pipeline.TailwindConfigPath,
			AutoImport:         cfg.Pipeline.AutoImport,
		}),
		templateservice.WithLogger(c.logger),
	}
	if c.scheduler != nil {
		opts = append(opts, templateservice.WithJobs(c.scheduler))
	}
	c.service = templateservice.New(c.pipeline, c.db, c.store, c.collector, opts...)
	return c, nil
}

// Close releases resources in reverse order of acquisition.
func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
