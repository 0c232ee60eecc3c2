// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/stencil/internal/api"
	"github.com/starford/stencil/internal/catalog"
	"github.com/starford/stencil/internal/sse"
)

// Run starts the HTTP server, catalog watcher and scheduler and blocks
// until ctx is cancelled or a signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	c, err := build(ctx, app)
	if err != nil {
		return err
	}
	defer c.Close()

	cfg := c.cfg
	logger := c.logger
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("version", app.version),
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("catalog_path", cfg.Catalog.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("jobs_path", cfg.SQLite.JobsPath),
		slog.Bool("scheduler", cfg.Scheduler.Enabled && app.scheduler),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if changes, err := c.index.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	} else {
		logger.Info("initial sync done",
			slog.Int("added", len(changes.Added)),
			slog.Int("updated", len(changes.Updated)),
			slog.Int("removed", len(changes.Removed)))
	}

	broker := sse.NewBroker(2*time.Second, sse.WithHeartbeat(30*time.Second))
	defer broker.Close()
	detach := broker.AttachBus(c.bus)
	defer detach()

	apiRouter := api.NewRouter(c.service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, _, err := c.db.List(req.Context(), 1, 0); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Catalog.Watch {
		g.Go(func() error {
			return catalog.Watch(gCtx, c.index, logger.With("component", "watcher"), func(ch catalog.Changes) {
				for _, slug := range ch.Added {
					broker.PublishTemplateEvent("added", slug)
				}
				for _, slug := range ch.Updated {
					broker.PublishTemplateEvent("updated", slug)
				}
				for _, slug := range ch.Removed {
					broker.PublishTemplateEvent("removed", slug)
				}
			})
		})
	}

	if cfg.Scheduler.Enabled && app.scheduler && c.scheduler != nil {
		g.Go(func() error {
			return c.scheduler.Run(gCtx)
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		// Closing the broker ends open SSE streams so Shutdown does not wait on them.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		// Unblock the watcher and scheduler when shutdown came from a signal.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown requested")
