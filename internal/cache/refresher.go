// Package cache keeps the template index in step with catalog storage by
// refreshing it whenever an import completes.
package cache

import (
	"context"
	"log/slog"
	"sync/atomic"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/stencil/internal/events"
)

// Request describes why a refresh is needed.
type Request struct {
	Reason     string
	ImportID   string
	TemplateID string
	RequestID  string
}

// IndexRefresher rebuilds the downstream template index. Refresh may fail;
// the Refresher retries it.
type IndexRefresher interface {
	Refresh(ctx context.Context, req Request) error
}

// RefresherFunc adapts a function to IndexRefresher.
type RefresherFunc func(ctx context.Context, req Request) error

// Refresh calls f.
func (f RefresherFunc) Refresh(ctx context.Context, req Request) error { return f(ctx, req) }

// Config holds refresher settings.
type Config struct {
	Enabled    bool `yaml:"enabled"`
	RetryLimit int  `yaml:"retry_limit"`
}

// Validate validates the cache configuration.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RetryLimit, validation.Min(0)),
	)
}

// DefaultConfig enables the refresher with three retries.
func DefaultConfig() Config {
	return Config{Enabled: true, RetryLimit: 3}
}

// Refresher reacts to Imported events. Attempts run back-to-back: at most
// RetryLimit+1 calls per event, stopping at the first success. A terminal
// failure is logged and never reported back to the emitter.
type Refresher struct {
	index      IndexRefresher
	retryLimit int
	enabled    atomic.Bool
	logger     *slog.Logger
}

// New creates a Refresher over index.
func New(index IndexRefresher, cfg Config, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetryLimit < 0 {
		cfg.RetryLimit = 0
	}
	r := &Refresher{index: index, retryLimit: cfg.RetryLimit, logger: logger}
	r.enabled.Store(cfg.Enabled)
	return r
}

// SetEnabled toggles refreshing at runtime.
func (r *Refresher) SetEnabled(on bool) {
	r.enabled.Store(on)
}

// Enabled reports whether Imported events trigger a refresh.
func (r *Refresher) Enabled() bool {
	return r.enabled.Load()
}

// Attach subscribes the refresher to bus and returns the disposer.
func (r *Refresher) Attach(bus *events.Bus) func() {
	return bus.OnImported(r.HandleImported)
}

// HandleImported is the bus listener. It always returns nil.
func (r *Refresher) HandleImported(ctx context.Context, p events.TemplateImportedPayload) error {
	log := r.logger.With("import_id", p.ImportID, "request_id", p.RequestID)
	if !r.Enabled() {
		log.Info("cache refresh disabled; skipping")
		return nil
	}

	req := Request{Reason: string(events.Imported), ImportID: p.ImportID, RequestID: p.RequestID}
	if len(p.Components) > 0 {
		req.TemplateID = p.Components[0]
	}

	attempts := r.retryLimit + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			log.Warn("cache refresh abandoned", "attempt", attempt, "error", err)
			return nil
		}
		err := r.index.Refresh(ctx, req)
		if err == nil {
			log.Info("template index refreshed", "attempt", attempt)
			return nil
		}
		log.Warn("template index refresh failed", "attempt", attempt, "max_attempts", attempts, "error", err)
	}
	log.Error("template index refresh exhausted retries", "attempts", attempts)
	return nil
}
