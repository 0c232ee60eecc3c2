package internal

import (
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	logger    *slog.Logger
	logOut    io.Writer
	registry  *prometheus.Registry
	version   string
	scheduler bool
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger replaces the logger built from the config.
func WithLogger(l *slog.Logger) Option {
	return func(a *application) {
		a.logger = l
	}
}

// WithLogOutput sets where the JSON log handler writes (stdout by default).
// The MCP command points it at stderr to keep stdout for the protocol.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOut = w
	}
}

// WithRegistry sets the Prometheus registry served on /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *application) {
		a.registry = reg
	}
}

// WithVersion sets the version reported by the MCP server and logs.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithoutScheduler keeps the cron schedules stopped. On-demand sweeps and
// reports still work.
func WithoutScheduler() Option {
	return func(a *application) {
		a.scheduler = false
	}
}

func newApplication(opts []Option) *application {
	a := &application{version: "dev", scheduler: true}
	for _, opt := range opts {
		opt(a)
	}
	return a
}
