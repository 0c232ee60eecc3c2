// Package alerts fans operational alerts out to log and SNS sinks.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Severity of an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one published notification.
type Alert struct {
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Context  map[string]any `json:"context,omitempty"`
}

// Sink delivers alerts somewhere.
type Sink interface {
	Send(ctx context.Context, a Alert) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, a Alert) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, a Alert) error { return f(ctx, a) }

// Publisher is fire-and-forget: every sink is tried, and sink errors and
// panics are logged rather than returned.
type Publisher struct {
	logger *slog.Logger

	mu    sync.RWMutex
	sinks []Sink
}

// NewPublisher creates a publisher with the given sinks.
func NewPublisher(logger *slog.Logger, sinks ...Sink) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{logger: logger, sinks: sinks}
}

// AddSink appends a sink.
func (p *Publisher) AddSink(s Sink) {
	p.mu.Lock()
	p.sinks = append(p.sinks, s)
	p.mu.Unlock()
}

// Publish sends a to every sink in order.
func (p *Publisher) Publish(ctx context.Context, a Alert) {
	p.mu.RLock()
	sinks := append([]Sink(nil), p.sinks...)
	p.mu.RUnlock()
	for i, s := range sinks {
		p.send(ctx, i, s, a)
	}
}

func (p *Publisher) send(ctx context.Context, idx int, s Sink, a Alert) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("alert sink panicked", "sink", idx, "severity", a.Severity, "panic", fmt.Sprint(rec))
		}
	}()
	if err := s.Send(ctx, a); err != nil {
		p.logger.Warn("alert sink failed", "sink", idx, "severity", a.Severity, "error", err)
	}
}

// LogSink writes alerts to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Send logs a at a level matching its severity.
func (s *LogSink) Send(ctx context.Context, a Alert) error {
	level := slog.LevelInfo
	switch a.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityCritical:
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, a.Message, "alert", true, "severity", a.Severity, "context", a.Context)
	return nil
}
