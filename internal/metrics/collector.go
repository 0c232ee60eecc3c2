// Package metrics keeps a rolling window of pipeline stage outcomes, exports
// them to Prometheus and raises alerts on failures.
package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/starford/stencil/internal/alerts"
)

// Capacity is the number of events retained; older events are evicted first.
const Capacity = 200

const maxRecentFailures = 5

// Status of a pipeline stage outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Pipeline stages.
const (
	StagePlanner  = "planner"
	StageComposer = "composer"
	StageImporter = "importer"
)

// PipelineEvent is one recorded stage outcome.
type PipelineEvent struct {
	Timestamp    time.Time      `json:"timestamp"`
	Status       Status         `json:"status"`
	Stage        string         `json:"stage"`
	RequestID    string         `json:"requestId,omitempty"`
	TemplateSlug string         `json:"templateSlug,omitempty"`
	DurationMs   int64          `json:"durationMs,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Snapshot summarizes the events inside a trailing window.
type Snapshot struct {
	WindowStart    time.Time       `json:"windowStart"`
	Total          int             `json:"total"`
	Successes      int             `json:"successes"`
	Failures       int             `json:"failures"`
	AvgDurationMs  float64         `json:"avgDurationMs"`
	RecentFailures []PipelineEvent `json:"recentFailures"`
}

// SuccessRate returns successes/total, or 0 for an empty window.
func (s Snapshot) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Total)
}

// AlertPublisher is satisfied by *alerts.Publisher.
type AlertPublisher interface {
	Publish(ctx context.Context, a alerts.Alert)
}

// Option configures a Collector.
type Option func(*Collector)

// WithPublisher sets where failure alerts go.
func WithPublisher(p AlertPublisher) Option {
	return func(c *Collector) { c.publisher = p }
}

// WithRegisterer registers the Prometheus collectors on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Collector) { c.registerer = reg }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// Collector is a fixed-size ring of PipelineEvents.
type Collector struct {
	publisher  AlertPublisher
	registerer prometheus.Registerer
	now        func() time.Time

	eventsTotal *prometheus.CounterVec
	duration    *prometheus.HistogramVec

	mu    sync.Mutex
	ring  [Capacity]PipelineEvent
	start int
	size  int
}

// NewCollector creates an empty collector.
func NewCollector(opts ...Option) *Collector {
	c := &Collector{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	factory := promauto.With(c.registerer)
	c.eventsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "stencil_pipeline_events_total",
		Help: "Pipeline stage outcomes by stage and status.",
	}, []string{"stage", "status"})
	c.duration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stencil_pipeline_stage_duration_seconds",
		Help:    "Duration of successful pipeline stages.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"stage"})
	return c
}

// Record appends e, evicting the oldest event when full. Failures publish
// an alert synchronously: critical for planner and composer, warning
// otherwise.
func (c *Collector) Record(ctx context.Context, e PipelineEvent) {
	if e.Timestamp.IsZero() {
		e.Timestamp = c.now()
	}

	c.mu.Lock()
	if c.size < Capacity {
		c.ring[(c.start+c.size)%Capacity] = e
		c.size++
	} else {
		c.ring[c.start] = e
		c.start = (c.start + 1) % Capacity
	}
	c.mu.Unlock()

	c.eventsTotal.WithLabelValues(e.Stage, string(e.Status)).Inc()
	if e.Status == StatusSuccess && e.DurationMs > 0 {
		c.duration.WithLabelValues(e.Stage).Observe(float64(e.DurationMs) / 1000)
	}

	if e.Status == StatusFailure && c.publisher != nil {
		c.publisher.Publish(ctx, failureAlert(e))
	}
}

// RecordSuccess records e as a success.
func (c *Collector) RecordSuccess(ctx context.Context, e PipelineEvent) {
	e.Status = StatusSuccess
	c.Record(ctx, e)
}

// RecordFailure records e as a failure with the given reason.
func (c *Collector) RecordFailure(ctx context.Context, e PipelineEvent, reason string) {
	e.Status = StatusFailure
	e.Reason = reason
	c.Record(ctx, e)
}

// Events returns the retained events, oldest first.
func (c *Collector) Events() []PipelineEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PipelineEvent, c.size)
	for i := 0; i < c.size; i++ {
		out[i] = c.ring[(c.start+i)%Capacity]
	}
	return out
}

// Snapshot summarizes events no older than window. A non-positive window
// covers every retained event.
func (c *Collector) Snapshot(window time.Duration) Snapshot {
	var cutoff time.Time
	if window > 0 {
		cutoff = c.now().Add(-window)
	}
	snap := Snapshot{WindowStart: cutoff, RecentFailures: []PipelineEvent{}}

	var durSum float64
	var durCount int
	evs := c.Events()
	for i := len(evs) - 1; i >= 0; i-- {
		e := evs[i]
		if !cutoff.IsZero() && e.Timestamp.Before(cutoff) {
			continue
		}
		snap.Total++
		switch e.Status {
		case StatusSuccess:
			snap.Successes++
			if e.DurationMs > 0 {
				durSum += float64(e.DurationMs)
				durCount++
			}
		case StatusFailure:
			snap.Failures++
			if len(snap.RecentFailures) < maxRecentFailures {
				snap.RecentFailures = append(snap.RecentFailures, e)
			}
		}
	}
	if durCount > 0 {
		snap.AvgDurationMs = durSum / float64(durCount)
	}
	return snap
}

// Reset drops every retained event. Prometheus counters are not reset.
func (c *Collector) Reset() {
	c.mu.Lock()
	c.ring = [Capacity]PipelineEvent{}
	c.start, c.size = 0, 0
	c.mu.Unlock()
}

func failureAlert(e PipelineEvent) alerts.Alert {
	severity := alerts.SeverityWarning
	if e.Stage == StagePlanner || e.Stage == StageComposer {
		severity = alerts.SeverityCritical
	}
	fields := make(map[string]any, len(e.Metadata)+3)
	for k, v := range e.Metadata {
		fields[k] = v
	}
	fields["stage"] = e.Stage
	if e.RequestID != "" {
		fields["requestId"] = e.RequestID
	}
	if e.TemplateSlug != "" {
		fields["templateSlug"] = e.TemplateSlug
	}
	return alerts.Alert{
		Severity: severity,
		Message:  fmt.Sprintf("pipeline stage %s failed: %s", e.Stage, e.Reason),
		Context:  fields,
	}
}
