// Package scheduler runs the weekly pipeline report and the stale-job retry
// sweep on independent cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/starford/stencil/internal/alerts"
	"github.com/starford/stencil/internal/apperr"
	"github.com/starford/stencil/internal/jobs"
	"github.com/starford/stencil/internal/metrics"
)

const reportWindow = 7 * 24 * time.Hour

// SnapshotSource is satisfied by *metrics.Collector.
type SnapshotSource interface {
	Snapshot(window time.Duration) metrics.Snapshot
}

// AlertPublisher is satisfied by *alerts.Publisher.
type AlertPublisher interface {
	Publish(ctx context.Context, a alerts.Alert)
}

// Report is the weekly digest.
type Report struct {
	GeneratedAt time.Time           `json:"generatedAt"`
	Snapshot    metrics.Snapshot    `json:"snapshot"`
	SuccessRate float64             `json:"successRate"`
	JobCounts   map[jobs.Status]int `json:"jobCounts"`
	Text        string              `json:"text"`
}

// SweepResult lists the jobs requeued by one sweep.
type SweepResult struct {
	Threshold time.Time `json:"threshold"`
	Scanned   int       `json:"scanned"`
	Requeued  []string  `json:"requeued"`
	Skipped   []string  `json:"skipped"`
}

// task is one cron schedule guarded against overlapping runs.
type task struct {
	name    string
	cron    *cron.Cron
	running atomic.Bool

	mu      sync.Mutex
	started bool
}

// enter claims the task; the caller must call leave when done.
func (t *task) enter() bool { return t.running.CompareAndSwap(false, true) }
func (t *task) leave()      { t.running.Store(false) }

func (t *task) start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		t.cron.Start()
		t.started = true
	}
}

func (t *task) stop() context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	t.started = false
	return t.cron.Stop()
}

// Scheduler owns the report and retry-sweep tasks.
type Scheduler struct {
	cfg       Config
	loc       *time.Location
	store     jobs.Store
	metrics   SnapshotSource
	publisher AlertPublisher
	logger    *slog.Logger
	now       func() time.Time

	report *task
	retry  *task
}

// New validates cfg and registers both schedules. Nothing runs until Start.
func New(cfg Config, store jobs.Store, source SnapshotSource, publisher AlertPublisher, logger *slog.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scheduler: config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler: timezone: %w", err)
	}
	s := &Scheduler{
		cfg:       cfg,
		loc:       loc,
		store:     store,
		metrics:   source,
		publisher: publisher,
		logger:    logger.With("component", "scheduler"),
		now:       time.Now,
	}

	s.report, err = s.newTask("weekly-report", cfg.ReportCron, func(ctx context.Context) error {
		_, err := s.RunWeeklyReport(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.retry, err = s.newTask("retry-sweep", cfg.RetryCron, func(ctx context.Context) error {
		_, err := s.RunRetrySweep(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) newTask(name, spec string, run func(context.Context) error) (*task, error) {
	cl := cronLogger{s.logger.With("task", name)}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	if _, err := c.AddFunc(spec, func() {
		err := run(context.Background())
		switch {
		case errors.Is(err, apperr.ErrBusy):
			s.logger.Info("previous run still in progress; tick skipped", "task", name)
		case err != nil:
			s.logger.Error("scheduled task failed", "task", name, "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("scheduler: %s schedule %q: %w", name, spec, err)
	}
	return &task{name: name, cron: c}, nil
}

// Start starts both schedules.
func (s *Scheduler) Start() {
	s.StartReport()
	s.StartRetrySweep()
}

// Stop stops both schedules and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	r := s.StopReport()
	q := s.StopRetrySweep()
	for _, done := range []context.Context{r, q} {
		select {
		case <-done.Done():
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) StartReport()                    { s.report.start() }
func (s *Scheduler) StopReport() context.Context     { return s.report.stop() }
func (s *Scheduler) StartRetrySweep()                { s.retry.start() }
func (s *Scheduler) StopRetrySweep() context.Context { return s.retry.stop() }

// Run starts both schedules and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	s.logger.Info("scheduler started", "report_cron", s.cfg.ReportCron, "retry_cron", s.cfg.RetryCron, "timezone", s.cfg.Timezone)
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Stop(stopCtx)
	return nil
}

// RunWeeklyReport builds the digest and publishes it as an info alert.
// It returns an error wrapping apperr.ErrBusy when a report is already
// being generated.
func (s *Scheduler) RunWeeklyReport(ctx context.Context) (*Report, error) {
	if !s.report.enter() {
		return nil, fmt.Errorf("scheduler: weekly report: %w", apperr.ErrBusy)
	}
	defer s.report.leave()

	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("weekly report: count jobs", "error", err)
		return nil, fmt.Errorf("scheduler: weekly report: %w", err)
	}
	snap := s.metrics.Snapshot(reportWindow)
	rep := &Report{
		GeneratedAt: s.now().In(s.loc),
		Snapshot:    snap,
		SuccessRate: snap.SuccessRate(),
		JobCounts:   counts,
	}
	rep.Text = formatReport(rep)

	s.publisher.Publish(ctx, alerts.Alert{
		Severity: alerts.SeverityInfo,
		Message:  rep.Text,
		Context: map[string]any{
			"total":         snap.Total,
			"successes":     snap.Successes,
			"failures":      snap.Failures,
			"successRate":   rep.SuccessRate,
			"avgDurationMs": snap.AvgDurationMs,
		},
	})
	s.logger.Info("weekly report published", "total", snap.Total, "failures", snap.Failures)
	return rep, nil
}

// RunRetrySweep requeues up to BatchSize stale ON_HOLD jobs and publishes
// one warning alert for a non-empty batch. A storage error stops the sweep;
// jobs already requeued stay requeued.
func (s *Scheduler) RunRetrySweep(ctx context.Context) (*SweepResult, error) {
	if !s.retry.enter() {
		return nil, fmt.Errorf("scheduler: retry sweep: %w", apperr.ErrBusy)
	}
	defer s.retry.leave()

	now := s.now()
	res := &SweepResult{
		Threshold: now.Add(-time.Duration(s.cfg.StaleMinutes) * time.Minute),
		Requeued:  []string{},
		Skipped:   []string{},
	}
	candidates, err := s.store.FindRetryCandidates(ctx, res.Threshold, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("retry sweep: find candidates", "error", err)
		return res, fmt.Errorf("scheduler: retry sweep: %w", err)
	}
	res.Scanned = len(candidates)

	var sweepErr error
	for _, j := range candidates {
		if !jobs.IsRetryEligible(j, res.Threshold) {
			continue
		}
		meta := maps.Clone(j.Metadata)
		if meta == nil {
			meta = make(map[string]any)
		}
		meta["autoRetry"] = map[string]any{
			"retriedAt":      now.UTC().Format(time.RFC3339),
			"previousStatus": string(j.Status),
			"retryCount":     j.RetryCount + 1,
		}
		_, err := s.store.Update(ctx, j.ID, jobs.Update{
			Status:         jobs.StatusQueued,
			RetryIncrement: 1,
			Metadata:       meta,
			ExpectStatus:   jobs.StatusOnHold,
		})
		if errors.Is(err, jobs.ErrStatusChanged) {
			s.logger.Info("retry sweep: job no longer on hold", "job_id", j.ID)
			res.Skipped = append(res.Skipped, j.ID)
			continue
		}
		if err != nil {
			s.logger.Error("retry sweep: requeue job", "job_id", j.ID, "error", err)
			sweepErr = fmt.Errorf("scheduler: retry sweep: requeue %s: %w", j.ID, err)
			break
		}
		res.Requeued = append(res.Requeued, j.ID)
	}

	if len(res.Requeued) > 0 {
		s.publisher.Publish(ctx, alerts.Alert{
			Severity: alerts.SeverityWarning,
			Message:  fmt.Sprintf("Requeued %d stale ON_HOLD pipeline job(s)", len(res.Requeued)),
			Context: map[string]any{
				"jobIds":       res.Requeued,
				"staleMinutes": s.cfg.StaleMinutes,
				"threshold":    res.Threshold.UTC().Format(time.RFC3339),
			},
		})
	}
	s.logger.Info("retry sweep finished", "scanned", res.Scanned, "requeued", len(res.Requeued), "skipped", len(res.Skipped))
	return res, sweepErr
}

func formatReport(r *Report) string {
	var b strings.Builder
	snap := r.Snapshot
	fmt.Fprintf(&b, "Stencil weekly pipeline report (%s)\n", r.GeneratedAt.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "Events: %d total, %d succeeded, %d failed (%.1f%% success)\n",
		snap.Total, snap.Successes, snap.Failures, r.SuccessRate*100)
	fmt.Fprintf(&b, "Average duration: %.0f ms\n", snap.AvgDurationMs)
	b.WriteString("Jobs:")
	for _, st := range jobs.Statuses {
		fmt.Fprintf(&b, " %s=%d", st, r.JobCounts[st])
	}
	b.WriteString("\n")
	if len(snap.RecentFailures) == 0 {
		b.WriteString("Recent failures: none\n")
		return b.String()
	}
	b.WriteString("Recent failures:\n")
	for _, f := range snap.RecentFailures {
		fmt.Fprintf(&b, "- %s %s", f.Timestamp.In(r.GeneratedAt.Location()).Format("01-02 15:04"), f.Stage)
		if f.TemplateSlug != "" {
			fmt.Fprintf(&b, " [%s]", f.TemplateSlug)
		}
		fmt.Fprintf(&b, ": %s\n", f.Reason)
	}
	return b.String()
}
