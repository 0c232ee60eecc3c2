// Package jobs models template pipeline jobs and the storage contract the
// scheduler uses to requeue stuck work.
package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrStatusChanged is returned by Update when ExpectStatus no longer
// matches the stored job.
var ErrStatusChanged = errors.New("jobs: status changed")

// Status of a template pipeline job.
type Status string

const (
	StatusQueued  Status = "QUEUED"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusOnHold  Status = "ON_HOLD"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusQueued, StatusRunning, StatusSuccess, StatusFailed, StatusOnHold}

// Job is a TemplatePipelineJob row. UpdatedAt is nil for a job never
// updated since creation.
type Job struct {
	ID           string         `json:"id"`
	TemplateSlug string         `json:"templateSlug"`
	Status       Status         `json:"status"`
	RetryCount   int            `json:"retryCount"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    *time.Time     `json:"updatedAt,omitempty"`
}

// Update is a partial job mutation. Metadata replaces the stored map when
// non-nil; RetryIncrement is added to the stored retry count. A non-empty
// ExpectStatus makes the update conditional on the stored status, checked
// in the same statement that writes.
type Update struct {
	Status         Status
	RetryIncrement int
	Metadata       map[string]any
	ExpectStatus   Status
}

// Store is the persistence contract for jobs.
type Store interface {
	// FindRetryCandidates returns at most limit ON_HOLD jobs whose UpdatedAt
	// is nil or before threshold, least recently updated first.
	FindRetryCandidates(ctx context.Context, threshold time.Time, limit int) ([]Job, error)
	Update(ctx context.Context, id string, u Update) (*Job, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	Create(ctx context.Context, j Job) (*Job, error)
	Get(ctx context.Context, id string) (*Job, error)
}

// IsRetryEligible reports whether j is a stale ON_HOLD job. A nil UpdatedAt
// is always stale.
func IsRetryEligible(j Job, threshold time.Time) bool {
	if j.Status != StatusOnHold {
		return false
	}
	return j.UpdatedAt == nil || j.UpdatedAt.Before(threshold)
}
