// Package store defines the persistence boundaries of the publishing core.
// Any durable backend works as long as item writes are atomic and job updates
// run under a per-job critical section.
package store

import (
	"context"
	"errors"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ContentRepository stores content items. Saves are atomic per item.
type ContentRepository interface {
	LoadContentItem(ctx context.Context, id string) (*models.ContentItem, error)
	SaveContentItem(ctx context.Context, item *models.ContentItem) error
}

// JobStore stores publishing jobs. UpdateJob applies mutate under a per-job
// critical section so concurrent channel completions never lose updates; the
// returned job reflects the committed state. ListUnsettledJobs returns every
// job whose overall status is pending or processing, so the scheduling index
// can be rebuilt after a restart.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.PublishingJob) error
	GetJob(ctx context.Context, id string) (*models.PublishingJob, error)
	UpdateJob(ctx context.Context, id string, mutate func(*models.PublishingJob) error) (*models.PublishingJob, error)
	ListUnsettledJobs(ctx context.Context) ([]*models.PublishingJob, error)
}

// ScheduleStore stores per-brand preferred posting schedules.
type ScheduleStore interface {
	GetPostingSchedule(ctx context.Context, brandID string) (*models.PostingSchedule, error)
	SavePostingSchedule(ctx context.Context, schedule *models.PostingSchedule) error
}
