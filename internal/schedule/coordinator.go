package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/clock"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/models"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/store"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/pkg/logging"
)

// ErrAlreadyDispatched rejects a reschedule once any channel has begun
// processing or published.
var ErrAlreadyDispatched = errors.New("job already dispatched")

// AdvisoryOutsideWindow is the advisory returned when the new time falls
// outside every preferred posting window for its weekday.
const AdvisoryOutsideWindow = "outside preferred window"

// Result reports the outcome of a reschedule request. Advisory is set when
// the move succeeded but lands outside the brand's preferred windows.
type Result struct {
	Applied  bool   `json:"applied"`
	Advisory string `json:"advisory,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Coordinator validates and applies reschedule requests, including
// drag-initiated moves that must never block on confirmation.
type Coordinator struct {
	jobs      store.JobStore
	schedules store.ScheduleStore
	index     *Index
	clk       clock.Clock
	logger    logging.Logger
}

// NewCoordinator wires a reschedule coordinator.
func NewCoordinator(jobs store.JobStore, schedules store.ScheduleStore, index *Index, clk clock.Clock, logger logging.Logger) *Coordinator {
	return &Coordinator{
		jobs:      jobs,
		schedules: schedules,
		index:     index,
		clk:       clk,
		logger:    logger,
	}
}

// Reschedule moves a job's due time. Preconditions: the job must not have
// dispatched yet. Rescheduling to the current due time is a no-op success.
// The posting-window check is advisory only and never blocks the move.
func (c *Coordinator) Reschedule(ctx context.Context, jobID string, newTime time.Time, publishNow bool) (Result, error) {
	job, err := c.jobs.GetJob(ctx, jobID)
	if err != nil {
		return Result{}, err
	}
	if err := rescheduleBlocked(job); err != nil {
		return Result{}, err
	}

	if newTime.Equal(job.ScheduledAt) {
		return Result{Applied: true}, nil
	}

	if err := c.index.Schedule(jobID, newTime, publishNow); err != nil {
		return Result{}, err
	}

	if _, err := c.jobs.UpdateJob(ctx, jobID, func(j *models.PublishingJob) error {
		// Re-check under the job lock: a dispatch may have started since the
		// read above.
		if err := rescheduleBlocked(j); err != nil {
			return err
		}
		j.ScheduledAt = newTime
		return nil
	}); err != nil {
		// Put the original due time back; dropping the entry would strand a
		// still-pending job.
		_ = c.index.Schedule(jobID, job.ScheduledAt, true)
		return Result{}, err
	}

	result := Result{Applied: true}
	result.Advisory, result.Detail = c.advisory(ctx, job.BrandID, newTime)

	c.logger.WithFields(logging.Fields{
		"job_id":       jobID,
		"scheduled_at": newTime,
		"advisory":     result.Advisory,
	}).Info("Job rescheduled")
	return result, nil
}

// Cancel removes a job from the index and marks it cancelled. Channels that
// already settled keep their outcome; pending ones become cancelled. In-flight
// attempts are settled by the runner, which sees the sticky cancelled status.
func (c *Coordinator) Cancel(ctx context.Context, jobID string) error {
	c.index.Cancel(jobID)

	_, err := c.jobs.UpdateJob(ctx, jobID, func(j *models.PublishingJob) error {
		if j.Terminal() {
			return nil
		}
		for _, d := range j.Channels {
			if d.Status == models.ChannelPending {
				d.Status = models.ChannelCancelled
				d.UpdatedAt = c.clk.Now()
			}
		}
		j.Status = models.JobCancelled
		return nil
	})
	if err != nil {
		return err
	}

	c.logger.WithField("job_id", jobID).Info("Job cancelled")
	return nil
}

func rescheduleBlocked(job *models.PublishingJob) error {
	if job.Terminal() {
		return ErrAlreadyDispatched
	}
	for _, d := range job.Channels {
		switch d.Status {
		case models.ChannelPublished, models.ChannelProcessing:
			return ErrAlreadyDispatched
		}
	}
	return nil
}

func (c *Coordinator) advisory(ctx context.Context, brandID string, at time.Time) (string, string) {
	schedule, err := c.schedules.GetPostingSchedule(ctx, brandID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			// Advisory lookups never fail the move.
			c.logger.WithError(err).WithField("brand_id", brandID).Warn("Posting schedule lookup failed")
		}
		return "", ""
	}
	if !schedule.HasWindows() || schedule.Contains(at) {
		return "", ""
	}
	detail := fmt.Sprintf("%s %s has no preferred posting window for brand %s",
		at.Weekday(), at.Format("15:04"), brandID)
	return AdvisoryOutsideWindow, detail
}
