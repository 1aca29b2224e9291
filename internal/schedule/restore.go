package schedule

import (
	"context"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/models"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/store"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/pkg/logging"
)

// RestoreIndex rebuilds the in-memory scheduling index from the job store
// after a restart. Jobs with at least one pending channel are re-inserted at
// their stored due time; past due times are kept so overdue jobs dispatch on
// the next tick. Returns the number of jobs restored.
func RestoreIndex(ctx context.Context, jobs store.JobStore, index *Index, logger logging.Logger) (int, error) {
	unsettled, err := jobs.ListUnsettledJobs(ctx)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, job := range unsettled {
		if !hasPendingChannel(job) {
			continue
		}
		if err := index.Schedule(job.ID, job.ScheduledAt, true); err != nil {
			logger.WithError(err).WithField("job_id", job.ID).Error("Failed to restore job to scheduling index")
			continue
		}
		restored++
	}

	if restored > 0 {
		logger.WithField("restored", restored).Info("Scheduling index restored from job store")
	}
	return restored, nil
}

func hasPendingChannel(job *models.PublishingJob) bool {
	for _, d := range job.Channels {
		if d.Status == models.ChannelPending {
			return true
		}
	}
	return false
}
