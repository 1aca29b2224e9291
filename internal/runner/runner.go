// Package runner executes due publishing jobs: validation, per-channel
// dispatch, retry scheduling, and terminal content transitions.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/channels"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/clock"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/lifecycle"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/models"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/schedule"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/statushub"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/store"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/pkg/logging"
)

// Config tunes retry backoff and publish bounds.
type Config struct {
	// RetryBackoffBase is the first retry delay; each retry doubles it up to
	// RetryBackoffMax. Defaults: 30s base, 15m cap.
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration

	// PublishTimeout bounds a single publish attempt when the adapter does
	// not declare its own. Default: 60s.
	PublishTimeout time.Duration

	// Attempts counts publish attempts by channel and outcome. Optional.
	Attempts *prometheus.CounterVec
}

func (c *Config) defaults() {
	if c.RetryBackoffBase == 0 {
		c.RetryBackoffBase = 30 * time.Second
	}
	if c.RetryBackoffMax == 0 {
		c.RetryBackoffMax = 15 * time.Minute
	}
	if c.PublishTimeout == 0 {
		c.PublishTimeout = 60 * time.Second
	}
}

// Runner publishes one job's content to its channels. Channels run
// concurrently; attempts for the same (job, channel) pair are serialized.
type Runner struct {
	jobs     store.JobStore
	content  store.ContentRepository
	registry *channels.Registry
	index    *schedule.Index
	prop     *statushub.Propagator
	clk      clock.Clock
	cfg      Config
	locks    *keyLock
	logger   logging.Logger
}

// New wires a job runner.
func New(jobs store.JobStore, content store.ContentRepository, registry *channels.Registry, index *schedule.Index, prop *statushub.Propagator, clk clock.Clock, cfg Config, logger logging.Logger) *Runner {
	cfg.defaults()
	return &Runner{
		jobs:     jobs,
		content:  content,
		registry: registry,
		index:    index,
		prop:     prop,
		clk:      clk,
		cfg:      cfg,
		locks:    newKeyLock(),
		logger:   logger,
	}
}

// errNotAttemptable skips a channel whose delivery is no longer pending.
var errNotAttemptable = errors.New("channel delivery not pending")

// Dispatch runs every pending channel of a job. It is safe to call for jobs
// that settled or were cancelled in the meantime; those are no-ops.
func (r *Runner) Dispatch(ctx context.Context, jobID string) error {
	job, err := r.jobs.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Terminal() {
		return nil
	}

	content, err := r.content.LoadContentItem(ctx, job.ContentID)
	if err != nil {
		return fmt.Errorf("load content %s for job %s: %w", job.ContentID, jobID, err)
	}

	log := r.logger.WithFields(logging.Fields{
		"job_id":     jobID,
		"content_id": content.ID,
		"brand_id":   job.BrandID,
	})

	var pending []string
	for ch, d := range job.Channels {
		if d.Status == models.ChannelPending {
			pending = append(pending, ch)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	log.WithField("channels", pending).Info("Dispatching publishing job")

	g := new(errgroup.Group)
	for _, ch := range pending {
		channel := ch
		g.Go(func() error {
			return r.attemptChannel(ctx, jobID, channel, content)
		})
	}
	err = g.Wait()

	r.finalize(ctx, jobID, content, log)
	return err
}

// attemptChannel runs one publish attempt for one channel under the per-pair
// lock: claim, validate, publish, settle.
func (r *Runner) attemptChannel(ctx context.Context, jobID, channel string, content *models.ContentItem) error {
	unlock := r.locks.Lock(jobID + "/" + channel)
	defer unlock()

	adapter, err := r.registry.Get(channel)
	if err != nil {
		r.settle(ctx, jobID, channel, func(d *models.ChannelDelivery) {
			d.Status = models.ChannelFailed
			d.LastError = &models.ChannelError{Kind: models.ErrorKindPermanent, Message: err.Error()}
		})
		r.countAttempt(channel, "unknown_channel")
		return nil
	}

	// Claim the delivery. Another attempt, a cancel, or a reschedule may have
	// moved it off pending since the job came due.
	job, err := r.jobs.UpdateJob(ctx, jobID, func(j *models.PublishingJob) error {
		if j.Status == models.JobCancelled {
			return errNotAttemptable
		}
		d, ok := j.Channels[channel]
		if !ok || d.Status != models.ChannelPending {
			return errNotAttemptable
		}
		d.Status = models.ChannelProcessing
		d.UpdatedAt = r.clk.Now()
		j.Status = j.DeriveStatus()
		j.UpdatedAt = d.UpdatedAt
		return nil
	})
	if err != nil {
		if errors.Is(err, errNotAttemptable) {
			return nil
		}
		return fmt.Errorf("claim channel %s of job %s: %w", channel, jobID, err)
	}
	r.emit(job, channel, string(models.ChannelProcessing), "")

	// Validation gate: blocking findings fail the channel permanently without
	// touching the network.
	if results := adapter.Validate(ctx, content); channels.HasBlocking(results) {
		msg := channels.BlockingMessage(results)
		r.settle(ctx, jobID, channel, func(d *models.ChannelDelivery) {
			d.Status = models.ChannelFailed
			d.LastError = &models.ChannelError{Kind: models.ErrorKindValidation, Message: msg}
		})
		r.countAttempt(channel, "validation_failed")
		return nil
	}

	timeout := adapter.PublishTimeout()
	if timeout == 0 {
		timeout = r.cfg.PublishTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	result, pubErr := adapter.Publish(attemptCtx, content)
	cancel()

	if pubErr == nil {
		r.settle(ctx, jobID, channel, func(d *models.ChannelDelivery) {
			d.Status = models.ChannelPublished
			d.LastError = nil
			d.PlatformPostID = result.PostID
			d.PlatformURL = result.URL
		})
		r.countAttempt(channel, "published")
		return nil
	}

	pe := channels.Classify(pubErr)
	if pe.Kind == models.ErrorKindTransient {
		return r.handleTransient(ctx, jobID, channel, pe)
	}

	r.settle(ctx, jobID, channel, func(d *models.ChannelDelivery) {
		d.Status = models.ChannelFailed
		d.LastError = &models.ChannelError{Kind: pe.Kind, Message: pe.Message}
	})
	r.countAttempt(channel, "permanent_failure")
	return nil
}

// handleTransient either schedules a retry through the index or, once the
// budget is spent, fails the channel.
func (r *Runner) handleTransient(ctx context.Context, jobID, channel string, pe *channels.PublishError) error {
	var retryAt time.Time
	var cancelled bool
	job, err := r.jobs.UpdateJob(ctx, jobID, func(j *models.PublishingJob) error {
		d, ok := j.Channels[channel]
		if !ok || d.Status != models.ChannelProcessing {
			return errNotAttemptable
		}
		now := r.clk.Now()
		d.LastError = &models.ChannelError{Kind: pe.Kind, Message: pe.Message}
		d.UpdatedAt = now
		switch {
		case j.Status == models.JobCancelled:
			// A cancel arrived while this attempt was in flight; settle the
			// channel instead of queueing a retry for a dead job.
			cancelled = true
			d.Status = models.ChannelCancelled
		case d.RetryCount < d.MaxRetries:
			retryAt = now.Add(r.backoff(d.RetryCount))
			d.RetryCount++
			d.Status = models.ChannelPending
		default:
			d.Status = models.ChannelFailed
		}
		j.Status = j.DeriveStatus()
		j.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, errNotAttemptable) {
			return nil
		}
		return fmt.Errorf("record transient failure for %s/%s: %w", jobID, channel, err)
	}

	if cancelled {
		r.emit(job, channel, string(models.ChannelCancelled), pe.Message)
		r.countAttempt(channel, "cancelled")
		return nil
	}

	if retryAt.IsZero() {
		r.emit(job, channel, string(models.ChannelFailed), pe.Message)
		r.countAttempt(channel, "retries_exhausted")
		return nil
	}

	// Retries ride the scheduling index instead of blocking a worker. The due
	// time may already be taken by an earlier channel's retry; the earliest
	// wins and the later channel is still pending when the job fires.
	if err := r.index.Schedule(jobID, retryAt, true); err != nil {
		return fmt.Errorf("schedule retry for %s/%s: %w", jobID, channel, err)
	}
	r.emit(job, channel, string(models.ChannelPending), fmt.Sprintf("retry scheduled: %s", pe.Message))
	r.countAttempt(channel, "transient_failure")

	delivery := job.Channels[channel]
	r.logger.WithFields(logging.Fields{
		"job_id":      jobID,
		"channel":     channel,
		"retry_count": delivery.RetryCount,
		"max_retries": delivery.MaxRetries,
		"retry_at":    retryAt.Format(time.RFC3339),
	}).Warn("Transient publish failure, retry scheduled")
	return nil
}

// settle commits a terminal channel outcome and emits its events.
func (r *Runner) settle(ctx context.Context, jobID, channel string, apply func(*models.ChannelDelivery)) {
	var detail string
	job, err := r.jobs.UpdateJob(ctx, jobID, func(j *models.PublishingJob) error {
		d, ok := j.Channels[channel]
		if !ok {
			return errNotAttemptable
		}
		now := r.clk.Now()
		apply(d)
		d.UpdatedAt = now
		if d.LastError != nil {
			detail = d.LastError.Message
		}
		j.Status = j.DeriveStatus()
		j.UpdatedAt = now
		return nil
	})
	if err != nil {
		if !errors.Is(err, errNotAttemptable) {
			r.logger.WithError(err).WithFields(logging.Fields{
				"job_id":  jobID,
				"channel": channel,
			}).Error("Failed to settle channel delivery")
		}
		return
	}
	r.emit(job, channel, string(job.Channels[channel].Status), detail)
}

// finalize re-reads the job and, when it has settled, moves the content item
// to its terminal lifecycle state and emits the closing job event.
func (r *Runner) finalize(ctx context.Context, jobID string, content *models.ContentItem, log *logrus.Entry) {
	job, err := r.jobs.GetJob(ctx, jobID)
	if err != nil {
		log.WithError(err).Error("Failed to reload job after dispatch")
		return
	}
	if !job.Terminal() {
		return
	}
	if job.Status == models.JobCancelled {
		// Cancellation owns its own content transition.
		return
	}

	target := models.ContentPublished
	if job.Status != models.JobPublished {
		target = models.ContentErrored
	}

	next, err := lifecycle.Transition(content.Status, target)
	if err != nil {
		// A concurrent edit moved the item out of scheduled. The job outcome
		// stands; the item keeps its current state.
		log.WithError(err).Warn("Content item not transitioned after job settled")
	} else {
		content.Status = next
		content.UpdatedAt = r.clk.Now()
		if err := r.content.SaveContentItem(ctx, content); err != nil {
			log.WithError(err).Error("Failed to persist content transition")
		}
	}

	log.WithFields(logging.Fields{
		"status":   job.Status,
		"progress": job.Progress(),
	}).Info("Publishing job settled")
	r.emit(job, "", string(job.Status), "")
}

// emit publishes a channel-level event (channel set) or job-level event
// (channel empty), always paired with the derived overall status.
func (r *Runner) emit(job *models.PublishingJob, channel, status, detail string) {
	if r.prop == nil {
		return
	}
	progress := job.Progress()
	ts := r.clk.Now()
	if channel != "" {
		r.prop.Publish(models.StatusEvent{
			JobID:     job.ID,
			Channel:   channel,
			Status:    status,
			Progress:  &progress,
			Timestamp: ts,
			Details:   detail,
		})
	}
	r.prop.Publish(models.StatusEvent{
		JobID:     job.ID,
		Status:    string(job.Status),
		Progress:  &progress,
		Timestamp: ts,
		Details:   detail,
	})
}

func (r *Runner) backoff(retryCount int) time.Duration {
	d := r.cfg.RetryBackoffBase
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= r.cfg.RetryBackoffMax {
			return r.cfg.RetryBackoffMax
		}
	}
	if d > r.cfg.RetryBackoffMax {
		d = r.cfg.RetryBackoffMax
	}
	return d
}

func (r *Runner) countAttempt(channel, outcome string) {
	if r.cfg.Attempts != nil {
		r.cfg.Attempts.WithLabelValues(channel, outcome).Inc()
	}
}
