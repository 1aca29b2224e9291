package models

import "time"

// JobStatus is the overall status of a publishing job. It is derived from the
// per-channel delivery statuses except for cancelled, which is set explicitly.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobPublished  JobStatus = "published"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// ChannelStatus is the delivery status for one target channel of a job.
type ChannelStatus string

const (
	ChannelPending    ChannelStatus = "pending"
	ChannelProcessing ChannelStatus = "processing"
	ChannelPublished  ChannelStatus = "published"
	ChannelFailed     ChannelStatus = "failed"
	ChannelCancelled  ChannelStatus = "cancelled"
)

// ErrorKindTransient and ErrorKindPermanent classify channel failures.
const (
	ErrorKindTransient  = "transient"
	ErrorKindPermanent  = "permanent"
	ErrorKindValidation = "validation"
)

// ChannelError is the last recorded failure for a channel delivery.
type ChannelError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ChannelDelivery tracks one channel's outcome within a publishing job.
type ChannelDelivery struct {
	Channel        string        `json:"channel"`
	Status         ChannelStatus `json:"status"`
	RetryCount     int           `json:"retry_count"`
	MaxRetries     int           `json:"max_retries"`
	LastError      *ChannelError `json:"last_error,omitempty"`
	PlatformPostID string        `json:"platform_post_id,omitempty"`
	PlatformURL    string        `json:"platform_url,omitempty"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Settled reports whether the delivery has reached a terminal channel state.
func (d *ChannelDelivery) Settled() bool {
	switch d.Status {
	case ChannelPublished, ChannelFailed, ChannelCancelled:
		return true
	}
	return false
}

// PublishingJob distributes one content item to one or more channels.
type PublishingJob struct {
	ID          string                      `json:"id"`
	ContentID   string                      `json:"content_id"`
	BrandID     string                      `json:"brand_id"`
	Status      JobStatus                   `json:"status"`
	ScheduledAt time.Time                   `json:"scheduled_at"`
	Channels    map[string]*ChannelDelivery `json:"channels"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// NewPublishingJob builds a pending job for the given content and channels.
func NewPublishingJob(id, contentID, brandID string, scheduledAt time.Time, channels []string, maxRetries int) *PublishingJob {
	now := time.Now().UTC()
	job := &PublishingJob{
		ID:          id,
		ContentID:   contentID,
		BrandID:     brandID,
		Status:      JobPending,
		ScheduledAt: scheduledAt,
		Channels:    make(map[string]*ChannelDelivery, len(channels)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, ch := range channels {
		job.Channels[ch] = &ChannelDelivery{
			Channel:    ch,
			Status:     ChannelPending,
			MaxRetries: maxRetries,
			UpdatedAt:  now,
		}
	}
	return job
}

// Terminal reports whether the overall job status is final.
func (j *PublishingJob) Terminal() bool {
	switch j.Status {
	case JobPublished, JobFailed, JobCancelled:
		return true
	}
	return false
}

// DeriveStatus recomputes the overall status from the channel deliveries.
// Cancellation is sticky: a cancelled job never becomes anything else.
func (j *PublishingJob) DeriveStatus() JobStatus {
	if j.Status == JobCancelled {
		return JobCancelled
	}

	var published, failed, processing, pending int
	for _, d := range j.Channels {
		switch d.Status {
		case ChannelPublished:
			published++
		case ChannelFailed:
			failed++
		case ChannelProcessing:
			processing++
		case ChannelPending:
			pending++
		}
	}

	total := len(j.Channels)
	switch {
	case total > 0 && published == total:
		return JobPublished
	case failed > 0 && processing == 0 && pending == 0:
		return JobFailed
	case processing > 0 || published > 0 || failed > 0:
		return JobProcessing
	default:
		return JobPending
	}
}

// Progress returns the percentage of channels that have settled.
func (j *PublishingJob) Progress() int {
	if len(j.Channels) == 0 {
		return 0
	}
	settled := 0
	for _, d := range j.Channels {
		if d.Settled() {
			settled++
		}
	}
	return settled * 100 / len(j.Channels)
}
