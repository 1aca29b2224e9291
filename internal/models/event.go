package models

import "time"

// StatusEvent is an ephemeral progress notification for a publishing job.
// Channel is empty for job-level events. Authoritative state lives on the
// PublishingJob; events only feed live observers and the poll snapshot.
type StatusEvent struct {
	JobID     string    `json:"job_id"`
	Channel   string    `json:"channel,omitempty"`
	Status    string    `json:"status"`
	Progress  *int      `json:"progress,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details,omitempty"`
}
