package models

import "time"

// ContentStatus is the lifecycle state of a content item.
type ContentStatus string

const (
	ContentDraft         ContentStatus = "draft"
	ContentPendingReview ContentStatus = "pending_review"
	ContentApproved      ContentStatus = "approved"
	ContentScheduled     ContentStatus = "scheduled"
	ContentPublished     ContentStatus = "published"
	ContentRejected      ContentStatus = "rejected"
	ContentErrored       ContentStatus = "errored"
)

// ContentItem is an approved (or in-review) piece of content owned by a brand.
// Status only changes through the lifecycle state machine; ScheduledAt is set
// when the item enters the scheduled state.
type ContentItem struct {
	ID          string        `json:"id"`
	BrandID     string        `json:"brand_id"`
	Status      ContentStatus `json:"status"`
	Body        string        `json:"body"`
	MediaURLs   []string      `json:"media_urls,omitempty"`
	ScheduledAt *time.Time    `json:"scheduled_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
