// Package lifecycle implements the content status machine: pure transition
// logic with no I/O. Callers persist the result themselves.
package lifecycle

import (
	"fmt"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/models"
)

// IllegalTransitionError reports a status transition outside the allowed set.
// It is a caller error and must never be retried.
type IllegalTransitionError struct {
	From models.ContentStatus
	To   models.ContentStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal content transition: %s -> %s", e.From, e.To)
}

// allowed enumerates every legal edge. Anything absent is rejected.
var allowed = map[models.ContentStatus][]models.ContentStatus{
	models.ContentDraft:         {models.ContentPendingReview, models.ContentScheduled},
	models.ContentPendingReview: {models.ContentApproved, models.ContentRejected, models.ContentDraft},
	models.ContentApproved:      {models.ContentScheduled, models.ContentDraft},
	models.ContentScheduled:     {models.ContentPublished, models.ContentDraft, models.ContentErrored},
	models.ContentPublished:     {},
	models.ContentRejected:      {models.ContentDraft},
	models.ContentErrored:       {models.ContentDraft, models.ContentScheduled},
}

// Statuses lists every known content status.
func Statuses() []models.ContentStatus {
	statuses := make([]models.ContentStatus, 0, len(allowed))
	for s := range allowed {
		statuses = append(statuses, s)
	}
	return statuses
}

// CanTransition reports whether current -> target is a legal edge.
func CanTransition(current, target models.ContentStatus) bool {
	for _, next := range allowed[current] {
		if next == target {
			return true
		}
	}
	return false
}

// Transition validates current -> target and returns the new status. Unknown
// statuses on either side are illegal, never coerced.
func Transition(current, target models.ContentStatus) (models.ContentStatus, error) {
	if _, known := allowed[current]; !known {
		return "", &IllegalTransitionError{From: current, To: target}
	}
	if !CanTransition(current, target) {
		return "", &IllegalTransitionError{From: current, To: target}
	}
	return target, nil
}
