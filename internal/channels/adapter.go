// Package channels defines the distribution channel capability set. Each
// external platform implements Adapter; dispatch selects a fixed variant by
// channel id, never by reflection.
package channels

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/models"
)

// Severity grades a validation finding. Only error-severity findings block a
// publish attempt.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// ValidationResult is one finding from a channel's content validation.
type ValidationResult struct {
	Severity Severity `json:"severity"`
	Field    string   `json:"field,omitempty"`
	Message  string   `json:"message"`
}

// HasBlocking reports whether any finding is error severity.
func HasBlocking(results []ValidationResult) bool {
	for _, r := range results {
		if r.Severity == SeverityError {
			return true
		}
	}
	return false
}

// BlockingMessage joins the error-severity findings into one message.
func BlockingMessage(results []ValidationResult) string {
	msg := ""
	for _, r := range results {
		if r.Severity != SeverityError {
			continue
		}
		if msg != "" {
			msg += "; "
		}
		msg += r.Message
	}
	return msg
}

// PlatformResult is a successful publish acknowledgment.
type PlatformResult struct {
	PostID string `json:"post_id"`
	URL    string `json:"url,omitempty"`
}

// PublishError classifies a failed publish attempt. Transient errors are
// eligible for retry; permanent ones are not.
type PublishError struct {
	Kind    string
	Message string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish failed (%s): %s", e.Kind, e.Message)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Transient builds a retryable publish error.
func Transient(message string, err error) *PublishError {
	return &PublishError{Kind: models.ErrorKindTransient, Message: message, Err: err}
}

// Permanent builds a non-retryable publish error.
func Permanent(message string, err error) *PublishError {
	return &PublishError{Kind: models.ErrorKindPermanent, Message: message, Err: err}
}

// Classify normalizes any error from an adapter into a PublishError. Timeouts
// and unclassified failures count as transient.
func Classify(err error) *PublishError {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient("publish timed out", err)
	}
	return Transient(err.Error(), err)
}

// Adapter is the capability set one external platform exposes. Publish must
// respect ctx cancellation; PublishTimeout returns the adapter's default
// bound, or zero to accept the runner's default.
type Adapter interface {
	ID() string
	Validate(ctx context.Context, content *models.ContentItem) []ValidationResult
	Publish(ctx context.Context, content *models.ContentItem) (*PlatformResult, error)
	PublishTimeout() time.Duration
}
