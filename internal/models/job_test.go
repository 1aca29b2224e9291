package models

import (
	"testing"
	"time"
)

func newTestJob(channels ...string) *PublishingJob {
	return NewPublishingJob("j-1", "c-1", "b-1", time.Now(), channels, 2)
}

func TestDeriveStatusAllPublished(t *testing.T) {
	job := newTestJob("instagram", "linkedin")
	job.Channels["instagram"].Status = ChannelPublished
	if got := job.DeriveStatus(); got != JobProcessing {
		t.Fatalf("one of two published should be processing, got %s", got)
	}
	job.Channels["linkedin"].Status = ChannelPublished
	if got := job.DeriveStatus(); got != JobPublished {
		t.Fatalf("all published should be published, got %s", got)
	}
}

func TestDeriveStatusFailedOnlyWhenSettled(t *testing.T) {
	job := newTestJob("instagram", "linkedin")
	job.Channels["instagram"].Status = ChannelFailed

	// linkedin still pending: overall must not be failed yet.
	if got := job.DeriveStatus(); got != JobProcessing {
		t.Fatalf("expected processing while a channel is pending, got %s", got)
	}

	job.Channels["linkedin"].Status = ChannelPublished
	if got := job.DeriveStatus(); got != JobFailed {
		t.Fatalf("expected failed once all settled with a failure, got %s", got)
	}
}

func TestDeriveStatusCancelledIsSticky(t *testing.T) {
	job := newTestJob("instagram")
	job.Status = JobCancelled
	job.Channels["instagram"].Status = ChannelPublished
	if got := job.DeriveStatus(); got != JobCancelled {
		t.Fatalf("cancelled must be sticky, got %s", got)
	}
}

func TestProgress(t *testing.T) {
	job := newTestJob("a", "b", "c", "d")
	if got := job.Progress(); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	job.Channels["a"].Status = ChannelPublished
	job.Channels["b"].Status = ChannelFailed
	if got := job.Progress(); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
}
