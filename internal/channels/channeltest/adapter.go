// Package channeltest provides scripted channel adapters for tests.
package channeltest

import (
	"context"
	"sync"
	"time"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/channels"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/models"
)

// Outcome is one scripted Publish result.
type Outcome struct {
	Result *channels.PlatformResult
	Err    error
}

// Adapter is a scripted channel adapter. Publish pops the next outcome; when
// the script is exhausted the last outcome repeats. It also tracks call counts
// and detects overlapping Publish calls, for serialization assertions.
type Adapter struct {
	Name            string
	ValidateResults []channels.ValidationResult
	Script          []Outcome
	Timeout         time.Duration
	Delay           time.Duration

	mu           sync.Mutex
	publishCalls int
	inFlight     int
	maxInFlight  int
}

// New returns an adapter that always succeeds with the given post id.
func New(name, postID string) *Adapter {
	return &Adapter{
		Name:   name,
		Script: []Outcome{{Result: &channels.PlatformResult{PostID: postID}}},
	}
}

func (a *Adapter) ID() string { return a.Name }

func (a *Adapter) PublishTimeout() time.Duration { return a.Timeout }

func (a *Adapter) Validate(_ context.Context, _ *models.ContentItem) []channels.ValidationResult {
	return a.ValidateResults
}

func (a *Adapter) Publish(ctx context.Context, _ *models.ContentItem) (*channels.PlatformResult, error) {
	a.mu.Lock()
	a.inFlight++
	if a.inFlight > a.maxInFlight {
		a.maxInFlight = a.inFlight
	}
	call := a.publishCalls
	a.publishCalls++
	var outcome Outcome
	if len(a.Script) > 0 {
		if call >= len(a.Script) {
			call = len(a.Script) - 1
		}
		outcome = a.Script[call]
	}
	delay := a.Delay
	a.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			a.settle()
			return nil, ctx.Err()
		}
	}

	a.settle()
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	return outcome.Result, nil
}

func (a *Adapter) settle() {
	a.mu.Lock()
	a.inFlight--
	a.mu.Unlock()
}

// PublishCalls returns how many times Publish was invoked.
func (a *Adapter) PublishCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.publishCalls
}

// MaxInFlight returns the peak number of overlapping Publish calls.
func (a *Adapter) MaxInFlight() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxInFlight
}
