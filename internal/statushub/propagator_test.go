package statushub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/models"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/pkg/logging"
)

type recordingSink struct {
	mu     sync.Mutex
	events []models.StatusEvent
	err    error
}

func (s *recordingSink) PublishEvent(event models.StatusEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func newPropagatorFixture(t *testing.T, sink EventSink) (*Propagator, *MemorySnapshots) {
	t.Helper()
	hub := NewHub(logging.NewLoggerWithService("statushub-test"))
	go hub.Run()
	t.Cleanup(hub.Stop)

	snaps := NewMemorySnapshots()
	return NewPropagator(hub, snaps, sink, nil, logging.NewLoggerWithService("statushub-test")), snaps
}

func TestPropagatorWritesSnapshotWithoutObservers(t *testing.T) {
	prop, _ := newPropagatorFixture(t, nil)

	prop.Publish(models.StatusEvent{JobID: "job-1", Status: "processing"})

	event, err := prop.Snapshot(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "processing", event.Status)
	assert.False(t, event.Timestamp.IsZero(), "propagator must stamp events")
}

func TestPropagatorSnapshotTracksLatest(t *testing.T) {
	prop, _ := newPropagatorFixture(t, nil)

	prop.Publish(models.StatusEvent{JobID: "job-1", Status: "pending"})
	prop.Publish(models.StatusEvent{JobID: "job-1", Channel: "instagram", Status: "published"})
	prop.Publish(models.StatusEvent{JobID: "job-1", Status: "published"})

	event, err := prop.Snapshot(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "published", event.Status)
	assert.Empty(t, event.Channel)
}

func TestPropagatorSinkFailureIsSwallowed(t *testing.T) {
	sink := &recordingSink{err: errors.New("broker down")}
	prop, _ := newPropagatorFixture(t, sink)

	prop.Publish(models.StatusEvent{JobID: "job-1", Status: "failed", Timestamp: time.Now()})

	assert.Equal(t, 1, sink.count())

	// The snapshot still lands even though the sink errored.
	event, err := prop.Snapshot(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "failed", event.Status)
}
