package statushub

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/models"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/pkg/logging"
)

// EventSink receives status events for downstream consumers. *Producer is the
// Kafka implementation.
type EventSink interface {
	PublishEvent(event models.StatusEvent) error
}

// Propagator fans publishing status out to observers. The snapshot store is
// written first and unconditionally: push and Kafka delivery are best effort,
// the snapshot is what the poll endpoint serves, so it must never be skipped.
type Propagator struct {
	hub       *Hub
	snapshots SnapshotStore
	sink      EventSink
	logger    logging.Logger
	events    *prometheus.CounterVec
}

// NewPropagator wires the propagation pipeline. sink may be nil when Kafka is
// not configured. events may be nil to skip metrics.
func NewPropagator(hub *Hub, snapshots SnapshotStore, sink EventSink, events *prometheus.CounterVec, logger logging.Logger) *Propagator {
	return &Propagator{
		hub:       hub,
		snapshots: snapshots,
		sink:      sink,
		logger:    logger,
		events:    events,
	}
}

// Publish records and distributes a status event. It never fails and never
// blocks on a slow observer; publishing outcomes must not depend on who is
// watching.
func (p *Propagator) Publish(event models.StatusEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := p.snapshots.Put(ctx, event); err != nil {
		p.logger.WithError(err).WithFields(logging.Fields{
			"job_id": event.JobID,
			"status": event.Status,
		}).Error("Failed to write status snapshot")
	}

	p.hub.BroadcastEvent(event)

	if p.sink != nil {
		if err := p.sink.PublishEvent(event); err != nil {
			p.logger.WithError(err).WithField("job_id", event.JobID).Warn("Failed to publish status event to kafka")
		}
	}

	if p.events != nil {
		scope := "job"
		if event.Channel != "" {
			scope = "channel"
		}
		p.events.WithLabelValues(scope, event.Status).Inc()
	}
}

// Snapshot returns the latest recorded status event for a job.
func (p *Propagator) Snapshot(ctx context.Context, jobID string) (models.StatusEvent, error) {
	return p.snapshots.Get(ctx, jobID)
}
