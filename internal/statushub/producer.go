package statushub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/models"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/pkg/logging"
)

const statusEventsTopic = "publishing_events"

// Producer publishes status events to Kafka for downstream consumers
// (analytics, audit, notification fan-out). Delivery is best effort from the
// orchestrator's point of view.
type Producer struct {
	client *kgo.Client
	logger logging.Logger
}

// NewProducer creates a Kafka producer for status events.
func NewProducer(brokers []string, clientID string, logger logging.Logger) (*Producer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10 * time.Millisecond),
		kgo.ProducerBatchMaxBytes(1000000),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Producer{client: client, logger: logger}, nil
}

// PublishEvent produces a single status event, keyed by job id so per-job
// ordering is preserved within a partition.
func (p *Producer) PublishEvent(event models.StatusEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}

	record := &kgo.Record{
		Topic: statusEventsTopic,
		Key:   []byte(event.JobID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "status", Value: []byte(event.Status)},
		},
	}
	if event.Channel != "" {
		record.Headers = append(record.Headers, kgo.RecordHeader{
			Key:   "channel",
			Value: []byte(event.Channel),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result := p.client.ProduceSync(ctx, record)
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("failed to produce status event: %w", err)
	}

	return nil
}

func (p *Producer) Close() error {
	p.client.Close()
	return nil
}

// GetClient returns the underlying kgo.Client for health checks
func (p *Producer) GetClient() *kgo.Client {
	return p.client
}
