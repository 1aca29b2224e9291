package statushub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/models"
)

// ErrNoSnapshot is returned when no status snapshot exists for a job.
var ErrNoSnapshot = errors.New("no snapshot for job")

// SnapshotStore keeps the latest status event per job. It is the poll
// fallback for observers that missed or never received a push, so every event
// is written here before any best-effort delivery.
type SnapshotStore interface {
	Put(ctx context.Context, event models.StatusEvent) error
	Get(ctx context.Context, jobID string) (models.StatusEvent, error)
}

// MemorySnapshots is the in-process snapshot store.
type MemorySnapshots struct {
	mu     sync.RWMutex
	latest map[string]models.StatusEvent
}

// NewMemorySnapshots creates an empty in-process snapshot store.
func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{latest: make(map[string]models.StatusEvent)}
}

func (m *MemorySnapshots) Put(_ context.Context, event models.StatusEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[event.JobID] = event
	return nil
}

func (m *MemorySnapshots) Get(_ context.Context, jobID string) (models.StatusEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	event, ok := m.latest[jobID]
	if !ok {
		return models.StatusEvent{}, ErrNoSnapshot
	}
	return event, nil
}

const snapshotKeyPrefix = "crier:snapshot:"

// RedisSnapshots stores snapshots in Redis so polls survive process restarts
// and can be served by any instance.
type RedisSnapshots struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewRedisSnapshots creates a Redis-backed snapshot store. Snapshots expire
// after ttl; zero means no expiry.
func NewRedisSnapshots(client *goredis.Client, ttl time.Duration) *RedisSnapshots {
	return &RedisSnapshots{client: client, ttl: ttl}
}

func (r *RedisSnapshots) Put(ctx context.Context, event models.StatusEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, snapshotKeyPrefix+event.JobID, data, r.ttl).Err()
}

func (r *RedisSnapshots) Get(ctx context.Context, jobID string) (models.StatusEvent, error) {
	data, err := r.client.Get(ctx, snapshotKeyPrefix+jobID).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return models.StatusEvent{}, ErrNoSnapshot
		}
		return models.StatusEvent{}, err
	}
	var event models.StatusEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return models.StatusEvent{}, err
	}
	return event, nil
}
