package statushub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/models"
)

func TestMemorySnapshotsLatestWins(t *testing.T) {
	snaps := NewMemorySnapshots()
	ctx := context.Background()

	_, err := snaps.Get(ctx, "job-1")
	require.ErrorIs(t, err, ErrNoSnapshot)

	require.NoError(t, snaps.Put(ctx, models.StatusEvent{JobID: "job-1", Status: "processing", Timestamp: time.Now()}))
	require.NoError(t, snaps.Put(ctx, models.StatusEvent{JobID: "job-1", Status: "published", Timestamp: time.Now()}))

	event, err := snaps.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "published", event.Status)
}

func TestRedisSnapshotsRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	snaps := NewRedisSnapshots(client, time.Hour)
	ctx := context.Background()

	_, err := snaps.Get(ctx, "job-1")
	require.ErrorIs(t, err, ErrNoSnapshot)

	progress := 50
	put := models.StatusEvent{
		JobID:     "job-1",
		Channel:   "linkedin",
		Status:    "processing",
		Progress:  &progress,
		Timestamp: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, snaps.Put(ctx, put))

	got, err := snaps.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, put.JobID, got.JobID)
	assert.Equal(t, put.Channel, got.Channel)
	assert.Equal(t, put.Status, got.Status)
	require.NotNil(t, got.Progress)
	assert.Equal(t, 50, *got.Progress)

	// Snapshots carry a TTL so abandoned jobs age out.
	assert.Greater(t, mr.TTL(snapshotKeyPrefix+"job-1"), time.Duration(0))
}
