package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/channels/channeltest"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/models"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/pkg/logging"
)

func TestDispatcherTickDispatchesOnlyDueJobs(t *testing.T) {
	adapter := channeltest.New("instagram", "ig-1")
	f := newFixture(t, adapter)
	f.seedJob(t, 0, "instagram")

	// A second job scheduled for later must stay indexed.
	future := runnerBase.Add(time.Hour)
	item := &models.ContentItem{ID: "content-2", BrandID: "brand-1", Status: models.ContentScheduled, Body: "later"}
	require.NoError(t, f.store.SaveContentItem(context.Background(), item))
	later := models.NewPublishingJob("job-2", "content-2", "brand-1", future, []string{"instagram"}, 0)
	require.NoError(t, f.store.CreateJob(context.Background(), later))
	require.NoError(t, f.index.Schedule("job-2", future, false))

	d := NewDispatcher(DispatcherConfig{
		Runner: f.runner,
		Index:  f.index,
		Clock:  f.clk,
		Logger: logging.NewLoggerWithService("dispatcher-test"),
	})

	d.Tick(context.Background())
	d.wg.Wait()

	job, err := f.store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobPublished, job.Status)
	assert.Equal(t, 1, f.index.Len(), "future job stays indexed")

	f.clk.Set(future)
	d.Tick(context.Background())
	d.wg.Wait()

	job, err = f.store.GetJob(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Equal(t, models.JobPublished, job.Status)
	assert.Equal(t, 0, f.index.Len())
}

func TestDispatcherStartStop(t *testing.T) {
	adapter := channeltest.New("instagram", "ig-1")
	f := newFixture(t, adapter)
	f.seedJob(t, 0, "instagram")

	d := NewDispatcher(DispatcherConfig{
		Runner:   f.runner,
		Index:    f.index,
		Clock:    f.clk,
		Logger:   logging.NewLoggerWithService("dispatcher-test"),
		Interval: 5 * time.Millisecond,
	})

	d.Start()
	deadline := time.Now().Add(2 * time.Second)
	for {
		job, err := f.store.GetJob(context.Background(), "job-1")
		require.NoError(t, err)
		if job.Terminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job not dispatched, status %s", job.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
	d.Stop()

	job, err := f.store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobPublished, job.Status)
}
