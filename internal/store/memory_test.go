package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/models"
)

func TestMemoryContentRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.LoadContentItem(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	item := &models.ContentItem{ID: "c-1", BrandID: "b-1", Status: models.ContentDraft, Body: "hello"}
	if err := m.SaveContentItem(ctx, item); err != nil {
		t.Fatal(err)
	}

	loaded, err := m.LoadContentItem(ctx, "c-1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Status != models.ContentDraft || loaded.Body != "hello" {
		t.Fatalf("unexpected item: %+v", loaded)
	}

	// Mutating the returned copy must not affect the stored record.
	loaded.Status = models.ContentPublished
	again, _ := m.LoadContentItem(ctx, "c-1")
	if again.Status != models.ContentDraft {
		t.Fatal("store leaked internal state")
	}
}

func TestMemoryUpdateJobSerializesConcurrentCompletions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	job := models.NewPublishingJob("j-1", "c-1", "b-1", time.Now(), []string{"instagram", "linkedin", "facebook"}, 3)
	if err := m.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for _, ch := range []string{"instagram", "linkedin", "facebook"} {
		wg.Add(1)
		go func(channel string) {
			defer wg.Done()
			_, err := m.UpdateJob(ctx, "j-1", func(j *models.PublishingJob) error {
				j.Channels[channel].Status = models.ChannelPublished
				j.Status = j.DeriveStatus()
				return nil
			})
			if err != nil {
				t.Error(err)
			}
		}(ch)
	}
	wg.Wait()

	final, err := m.GetJob(ctx, "j-1")
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != models.JobPublished {
		t.Fatalf("expected published after all channels settle, got %s", final.Status)
	}
}

func TestMemoryUpdateJobMutateErrorLeavesStateUntouched(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	job := models.NewPublishingJob("j-2", "c-1", "b-1", time.Now(), []string{"instagram"}, 3)
	if err := m.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	wantErr := context.Canceled
	if _, err := m.UpdateJob(ctx, "j-2", func(j *models.PublishingJob) error {
		return wantErr
	}); err != wantErr {
		t.Fatalf("expected mutate error surfaced, got %v", err)
	}
}

func TestMemoryListUnsettledJobs(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	pending := models.NewPublishingJob("j-pending", "c-1", "b-1", time.Now(), []string{"instagram"}, 2)
	if err := m.CreateJob(ctx, pending); err != nil {
		t.Fatal(err)
	}
	done := models.NewPublishingJob("j-done", "c-2", "b-1", time.Now(), []string{"instagram"}, 2)
	done.Channels["instagram"].Status = models.ChannelPublished
	done.Status = models.JobPublished
	if err := m.CreateJob(ctx, done); err != nil {
		t.Fatal(err)
	}

	unsettled, err := m.ListUnsettledJobs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(unsettled) != 1 || unsettled[0].ID != "j-pending" {
		t.Fatalf("expected only the pending job, got %+v", unsettled)
	}
}

func TestMemoryPostingScheduleRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	schedule := &models.PostingSchedule{
		BrandID: "b-1",
		Windows: map[time.Weekday][]models.PostingWindow{
			time.Monday: {{Start: "09:00", End: "11:00"}},
		},
	}
	if err := m.SavePostingSchedule(ctx, schedule); err != nil {
		t.Fatal(err)
	}

	loaded, err := m.GetPostingSchedule(ctx, "b-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Windows[time.Monday]) != 1 {
		t.Fatalf("unexpected windows: %+v", loaded.Windows)
	}
}
