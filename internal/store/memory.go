package store

import (
	"context"
	"sync"
	"time"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/models"
)

// Memory is an in-memory implementation of all store interfaces. It backs
// tests and single-node deployments that do not need durability.
type Memory struct {
	mu        sync.Mutex
	content   map[string]*models.ContentItem
	jobs      map[string]*models.PublishingJob
	schedules map[string]*models.PostingSchedule
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		content:   make(map[string]*models.ContentItem),
		jobs:      make(map[string]*models.PublishingJob),
		schedules: make(map[string]*models.PostingSchedule),
	}
}

func (m *Memory) LoadContentItem(_ context.Context, id string) (*models.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.content[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyContent(item), nil
}

func (m *Memory) SaveContentItem(_ context.Context, item *models.ContentItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := copyContent(item)
	saved.UpdatedAt = time.Now().UTC()
	m.content[item.ID] = saved
	return nil
}

func (m *Memory) CreateJob(_ context.Context, job *models.PublishingJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = copyJob(job)
	return nil
}

func (m *Memory) GetJob(_ context.Context, id string) (*models.PublishingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyJob(job), nil
}

func (m *Memory) UpdateJob(_ context.Context, id string, mutate func(*models.PublishingJob) error) (*models.PublishingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := mutate(job); err != nil {
		return nil, err
	}
	job.UpdatedAt = time.Now().UTC()
	return copyJob(job), nil
}

func (m *Memory) ListUnsettledJobs(_ context.Context) ([]*models.PublishingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var unsettled []*models.PublishingJob
	for _, job := range m.jobs {
		switch job.Status {
		case models.JobPending, models.JobProcessing:
			unsettled = append(unsettled, copyJob(job))
		}
	}
	return unsettled, nil
}

func (m *Memory) GetPostingSchedule(_ context.Context, brandID string) (*models.PostingSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	schedule, ok := m.schedules[brandID]
	if !ok {
		return nil, ErrNotFound
	}
	return copySchedule(schedule), nil
}

func (m *Memory) SavePostingSchedule(_ context.Context, schedule *models.PostingSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[schedule.BrandID] = copySchedule(schedule)
	return nil
}

func copyContent(item *models.ContentItem) *models.ContentItem {
	out := *item
	out.MediaURLs = append([]string(nil), item.MediaURLs...)
	if item.ScheduledAt != nil {
		at := *item.ScheduledAt
		out.ScheduledAt = &at
	}
	return &out
}

func copyJob(job *models.PublishingJob) *models.PublishingJob {
	out := *job
	out.Channels = make(map[string]*models.ChannelDelivery, len(job.Channels))
	for name, d := range job.Channels {
		delivery := *d
		if d.LastError != nil {
			lastErr := *d.LastError
			delivery.LastError = &lastErr
		}
		out.Channels[name] = &delivery
	}
	return &out
}

func copySchedule(schedule *models.PostingSchedule) *models.PostingSchedule {
	out := *schedule
	out.Windows = make(map[time.Weekday][]models.PostingWindow, len(schedule.Windows))
	for day, windows := range schedule.Windows {
		out.Windows[day] = append([]models.PostingWindow(nil), windows...)
	}
	return &out
}
