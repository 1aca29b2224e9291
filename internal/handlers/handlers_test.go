package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/channels"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/channels/channeltest"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/clock"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/models"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/schedule"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/statushub"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/store"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/pkg/logging"
)

// Tuesday noon UTC.
var apiBase = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

type apiFixture struct {
	router *gin.Engine
	store  *store.Memory
	index  *schedule.Index
	clk    *clock.Fake
	prop   *statushub.Propagator
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	return newAPIFixtureWithJobs(t, func(mem *store.Memory) store.JobStore { return mem })
}

// newAPIFixtureWithJobs lets a test wrap the job store, e.g. to observe
// handler behavior mid-write.
func newAPIFixtureWithJobs(t *testing.T, wrapJobs func(*store.Memory) store.JobStore) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logging.NewLoggerWithService("handlers-test")

	mem := store.NewMemory()
	clk := clock.NewFake(apiBase)
	index := schedule.NewIndex(clk)
	jobs := wrapJobs(mem)

	reg := channels.NewRegistry()
	require.NoError(t, reg.Register(channeltest.New("instagram", "ig-1")))
	require.NoError(t, reg.Register(channeltest.New("linkedin", "li-1")))

	hub := statushub.NewHub(logger)
	go hub.Run()
	t.Cleanup(hub.Stop)
	prop := statushub.NewPropagator(hub, statushub.NewMemorySnapshots(), nil, nil, logger)

	coord := schedule.NewCoordinator(jobs, mem, index, clk, logger)

	h := New(Config{
		Content:    mem,
		Jobs:       jobs,
		Schedules:  mem,
		Registry:   reg,
		Index:      index,
		Coord:      coord,
		Propagator: prop,
		Hub:        hub,
		Clock:      clk,
		Logger:     logger,
	})

	router := gin.New()
	h.RegisterRoutes(router)

	return &apiFixture{router: router, store: mem, index: index, clk: clk, prop: prop}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) seedContent(t *testing.T, id string, status models.ContentStatus) {
	t.Helper()
	require.NoError(t, f.store.SaveContentItem(context.Background(), &models.ContentItem{
		ID:      id,
		BrandID: "brand-1",
		Status:  status,
		Body:    "hello",
	}))
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestScheduleContentCreatesJob(t *testing.T) {
	f := newAPIFixture(t)
	f.seedContent(t, "content-1", models.ContentApproved)

	w := f.do(t, http.MethodPost, "/content/content-1/schedule", gin.H{
		"scheduled_at": apiBase.Add(time.Hour),
		"channels":     []string{"instagram", "linkedin"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decodeBody(t, w)
	var job models.PublishingJob
	require.NoError(t, json.Unmarshal(body["job"], &job))
	assert.Equal(t, models.JobPending, job.Status)
	assert.Len(t, job.Channels, 2)
	assert.Equal(t, 2, job.Channels["instagram"].MaxRetries)

	stored, err := f.store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, stored.ScheduledAt.Equal(apiBase.Add(time.Hour)))
	assert.Equal(t, 1, f.index.Len())

	item, err := f.store.LoadContentItem(context.Background(), "content-1")
	require.NoError(t, err)
	assert.Equal(t, models.ContentScheduled, item.Status)
	require.NotNil(t, item.ScheduledAt)
}

type hookedJobStore struct {
	store.JobStore
	onCreate func()
}

func (h *hookedJobStore) CreateJob(ctx context.Context, job *models.PublishingJob) error {
	if h.onCreate != nil {
		h.onCreate()
	}
	return h.JobStore.CreateJob(ctx, job)
}

func TestScheduleContentPersistsJobBeforeIndexing(t *testing.T) {
	var dueDuringCreate []string
	var index *schedule.Index

	f := newAPIFixtureWithJobs(t, func(mem *store.Memory) store.JobStore {
		return &hookedJobStore{JobStore: mem, onCreate: func() {
			// A dispatcher tick at this instant must not pop a job id the
			// store cannot resolve yet.
			dueDuringCreate = index.DueJobs(apiBase.Add(24 * time.Hour))
		}}
	})
	index = f.index
	f.seedContent(t, "content-1", models.ContentApproved)

	w := f.do(t, http.MethodPost, "/content/content-1/schedule", gin.H{
		"scheduled_at": apiBase.Add(time.Hour),
		"channels":     []string{"instagram"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	assert.Empty(t, dueDuringCreate, "job must be persisted before it can come due")
	assert.Equal(t, 1, f.index.Len())
}

func TestScheduleContentRejectsUnknownChannel(t *testing.T) {
	f := newAPIFixture(t)
	f.seedContent(t, "content-1", models.ContentApproved)

	w := f.do(t, http.MethodPost, "/content/content-1/schedule", gin.H{
		"scheduled_at": apiBase.Add(time.Hour),
		"channels":     []string{"tiktok"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, f.index.Len())
}

func TestScheduleContentRejectsPastTime(t *testing.T) {
	f := newAPIFixture(t)
	f.seedContent(t, "content-1", models.ContentApproved)

	w := f.do(t, http.MethodPost, "/content/content-1/schedule", gin.H{
		"scheduled_at": apiBase.Add(-time.Hour),
		"channels":     []string{"instagram"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestScheduleContentPublishNowOverridesPastCheck(t *testing.T) {
	f := newAPIFixture(t)
	f.seedContent(t, "content-1", models.ContentDraft)

	w := f.do(t, http.MethodPost, "/content/content-1/schedule", gin.H{
		"channels":    []string{"instagram"},
		"publish_now": true,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 1, f.index.Len())
}

func TestScheduleContentIllegalTransition(t *testing.T) {
	f := newAPIFixture(t)
	f.seedContent(t, "content-1", models.ContentPublished)

	w := f.do(t, http.MethodPost, "/content/content-1/schedule", gin.H{
		"scheduled_at": apiBase.Add(time.Hour),
		"channels":     []string{"instagram"},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 0, f.index.Len())
}

func TestTransitionContent(t *testing.T) {
	f := newAPIFixture(t)
	f.seedContent(t, "content-1", models.ContentDraft)

	w := f.do(t, http.MethodPost, "/content/content-1/transition", gin.H{"target": "pending_review"})
	require.Equal(t, http.StatusOK, w.Code)

	item, err := f.store.LoadContentItem(context.Background(), "content-1")
	require.NoError(t, err)
	assert.Equal(t, models.ContentPendingReview, item.Status)

	// draft -> published is not an edge.
	f.seedContent(t, "content-2", models.ContentDraft)
	w = f.do(t, http.MethodPost, "/content/content-2/transition", gin.H{"target": "published"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/content/missing/transition", gin.H{"target": "draft"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func scheduleJob(t *testing.T, f *apiFixture, contentID string) models.PublishingJob {
	t.Helper()
	f.seedContent(t, contentID, models.ContentApproved)
	w := f.do(t, http.MethodPost, "/content/"+contentID+"/schedule", gin.H{
		"scheduled_at": apiBase.Add(time.Hour),
		"channels":     []string{"instagram"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var job models.PublishingJob
	require.NoError(t, json.Unmarshal(decodeBody(t, w)["job"], &job))
	return job
}

func TestRescheduleAppliesWithAdvisory(t *testing.T) {
	f := newAPIFixture(t)
	job := scheduleJob(t, f, "content-1")

	// Preferred windows: Tuesday 09:00-11:00 only.
	w := f.do(t, http.MethodPut, "/brands/brand-1/posting-schedule", gin.H{
		"windows": map[string][]gin.H{
			"2": {{"start": "09:00", "end": "11:00"}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// 14:00 Tuesday is outside the preferred window; the move still applies.
	newTime := apiBase.Add(2 * time.Hour)
	w = f.do(t, http.MethodPost, "/jobs/"+job.ID+"/reschedule", gin.H{"scheduled_at": newTime})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result schedule.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Applied)
	assert.Equal(t, schedule.AdvisoryOutsideWindow, result.Advisory)

	stored, err := f.store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, stored.ScheduledAt.Equal(newTime))
}

func TestRescheduleDispatchedJobConflicts(t *testing.T) {
	f := newAPIFixture(t)
	job := scheduleJob(t, f, "content-1")

	_, err := f.store.UpdateJob(context.Background(), job.ID, func(j *models.PublishingJob) error {
		j.Channels["instagram"].Status = models.ChannelPublished
		j.Status = j.DeriveStatus()
		return nil
	})
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/jobs/"+job.ID+"/reschedule", gin.H{
		"scheduled_at": apiBase.Add(3 * time.Hour),
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/jobs/missing/reschedule", gin.H{
		"scheduled_at": apiBase.Add(3 * time.Hour),
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelJob(t *testing.T) {
	f := newAPIFixture(t)
	job := scheduleJob(t, f, "content-1")

	w := f.do(t, http.MethodPost, "/jobs/"+job.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)

	stored, err := f.store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, stored.Status)
	assert.Equal(t, 0, f.index.Len())
}

func TestGetJobAndStatusSnapshot(t *testing.T) {
	f := newAPIFixture(t)
	job := scheduleJob(t, f, "content-1")

	w := f.do(t, http.MethodGet, "/jobs/"+job.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// No events recorded yet.
	w = f.do(t, http.MethodGet, "/jobs/"+job.ID+"/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	progress := 100
	f.prop.Publish(models.StatusEvent{JobID: job.ID, Status: string(models.JobPublished), Progress: &progress})

	w = f.do(t, http.MethodGet, "/jobs/"+job.ID+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var event models.StatusEvent
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &event))
	assert.Equal(t, string(models.JobPublished), event.Status)
}

func TestPostingScheduleRoundTrip(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/brands/brand-1/posting-schedule", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPut, "/brands/brand-1/posting-schedule", gin.H{
		"windows": map[string][]gin.H{
			fmt.Sprintf("%d", int(time.Monday)): {{"start": "09:00", "end": "11:00"}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/brands/brand-1/posting-schedule", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var sched models.PostingSchedule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sched))
	assert.Equal(t, "brand-1", sched.BrandID)
	assert.Len(t, sched.Windows[time.Monday], 1)
}

func TestPostingScheduleRejectsMalformedWindows(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPut, "/brands/brand-1/posting-schedule", gin.H{
		"windows": map[string][]gin.H{
			"1": {{"start": "25:00", "end": "11:00"}},
		},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPut, "/brands/brand-1/posting-schedule", gin.H{
		"windows": map[string][]gin.H{
			"1": {{"start": "11:00", "end": "09:00"}},
		},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
