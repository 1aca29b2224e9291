// Package handlers exposes the publishing orchestration HTTP API.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/channels"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/clock"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/lifecycle"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/models"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/schedule"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/statushub"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/internal/store"
	"github.com/Aligned-Design/aligned-postd-1125-sub014/pkg/logging"
)

// Handlers holds the dependencies for the publishing API.
type Handlers struct {
	content   store.ContentRepository
	jobs      store.JobStore
	schedules store.ScheduleStore
	registry  *channels.Registry
	index     *schedule.Index
	coord     *schedule.Coordinator
	prop      *statushub.Propagator
	hub       *statushub.Hub
	clk       clock.Clock
	logger    logging.Logger

	// maxRetries applied to new jobs unless the request overrides it.
	maxRetries int
}

// Config wires the handler dependencies.
type Config struct {
	Content    store.ContentRepository
	Jobs       store.JobStore
	Schedules  store.ScheduleStore
	Registry   *channels.Registry
	Index      *schedule.Index
	Coord      *schedule.Coordinator
	Propagator *statushub.Propagator
	Hub        *statushub.Hub
	Clock      clock.Clock
	Logger     logging.Logger
	MaxRetries int // default 2
}

// New creates the API handlers.
func New(cfg Config) *Handlers {
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	return &Handlers{
		content:    cfg.Content,
		jobs:       cfg.Jobs,
		schedules:  cfg.Schedules,
		registry:   cfg.Registry,
		index:      cfg.Index,
		coord:      cfg.Coord,
		prop:       cfg.Propagator,
		hub:        cfg.Hub,
		clk:        cfg.Clock,
		logger:     cfg.Logger,
		maxRetries: maxRetries,
	}
}

// RegisterRoutes attaches the publishing API to the router.
func (h *Handlers) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws", h.ServeWS)

	router.GET("/jobs/:id", h.GetJob)
	router.GET("/jobs/:id/status", h.GetJobStatus)
	router.POST("/jobs/:id/reschedule", h.RescheduleJob)
	router.POST("/jobs/:id/cancel", h.CancelJob)

	router.POST("/content/:id/transition", h.TransitionContent)
	router.POST("/content/:id/schedule", h.ScheduleContent)

	router.GET("/brands/:id/posting-schedule", h.GetPostingSchedule)
	router.PUT("/brands/:id/posting-schedule", h.PutPostingSchedule)
}

// ServeWS upgrades the connection and hands it to the status hub.
func (h *Handlers) ServeWS(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}

// GetJob returns the job with its per-channel delivery statuses.
func (h *Handlers) GetJob(c *gin.Context) {
	job, err := h.jobs.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		h.logger.WithError(err).Error("Failed to load job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job, "progress": job.Progress()})
}

// GetJobStatus serves the latest status snapshot. Observers poll this when
// they missed push events; it must reflect every recorded update.
func (h *Handlers) GetJobStatus(c *gin.Context) {
	event, err := h.prop.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, statushub.ErrNoSnapshot) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no status recorded for job"})
			return
		}
		h.logger.WithError(err).Error("Failed to load status snapshot")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load status"})
		return
	}
	c.JSON(http.StatusOK, event)
}

type rescheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
	PublishNow  bool      `json:"publish_now"`
}

// RescheduleJob moves a pending job to a new due time. The posting-window
// check is advisory: the move applies either way and the response carries the
// note.
func (h *Handlers) RescheduleJob(c *gin.Context) {
	var req rescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scheduled_at is required"})
		return
	}

	result, err := h.coord.Reschedule(c.Request.Context(), c.Param("id"), req.ScheduledAt, req.PublishNow)
	if err != nil {
		var invalid *schedule.InvalidScheduleError
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		case errors.Is(err, schedule.ErrAlreadyDispatched):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.As(err, &invalid):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			h.logger.WithError(err).Error("Reschedule failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reschedule failed"})
		}
		return
	}
	c.JSON(http.StatusOK, result)
}

// CancelJob cancels a job. Already settled channels keep their outcome.
func (h *Handlers) CancelJob(c *gin.Context) {
	if err := h.coord.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		h.logger.WithError(err).Error("Cancel failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cancel failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.JobCancelled})
}

type transitionRequest struct {
	Target models.ContentStatus `json:"target" binding:"required"`
}

// TransitionContent moves a content item through the lifecycle machine.
func (h *Handlers) TransitionContent(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target is required"})
		return
	}

	item, err := h.content.LoadContentItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "content not found"})
			return
		}
		h.logger.WithError(err).Error("Failed to load content item")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load content"})
		return
	}

	next, err := lifecycle.Transition(item.Status, req.Target)
	if err != nil {
		var illegal *lifecycle.IllegalTransitionError
		if errors.As(err, &illegal) {
			c.JSON(http.StatusConflict, gin.H{"error": illegal.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transition failed"})
		return
	}

	item.Status = next
	item.UpdatedAt = h.clk.Now()
	if next != models.ContentScheduled {
		item.ScheduledAt = nil
	}
	if err := h.content.SaveContentItem(c.Request.Context(), item); err != nil {
		h.logger.WithError(err).Error("Failed to save content item")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save content"})
		return
	}
	c.JSON(http.StatusOK, item)
}

type scheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
	Channels    []string  `json:"channels" binding:"required"`
	PublishNow  bool      `json:"publish_now"`
	MaxRetries  *int      `json:"max_retries"`
}

// ScheduleContent transitions a content item to scheduled, creates its
// publishing job and indexes the due time.
func (h *Handlers) ScheduleContent(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channels are required"})
		return
	}
	if len(req.Channels) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one channel is required"})
		return
	}
	for _, ch := range req.Channels {
		if _, err := h.registry.Get(ch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	scheduledAt := req.ScheduledAt
	if req.PublishNow || scheduledAt.IsZero() {
		scheduledAt = h.clk.Now()
	}
	if !req.PublishNow && scheduledAt.Before(h.clk.Now()) {
		invalid := &schedule.InvalidScheduleError{At: scheduledAt, Now: h.clk.Now()}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": invalid.Error()})
		return
	}

	item, err := h.content.LoadContentItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "content not found"})
			return
		}
		h.logger.WithError(err).Error("Failed to load content item")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load content"})
		return
	}

	next, err := lifecycle.Transition(item.Status, models.ContentScheduled)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	maxRetries := h.maxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}
	job := models.NewPublishingJob(uuid.New().String(), item.ID, item.BrandID, scheduledAt, req.Channels, maxRetries)

	// Persist before indexing: a dispatcher tick must never pop a job id the
	// store cannot resolve.
	if err := h.jobs.CreateJob(c.Request.Context(), job); err != nil {
		h.logger.WithError(err).Error("Failed to create job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create job"})
		return
	}

	// The due time was validated above, so override the index's past-time
	// check rather than racing the clock.
	if err := h.index.Schedule(job.ID, scheduledAt, true); err != nil {
		if _, uerr := h.jobs.UpdateJob(c.Request.Context(), job.ID, func(j *models.PublishingJob) error {
			for _, d := range j.Channels {
				d.Status = models.ChannelCancelled
			}
			j.Status = models.JobCancelled
			return nil
		}); uerr != nil {
			h.logger.WithError(uerr).WithField("job_id", job.ID).Error("Failed to void unindexed job")
		}
		h.logger.WithError(err).Error("Failed to index job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to index job"})
		return
	}

	item.Status = next
	item.ScheduledAt = &scheduledAt
	item.UpdatedAt = h.clk.Now()
	if err := h.content.SaveContentItem(c.Request.Context(), item); err != nil {
		h.logger.WithError(err).Error("Failed to save scheduled content item")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save content"})
		return
	}

	h.logger.WithFields(logging.Fields{
		"job_id":       job.ID,
		"content_id":   item.ID,
		"brand_id":     item.BrandID,
		"scheduled_at": scheduledAt,
		"channels":     req.Channels,
	}).Info("Content scheduled for publishing")

	c.JSON(http.StatusCreated, gin.H{"job": job, "content": item})
}

// GetPostingSchedule returns a brand's preferred posting windows.
func (h *Handlers) GetPostingSchedule(c *gin.Context) {
	sched, err := h.schedules.GetPostingSchedule(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no posting schedule for brand"})
			return
		}
		h.logger.WithError(err).Error("Failed to load posting schedule")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load posting schedule"})
		return
	}
	c.JSON(http.StatusOK, sched)
}

type putScheduleRequest struct {
	Windows map[time.Weekday][]models.PostingWindow `json:"windows" binding:"required"`
}

// PutPostingSchedule replaces a brand's preferred posting windows.
func (h *Handlers) PutPostingSchedule(c *gin.Context) {
	var req putScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "windows are required"})
		return
	}

	for day, windows := range req.Windows {
		if day < time.Sunday || day > time.Saturday {
			c.JSON(http.StatusBadRequest, gin.H{"error": "weekday out of range"})
			return
		}
		for _, w := range windows {
			start, err1 := time.Parse("15:04", w.Start)
			end, err2 := time.Parse("15:04", w.End)
			if err1 != nil || err2 != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "windows must use HH:MM wall-clock times"})
				return
			}
			if !start.Before(end) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "window start must precede end"})
				return
			}
		}
	}

	sched := &models.PostingSchedule{BrandID: c.Param("id"), Windows: req.Windows}
	if err := h.schedules.SavePostingSchedule(c.Request.Context(), sched); err != nil {
		h.logger.WithError(err).Error("Failed to save posting schedule")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save posting schedule"})
		return
	}
	c.JSON(http.StatusOK, sched)
}
