package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kondateapp/backend/internal/middleware"
	"github.com/kondateapp/backend/internal/models"
	"github.com/kondateapp/backend/internal/service"
)

// MenuPlanner is the orchestration surface the job endpoints need.
type MenuPlanner interface {
	SubmitJob(ctx context.Context, userID uuid.UUID, start, end time.Time, slots []models.TargetSlot) (*models.GenerationJob, error)
	Run(ctx context.Context, jobID uuid.UUID) error
	Status(ctx context.Context, jobID uuid.UUID) (*models.GenerationJob, error)
	Cancel(ctx context.Context, jobID uuid.UUID) error
	Result(ctx context.Context, jobID uuid.UUID) (*service.JobResult, error)
}

// MenuJobHandler exposes menu generation jobs over HTTP. Submission is
// asynchronous: the job runs in the background and clients poll status.
type MenuJobHandler struct {
	planner     MenuPlanner
	rateLimiter *middleware.RateLimiter
	logger      *zap.Logger
}

// NewMenuJobHandler creates a new MenuJobHandler instance.
func NewMenuJobHandler(planner MenuPlanner, rateLimiter *middleware.RateLimiter, logger *zap.Logger) *MenuJobHandler {
	return &MenuJobHandler{planner: planner, rateLimiter: rateLimiter, logger: logger}
}

// RegisterRoutes registers the menu job routes.
func (h *MenuJobHandler) RegisterRoutes(router *gin.RouterGroup) {
	jobs := router.Group("/menu/jobs")
	jobs.Use(middleware.RequireUser())
	{
		submit := jobs.Group("")
		if h.rateLimiter != nil {
			submit.Use(h.rateLimiter.RateLimitMiddleware())
		}
		submit.POST("", h.SubmitJob)

		jobs.GET("/:id", h.GetJob)
		jobs.GET("/:id/result", h.GetResult)
		jobs.POST("/:id/cancel", h.CancelJob)
	}
}

type submitJobRequest struct {
	StartDate string              `json:"start_date" binding:"required"`
	EndDate   string              `json:"end_date" binding:"required"`
	Slots     []models.TargetSlot `json:"slots"`
}

// SubmitJob validates the request, persists a queued job and launches its
// run in the background.
func (h *MenuJobHandler) SubmitJob(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req submitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	start, err := time.Parse(service.DateLayout, req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be YYYY-MM-DD"})
		return
	}
	end, err := time.Parse(service.DateLayout, req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be YYYY-MM-DD"})
		return
	}

	job, err := h.planner.SubmitJob(c.Request.Context(), userID, start, end, req.Slots)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The run owns its own context; the HTTP request ends here.
	go func() {
		if err := h.planner.Run(context.Background(), job.ID); err != nil && h.logger != nil {
			h.logger.Error("generation job run failed",
				zap.String("job_id", job.ID.String()),
				zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"job_id": job.ID,
		"status": job.Status,
	})
}

// GetJob returns the persisted job state for polling.
func (h *MenuJobHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, err := h.planner.Status(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}
	if !h.ownsJob(c, job) {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":      job.ID,
		"status":      job.Status,
		"cursor":      job.Cursor,
		"total_dates": job.TotalDates,
		"error":       job.Error,
	})
}

// GetResult returns the accepted meals and stats of a completed job.
func (h *MenuJobHandler) GetResult(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, err := h.planner.Status(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}
	if !h.ownsJob(c, job) {
		return
	}

	result, err := h.planner.Result(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// CancelJob requests cooperative cancellation.
func (h *MenuJobHandler) CancelJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, err := h.planner.Status(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}
	if !h.ownsJob(c, job) {
		return
	}

	if err := h.planner.Cancel(c.Request.Context(), jobID); err != nil {
		if errors.Is(err, service.ErrJobTerminal) {
			c.JSON(http.StatusConflict, gin.H{"error": "job already finished"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel job"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cancellation requested"})
}

// ownsJob enforces that callers only see their own jobs. Writes the
// response itself when ownership fails.
func (h *MenuJobHandler) ownsJob(c *gin.Context, job *models.GenerationJob) bool {
	userID, ok := middleware.UserID(c)
	if !ok || job.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return false
	}
	return true
}
