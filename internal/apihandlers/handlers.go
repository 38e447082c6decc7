package apihandlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docq/internal/app"
	"docq/internal/models"
)

type APIHandler struct {
	App *app.App
}

func NewAPIHandler(appInstance *app.App) *APIHandler {
	return &APIHandler{App: appInstance}
}

type enqueueRequest struct {
	QueueType        string          `json:"queue_type" binding:"required"`
	UserID           string          `json:"user_id"`
	Priority         int             `json:"priority"`
	Payload          json.RawMessage `json:"payload" binding:"required"`
	EstimatedSeconds *int            `json:"estimated_duration,omitempty"`
}

// EnqueueJobHandler accepts a new job and returns the created record.
func (h *APIHandler) EnqueueJobHandler(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	priority := models.JobPriority(req.Priority)
	if req.Priority == 0 {
		priority = models.PriorityNormal
	}

	queueType := models.QueueType(req.QueueType)
	if queueType == models.QueueDocumentProcessing {
		if _, err := models.DecodeDocumentPayload(req.Payload); err != nil {
			BadRequest(c, "Invalid document payload: "+err.Error())
			return
		}
	}

	job, err := h.App.Engine.Enqueue(c.Request.Context(), queueType, req.UserID, req.Payload, priority, req.EstimatedSeconds)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, job)
}

// GetJobHandler returns one job record.
func (h *APIHandler) GetJobHandler(c *gin.Context) {
	job, err := h.App.Engine.GetJobStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// CancelJobHandler cancels a queued or processing job.
func (h *APIHandler) CancelJobHandler(c *gin.Context) {
	if err := h.App.Engine.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// ListJobsHandler returns a user's jobs, optionally filtered by status.
func (h *APIHandler) ListJobsHandler(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		BadRequest(c, "user_id query parameter is required")
		return
	}

	var status *models.JobStatus
	if s := c.Query("status"); s != "" {
		st := models.JobStatus(s)
		if !st.Valid() {
			BadRequest(c, "unknown status "+s)
			return
		}
		status = &st
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	jobs, err := h.App.Engine.GetUserJobs(c.Request.Context(), userID, status, limit)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

// QueueStatsHandler returns depth and status histograms for every queue.
func (h *APIHandler) QueueStatsHandler(c *gin.Context) {
	stats, err := h.App.Engine.GetSystemStatistics(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ActiveWorkersHandler returns the workers inferred from in-flight jobs.
func (h *APIHandler) ActiveWorkersHandler(c *gin.Context) {
	workers, err := h.App.Engine.GetActiveWorkers(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workers": workers, "count": len(workers)})
}

type purgeRequest struct {
	OlderThanDays int `json:"older_than_days" binding:"required"`
}

// PurgeJobsHandler deletes terminal jobs past the retention window.
func (h *APIHandler) PurgeJobsHandler(c *gin.Context) {
	var req purgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	removed, err := h.App.Engine.PurgeCompletedJobs(c.Request.Context(), req.OlderThanDays)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purged_jobs": removed})
}

// ReconcileHandler republishes orphaned queued jobs.
func (h *APIHandler) ReconcileHandler(c *gin.Context) {
	republished, err := h.App.Engine.Reconcile(c.Request.Context(), 0)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"republished_jobs": republished})
}

// HealthHandler reports store connectivity and overall queue health.
func (h *APIHandler) HealthHandler(c *gin.Context) {
	if err := h.App.JobStore.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": err.Error()})
		return
	}

	stats, err := h.App.Engine.GetSystemStatistics(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "queues": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": stats.OverallHealth, "queues": stats.Queues})
}
