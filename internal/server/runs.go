package server

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"weekly-report-hub/internal/runs"
)

// StartRun triggers an ingestion run in the background
func (h *Handlers) StartRun(c *gin.Context) {
	for _, snap := range h.registry.List() {
		if snap.Status == runs.StatusRunning {
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "run_active",
				Message: "An ingestion run is already in progress",
				Code:    http.StatusConflict,
			})
			return
		}
	}

	run := h.scheduler.RunOnce()
	snap := run.Snapshot()

	c.JSON(http.StatusAccepted, gin.H{
		"run_id": snap.ID,
		"status": snap.Status,
	})
}

// ListRuns returns snapshots of all known runs, newest first
func (h *Handlers) ListRuns(c *gin.Context) {
	snaps := h.registry.List()
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].StartedAt.After(snaps[j].StartedAt)
	})
	c.JSON(http.StatusOK, snaps)
}

// GetRun returns one run's snapshot plus its output past the given offset
func (h *Handlers) GetRun(c *gin.Context) {
	run, ok := h.registry.Get(c.Param("id"))
	if !ok {
		h.notFound(c, "Run not found")
		return
	}

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	snap := run.Snapshot()
	output, next := run.Output(offset)

	c.JSON(http.StatusOK, gin.H{
		"id":          snap.ID,
		"status":      snap.Status,
		"error":       snap.Error,
		"started_at":  snap.StartedAt,
		"finished_at": snap.FinishedAt,
		"stats":       snap.Stats,
		"new_output":  output,
		"next_offset": next,
	})
}

// StartScheduler starts the periodic ingestion scheduler
func (h *Handlers) StartScheduler(c *gin.Context) {
	if h.scheduler.IsRunning() {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "scheduler_running",
			Message: "Scheduler is already running",
			Code:    http.StatusConflict,
		})
		return
	}

	if err := h.scheduler.Start(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scheduler_error",
			Message: "Failed to start scheduler",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Scheduler started",
	})
}

// StopScheduler stops the periodic ingestion scheduler
func (h *Handlers) StopScheduler(c *gin.Context) {
	if !h.scheduler.IsRunning() {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "scheduler_stopped",
			Message: "Scheduler is not running",
			Code:    http.StatusConflict,
		})
		return
	}

	if err := h.scheduler.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scheduler_error",
			Message: "Failed to stop scheduler",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Scheduler stopped",
	})
}

// GetSchedulerStatus reports whether the scheduler is running and its next run
func (h *Handlers) GetSchedulerStatus(c *gin.Context) {
	status := gin.H{
		"running": h.scheduler.IsRunning(),
	}

	if h.scheduler.IsRunning() {
		status["next_run"] = h.scheduler.GetNextRun()
		if last := h.scheduler.GetLastRun(); !last.IsZero() {
			status["last_run"] = last
		}
	}

	c.JSON(http.StatusOK, status)
}
