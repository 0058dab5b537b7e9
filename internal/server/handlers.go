package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"weekly-report-hub/internal/repository"
	"weekly-report-hub/internal/runs"
	"weekly-report-hub/internal/scheduler"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	repo      *repository.Repository
	registry  *runs.Registry
	scheduler *scheduler.Scheduler
}

// NewHandlers creates new HTTP handlers
func NewHandlers(repo *repository.Repository, registry *runs.Registry, sched *scheduler.Scheduler) *Handlers {
	return &Handlers{
		repo:      repo,
		registry:  registry,
		scheduler: sched,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		// Report queries
		api.GET("/reports", h.GetReports)
		api.GET("/mails/:mail_id", h.GetMailRecords)
		api.DELETE("/mails/:mail_id", h.DeleteMailRecords)
		api.GET("/records/:id", h.GetRecord)
		api.PUT("/records/:id", h.UpdateRecord)

		// Facets
		api.GET("/reporters", h.GetReporters)
		api.GET("/clients", h.GetClients)
		api.GET("/products", h.GetProducts)
		api.GET("/clients/:client/records", h.GetClientRecords)
		api.GET("/products/:product/records", h.GetProductRecords)

		// Statistics and ingest history
		api.GET("/stats", h.GetStats)
		api.GET("/logs", h.GetIngestLogs)

		// Ingestion runs
		api.POST("/runs", h.StartRun)
		api.GET("/runs", h.ListRuns)
		api.GET("/runs/:id", h.GetRun)

		// Scheduler control
		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Details:   make(map[string]string),
	}

	if err := h.repo.DB().Raw("SELECT 1").Error; err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	if h.scheduler.IsRunning() {
		response.Details["scheduler"] = "running"
		response.Details["next_run"] = h.scheduler.GetNextRun().Format(time.RFC3339)
	} else {
		response.Details["scheduler"] = "stopped"
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}
