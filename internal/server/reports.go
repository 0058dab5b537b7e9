package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"weekly-report-hub/internal/models"
	"weekly-report-hub/internal/repository"
)

// GetReports returns filtered, per-mail grouped report summaries
func (h *Handlers) GetReports(c *gin.Context) {
	filter := repository.Filter{
		Reporter: c.Query("reporter"),
		Client:   c.Query("client"),
		Product:  c.Query("product"),
		DateFrom: c.Query("date_from"),
		DateTo:   c.Query("date_to"),
		Search:   c.Query("search"),
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	perPage, err := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if err != nil || perPage < 1 || perPage > 100 {
		perPage = 20
	}

	summaries, total, err := h.repo.ListMailSummaries(filter, page, perPage)
	if err != nil {
		h.databaseError(c, "Failed to fetch reports")
		return
	}
	if summaries == nil {
		summaries = []repository.MailSummary{}
	}

	c.JSON(http.StatusOK, gin.H{
		"reports":     summaries,
		"total_count": total,
		"page":        page,
		"per_page":    perPage,
		"has_more":    total > int64(page*perPage),
	})
}

// GetMailRecords returns every record extracted from one mail
func (h *Handlers) GetMailRecords(c *gin.Context) {
	records, err := h.repo.GetMailRecords(c.Param("mail_id"))
	if err != nil {
		h.databaseError(c, "Failed to fetch mail records")
		return
	}
	if records == nil {
		records = []models.ReportRecord{}
	}
	c.JSON(http.StatusOK, records)
}

// DeleteMailRecords removes every record of one mail
func (h *Handlers) DeleteMailRecords(c *gin.Context) {
	deleted, err := h.repo.DeleteMailRecords(c.Param("mail_id"))
	if err != nil {
		h.databaseError(c, "Failed to delete mail records")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"deleted_count": deleted,
	})
}

// GetRecord returns a single record
func (h *Handlers) GetRecord(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		h.badRequest(c, "invalid_id", "Invalid record ID")
		return
	}

	record, err := h.repo.GetRecord(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.notFound(c, "Record not found")
			return
		}
		h.databaseError(c, "Failed to fetch record")
		return
	}

	c.JSON(http.StatusOK, record)
}

// UpdateRecord overwrites a record's editable fields
func (h *Handlers) UpdateRecord(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		h.badRequest(c, "invalid_id", "Invalid record ID")
		return
	}

	var req RecordUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "validation_error", "Invalid request body")
		return
	}

	update := models.ReportRecord{
		ReportDate:       req.ReportDate,
		Reporter:         req.Reporter,
		ClientName:       req.ClientName,
		ClientDepartment: req.ClientDepartment,
		ClientPerson:     req.ClientPerson,
		EmployeeName:     req.EmployeeName,
		ProductName:      req.ProductName,
		Content:          req.Content,
	}

	if err := h.repo.UpdateRecord(uint(id), update); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.notFound(c, "Record not found")
			return
		}
		h.databaseError(c, "Failed to update record")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetReporters returns the distinct reporter names
func (h *Handlers) GetReporters(c *gin.Context) {
	h.facetList(c, h.repo.Reporters)
}

// GetClients returns the distinct client names
func (h *Handlers) GetClients(c *gin.Context) {
	h.facetList(c, h.repo.Clients)
}

// GetProducts returns the distinct product names
func (h *Handlers) GetProducts(c *gin.Context) {
	h.facetList(c, h.repo.Products)
}

func (h *Handlers) facetList(c *gin.Context, fetch func() ([]string, error)) {
	values, err := fetch()
	if err != nil {
		h.databaseError(c, "Failed to fetch values")
		return
	}
	if values == nil {
		values = []string{}
	}
	c.JSON(http.StatusOK, values)
}

// GetClientRecords returns every record mentioning the client
func (h *Handlers) GetClientRecords(c *gin.Context) {
	records, err := h.repo.ListRecordsByClient(c.Param("client"))
	if err != nil {
		h.databaseError(c, "Failed to fetch client records")
		return
	}
	if records == nil {
		records = []models.ReportRecord{}
	}
	c.JSON(http.StatusOK, records)
}

// GetProductRecords returns every record mentioning the product
func (h *Handlers) GetProductRecords(c *gin.Context) {
	records, err := h.repo.ListRecordsByProduct(c.Param("product"))
	if err != nil {
		h.databaseError(c, "Failed to fetch product records")
		return
	}
	if records == nil {
		records = []models.ReportRecord{}
	}
	c.JSON(http.StatusOK, records)
}

// GetStats returns aggregate reporting statistics
func (h *Handlers) GetStats(c *gin.Context) {
	stats, err := h.repo.GetStats()
	if err != nil {
		h.databaseError(c, "Failed to compute statistics")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetIngestLogs returns per-mail ingest outcomes with pagination
func (h *Handlers) GetIngestLogs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}

	logs, total, err := h.repo.ListIngestLogs(page, limit)
	if err != nil {
		h.databaseError(c, "Failed to fetch ingest logs")
		return
	}
	if logs == nil {
		logs = []models.IngestLog{}
	}

	c.JSON(http.StatusOK, gin.H{
		"logs": logs,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

func (h *Handlers) badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   code,
		Message: message,
		Code:    http.StatusBadRequest,
	})
}

func (h *Handlers) notFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, ErrorResponse{
		Error:   "not_found",
		Message: message,
		Code:    http.StatusNotFound,
	})
}

func (h *Handlers) databaseError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "database_error",
		Message: message,
		Code:    http.StatusInternalServerError,
	})
}
