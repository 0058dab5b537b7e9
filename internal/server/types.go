package server

import "time"

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Details   map[string]string `json:"details,omitempty"`
}

// RecordUpdateRequest is the editable subset of a report record
type RecordUpdateRequest struct {
	ReportDate       string `json:"report_date"`
	Reporter         string `json:"reporter"`
	ClientName       string `json:"client_name"`
	ClientDepartment string `json:"client_department"`
	ClientPerson     string `json:"client_person"`
	EmployeeName     string `json:"employee_name"`
	ProductName      string `json:"product_name"`
	Content          string `json:"content"`
}
