package models

import "time"

// ReportRecord is one extracted client/product/narrative tuple. A single mail
// can yield many records; they share the same mail_id.
type ReportRecord struct {
	ID               uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	MailID           string    `json:"mail_id" gorm:"type:varchar(64);not null;index"`
	ReportDate       string    `json:"report_date" gorm:"type:varchar(10);index"`
	Reporter         string    `json:"reporter" gorm:"type:varchar(64);index"`
	ClientName       string    `json:"client_name" gorm:"type:varchar(255)"`
	ClientDepartment string    `json:"client_department" gorm:"type:varchar(255)"`
	ClientPerson     string    `json:"client_person" gorm:"type:varchar(255)"`
	EmployeeName     string    `json:"employee_name" gorm:"type:varchar(255)"`
	ProductName      string    `json:"product_name" gorm:"type:varchar(255)"`
	Content          string    `json:"content" gorm:"type:text"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName specifies the table name for ReportRecord
func (ReportRecord) TableName() string {
	return "weekly_reports"
}

// Ingest outcome statuses recorded per mail.
const (
	StatusRegistered    = "registered"
	StatusNonReport     = "non_report"
	StatusMalformed     = "malformed"
	StatusPersistFailed = "persist_failed"
)

// IngestLog records the outcome of processing one mail
type IngestLog struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	MailID     string    `json:"mail_id" gorm:"type:varchar(64);not null;index"`
	Status     string    `json:"status" gorm:"type:varchar(32);not null"`
	Detail     string    `json:"detail" gorm:"type:text"`
	EntryCount int       `json:"entry_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for IngestLog
func (IngestLog) TableName() string {
	return "ingest_logs"
}

// EmailMessage is a fetched mail, immutable once returned by the source
type EmailMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    string `json:"from"`
	Date    string `json:"date"`
	Body    string `json:"body"`
}
