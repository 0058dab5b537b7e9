package repository

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"weekly-report-hub/internal/llm"
	"weekly-report-hub/internal/models"
)

// Repository owns all access to the record store
type Repository struct {
	db *gorm.DB
}

// New creates a repository over an initialized database
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying handle for health checks
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// InsertReport writes one record per entry inside a single transaction scoped
// to the mail. All-or-nothing: a partial insert never survives.
func (r *Repository) InsertReport(mailID, reportDate, reporter string, entries []llm.Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			record := models.ReportRecord{
				MailID:           mailID,
				ReportDate:       reportDate,
				Reporter:         reporter,
				ClientName:       e.ClientName,
				ClientDepartment: e.ClientDepartment,
				ClientPerson:     e.ClientPerson,
				EmployeeName:     e.EmployeeName,
				ProductName:      e.ProductName,
				Content:          e.Content,
			}
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert records for mail %s: %w", mailID, err)
	}

	return len(entries), nil
}

// LogIngest records the per-mail processing outcome
func (r *Repository) LogIngest(mailID, status, detail string, entryCount int) error {
	log := models.IngestLog{
		MailID:     mailID,
		Status:     status,
		Detail:     detail,
		EntryCount: entryCount,
		CreatedAt:  time.Now(),
	}
	if err := r.db.Create(&log).Error; err != nil {
		return fmt.Errorf("failed to log ingest outcome: %w", err)
	}
	return nil
}

// Filter narrows report queries. Zero values mean "no constraint".
type Filter struct {
	Reporter string
	Client   string
	Product  string
	DateFrom string
	DateTo   string
	Search   string
}

func (f Filter) apply(tx *gorm.DB) *gorm.DB {
	if f.Reporter != "" {
		tx = tx.Where("reporter = ?", f.Reporter)
	}
	if f.Client != "" {
		tx = tx.Where("client_name LIKE ?", "%"+f.Client+"%")
	}
	if f.Product != "" {
		tx = tx.Where("product_name LIKE ?", "%"+f.Product+"%")
	}
	if f.DateFrom != "" {
		tx = tx.Where("report_date >= ?", f.DateFrom)
	}
	if f.DateTo != "" {
		tx = tx.Where("report_date <= ?", f.DateTo)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		tx = tx.Where("(content LIKE ? OR client_name LIKE ? OR client_person LIKE ? OR product_name LIKE ?)",
			like, like, like, like)
	}
	return tx
}

// MailSummary groups a mail's records into one row for listings
type MailSummary struct {
	MailID      string `json:"mail_id"`
	ReportDate  string `json:"report_date"`
	Reporter    string `json:"reporter"`
	RecordCount int    `json:"record_count"`
	Clients     string `json:"clients"`
	Products    string `json:"products"`
}

// ListMailSummaries returns filtered, paginated per-mail summaries, newest
// report date first, plus the total distinct-mail count for the filter.
func (r *Repository) ListMailSummaries(f Filter, page, perPage int) ([]MailSummary, int64, error) {
	var total int64
	if err := f.apply(r.db.Model(&models.ReportRecord{})).
		Distinct("mail_id").Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count mails: %w", err)
	}

	var summaries []MailSummary
	err := f.apply(r.db.Model(&models.ReportRecord{})).
		Select("mail_id, MIN(report_date) AS report_date, MIN(reporter) AS reporter, " +
			"COUNT(*) AS record_count, " +
			"GROUP_CONCAT(DISTINCT client_name) AS clients, " +
			"GROUP_CONCAT(DISTINCT product_name) AS products").
		Group("mail_id").
		Order("report_date DESC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		Scan(&summaries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list mails: %w", err)
	}

	return summaries, total, nil
}

// GetMailRecords returns every record extracted from one mail, in insert order
func (r *Repository) GetMailRecords(mailID string) ([]models.ReportRecord, error) {
	var records []models.ReportRecord
	if err := r.db.Where("mail_id = ?", mailID).Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to get records for mail %s: %w", mailID, err)
	}
	return records, nil
}

// GetRecord fetches a single record by id
func (r *Repository) GetRecord(id uint) (*models.ReportRecord, error) {
	var record models.ReportRecord
	if err := r.db.First(&record, id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateRecord overwrites a record's editable fields. Returns
// gorm.ErrRecordNotFound when id does not exist.
func (r *Repository) UpdateRecord(id uint, update models.ReportRecord) error {
	result := r.db.Model(&models.ReportRecord{}).Where("id = ?", id).
		Updates(map[string]any{
			"report_date":       update.ReportDate,
			"reporter":          update.Reporter,
			"client_name":       update.ClientName,
			"client_department": update.ClientDepartment,
			"client_person":     update.ClientPerson,
			"employee_name":     update.EmployeeName,
			"product_name":      update.ProductName,
			"content":           update.Content,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update record %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteMailRecords removes every record of one mail and reports how many
func (r *Repository) DeleteMailRecords(mailID string) (int64, error) {
	result := r.db.Where("mail_id = ?", mailID).Delete(&models.ReportRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete records for mail %s: %w", mailID, result.Error)
	}
	return result.RowsAffected, nil
}

// ListRecordsByClient returns records mentioning the client, newest first
func (r *Repository) ListRecordsByClient(client string) ([]models.ReportRecord, error) {
	var records []models.ReportRecord
	err := r.db.Where("client_name LIKE ?", "%"+client+"%").
		Order("report_date DESC, id DESC").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list records for client %s: %w", client, err)
	}
	return records, nil
}

// ListRecordsByProduct returns records mentioning the product, newest first
func (r *Repository) ListRecordsByProduct(product string) ([]models.ReportRecord, error) {
	var records []models.ReportRecord
	err := r.db.Where("product_name LIKE ?", "%"+product+"%").
		Order("report_date DESC, id DESC").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list records for product %s: %w", product, err)
	}
	return records, nil
}

// Reporters returns the distinct reporter names, sorted
func (r *Repository) Reporters() ([]string, error) {
	var reporters []string
	err := r.db.Model(&models.ReportRecord{}).
		Distinct("reporter").
		Where("reporter IS NOT NULL AND reporter != ''").
		Order("reporter").
		Pluck("reporter", &reporters).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reporters: %w", err)
	}
	return reporters, nil
}

// Clients returns the distinct client names. Comma-joined values (the model
// sometimes records several clients in one entry) are split apart.
func (r *Repository) Clients() ([]string, error) {
	return r.facetValues("client_name")
}

// Products returns the distinct product names, split like Clients
func (r *Repository) Products() ([]string, error) {
	return r.facetValues("product_name")
}

var facetSeparator = regexp.MustCompile(`[,、]`)

func (r *Repository) facetValues(column string) ([]string, error) {
	var raw []string
	err := r.db.Model(&models.ReportRecord{}).
		Distinct(column).
		Where(column+" IS NOT NULL AND "+column+" != ''").
		Pluck(column, &raw).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s values: %w", column, err)
	}

	seen := make(map[string]struct{})
	for _, value := range raw {
		for _, piece := range facetSeparator.Split(value, -1) {
			piece = strings.TrimSpace(piece)
			if piece != "" {
				seen[piece] = struct{}{}
			}
		}
	}

	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values, nil
}

// ReporterCount is one reporter's record total
type ReporterCount struct {
	Reporter string `json:"reporter"`
	Count    int64  `json:"count"`
}

// ClientCount is one client's record total
type ClientCount struct {
	Client string `json:"client" gorm:"column:client_name"`
	Count  int64  `json:"count"`
}

// MonthCount is one month's record total
type MonthCount struct {
	Month string `json:"month"`
	Count int64  `json:"count"`
}

// Stats aggregates record totals for the reporting API
type Stats struct {
	Total      int64           `json:"total"`
	ByReporter []ReporterCount `json:"by_reporter"`
	ByClient   []ClientCount   `json:"by_client"`
	ByMonth    []MonthCount    `json:"by_month"`
}

// GetStats computes overall, per-reporter, top-client and recent-monthly totals
func (r *Repository) GetStats() (*Stats, error) {
	stats := &Stats{}

	if err := r.db.Model(&models.ReportRecord{}).Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	err := r.db.Model(&models.ReportRecord{}).
		Select("reporter, COUNT(*) AS count").
		Group("reporter").
		Order("count DESC").
		Scan(&stats.ByReporter).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by reporter: %w", err)
	}

	err = r.db.Model(&models.ReportRecord{}).
		Select("client_name, COUNT(*) AS count").
		Where("client_name IS NOT NULL AND client_name != ''").
		Group("client_name").
		Order("count DESC").
		Limit(10).
		Scan(&stats.ByClient).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by client: %w", err)
	}

	err = r.db.Model(&models.ReportRecord{}).
		Select("strftime('%Y-%m', report_date) AS month, COUNT(*) AS count").
		Where("report_date IS NOT NULL AND report_date != ''").
		Group("month").
		Order("month DESC").
		Limit(6).
		Scan(&stats.ByMonth).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by month: %w", err)
	}

	// oldest month first for charting
	for i, j := 0, len(stats.ByMonth)-1; i < j; i, j = i+1, j-1 {
		stats.ByMonth[i], stats.ByMonth[j] = stats.ByMonth[j], stats.ByMonth[i]
	}

	return stats, nil
}

// ListIngestLogs returns ingest outcomes, newest first, with the total count
func (r *Repository) ListIngestLogs(page, limit int) ([]models.IngestLog, int64, error) {
	var total int64
	if err := r.db.Model(&models.IngestLog{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count ingest logs: %w", err)
	}

	var logs []models.IngestLog
	err := r.db.Order("created_at DESC, id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list ingest logs: %w", err)
	}

	return logs, total, nil
}

// CountRecords returns the total registered record count
func (r *Repository) CountRecords() (int64, error) {
	var total int64
	if err := r.db.Model(&models.ReportRecord{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return total, nil
}

// CountDistinctMails returns how many mails have at least one record
func (r *Repository) CountDistinctMails() (int64, error) {
	var total int64
	if err := r.db.Model(&models.ReportRecord{}).Distinct("mail_id").Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count mails: %w", err)
	}
	return total, nil
}
