package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weekly-report-hub/internal/config"
	"weekly-report-hub/internal/database"
	"weekly-report-hub/internal/fetcher"
	"weekly-report-hub/internal/ledger"
	"weekly-report-hub/internal/metrics"
	"weekly-report-hub/internal/models"
	"weekly-report-hub/internal/repository"
)

// Prometheus collectors register globally, so the package shares one set.
var testMetrics = metrics.NewMetrics()

type fakeSource struct {
	ids        []string
	messages   map[string]models.EmailMessage
	failFetch  map[string]bool
	listErr    error
	fetchOrder []string
}

func (s *fakeSource) List(ctx context.Context, label string) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]string(nil), s.ids...), nil
}

func (s *fakeSource) Fetch(ctx context.Context, id string) (models.EmailMessage, error) {
	s.fetchOrder = append(s.fetchOrder, id)
	if s.failFetch[id] {
		return models.EmailMessage{}, fmt.Errorf("transient IMAP error")
	}
	msg, ok := s.messages[id]
	if !ok {
		return models.EmailMessage{}, fmt.Errorf("no such message %s", id)
	}
	return msg, nil
}

func (s *fakeSource) Close() error { return nil }

// fakeGenerator answers by matching the mail body embedded in the prompt
type fakeGenerator struct {
	responses map[string]string
	err       error
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	for marker, response := range g.responses {
		if strings.Contains(prompt, marker) {
			return response, nil
		}
	}
	return "", fmt.Errorf("no canned response matches prompt")
}

func newTestConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Gmail: config.GmailConfig{Label: "週報"},
		Ingest: config.IngestConfig{
			LedgerPath: filepath.Join(dir, "processed_ids.json"),
			LockPath:   filepath.Join(dir, "ingest.lock"),
		},
		Lists: config.ListsConfig{
			Reporters: []string{"山田太郎"},
			Employees: []string{"鈴木一郎"},
			Products:  []string{"TF-3040", "IMS-SD"},
		},
	}
}

func newTestRepo(t *testing.T) *repository.Repository {
	db, err := database.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return repository.New(db)
}

func message(id, body string) models.EmailMessage {
	return models.EmailMessage{
		ID:      id,
		Subject: "週報",
		From:    "yamada@example.com",
		Date:    "2024-06-14",
		Body:    body,
	}
}

const validReportJSON = `{
	"is_report": true,
	"reporter": "山田太郎",
	"report_date": "2024-06-14",
	"entries": [
		{"client_name": "株式会社テスト商事", "client_department": "購買部",
		 "client_person": "佐藤", "employee_name": "鈴木一郎",
		 "product_name": "3040", "content": "見積もり提出"},
		{"client_name": "ホンダ", "client_department": "", "client_person": "",
		 "employee_name": "", "product_name": "IMS-SD-H-2", "content": "定期訪問"}
	]
}`

func TestRunEndToEnd(t *testing.T) {
	cfg := newTestConfig(t)
	repo := newTestRepo(t)

	source := &fakeSource{
		ids: []string{"1a", "2f", "1b"},
		messages: map[string]models.EmailMessage{
			"1a": message("1a", "body-of-1a"),
			"2f": message("2f", "body-of-2f"),
			"1b": message("1b", "body-of-1b"),
		},
	}
	gen := &fakeGenerator{responses: map[string]string{
		"body-of-2f": validReportJSON,
		"body-of-1b": "sorry, I can only answer in prose",
		"body-of-1a": `{"is_report": false}`,
	}}

	var out bytes.Buffer
	pipe := New(source, gen, repo, testMetrics, cfg)
	stats, err := pipe.Run(context.Background(), NewWriterSink(&out))
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Candidates)
	assert.Equal(t, 3, stats.Processed)
	assert.Equal(t, 1, stats.MailsRegistered)
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, 1, stats.NonReports)
	assert.Equal(t, 1, stats.Malformed)

	// Newest first: 2f outranks 1b outranks 1a
	assert.Equal(t, []string{"2f", "1b", "1a"}, source.fetchOrder)

	// Canonicalization runs on the persisted records
	records, err := repo.GetMailRecords("2f")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "テスト商事", records[0].ClientName)
	assert.Equal(t, "TF-3040", records[0].ProductName)
	assert.Equal(t, "IMS-SD", records[1].ProductName)

	// All three outcomes are ledgered
	led, err := ledger.Load(cfg.Ingest.LedgerPath)
	require.NoError(t, err)
	assert.True(t, led.Contains("1a"))
	assert.True(t, led.Contains("1b"))
	assert.True(t, led.Contains("2f"))

	// Stable progress markers
	assert.Contains(t, out.String(), "3 messages processed")
	assert.Contains(t, out.String(), "1 mails registered to DB (2 records)")
}

func TestRunIsIdempotent(t *testing.T) {
	cfg := newTestConfig(t)
	repo := newTestRepo(t)

	source := &fakeSource{
		ids:      []string{"aa"},
		messages: map[string]models.EmailMessage{"aa": message("aa", "body-of-aa")},
	}
	gen := &fakeGenerator{responses: map[string]string{"body-of-aa": validReportJSON}}

	pipe := New(source, gen, repo, testMetrics, cfg)
	_, err := pipe.Run(context.Background(), NewWriterSink(&bytes.Buffer{}))
	require.NoError(t, err)

	stats, err := pipe.Run(context.Background(), NewWriterSink(&bytes.Buffer{}))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AlreadyProcessed)
	assert.Equal(t, 0, stats.Processed)
	assert.Equal(t, 0, stats.Records)

	total, err := repo.CountRecords()
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestFetchFailureNotLedgered(t *testing.T) {
	cfg := newTestConfig(t)
	repo := newTestRepo(t)

	source := &fakeSource{
		ids:       []string{"aa", "bb"},
		messages:  map[string]models.EmailMessage{"aa": message("aa", "body-of-aa")},
		failFetch: map[string]bool{"bb": true},
	}
	gen := &fakeGenerator{responses: map[string]string{"body-of-aa": `{"is_report": false}`}}

	pipe := New(source, gen, repo, testMetrics, cfg)
	stats, err := pipe.Run(context.Background(), NewWriterSink(&bytes.Buffer{}))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FetchFailures)
	assert.Equal(t, 1, stats.Processed)

	// bb stays pending for the next sweep
	led, err := ledger.Load(cfg.Ingest.LedgerPath)
	require.NoError(t, err)
	assert.True(t, led.Contains("aa"))
	assert.False(t, led.Contains("bb"))
}

func TestZeroEntryReportAdvancesLedger(t *testing.T) {
	cfg := newTestConfig(t)
	repo := newTestRepo(t)

	source := &fakeSource{
		ids:      []string{"cc"},
		messages: map[string]models.EmailMessage{"cc": message("cc", "body-of-cc")},
	}
	gen := &fakeGenerator{responses: map[string]string{
		"body-of-cc": `{"is_report": true, "reporter": "山田太郎", "report_date": "2024-06-14", "entries": []}`,
	}}

	pipe := New(source, gen, repo, testMetrics, cfg)
	stats, err := pipe.Run(context.Background(), NewWriterSink(&bytes.Buffer{}))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 0, stats.MailsRegistered)
	assert.Equal(t, 0, stats.Records)

	led, err := ledger.Load(cfg.Ingest.LedgerPath)
	require.NoError(t, err)
	assert.True(t, led.Contains("cc"))
}

// breakPersistence makes any multi-entry insert for one client collide so the
// repository transaction fails.
func breakPersistence(t *testing.T, repo *repository.Repository) {
	t.Helper()
	require.NoError(t, repo.DB().Exec(
		"CREATE UNIQUE INDEX idx_mail_client ON weekly_reports(mail_id, client_name)").Error)
}

const collidingReportJSON = `{
	"is_report": true,
	"reporter": "山田太郎",
	"report_date": "2024-06-14",
	"entries": [
		{"client_name": "ホンダ", "content": "first"},
		{"client_name": "ホンダ", "content": "second"}
	]
}`

func TestPersistFailureLedgeredByDefault(t *testing.T) {
	cfg := newTestConfig(t)
	repo := newTestRepo(t)
	breakPersistence(t, repo)

	source := &fakeSource{
		ids:      []string{"ee"},
		messages: map[string]models.EmailMessage{"ee": message("ee", "body-of-ee")},
	}
	gen := &fakeGenerator{responses: map[string]string{"body-of-ee": collidingReportJSON}}

	pipe := New(source, gen, repo, testMetrics, cfg)
	stats, err := pipe.Run(context.Background(), NewWriterSink(&bytes.Buffer{}))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PersistFailures)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 0, stats.Records)

	// The mail concludes with a persist_failed outcome and is not retried
	led, err := ledger.Load(cfg.Ingest.LedgerPath)
	require.NoError(t, err)
	assert.True(t, led.Contains("ee"))

	logs, _, err := repo.ListIngestLogs(1, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.StatusPersistFailed, logs[0].Status)

	// Rollback left nothing behind
	total, err := repo.CountRecords()
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestPersistFailureRetriedWhenConfigured(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Ingest.RetryFailedPersists = true
	repo := newTestRepo(t)
	breakPersistence(t, repo)

	source := &fakeSource{
		ids:      []string{"ee"},
		messages: map[string]models.EmailMessage{"ee": message("ee", "body-of-ee")},
	}
	gen := &fakeGenerator{responses: map[string]string{"body-of-ee": collidingReportJSON}}

	pipe := New(source, gen, repo, testMetrics, cfg)
	stats, err := pipe.Run(context.Background(), NewWriterSink(&bytes.Buffer{}))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PersistFailures)
	assert.Equal(t, 0, stats.Processed)

	// Left off the ledger so the next sweep attempts it again
	led, err := ledger.Load(cfg.Ingest.LedgerPath)
	require.NoError(t, err)
	assert.False(t, led.Contains("ee"))
}

func TestModelFailureDegradesToMalformed(t *testing.T) {
	cfg := newTestConfig(t)
	repo := newTestRepo(t)

	source := &fakeSource{
		ids:      []string{"dd"},
		messages: map[string]models.EmailMessage{"dd": message("dd", "body-of-dd")},
	}
	gen := &fakeGenerator{err: fmt.Errorf("model endpoint returned 500")}

	pipe := New(source, gen, repo, testMetrics, cfg)
	stats, err := pipe.Run(context.Background(), NewWriterSink(&bytes.Buffer{}))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Malformed)
	assert.Equal(t, 1, stats.Processed)

	logs, _, err := repo.ListIngestLogs(1, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.StatusMalformed, logs[0].Status)
	assert.Contains(t, logs[0].Detail, "model call failed")
}

func TestSourceListFailureAborts(t *testing.T) {
	cfg := newTestConfig(t)
	repo := newTestRepo(t)

	source := &fakeSource{listErr: fmt.Errorf("label lookup: %w", fetcher.ErrSourceUnavailable)}
	gen := &fakeGenerator{}

	pipe := New(source, gen, repo, testMetrics, cfg)
	_, err := pipe.Run(context.Background(), NewWriterSink(&bytes.Buffer{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fetcher.ErrSourceUnavailable))
}

func TestCancellationStopsBetweenMails(t *testing.T) {
	cfg := newTestConfig(t)
	repo := newTestRepo(t)

	source := &fakeSource{
		ids:      []string{"aa", "bb"},
		messages: map[string]models.EmailMessage{},
	}
	gen := &fakeGenerator{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pipe := New(source, gen, repo, testMetrics, cfg)
	stats, err := pipe.Run(ctx, NewWriterSink(&bytes.Buffer{}))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, stats.Processed)
	assert.Empty(t, source.fetchOrder)
}

func TestSortIDsDescending(t *testing.T) {
	ids := []string{"1a", "ff", "2b", "100"}
	sortIDsDescending(ids)
	assert.Equal(t, []string{"100", "ff", "2b", "1a"}, ids)

	// Unparseable ids fall back to string order
	mixed := []string{"zz", "aa"}
	sortIDsDescending(mixed)
	assert.Equal(t, []string{"zz", "aa"}, mixed)
}
