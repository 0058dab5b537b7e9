package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weekly-report-hub/internal/config"
	"weekly-report-hub/internal/database"
	"weekly-report-hub/internal/llm"
	"weekly-report-hub/internal/metrics"
	"weekly-report-hub/internal/models"
	"weekly-report-hub/internal/pipeline"
	"weekly-report-hub/internal/repository"
	"weekly-report-hub/internal/runs"
	"weekly-report-hub/internal/scheduler"
)

type emptySource struct{}

func (emptySource) List(ctx context.Context, label string) ([]string, error) { return nil, nil }
func (emptySource) Fetch(ctx context.Context, id string) (models.EmailMessage, error) {
	return models.EmailMessage{}, nil
}
func (emptySource) Close() error { return nil }

type staticGenerator struct{}

func (staticGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return `{"is_report": false}`, nil
}

// Prometheus collectors register globally, so the package shares one set.
var testMetrics = metrics.NewMetrics()

type testEnv struct {
	router *gin.Engine
	repo   *repository.Repository
}

func newTestEnv(t *testing.T) *testEnv {
	dir := t.TempDir()
	db, err := database.Init(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	repo := repository.New(db)

	cfg := &config.Config{
		Gmail: config.GmailConfig{Label: "週報"},
		Ingest: config.IngestConfig{
			LedgerPath: filepath.Join(dir, "processed_ids.json"),
			LockPath:   filepath.Join(dir, "ingest.lock"),
		},
		Scheduler: config.SchedulerConfig{Enabled: true, IntervalMinutes: 60},
	}

	pipe := pipeline.New(emptySource{}, staticGenerator{}, repo, testMetrics, cfg)
	registry := runs.NewRegistry()
	sched := scheduler.New(&cfg.Scheduler, pipe, registry)
	t.Cleanup(func() {
		sched.Stop()
		sched.Wait()
	})

	handlers := NewHandlers(repo, registry, sched)
	return &testEnv{router: SetupRouter(handlers), repo: repo}
}

func (e *testEnv) request(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func seed(t *testing.T, repo *repository.Repository, mailID, date, reporter string, entries ...llm.Entry) {
	t.Helper()
	_, err := repo.InsertReport(mailID, date, reporter, entries)
	require.NoError(t, err)
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["database"])
}

func TestGetReportsPagination(t *testing.T) {
	env := newTestEnv(t)

	seed(t, env.repo, "aa", "2024-06-07", "山田", llm.Entry{ClientName: "ホンダ", Content: "x"})
	seed(t, env.repo, "bb", "2024-06-14", "佐藤", llm.Entry{ClientName: "トヨタ", Content: "y"})
	seed(t, env.repo, "cc", "2024-06-21", "山田", llm.Entry{ClientName: "日立", Content: "z"})

	w := env.request(t, http.MethodGet, "/api/v1/reports?page=1&per_page=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, float64(3), body["total_count"])
	assert.Equal(t, true, body["has_more"])
	assert.Len(t, body["reports"], 2)

	w = env.request(t, http.MethodGet, "/api/v1/reports?page=2&per_page=2", nil)
	body = decode(t, w)
	assert.Equal(t, false, body["has_more"])
	assert.Len(t, body["reports"], 1)
}

func TestGetReportsFiltered(t *testing.T) {
	env := newTestEnv(t)

	seed(t, env.repo, "aa", "2024-06-07", "山田", llm.Entry{ClientName: "ホンダ", Content: "x"})
	seed(t, env.repo, "bb", "2024-06-14", "佐藤", llm.Entry{ClientName: "トヨタ", Content: "y"})

	w := env.request(t, http.MethodGet, "/api/v1/reports?reporter=山田", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, float64(1), body["total_count"])
}

func TestRecordLifecycle(t *testing.T) {
	env := newTestEnv(t)
	seed(t, env.repo, "aa", "2024-06-14", "山田", llm.Entry{ClientName: "ホンダ", Content: "x"})

	records, err := env.repo.GetMailRecords("aa")
	require.NoError(t, err)
	require.Len(t, records, 1)
	id := records[0].ID

	// Read
	w := env.request(t, http.MethodGet, "/api/v1/records/1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Update
	w = env.request(t, http.MethodPut, "/api/v1/records/1", RecordUpdateRequest{
		ReportDate: "2024-06-14",
		Reporter:   "山田",
		ClientName: "トヨタ",
		Content:    "updated",
	})
	require.Equal(t, http.StatusOK, w.Code)

	got, err := env.repo.GetRecord(id)
	require.NoError(t, err)
	assert.Equal(t, "トヨタ", got.ClientName)

	// Delete the whole mail
	w = env.request(t, http.MethodDelete, "/api/v1/mails/aa", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["deleted_count"])
}

func TestGetRecordNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodGet, "/api/v1/records/9999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.request(t, http.MethodGet, "/api/v1/records/not-a-number", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateRecordNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPut, "/api/v1/records/9999", RecordUpdateRequest{Content: "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFacetEndpoints(t *testing.T) {
	env := newTestEnv(t)
	seed(t, env.repo, "aa", "2024-06-14", "山田",
		llm.Entry{ClientName: "ホンダ", ProductName: "TF-3040", Content: "x"})

	for _, path := range []string{"/api/v1/reporters", "/api/v1/clients", "/api/v1/products"} {
		w := env.request(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code, path)

		var values []string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &values))
		assert.Len(t, values, 1, path)
	}
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	seed(t, env.repo, "aa", "2024-06-14", "山田", llm.Entry{ClientName: "ホンダ", Content: "x"})

	w := env.request(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, float64(1), body["total"])
}

func TestRunLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodPost, "/api/v1/runs", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	body := decode(t, w)
	runID, ok := body["run_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, runID)

	// Poll until the empty-mailbox sweep finishes
	var status string
	for i := 0; i < 100; i++ {
		w = env.request(t, http.MethodGet, "/api/v1/runs/"+runID+"?offset=0", nil)
		require.Equal(t, http.StatusOK, w.Code)
		status = decode(t, w)["status"].(string)
		if status != runs.StatusRunning {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, runs.StatusSucceeded, status)
}

func TestGetRunNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodGet, "/api/v1/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSchedulerEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodGet, "/api/v1/scheduler/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["running"])

	w = env.request(t, http.MethodPost, "/api/v1/scheduler/start", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.request(t, http.MethodGet, "/api/v1/scheduler/status", nil)
	assert.Equal(t, true, decode(t, w)["running"])

	// Double start conflicts
	w = env.request(t, http.MethodPost, "/api/v1/scheduler/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.request(t, http.MethodPost, "/api/v1/scheduler/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.request(t, http.MethodPost, "/api/v1/scheduler/stop", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}
