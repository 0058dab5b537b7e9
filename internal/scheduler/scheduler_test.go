package scheduler

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"weekly-report-hub/internal/config"
	"weekly-report-hub/internal/database"
	"weekly-report-hub/internal/metrics"
	"weekly-report-hub/internal/models"
	"weekly-report-hub/internal/pipeline"
	"weekly-report-hub/internal/repository"
	"weekly-report-hub/internal/runs"
)

// dummySource implements fetcher.Source with an empty mailbox
type dummySource struct{}

func (d *dummySource) List(ctx context.Context, label string) ([]string, error) { return nil, nil }
func (d *dummySource) Fetch(ctx context.Context, id string) (models.EmailMessage, error) {
	return models.EmailMessage{}, nil
}
func (d *dummySource) Close() error { return nil }

type dummyGenerator struct{}

func (d *dummyGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return `{"is_report": false}`, nil
}

// Prometheus collectors register globally, so the package shares one set.
var testMetrics = metrics.NewMetrics()

func newTestScheduler(t *testing.T) *Scheduler {
	dir := t.TempDir()
	db, err := database.Init(filepath.Join(dir, "test.db"))
	require.NoError(t, err)

	cfg := &config.Config{
		Gmail: config.GmailConfig{Label: "週報"},
		Ingest: config.IngestConfig{
			LedgerPath: filepath.Join(dir, "processed_ids.json"),
			LockPath:   filepath.Join(dir, "ingest.lock"),
		},
		Scheduler: config.SchedulerConfig{Enabled: true, IntervalMinutes: 60},
	}

	pipe := pipeline.New(&dummySource{}, &dummyGenerator{}, repository.New(db), testMetrics, cfg)
	return New(&cfg.Scheduler, pipe, runs.NewRegistry())
}

func TestSchedulerRestart(t *testing.T) {
	sched := newTestScheduler(t)

	if err := sched.Start(); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if !sched.IsRunning() {
		t.Fatalf("scheduler should be running after Start")
	}
	if err := sched.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if sched.IsRunning() {
		t.Fatalf("scheduler should not be running after Stop")
	}
	if err := sched.Start(); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if !sched.IsRunning() {
		t.Fatalf("scheduler should be running after second Start")
	}
	// context should be active
	if sched.ctx == nil || sched.ctx.Err() != nil {
		t.Fatalf("scheduler context should be active after restart")
	}
	sched.Stop()
}

func TestSchedulerDoubleStart(t *testing.T) {
	sched := newTestScheduler(t)

	require.NoError(t, sched.Start())
	defer sched.Stop()

	if err := sched.Start(); err == nil {
		t.Fatalf("second Start without Stop should fail")
	}
}

func TestSchedulerNextRun(t *testing.T) {
	sched := newTestScheduler(t)

	if !sched.GetNextRun().IsZero() {
		t.Fatalf("next run should be zero while stopped")
	}

	require.NoError(t, sched.Start())
	defer sched.Stop()

	if sched.GetNextRun().IsZero() {
		t.Fatalf("next run should be scheduled while running")
	}
}

func TestRunOnceDuringRestart(t *testing.T) {
	sched := newTestScheduler(t)

	require.NoError(t, sched.Start())
	require.NoError(t, sched.Stop())

	// Stop cancelled the scheduler context; restarting replaces it while a
	// manual run launches. Both must observe a consistent context.
	done := make(chan error, 1)
	go func() {
		done <- sched.Start()
	}()
	run := sched.RunOnce()
	require.NoError(t, <-done)
	sched.Wait()
	sched.Stop()

	snap := run.Snapshot()
	if snap.Status == runs.StatusRunning {
		t.Fatalf("run should have reached a terminal state")
	}
}

func TestRunOnceCompletes(t *testing.T) {
	sched := newTestScheduler(t)

	run := sched.RunOnce()
	sched.Wait()

	snap := run.Snapshot()
	if snap.Status != runs.StatusSucceeded {
		t.Fatalf("run should succeed against an empty mailbox, got %s (%s)", snap.Status, snap.Error)
	}
	if snap.FinishedAt == nil {
		t.Fatalf("finished run should carry a finish time")
	}
}
