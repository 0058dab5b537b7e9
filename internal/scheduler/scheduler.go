package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"weekly-report-hub/internal/config"
	"weekly-report-hub/internal/pipeline"
	"weekly-report-hub/internal/runs"
)

// Scheduler triggers periodic ingestion sweeps. Each sweep is registered in
// the run registry like a manually started one, so its progress is pollable.
type Scheduler struct {
	cron     *cron.Cron
	entryID  cron.EntryID
	config   *config.SchedulerConfig
	pipe     *pipeline.Pipeline
	registry *runs.Registry

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex
}

// New creates a scheduler
func New(cfg *config.SchedulerConfig, pipe *pipeline.Pipeline, registry *runs.Registry) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:     cron.New(),
		config:   cfg,
		pipe:     pipe,
		registry: registry,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the periodic sweep
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	schedule := fmt.Sprintf("@every %dm", s.config.IntervalMinutes)
	entryID, err := s.cron.AddFunc(schedule, s.sweep)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	if s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}

	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	logrus.Infof("Scheduler started with interval: %d minutes", s.config.IntervalMinutes)
	return nil
}

// Stop stops the periodic sweep. A sweep already in flight finishes its
// current mail before noticing the cancellation.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.cancel()

	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}

	s.cron.Remove(s.entryID)
	s.isRunning = false
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// sweep executes one scheduled ingestion run
func (s *Scheduler) sweep() {
	s.wg.Add(1)
	defer s.wg.Done()

	s.mu.RLock()
	if !s.isRunning {
		s.mu.RUnlock()
		return
	}
	ctx := s.ctx
	s.mu.RUnlock()

	run := s.registry.Begin()
	logrus.WithField("run_id", run.ID()).Info("Starting scheduled ingestion sweep")

	stats, err := s.pipe.Run(ctx, run)
	run.Finish(stats, err)

	if err != nil {
		if errors.Is(err, pipeline.ErrRunActive) {
			logrus.WithField("run_id", run.ID()).Warn("Scheduled sweep skipped: a run is already active")
			return
		}
		logrus.WithField("run_id", run.ID()).Errorf("Scheduled sweep failed: %v", err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"run_id":     run.ID(),
		"processed":  stats.Processed,
		"registered": stats.MailsRegistered,
	}).Info("Scheduled sweep completed")
}

// RunOnce triggers one sweep immediately and returns its registry entry
// without waiting for it to finish.
func (s *Scheduler) RunOnce() *runs.Run {
	run := s.registry.Begin()

	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		stats, err := s.pipe.Run(ctx, run)
		run.Finish(stats, err)
	}()

	return run
}

// GetNextRun returns the time of the next scheduled sweep
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// GetLastRun returns the time of the last scheduled sweep
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Prev
}

// Wait waits for in-flight sweeps to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
