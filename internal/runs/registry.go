// Package runs tracks in-flight and finished ingestion runs so callers can
// poll progress without blocking on the sweep itself. Each run has a single
// writer (its orchestrator goroutine); readers only ever see copied
// snapshots.
package runs

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"weekly-report-hub/internal/pipeline"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Snapshot is an immutable view of one run's state
type Snapshot struct {
	ID         string         `json:"id"`
	Status     string         `json:"status"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Stats      pipeline.Stats `json:"stats"`
}

// Run is one ingestion run's mutable state plus its buffered progress text.
// It implements pipeline.Sink.
type Run struct {
	id        string
	startedAt time.Time

	mu       sync.RWMutex
	status   string
	err      string
	finished *time.Time
	stats    pipeline.Stats
	buf      []byte
}

// ID returns the run identifier
func (r *Run) ID() string {
	return r.id
}

// Write appends progress text; part of pipeline.Sink
func (r *Run) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, p...)
	return len(p), nil
}

// Progress records the latest running totals; part of pipeline.Sink
func (r *Run) Progress(stats pipeline.Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = stats
}

// Finish marks the run complete
func (r *Run) Finish(stats pipeline.Stats, err error) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = stats
	r.finished = &now
	if err != nil {
		r.status = StatusFailed
		r.err = err.Error()
		return
	}
	r.status = StatusSucceeded
}

// Snapshot returns a copy of the run's current state
func (r *Run) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		ID:         r.id,
		Status:     r.status,
		Error:      r.err,
		StartedAt:  r.startedAt,
		FinishedAt: r.finished,
		Stats:      r.stats,
	}
}

// Output returns progress text from offset onward plus the new offset, the
// same contract a log-tailing poller expects. Out-of-range offsets clamp.
func (r *Run) Output(offset int) (string, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if offset < 0 {
		offset = 0
	}
	if offset > len(r.buf) {
		offset = len(r.buf)
	}
	return string(r.buf[offset:]), len(r.buf)
}

// Registry holds every run started during this process's lifetime
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*Run)}
}

// Begin registers a new running entry and returns it
func (g *Registry) Begin() *Run {
	run := &Run{
		id:        uuid.New().String(),
		startedAt: time.Now(),
		status:    StatusRunning,
	}

	g.mu.Lock()
	g.runs[run.id] = run
	g.mu.Unlock()

	return run
}

// Get looks up a run by id
func (g *Registry) Get(id string) (*Run, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	run, ok := g.runs[id]
	return run, ok
}

// List returns snapshots of every known run, unordered
func (g *Registry) List() []Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	snapshots := make([]Snapshot, 0, len(g.runs))
	for _, run := range g.runs {
		snapshots = append(snapshots, run.Snapshot())
	}
	return snapshots
}
