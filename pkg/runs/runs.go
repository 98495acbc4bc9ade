// Package runs tracks background optimization runs. Callers submit a run
// and poll its status by handle instead of blocking on the HTTP request.
package runs

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mertacar/workforce-scheduler-api/pkg/scheduler"
)

// State of a background run.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StatePartial   State = "partial"
	StateFailed    State = "failed"
)

// Run is one background optimization execution.
type Run struct {
	ID         string      `json:"id"`
	Kind       string      `json:"kind"`
	State      State       `json:"state"`
	Error      string      `json:"error,omitempty"`
	Result     interface{} `json:"result,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// Func executes the run body. A non-nil result with a nil error marks the
// run completed; wrapping ErrOptimizationTimeout marks it partial.
type Func func(ctx context.Context) (interface{}, error)

// maxFinishedRuns bounds the run table: once a run finishes, the oldest
// finished runs beyond this count are evicted. Running runs never are.
const maxFinishedRuns = 64

// Manager owns the run table and the goroutines behind it.
type Manager struct {
	mu    sync.RWMutex
	runs  map[string]*Run
	order []string
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{runs: make(map[string]*Run)}
}

// Submit starts fn on a new goroutine and returns the run handle
// immediately. The run's context is detached from the caller's request.
func (m *Manager) Submit(kind string, timeout time.Duration, fn Func) *Run {
	run := &Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		State:     StateRunning,
		StartedAt: time.Now(),
	}
	m.mu.Lock()
	m.runs[run.ID] = run
	m.order = append(m.order, run.ID)
	m.mu.Unlock()

	go func() {
		ctx := context.Background()
		var cancel context.CancelFunc
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		result, err := fn(ctx)
		now := time.Now()

		m.mu.Lock()
		defer m.mu.Unlock()
		run.FinishedAt = &now
		run.Result = result
		switch {
		case err == nil:
			run.State = StateCompleted
		case errors.Is(err, scheduler.ErrOptimizationTimeout):
			run.State = StatePartial
			run.Error = err.Error()
		default:
			run.State = StateFailed
			run.Error = err.Error()
			log.Printf("run %s (%s) failed: %v", run.ID, kind, err)
		}
		m.pruneLocked()
	}()

	return run
}

// pruneLocked evicts the oldest finished runs past maxFinishedRuns.
// Caller holds m.mu.
func (m *Manager) pruneLocked() {
	finished := 0
	for _, id := range m.order {
		if m.runs[id].State != StateRunning {
			finished++
		}
	}
	if finished <= maxFinishedRuns {
		return
	}
	kept := m.order[:0]
	for _, id := range m.order {
		if finished > maxFinishedRuns && m.runs[id].State != StateRunning {
			delete(m.runs, id)
			finished--
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
}

// Get returns a copy of the run, or false when the handle is unknown.
func (m *Manager) Get(id string) (Run, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}
