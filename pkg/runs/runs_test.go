package runs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mertacar/workforce-scheduler-api/pkg/scheduler"
)

func waitFor(t *testing.T, m *Manager, id string) Run {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		run, ok := m.Get(id)
		if !ok {
			t.Fatalf("run %s disappeared", id)
		}
		if run.State != StateRunning {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish in time", id)
	return Run{}
}

func TestSubmitCompletes(t *testing.T) {
	m := NewManager()
	run := m.Submit("genetic", time.Second, func(ctx context.Context) (interface{}, error) {
		return "sonuc", nil
	})
	if run.ID == "" {
		t.Fatal("Expected a run handle")
	}

	done := waitFor(t, m, run.ID)
	if done.State != StateCompleted {
		t.Errorf("Expected completed state, got %s", done.State)
	}
	if done.Result != "sonuc" {
		t.Errorf("Expected result carried on the run, got %v", done.Result)
	}
	if done.FinishedAt == nil {
		t.Error("Expected a finish timestamp")
	}
}

func TestSubmitFailure(t *testing.T) {
	m := NewManager()
	run := m.Submit("taguchi", time.Second, func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("store down")
	})

	done := waitFor(t, m, run.ID)
	if done.State != StateFailed {
		t.Errorf("Expected failed state, got %s", done.State)
	}
	if done.Error == "" {
		t.Error("Expected the error message recorded")
	}
}

func TestSubmitPartialOnTimeout(t *testing.T) {
	m := NewManager()
	run := m.Submit("monte_carlo", time.Second, func(ctx context.Context) (interface{}, error) {
		return nil, fmt.Errorf("sampling cut short: %w", scheduler.ErrOptimizationTimeout)
	})

	done := waitFor(t, m, run.ID)
	if done.State != StatePartial {
		t.Errorf("Expected partial state, got %s", done.State)
	}
}

func TestSubmitHonorsTimeout(t *testing.T) {
	m := NewManager()
	run := m.Submit("genetic", 10*time.Millisecond, func(ctx context.Context) (interface{}, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("deadline: %w", scheduler.ErrOptimizationTimeout)
	})

	done := waitFor(t, m, run.ID)
	if done.State != StatePartial {
		t.Errorf("Expected partial state after deadline, got %s", done.State)
	}
}

func TestFinishedRunsPruned(t *testing.T) {
	m := NewManager()
	noop := func(ctx context.Context) (interface{}, error) { return "ok", nil }

	first := m.Submit("genetic", time.Second, noop)
	waitFor(t, m, first.ID)

	var last *Run
	for i := 0; i < maxFinishedRuns; i++ {
		last = m.Submit("genetic", time.Second, noop)
		waitFor(t, m, last.ID)
	}

	if _, ok := m.Get(first.ID); ok {
		t.Error("Expected the oldest finished run to be evicted")
	}
	if _, ok := m.Get(last.ID); !ok {
		t.Error("Expected the newest run to survive pruning")
	}
}

func TestGetUnknown(t *testing.T) {
	m := NewManager()
	if _, ok := m.Get("yok"); ok {
		t.Error("Expected unknown handle to miss")
	}
}
