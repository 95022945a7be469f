package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

type countingTask struct {
	id      string
	active  *int32
	peak    *int32
	delay   time.Duration
	failErr error
}

type countingResult struct {
	id  string
	err error
}

func (r *countingResult) TaskID() string { return r.id }
func (r *countingResult) Err() error     { return r.err }

func (t *countingTask) ID() string { return t.id }

func (t *countingTask) Execute(ctx context.Context) Result {
	cur := atomic.AddInt32(t.active, 1)
	for {
		p := atomic.LoadInt32(t.peak)
		if cur <= p || atomic.CompareAndSwapInt32(t.peak, p, cur) {
			break
		}
	}
	time.Sleep(t.delay)
	atomic.AddInt32(t.active, -1)
	return &countingResult{id: t.id, err: t.failErr}
}

func TestExecuteAll_BoundsConcurrency(t *testing.T) {
	var active, peak int32
	tasks := make([]Task, 12)
	for i := range tasks {
		tasks[i] = &countingTask{
			id:     fmt.Sprintf("task-%d", i),
			active: &active,
			peak:   &peak,
			delay:  10 * time.Millisecond,
		}
	}

	pool := NewPool(3)
	results := pool.ExecuteAll(context.Background(), tasks)

	if len(results) != len(tasks) {
		t.Fatalf("Expected %d results, got %d", len(tasks), len(results))
	}
	if p := atomic.LoadInt32(&peak); p > 3 {
		t.Errorf("Expected at most 3 concurrent tasks, observed %d", p)
	}
}

func TestExecuteAll_ResultsMatchInputOrder(t *testing.T) {
	var active, peak int32
	tasks := make([]Task, 6)
	for i := range tasks {
		tasks[i] = &countingTask{
			id:     fmt.Sprintf("task-%d", i),
			active: &active,
			peak:   &peak,
			delay:  time.Duration(6-i) * time.Millisecond, // later tasks finish first
		}
	}

	results := NewPool(6).ExecuteAll(context.Background(), tasks)
	for i, res := range results {
		if want := fmt.Sprintf("task-%d", i); res.TaskID() != want {
			t.Errorf("Expected result %d to be %s, got %s", i, want, res.TaskID())
		}
	}
}

func TestExecuteAll_IsABarrier(t *testing.T) {
	var active, peak int32
	tasks := []Task{
		&countingTask{id: "slow", active: &active, peak: &peak, delay: 50 * time.Millisecond},
		&countingTask{id: "fast", active: &active, peak: &peak},
	}

	NewPool(2).ExecuteAll(context.Background(), tasks)
	if n := atomic.LoadInt32(&active); n != 0 {
		t.Errorf("Expected every task settled before return, %d still active", n)
	}
}

func TestExecuteAll_FailuresDoNotBlockOthers(t *testing.T) {
	var active, peak int32
	boom := errors.New("boom")
	tasks := []Task{
		&countingTask{id: "bad", active: &active, peak: &peak, failErr: boom},
		&countingTask{id: "good", active: &active, peak: &peak},
	}

	results := NewPool(2).ExecuteAll(context.Background(), tasks)
	if results[0].Err() == nil {
		t.Error("Expected first task to report its error")
	}
	if results[1].Err() != nil {
		t.Errorf("Expected second task to succeed, got %v", results[1].Err())
	}
}

func TestExecuteAll_CancelledContextSettlesUnstarted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var active, peak int32
	tasks := []Task{&countingTask{id: "never", active: &active, peak: &peak}}
	results := NewPool(1).ExecuteAll(ctx, tasks)

	if len(results) != 1 {
		t.Fatalf("Expected a settled result, got %d", len(results))
	}
	if !errors.Is(results[0].Err(), context.Canceled) {
		t.Errorf("Expected context error, got %v", results[0].Err())
	}
}

func TestExecuteAll_EmptyInput(t *testing.T) {
	if results := NewPool(4).ExecuteAll(context.Background(), nil); results != nil {
		t.Errorf("Expected nil results for empty input, got %v", results)
	}
}
