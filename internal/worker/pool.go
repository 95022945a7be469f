// Package worker provides the bounded-concurrency primitives the
// orchestrator runs fetch phases on.
package worker

import (
	"context"
	"sync"
)

// Task is a unit of work executed inside one phase.
type Task interface {
	ID() string
	Execute(ctx context.Context) Result
}

// Result is the settled outcome of a task.
type Result interface {
	TaskID() string
	Err() error
}

// Pool executes batches of tasks with bounded concurrency. ExecuteAll is a
// hard barrier: it returns only when every submitted task has settled, so
// callers get phase semantics for free.
type Pool struct {
	workers int
}

// NewPool creates a pool with the given worker bound.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Workers returns the concurrency bound.
func (p *Pool) Workers() int { return p.workers }

// ExecuteAll runs every task concurrently (bounded by the worker count) and
// returns results indexed to match the input order. A cancelled context
// settles unstarted tasks with the context error; in-flight tasks are still
// waited for before ExecuteAll returns.
func (p *Pool) ExecuteAll(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	results := make([]Result, len(tasks))
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func(idx int, t Task) {
			defer wg.Done()

			// Checked before the select so an already-cancelled context
			// settles deterministically instead of racing the semaphore.
			if err := ctx.Err(); err != nil {
				results[idx] = &errResult{id: t.ID(), err: err}
				return
			}
			select {
			case <-ctx.Done():
				results[idx] = &errResult{id: t.ID(), err: ctx.Err()}
				return
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()

			results[idx] = t.Execute(ctx)
		}(i, task)
	}

	wg.Wait()
	return results
}

// errResult settles a task that never ran.
type errResult struct {
	id  string
	err error
}

func (r *errResult) TaskID() string { return r.id }
func (r *errResult) Err() error     { return r.err }
