// Package runtime implements the agent runtime shared by clerk, transformer,
// and carrier: a bounded worker pool, a periodic event dispatch loop, a
// cron-scheduled timer, and a liveness heartbeat. Grounded on the teacher's
// kernel.Engine (internal/app/agent/kernel/engine.go), whose executeDispatches
// runs work concurrently behind a buffered-channel semaphore and a
// sync.WaitGroup; generalized here from one-shot cycle dispatches to a
// long-lived, repeatedly-invoked task runner.
package runtime

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool runs tasks with bounded concurrency, built on
// golang.org/x/sync/semaphore.Weighted in place of executeDispatches's
// hand-rolled buffered channel, the ecosystem-standard way to bound
// concurrent work in Go. Carrier does not use it: it reconciles per-job
// status batches sequentially.
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewPool returns a Pool that runs at most maxConcurrent tasks at once. A
// non-positive maxConcurrent is normalized to 1.
func NewPool(maxConcurrent int) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

// Go runs fn in a new goroutine once a slot is free, or immediately if ctx is
// cancelled first (in which case fn is not run). Callers must call Wait
// before assuming all submitted work has finished.
func (p *Pool) Go(ctx context.Context, fn func(ctx context.Context)) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		fn(ctx)
	}()
}

// Wait blocks until every task submitted via Go has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
