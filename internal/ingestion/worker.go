package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	// defaultWorkers is the background ingestion concurrency when the caller
	// does not configure one.
	defaultWorkers = 4

	// jobTimeout bounds one background ingestion end to end.
	jobTimeout = 5 * time.Minute
)

// Pool runs ingestions in the background so the trigger endpoint can
// acknowledge immediately. Jobs are queued on a bounded channel; Submit
// rejects rather than blocks when the queue is full. Close stops intake and
// drains queued and in-flight jobs.
type Pool struct {
	pipeline *Pipeline
	base     context.Context
	jobs     chan Request
	wg       sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPool starts workers goroutines processing submitted ingestion requests.
// base carries the logger and outlives individual requests; each job runs
// under its own timeout derived from it.
func NewPool(base context.Context, pipeline *Pipeline, workers int) *Pool {
	if workers <= 0 {
		workers = defaultWorkers
	}
	p := &Pool{
		pipeline: pipeline,
		base:     base,
		jobs:     make(chan Request, workers*4),
	}
	for range workers {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// worker processes jobs until the queue is closed. Outcomes are recorded in
// the ledger by the pipeline; errors are already logged there.
// Job contexts keep the base context's values (logger) but not its
// cancellation: cancelling base signals shutdown, and queued jobs must still
// drain to completion under their own timeout rather than fail mid-step.
func (p *Pool) worker() {
	defer p.wg.Done()
	for req := range p.jobs {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(p.base), jobTimeout)
		_, _ = p.pipeline.Ingest(ctx, req)
		cancel()
	}
}

// Submit queues a request for background ingestion. It returns an error when
// the pool is shutting down or the queue is full; callers translate that into
// a retryable response.
func (p *Pool) Submit(req Request) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("ingestion: pool is shut down")
	}
	select {
	case p.jobs <- req:
		return nil
	default:
		return fmt.Errorf("ingestion: queue full, retry later")
	}
}

// Close stops accepting new work and blocks until queued and in-flight jobs
// finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}
