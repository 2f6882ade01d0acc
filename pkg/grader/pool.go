package grader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("grader: pool closed")

// PoolConfig sizes a Pool.
type PoolConfig struct {
	Workers   int
	QueueSize int
	// Timeout bounds one job. Zero means no timeout.
	Timeout time.Duration
}

// Result is a finished job.
type Result struct {
	JobID    string        `json:"jobId"`
	Request  Request       `json:"request"`
	Outcome  Outcome       `json:"outcome"`
	Duration time.Duration `json:"duration"`
}

type job struct {
	id     string
	ctx    context.Context
	req    Request
	result chan Result
}

// Pool runs grading jobs on a fixed set of workers fed by a bounded queue.
type Pool struct {
	grader  *Grader
	timeout time.Duration
	workers int

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
}

// NewPool starts the workers. A grader whose kernel is not concurrency-safe
// always gets a single worker.
func NewPool(g *Grader, cfg PoolConfig) *Pool {
	workers := max(cfg.Workers, 1)
	if !g.ConcurrentSafe() {
		workers = 1
	}
	p := &Pool{
		grader:  g,
		timeout: cfg.Timeout,
		workers: workers,
		jobs:    make(chan job, max(cfg.QueueSize, 1)),
	}
	p.wg.Add(workers)
	for range workers {
		go p.work()
	}
	return p
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Submit queues a request without blocking. It returns the job id and a
// channel that receives exactly one Result, or ErrQueueFull when no slot
// is free.
func (p *Pool) Submit(ctx context.Context, req Request) (string, <-chan Result, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return "", nil, ErrPoolClosed
	}

	j := job{
		id:     uuid.NewString(),
		ctx:    ctx,
		req:    req,
		result: make(chan Result, 1),
	}
	p.grader.metrics.QueueDepth.Inc()
	select {
	case p.jobs <- j:
		return j.id, j.result, nil
	default:
		p.grader.metrics.QueueDepth.Dec()
		p.grader.metrics.RejectionsTotal.Inc()
		p.grader.logger.Warn("queue full, job rejected",
			zap.String("submitted", req.SubmittedPath))
		return "", nil, ErrQueueFull
	}
}

// Grade submits a request and waits for its outcome. A full queue yields a
// retryable QueueFull failure.
func (p *Pool) Grade(ctx context.Context, req Request) Result {
	_, ch, err := p.Submit(ctx, req)
	if err != nil {
		return Result{Request: req, Outcome: Fail(req.Mode, err)}
	}
	return <-ch
}

// Close stops accepting jobs, lets queued jobs finish and waits for the
// workers, including comparisons abandoned after a timeout.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) work() {
	defer p.wg.Done()
	for j := range p.jobs {
		p.grader.metrics.QueueDepth.Dec()
		p.run(j)
	}
}

func (p *Pool) run(j job) {
	start := time.Now()
	log := p.grader.logger.With(zap.String("job_id", j.id))
	log.Debug("job started", zap.String("submitted", j.req.SubmittedPath))

	ctx := WithJobID(j.ctx, j.id)
	cancel := func() {}
	if p.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
	}
	defer cancel()

	done := make(chan Outcome, 1)
	go func() {
		done <- p.grader.Compare(ctx, j.req)
	}()

	var (
		out      Outcome
		timedOut bool
	)
	select {
	case out = <-done:
	case <-ctx.Done():
		timedOut = true
		p.grader.metrics.TimeoutsTotal.Inc()
		log.Warn("job timed out", zap.Duration("timeout", p.timeout))
		out = Fail(j.req.Mode, fmt.Errorf("%w: job %s: %v", ErrTimeout, j.id, ctx.Err()))
	}

	j.result <- Result{
		JobID:    j.id,
		Request:  j.req,
		Outcome:  out,
		Duration: time.Since(start),
	}

	if timedOut {
		// The worker keeps its slot until the abandoned comparison returns,
		// so timed out jobs never run beyond the worker count. Its late
		// outcome is dropped.
		<-done
		log.Debug("abandoned job returned", zap.Duration("elapsed", time.Since(start)))
	}
}
