// Package pool provides the worker pool the scheduler runs agent loops
// on, plus object pools for hot-path allocations.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrPoolClosed = errors.New("worker pool is closed")
	ErrPoolFull   = errors.New("worker pool queue is full")
)

// Job is a unit of work executed by the pool. Long-running jobs (the
// per-agent work loops) are expected: a job occupies its worker until it
// returns, so MaxWorkers bounds how many agents run concurrently.
type Job func(ctx context.Context) error

type jobEnvelope struct {
	job    Job
	ctx    context.Context
	result chan error
}

// WorkerPoolConfig configures a WorkerPool.
type WorkerPoolConfig struct {
	// MaxWorkers bounds concurrently running jobs.
	MaxWorkers int `json:"max_workers"`
	// QueueSize bounds jobs waiting for a free worker.
	QueueSize int `json:"queue_size"`
	// IdleTimeout is how long a spare worker lingers before exiting.
	IdleTimeout time.Duration `json:"idle_timeout"`
	// PanicHandler is invoked with the recovered value when a job
	// panics. The job is reported as failed either way.
	PanicHandler func(any) `json:"-"`
}

// DefaultWorkerPoolConfig returns defaults sized for a single
// coordinator running a handful of agents.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		MaxWorkers:  16,
		QueueSize:   64,
		IdleTimeout: time.Minute,
	}
}

// WorkerPool runs submitted jobs on an elastic set of goroutines,
// spawning workers on demand up to MaxWorkers and retiring idle ones.
type WorkerPool struct {
	maxWorkers  int
	queue       chan jobEnvelope
	workerCount atomic.Int32
	activeCount atomic.Int32
	closed      atomic.Bool
	wg          sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64

	idleTimeout  time.Duration
	panicHandler func(any)
}

// NewWorkerPool constructs a WorkerPool. Workers are spawned lazily on
// the first Submit.
func NewWorkerPool(cfg WorkerPoolConfig) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultWorkerPoolConfig().MaxWorkers
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultWorkerPoolConfig().IdleTimeout
	}
	return &WorkerPool{
		maxWorkers:   cfg.MaxWorkers,
		queue:        make(chan jobEnvelope, cfg.QueueSize),
		idleTimeout:  cfg.IdleTimeout,
		panicHandler: cfg.PanicHandler,
	}
}

// Submit enqueues job without waiting for it to run. Returns ErrPoolFull
// when the queue is full and no worker slot is free.
func (p *WorkerPool) Submit(ctx context.Context, job Job) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.submitted.Add(1)

	env := jobEnvelope{job: job, ctx: ctx, result: make(chan error, 1)}

	select {
	case p.queue <- env:
		p.ensureWorker()
		return nil
	default:
		if p.trySpawnWorker() {
			select {
			case p.queue <- env:
				return nil
			default:
			}
		}
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

// SubmitWait enqueues job and blocks until it finishes, returning the
// job's error.
func (p *WorkerPool) SubmitWait(ctx context.Context, job Job) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.submitted.Add(1)

	env := jobEnvelope{job: job, ctx: ctx, result: make(chan error, 1)}

	select {
	case p.queue <- env:
		p.ensureWorker()
	case <-ctx.Done():
		p.rejected.Add(1)
		return ctx.Err()
	}

	select {
	case err := <-env.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for in-flight jobs to finish.
func (p *WorkerPool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	close(p.queue)
	p.wg.Wait()
}

// Active reports jobs currently executing.
func (p *WorkerPool) Active() int {
	return int(p.activeCount.Load())
}

// WorkerPoolStats is a snapshot of pool counters.
type WorkerPoolStats struct {
	Submitted int64
	Completed int64
	Failed    int64
	Rejected  int64
	Workers   int
	Active    int
}

// Stats returns a snapshot of pool counters.
func (p *WorkerPool) Stats() WorkerPoolStats {
	return WorkerPoolStats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
		Workers:   int(p.workerCount.Load()),
		Active:    int(p.activeCount.Load()),
	}
}

func (p *WorkerPool) ensureWorker() {
	if p.workerCount.Load() < int32(p.maxWorkers) {
		p.trySpawnWorker()
	}
}

func (p *WorkerPool) trySpawnWorker() bool {
	for {
		current := p.workerCount.Load()
		if current >= int32(p.maxWorkers) {
			return false
		}
		if p.workerCount.CompareAndSwap(current, current+1) {
			p.wg.Add(1)
			go p.worker()
			return true
		}
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	defer p.workerCount.Add(-1)

	timer := time.NewTimer(p.idleTimeout)
	defer timer.Stop()

	for {
		select {
		case env, ok := <-p.queue:
			if !ok {
				return
			}
			p.activeCount.Add(1)
			err := p.run(env)
			p.activeCount.Add(-1)

			env.result <- err
			close(env.result)

			if err != nil {
				p.failed.Add(1)
			} else {
				p.completed.Add(1)
			}
			timer.Reset(p.idleTimeout)

		case <-timer.C:
			// Keep one worker alive so a quiet pool stays responsive.
			if p.workerCount.Load() > 1 {
				return
			}
			timer.Reset(p.idleTimeout)
		}
	}
}

func (p *WorkerPool) run(env jobEnvelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if p.panicHandler != nil {
				p.panicHandler(r)
			}
			err = errors.New("job panicked")
		}
	}()
	return env.job(env.ctx)
}
