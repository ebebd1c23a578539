// Package worker runs queued pipeline jobs on a bounded pool.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/okian/retention/internal/domain/job"
	"github.com/okian/retention/pkg/logger"
	"github.com/okian/retention/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount    = 1
	defaultTrainingSlots  = 1
	workerShutdownTimeout = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Processor runs one job to completion.
type Processor interface {
	Process(ctx context.Context, t job.Task) error
}

// Queue defines how workers receive tasks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan job.Task
}

// Worker processes tasks until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current task.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing tasks.
type InMemoryWorker struct {
	queue     Queue
	processor Processor
	name      string

	// training limits how many training runs execute at once across a pool.
	training *semaphore.Weighted
	results  chan<- job.Outcome
	active   *atomic.Int32

	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, processor Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     queue,
		processor: processor,
		name:      "worker",
		active:    &atomic.Int32{},
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	tasks := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case t, ok := <-tasks:
			if !ok {
				return
			}
			w.handle(ctx, t)
		}
	}
}

// Shutdown stops the worker after its current task.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) stop() {
	w.stopOnce.Do(func() { close(w.shutdown) })
}

// handle processes one task and publishes its outcome.
func (w *InMemoryWorker) handle(ctx context.Context, t job.Task) {
	start := time.Now()
	err := w.process(ctx, t)
	elapsed := time.Since(start)
	metrics.RecordWorkerProcessingLatency(elapsed)

	outcome := job.Outcome{JobID: t.JobID, State: job.StateCompleted, Duration: elapsed}
	if err != nil {
		outcome.State = job.StateFailed
		outcome.Err = err
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "job_failed")
		w.logger.Error(ctx, "job failed",
			logger.String("job_id", t.JobID),
			logger.Duration("elapsed", elapsed),
			logger.Error(err))
	} else {
		w.logger.Info(ctx, "job finished",
			logger.String("job_id", t.JobID),
			logger.Duration("elapsed", elapsed))
	}

	if w.results == nil {
		return
	}
	select {
	case w.results <- outcome:
	case <-ctx.Done():
	}
}

func (w *InMemoryWorker) process(ctx context.Context, t job.Task) error {
	if w.training != nil && t.Request.Mode.Trains() {
		if err := w.training.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("wait for training slot: %w", err)
		}
		defer w.training.Release(1)
	}

	metrics.UpdateJobsInFlight(int(w.active.Add(1)))
	metrics.UpdateWorkerActiveCount(int(w.active.Load()))
	defer func() {
		n := int(w.active.Add(-1))
		metrics.UpdateJobsInFlight(n)
		metrics.UpdateWorkerActiveCount(n)
	}()

	return w.processor.Process(ctx, t)
}

// Pool manages multiple workers that share a queue, a training gate and a
// results channel.
type Pool struct {
	workers   []*InMemoryWorker
	queue     Queue
	processor Processor

	trainingSlots int64
	results       chan job.Outcome
	active        atomic.Int32

	shutdown chan struct{}
	stopOnce sync.Once

	logger logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, queue Queue, processor Processor, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	pool := &Pool{
		workers:       make([]*InMemoryWorker, workerCount),
		queue:         queue,
		processor:     processor,
		trainingSlots: defaultTrainingSlots,
		shutdown:      make(chan struct{}),
		logger:        logger.Get().Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(pool)
	}

	gate := semaphore.NewWeighted(pool.trainingSlots)
	for i := 0; i < workerCount; i++ {
		w := NewInMemoryWorker(queue, processor, WithName("worker-"+strconv.Itoa(i)), WithLogger(pool.logger))
		w.training = gate
		w.active = &pool.active
		if pool.results != nil {
			w.results = pool.results
		}
		pool.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)

	return pool
}

// Results returns the outcome channel, or nil when the pool was built
// without WithResults.
func (p *Pool) Results() <-chan job.Outcome { return p.results }

// Size is the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Active is the number of workers currently running a job.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}

	go p.startMetricsUpdater(ctx)
}

// startMetricsUpdater refreshes runtime gauges until the pool stops.
func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

func (p *Pool) updateMetrics() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	metrics.UpdateSystemMemoryUsage(ms.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	metrics.UpdateWorkerActiveCount(p.Active())
}

// Stop signals all workers and waits briefly for each.
func (p *Pool) Stop() {
	p.signal()
	for _, worker := range p.workers {
		select {
		case <-worker.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
}

func (p *Pool) signal() {
	p.stopOnce.Do(func() {
		close(p.shutdown)
		for _, w := range p.workers {
			w.stop()
		}
	})
}

// Shutdown closes the queue and waits for workers to finish their current
// job or for ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	p.signal()

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
