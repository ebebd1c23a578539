// Package service wires configuration, storage, the job queue, the worker
// pool and the pipeline into the application behind the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/retention/internal/adapters/artifact"
	"github.com/okian/retention/internal/adapters/http/api"
	"github.com/okian/retention/internal/adapters/jobstore"
	"github.com/okian/retention/internal/adapters/mq/queue"
	workerpool "github.com/okian/retention/internal/adapters/mq/worker"
	"github.com/okian/retention/internal/adapters/tabular"
	"github.com/okian/retention/internal/config"
	"github.com/okian/retention/internal/domain/dedupe"
	"github.com/okian/retention/internal/domain/job"
	"github.com/okian/retention/internal/domain/pipeline"
	"github.com/okian/retention/pkg/logger"
	"github.com/okian/retention/pkg/metrics"
)

// JobStore is a job.Store that can resolve idempotency keys.
type JobStore interface {
	job.Store
	FindByIdempotencyKey(ctx context.Context, key string) (*job.Job, error)
}

// Service implements the API dependencies of the job service.
type Service struct {
	mu sync.RWMutex

	cfg      *config.Config
	jobs     JobStore
	index    dedupe.Index
	queue    *queue.InMemoryQueue
	pool     *workerpool.Pool
	runner   *pipeline.Runner
	store    *artifact.Store
	notifier *Notifier

	backend     artifact.Backend
	source      pipeline.Source
	pipeOpts    []pipeline.Option
	closeJobs   func()
	now         func() time.Time
	newID       func() string
	consumeStop chan struct{}
	consumeDone chan struct{}

	// pending holds the ids of jobs this instance queued and has not seen
	// an outcome for.
	pending sync.Map

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithJobStore replaces the configured job store.
func WithJobStore(js JobStore) Option {
	return func(s *Service) { s.jobs = js }
}

// WithBackend replaces the configured artifact backend.
func WithBackend(b artifact.Backend) Option {
	return func(s *Service) { s.backend = b }
}

// WithSource replaces where the raw tables are loaded from.
func WithSource(src pipeline.Source) Option {
	return func(s *Service) { s.source = src }
}

// WithPipelineOptions appends runner options after the configured ones.
func WithPipelineOptions(opts ...pipeline.Option) Option {
	return func(s *Service) { s.pipeOpts = append(s.pipeOpts, opts...) }
}

// WithNotifier replaces the completion callback sender.
func WithNotifier(n *Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithClock sets the time source for job records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds the service from cfg. Components not injected through options
// are created from the configuration.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{
		cfg:       cfg,
		closeJobs: func() {},
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.notifier == nil {
		s.notifier = NewNotifier(s.logger.Named("callback"))
	}

	if s.jobs == nil {
		js, closeJobs, err := OpenJobStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.jobs, s.closeJobs = js, closeJobs
	}
	if s.backend == nil {
		b, err := OpenBackend(ctx, cfg, s.logger)
		if err != nil {
			s.closeJobs()
			return nil, err
		}
		s.backend = b
	}
	if s.source == nil {
		s.source = tabular.NewSource(Tables(cfg, s.backend), tabular.WithLogger(s.logger.Named("tabular")))
	}

	s.store = artifact.NewStore(s.backend, artifact.WithLogger(s.logger.Named("artifact")))
	runnerOpts := append(PipelineOptions(cfg, s.logger),
		pipeline.WithPanels(s.store),
		pipeline.WithJobStore(s.jobs),
		pipeline.WithClock(s.now))
	s.runner = pipeline.NewRunner(s.source, s.store, s.store, append(runnerOpts, s.pipeOpts...)...)

	s.index = dedupe.NewInMemoryIndex(dedupe.WithMaxSize(cfg.DedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(cfg.QueueSize))
	s.pool = workerpool.NewPool(cfg.WorkerCount, s.queue, s.runner,
		workerpool.WithPoolLogger(s.logger.Named("worker-pool")),
		workerpool.WithTrainingSlots(cfg.TrainingWorkers),
		workerpool.WithResults(cfg.QueueSize))
	return s, nil
}

// Runner returns the pipeline runner, for one-shot runs.
func (s *Service) Runner() *pipeline.Runner { return s.runner }

// Store returns the artifact store.
func (s *Service) Store() *artifact.Store { return s.store }

// Source returns where the raw tables are loaded from.
func (s *Service) Source() pipeline.Source { return s.source }

// Start starts the workers and the outcome consumer.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.pool.Start(ctx)
	s.consumeStop = make(chan struct{})
	s.consumeDone = make(chan struct{})
	go s.consume(ctx, s.pool.Results())

	s.started = true
	s.logger.Info(ctx, "retention service started",
		logger.Int("workers", s.cfg.WorkerCount),
		logger.Int("training_workers", s.cfg.TrainingWorkers),
		logger.Int("queue_size", s.cfg.QueueSize),
		logger.String("artifact_backend", s.cfg.ArtifactBackend),
		logger.String("job_store", s.cfg.JobStore),
	)
	return nil
}

// Stop closes the queue, waits for running jobs and releases the stores.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.closeJobs()
		return nil
	}
	s.logger.Info(ctx, "stopping retention service")
	err := s.pool.Shutdown(ctx)
	// Workers have exited; the consumer drains what is buffered and returns.
	close(s.consumeStop)
	<-s.consumeDone
	s.failStranded(ctx)
	s.closeJobs()
	s.started = false
	s.logger.Info(ctx, "retention service stopped")
	return err
}

// Submit creates and queues a job. A request whose idempotency key was seen
// before returns the job created for it.
func (s *Service) Submit(ctx context.Context, req job.Request) (*job.Job, bool, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	id := s.newID()
	if key := req.IdempotencyKey; key != "" {
		if prior, err := s.jobs.FindByIdempotencyKey(ctx, key); err == nil {
			return prior, true, nil
		} else if !errors.Is(err, job.ErrNotFound) {
			return nil, false, err
		}
		if owner, claimed := s.index.Claim(ctx, key, id); !claimed {
			prior, err := s.jobs.Get(ctx, owner)
			if err != nil {
				return nil, false, err
			}
			return prior, true, nil
		}
	}

	j := job.New(id, req, s.now())
	if err := s.jobs.Create(ctx, j); err != nil {
		s.release(ctx, req.IdempotencyKey)
		if errors.Is(err, jobstore.ErrDuplicate) && req.IdempotencyKey != "" {
			if prior, ferr := s.jobs.FindByIdempotencyKey(ctx, req.IdempotencyKey); ferr == nil {
				return prior, true, nil
			}
		}
		return nil, false, err
	}

	s.pending.Store(j.ID, struct{}{})
	if err := s.queue.Enqueue(ctx, job.Task{JobID: j.ID, Request: req}); err != nil {
		s.pending.Delete(j.ID)
		s.release(ctx, req.IdempotencyKey)
		if ferr := j.Fail(err, s.now()); ferr == nil {
			_ = s.jobs.Update(context.WithoutCancel(ctx), j)
		}
		metrics.RecordJob(string(job.StateFailed))
		switch {
		case errors.Is(err, queue.ErrFull):
			return nil, false, fmt.Errorf("%w: %v", api.ErrBackpressure, err)
		case errors.Is(err, queue.ErrClosed):
			return nil, false, fmt.Errorf("%w: %v", api.ErrUnavailable, err)
		}
		return nil, false, err
	}

	metrics.RecordJob(string(job.StateQueued))
	s.logger.Info(ctx, "job queued",
		logger.String("job_id", j.ID),
		logger.String("mode", string(req.Mode)),
		logger.Int("queue_length", s.queue.Len(ctx)))
	return j, false, nil
}

func (s *Service) release(ctx context.Context, key string) {
	if key != "" {
		s.index.Release(ctx, key)
	}
}

// Job returns a job by id.
func (s *Service) Job(ctx context.Context, id string) (*job.Job, error) {
	return s.jobs.Get(ctx, id)
}

// Jobs lists recent jobs, newest first.
func (s *Service) Jobs(ctx context.Context, limit int) ([]*job.Job, error) {
	return s.jobs.List(ctx, limit)
}

// Report returns the stored report of a completed job.
func (s *Service) Report(ctx context.Context, id string) ([]byte, error) {
	j, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.State != job.StateCompleted {
		return nil, fmt.Errorf("%w: job %s is %s", api.ErrNotReady, id, j.State)
	}
	if j.ReportKey == "" {
		return nil, fmt.Errorf("%w: job %s ran in %s mode", artifact.ErrNotFound, id, j.Request.Mode)
	}
	return s.store.LoadReport(ctx, id)
}

// statsWindow is how many recent jobs /stats counts by state.
const statsWindow = 1000

// Stats returns the pool, queue and recent job counts.
func (s *Service) Stats(ctx context.Context) (*api.Stats, error) {
	s.mu.RLock()
	stats := &api.Stats{
		Started:         s.started,
		Workers:         s.pool.Size(),
		ActiveWorkers:   s.pool.Active(),
		TrainingWorkers: s.cfg.TrainingWorkers,
		QueueLength:     s.queue.Len(ctx),
		QueueCapacity:   s.queue.Capacity(),
		IdempotencyKeys: s.index.Size(),
	}
	s.mu.RUnlock()
	metrics.UpdateQueueSize(stats.QueueLength)
	metrics.UpdateWorkerActiveCount(stats.ActiveWorkers)

	recent, err := s.jobs.List(ctx, statsWindow)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	stats.RecentJobs = len(recent)
	stats.Jobs = map[job.State]int{
		job.StateQueued:    0,
		job.StateRunning:   0,
		job.StateCompleted: 0,
		job.StateFailed:    0,
	}
	for _, j := range recent {
		stats.Jobs[j.State]++
	}
	return stats, nil
}
