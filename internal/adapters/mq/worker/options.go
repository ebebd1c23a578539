package worker

import (
	"github.com/okian/retention/internal/domain/job"
	"github.com/okian/retention/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithOutcomes makes the worker publish every outcome on ch.
func WithOutcomes(ch chan<- job.Outcome) Option {
	return func(w *InMemoryWorker) { w.results = ch }
}

// PoolOption applies a configuration option to the Pool.
type PoolOption func(*Pool)

// WithPoolLogger sets the logger shared by the pool's workers.
func WithPoolLogger(l logger.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithTrainingSlots bounds how many training jobs run at once.
func WithTrainingSlots(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.trainingSlots = int64(n)
		}
	}
}

// WithResults makes the pool publish outcomes on a channel of the given
// buffer size.
func WithResults(buffer int) PoolOption {
	return func(p *Pool) {
		if buffer < 0 {
			buffer = 0
		}
		p.results = make(chan job.Outcome, buffer)
	}
}
