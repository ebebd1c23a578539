package service

import (
	"context"
	"errors"

	"github.com/okian/retention/internal/domain/failure"
	"github.com/okian/retention/internal/domain/job"
	"github.com/okian/retention/pkg/logger"
	"github.com/okian/retention/pkg/metrics"
)

// StageQueue is the stage recorded on jobs that failed before a worker ran
// them.
const StageQueue = "queue"

// ErrShutdown fails jobs still queued when the service stops.
var ErrShutdown = errors.New("service stopped before the job ran")

// consume handles outcomes until Stop, then drains the buffered ones.
func (s *Service) consume(ctx context.Context, results <-chan job.Outcome) {
	defer close(s.consumeDone)
	ctx = context.WithoutCancel(ctx)
	for {
		select {
		case o := <-results:
			s.handleOutcome(ctx, o)
		case <-s.consumeStop:
			for {
				select {
				case o := <-results:
					s.handleOutcome(ctx, o)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) handleOutcome(ctx context.Context, o job.Outcome) {
	s.pending.Delete(o.JobID)
	fields := []logger.Field{
		logger.String("job_id", o.JobID),
		logger.String("state", string(o.State)),
		logger.Duration("elapsed", o.Duration),
	}
	if o.Err != nil {
		s.logger.Warn(ctx, "job failed", append(fields, logger.Error(o.Err))...)
	} else {
		s.logger.Info(ctx, "job finished", fields...)
	}

	j, err := s.jobs.Get(ctx, o.JobID)
	if err != nil {
		s.logger.Warn(ctx, "outcome for unknown job", logger.String("job_id", o.JobID), logger.Error(err))
		return
	}
	// A worker can give up before the pipeline records anything, for
	// example while waiting for a training slot.
	if o.State == job.StateFailed && !j.State.Terminal() {
		cause := o.Err
		if cause == nil {
			cause = errors.New("worker reported failure")
		}
		if j.State == job.StateQueued {
			cause = failure.InStage(StageQueue, cause)
		}
		s.fail(ctx, j, cause)
	}
	s.notify(ctx, j)
}

// failStranded fails the jobs this instance queued that never ran.
func (s *Service) failStranded(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	s.pending.Range(func(key, _ any) bool {
		id, _ := key.(string)
		s.pending.Delete(key)

		j, err := s.jobs.Get(ctx, id)
		if err != nil {
			s.logger.Warn(ctx, "stranded job lookup failed", logger.String("job_id", id), logger.Error(err))
			return true
		}
		if j.State != job.StateQueued {
			return true
		}
		s.fail(ctx, j, failure.InStage(StageQueue, ErrShutdown))
		s.logger.Warn(ctx, "queued job failed on shutdown", logger.String("job_id", id))
		s.notify(ctx, j)
		return true
	})
}

func (s *Service) fail(ctx context.Context, j *job.Job, cause error) {
	if err := j.Fail(cause, s.now()); err != nil {
		s.logger.Warn(ctx, "job fail transition rejected", logger.String("job_id", j.ID), logger.Error(err))
		return
	}
	if err := s.jobs.Update(ctx, j); err != nil {
		s.logger.Warn(ctx, "job update failed", logger.String("job_id", j.ID), logger.Error(err))
		return
	}
	metrics.RecordJob(string(job.StateFailed))
}

// notify sends the completion callback of a terminal job, if it has one.
func (s *Service) notify(ctx context.Context, j *job.Job) {
	if j.Request.CallbackURL == "" || !j.State.Terminal() {
		return
	}
	var report []byte
	if j.State == job.StateCompleted && j.ReportKey != "" {
		var err error
		if report, err = s.store.LoadReport(ctx, j.ID); err != nil {
			s.logger.Warn(ctx, "report unavailable for callback", logger.String("job_id", j.ID), logger.Error(err))
		}
	}
	if err := s.notifier.Notify(ctx, j, report); err != nil {
		s.logger.Warn(ctx, "callback failed",
			logger.String("job_id", j.ID),
			logger.String("url", j.Request.CallbackURL),
			logger.Error(err))
	}
}
