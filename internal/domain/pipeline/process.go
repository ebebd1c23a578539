package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/retention/internal/domain/job"
	"github.com/okian/retention/pkg/logger"
	"github.com/okian/retention/pkg/metrics"
)

// ErrNoJobStore is returned by Process when the runner has no job store.
var ErrNoJobStore = errors.New("runner has no job store")

// Process runs a queued job and records its transitions and progress in
// the job store.
func (r *Runner) Process(ctx context.Context, t job.Task) error {
	if r.jobs == nil {
		return ErrNoJobStore
	}
	j, err := r.jobs.Get(ctx, t.JobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", t.JobID, err)
	}
	if err := j.Start(r.now()); err != nil {
		return err
	}
	r.save(ctx, j)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	out, runErr := r.Run(ctx, j.ID, t.Request, func(stage string, fraction float64) {
		j.Advance(stage, fraction, r.now())
		r.save(ctx, j)
	})

	// The run context may be done; the final record must still be written.
	final := context.WithoutCancel(ctx)
	if runErr != nil {
		if err := j.Fail(runErr, r.now()); err != nil {
			return errors.Join(runErr, err)
		}
		r.save(final, j)
		metrics.RecordJob(string(job.StateFailed))
		return runErr
	}

	version := ""
	if out.Model != nil {
		version = out.Model.Metadata.Version
	}
	if err := j.Complete(version, out.ReportKey, r.now()); err != nil {
		return err
	}
	r.save(final, j)
	metrics.RecordJob(string(job.StateCompleted))
	return nil
}

func (r *Runner) save(ctx context.Context, j *job.Job) {
	if err := r.jobs.Update(ctx, j); err != nil {
		r.logger.Warn(ctx, "job update failed",
			logger.String("job_id", j.ID),
			logger.String("state", string(j.State)),
			logger.Error(err))
	}
}
