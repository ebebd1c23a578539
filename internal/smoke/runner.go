// Package smoke drives a running retention service through its job API:
// it submits jobs, resubmits them under the same idempotency key, waits
// for them to finish and checks the published reports.
package smoke

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/retention/internal/domain/job"
	"github.com/okian/retention/pkg/logger"
)

// ErrVerification is returned when the service misbehaved.
var ErrVerification = errors.New("smoke verification failed")

const percentageMultiplier = 100

type submission struct {
	key   string
	first *job.Job
	again *job.Job
	dup   bool
	err   error
}

// Run executes the smoke run and returns its statistics.
func Run(ctx context.Context, cfg *Config, log logger.Logger) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	client := NewClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting retention smoke run",
		logger.String("base_url", cfg.BaseURL),
		logger.Int("jobs", cfg.Jobs),
		logger.Int("workers", cfg.Workers),
		logger.String("as_of", cfg.AsOf))

	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	subs := submit(ctx, cfg, client, stats)
	var problems []error
	for _, s := range subs {
		switch {
		case s.err != nil:
			problems = append(problems, fmt.Errorf("%s: %w", s.key, s.err))
		case !s.dup || s.again.ID != s.first.ID:
			problems = append(problems, fmt.Errorf("%s: resubmission created job %s, want %s", s.key, s.again.ID, s.first.ID))
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, cfg.Wait)
	defer cancel()
	for _, s := range subs {
		if s.err != nil {
			continue
		}
		if err := verifyJob(waitCtx, cfg, client, s.first.ID, stats, log); err != nil {
			problems = append(problems, err)
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats, log)

	if len(problems) > 0 {
		return stats, fmt.Errorf("%w: %w", ErrVerification, errors.Join(problems...))
	}
	log.Info(ctx, "smoke run completed successfully")
	return stats, nil
}

// submit posts every job twice under one idempotency key using a pool of
// cfg.Workers submitters.
func submit(ctx context.Context, cfg *Config, client *Client, stats *Stats) []*submission {
	run := uuid.NewString()[:8]
	subs := make([]*submission, cfg.Jobs)
	for i := range subs {
		subs[i] = &submission{key: "smoke-" + run + "-" + strconv.Itoa(i)}
	}

	var mu sync.Mutex
	count := func(accepted, dup bool, err error) {
		mu.Lock()
		defer mu.Unlock()
		stats.Submitted++
		switch {
		case err != nil:
			stats.Rejected++
		case dup:
			stats.Duplicates++
		case accepted:
			stats.Accepted++
		}
	}

	work := make(chan *submission, cfg.Workers)
	var wg sync.WaitGroup
	for w := 0; w < max(cfg.Workers, 1); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range work {
				req := job.Request{Mode: job.ModeFull, AsOf: cfg.AsOf}
				s.first, _, s.err = client.Submit(ctx, req, s.key)
				count(true, false, s.err)
				if s.err != nil {
					continue
				}
				s.again, s.dup, s.err = client.Submit(ctx, req, s.key)
				count(false, s.dup, s.err)
			}
		}()
	}
	for _, s := range subs {
		work <- s
	}
	close(work)
	wg.Wait()
	return subs
}

// verifyJob polls a job until it finishes and checks its report.
func verifyJob(ctx context.Context, cfg *Config, client *Client, id string, stats *Stats, log logger.Logger) error {
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	var last job.State
	for {
		j, err := client.Job(ctx, id)
		if err != nil {
			return fmt.Errorf("job %s: %w", id, err)
		}
		if cfg.Verbose && j.State != last {
			log.Info(ctx, "job state",
				logger.String("job_id", id),
				logger.String("state", string(j.State)),
				logger.Float64("progress", j.Progress))
		}
		last = j.State

		switch j.State {
		case job.StateFailed:
			stats.Failed++
			return fmt.Errorf("job %s failed in %s: %s", id, j.Stage, j.Error)
		case job.StateCompleted:
			stats.Completed++
			return verifyReport(ctx, client, j, stats)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("job %s still %s: %w", id, j.State, ctx.Err())
		case <-ticker.C:
		}
	}
}

func verifyReport(ctx context.Context, client *Client, j *job.Job, stats *Stats) error {
	r, err := client.Report(ctx, j.ID)
	if err != nil {
		return fmt.Errorf("job %s report: %w", j.ID, err)
	}
	stats.Reports++

	s := r.OverallSummary
	if len(r.Predictions) != s.TotalEmployees {
		return fmt.Errorf("job %s: %d predictions for %d employees", j.ID, len(r.Predictions), s.TotalEmployees)
	}
	leavers := 0
	for _, p := range r.Predictions {
		if p.TerminationProbability < 0 || p.TerminationProbability > 1 {
			return fmt.Errorf("job %s: probability %v of %s out of range", j.ID, p.TerminationProbability, p.EmployeeID)
		}
		if p.PredictedTermination != (p.TerminationProbability > s.TerminationThreshold) {
			return fmt.Errorf("job %s: %s flag disagrees with threshold %v", j.ID, p.EmployeeID, s.TerminationThreshold)
		}
		if p.PredictedTermination {
			leavers++
		}
	}
	if leavers != s.EmployeesPredictedToLeave {
		return fmt.Errorf("job %s: %d flagged, summary says %d", j.ID, leavers, s.EmployeesPredictedToLeave)
	}
	return nil
}

func displayFinalStats(ctx context.Context, stats *Stats, log logger.Logger) {
	var successRate float64
	if stats.Accepted > 0 {
		successRate = float64(stats.Completed) / float64(stats.Accepted) * percentageMultiplier
	}
	log.Info(ctx, "final statistics",
		logger.Int("submitted", stats.Submitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicates", stats.Duplicates),
		logger.Int("rejected", stats.Rejected),
		logger.Int("completed", stats.Completed),
		logger.Int("failed", stats.Failed),
		logger.Int("reports", stats.Reports),
		logger.Duration("duration", stats.Duration),
		logger.Float64("success_rate", successRate))
}
