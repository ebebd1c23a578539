package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/retention/internal/adapters/tabular"
	"github.com/okian/retention/internal/smoke"
	"github.com/okian/retention/internal/synthdata"
	"github.com/okian/retention/pkg/logger"
)

// Default configuration constants.
const (
	defaultJobs         = 2
	defaultWorkers      = 2
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = time.Second
	defaultWait         = 30 * time.Minute
)

func main() {
	defaults := synthdata.DefaultOptions()
	var (
		dir       = flag.String("dir", "data", "Directory the CSV tables are written to")
		employees = flag.Int("employees", defaults.Employees, "Number of employees to generate")
		months    = flag.Int("months", defaults.Months, "Months of history to generate")
		start     = flag.String("start", defaults.Start.Format(time.DateOnly), "First month of history (YYYY-MM-DD)")
		seed      = flag.Int64("seed", defaults.Seed, "Random seed")
		hazard    = flag.Float64("hazard", defaults.MonthlyHazard, "Baseline monthly termination probability")
		baseURL   = flag.String("url", "", "When set, smoke-test the service at this URL after writing")
		jobs      = flag.Int("jobs", defaultJobs, "Number of jobs submitted by the smoke test")
		workers   = flag.Int("workers", defaultWorkers, "Number of concurrent submitters")
		asOf      = flag.String("as-of", "", "Panel cut-off for smoke-test jobs (default: end of the generated history)")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		wait      = flag.Duration("wait", defaultWait, "How long to wait for smoke-test jobs")
		verbose   = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}
	log := logger.Named("synth-data")
	ctx := context.Background()

	from, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		log.Error(ctx, "invalid start date", logger.String("start", *start), logger.Error(err))
		os.Exit(2)
	}
	opts := defaults
	opts.Employees = *employees
	opts.Months = *months
	opts.Start = from
	opts.Seed = *seed
	opts.MonthlyHazard = *hazard

	ds := synthdata.Generate(opts)
	if err := tabular.Write(ctx, tabular.Dir(*dir), ds); err != nil {
		log.Error(ctx, "failed to write tables", logger.String("dir", *dir), logger.Error(err))
		os.Exit(1)
	}
	log.Info(ctx, "tables written",
		logger.String("dir", *dir),
		logger.Int("employees", len(ds.Employees)),
		logger.Int("terminations", len(synthdata.Terminations(ds))),
		logger.Int("months", opts.Months))

	if *baseURL == "" {
		return
	}
	cutoff := *asOf
	if cutoff == "" {
		cutoff = from.AddDate(0, opts.Months, -1).Format(time.DateOnly)
	}
	_, err = smoke.Run(ctx, &smoke.Config{
		BaseURL:      *baseURL,
		Jobs:         *jobs,
		Workers:      *workers,
		Timeout:      *timeout,
		PollInterval: defaultPollInterval,
		Wait:         *wait,
		AsOf:         cutoff,
		Verbose:      *verbose,
	}, log)
	if err != nil {
		log.Error(ctx, "smoke test failed", logger.Error(err))
		os.Exit(1)
	}
}
