package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/okian/retention/internal/adapters/jobstore"
	"github.com/okian/retention/internal/adapters/tabular"
	service "github.com/okian/retention/internal/app"
	"github.com/okian/retention/internal/domain/job"
	"github.com/okian/retention/pkg/logger"
)

func (cl *commandline) run(cmd *cobra.Command) {
	var flags requestFlags
	ccmd := &cobra.Command{
		Use:   "run",
		Short: "Build the panel, train a model, predict and publish a report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cl.runPipeline(cmd, flags, job.ModeFull)
		},
	}
	flags.bind(ccmd)
	cmd.AddCommand(ccmd)
}

func (cl *commandline) predict(cmd *cobra.Command) {
	var flags requestFlags
	ccmd := &cobra.Command{
		Use:   "predict",
		Short: "Score the latest snapshot with the published model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cl.runPipeline(cmd, flags, job.ModePredict)
		},
	}
	flags.bind(ccmd)
	cmd.AddCommand(ccmd)
}

// runPipeline runs one job in-process and prints its outcome.
func (cl *commandline) runPipeline(cmd *cobra.Command, flags requestFlags, mode job.Mode) error {
	ctx := cmd.Context()
	svc, err := cl.service(ctx, service.WithJobStore(jobstore.NewMemoryStore()))
	if err != nil {
		return err
	}
	defer func() { _ = svc.Stop(ctx) }()

	id := uuid.NewString()
	log := cl.log.With(logger.String("run_id", id))
	started := time.Now()
	out, err := svc.Runner().Run(ctx, id, flags.request(mode), func(stage string, fraction float64) {
		log.Info(ctx, "stage done", logger.String("stage", stage), logger.Float64("progress", fraction))
	})
	if err != nil {
		return err
	}
	log.Info(ctx, "run finished",
		logger.Duration("elapsed", time.Since(started)),
		logger.String("report_key", out.ReportKey),
		logger.String("panel_key", out.PanelKey))

	w := cmd.OutOrStdout()
	if out.Model != nil {
		printModel(w, out.Model)
	}
	if out.Report != nil {
		printSummary(w, out.Report)
		printAtRisk(w, out.Report, flags.top)
		printReasons(w, out.Report)
	}
	return nil
}

func (cl *commandline) train(cmd *cobra.Command) {
	var (
		flags     requestFlags
		panelPath string
	)
	ccmd := &cobra.Command{
		Use:   "train",
		Short: "Train and publish a model without predicting",
		Long: `train builds the panel from the raw tables and publishes a new model.
With --panel it trains on a panel CSV written earlier by "retention panel".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if panelPath == "" {
				return cl.runPipeline(cmd, flags, job.ModeTrain)
			}
			ctx := cmd.Context()
			f, err := os.Open(panelPath)
			if err != nil {
				return err
			}
			defer f.Close()
			frame, err := tabular.ReadPanel(f)
			if err != nil {
				return fmt.Errorf("%s: %w", panelPath, err)
			}

			svc, err := cl.service(ctx, service.WithJobStore(jobstore.NewMemoryStore()))
			if err != nil {
				return err
			}
			defer func() { _ = svc.Stop(ctx) }()

			model, err := service.Trainer(cl.cfg, cl.log).Train(ctx, frame)
			if err != nil {
				return err
			}
			if err := svc.Store().SaveModel(ctx, model); err != nil {
				return err
			}
			printModel(cmd.OutOrStdout(), model)
			return nil
		},
	}
	ccmd.Flags().StringVar(&flags.asOf, "as-of", "", "panel cut-off date (YYYY-MM-DD), defaults to today")
	ccmd.Flags().StringVar(&panelPath, "panel", "", "train on this panel CSV instead of the raw tables")
	cmd.AddCommand(ccmd)
}

func (cl *commandline) panel(cmd *cobra.Command) {
	var asOf, outPath string
	ccmd := &cobra.Command{
		Use:   "panel",
		Short: "Build the monthly employee panel and write it as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			at, err := job.Request{AsOf: asOf}.AsOfTime(time.Now())
			if err != nil {
				return err
			}
			svc, err := cl.service(ctx, service.WithJobStore(jobstore.NewMemoryStore()))
			if err != nil {
				return err
			}
			defer func() { _ = svc.Stop(ctx) }()

			ds, err := svc.Source().Load(ctx)
			if err != nil {
				return err
			}
			frame, err := service.Builder(cl.cfg, cl.log).Build(ctx, ds, at)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if outPath != "" && outPath != "-" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := tabular.WritePanel(w, frame); err != nil {
				return err
			}
			cl.log.Info(ctx, "panel written",
				logger.Int("rows", frame.Len()),
				logger.String("as_of", at.Format(time.DateOnly)),
				logger.String("out", outPath))
			return nil
		},
	}
	ccmd.Flags().StringVar(&asOf, "as-of", "", "panel cut-off date (YYYY-MM-DD), defaults to today")
	ccmd.Flags().StringVarP(&outPath, "out", "o", "", "output file, stdout when empty")
	cmd.AddCommand(ccmd)
}

var errNoDatabase = errors.New("database_url is not set")

func (cl *commandline) migrate(cmd *cobra.Command) {
	ccmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the job store schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cl.cfg.DatabaseURL == "" {
				return errNoDatabase
			}
			m, err := jobstore.NewMigrator(cl.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer m.Close()

			applied, err := m.Up()
			if err != nil {
				return err
			}
			version, dirty, _, err := m.Version()
			if err != nil {
				return err
			}
			cl.log.Info(cmd.Context(), "job store migrated",
				logger.Bool("applied", applied),
				logger.Int("version", int(version)),
				logger.Bool("dirty", dirty))
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return nil
		},
	}
	cmd.AddCommand(ccmd)
}
