package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	service "github.com/okian/retention/internal/app"
	"github.com/okian/retention/internal/config"
	"github.com/okian/retention/internal/domain/job"
	"github.com/okian/retention/pkg/logger"
)

// commandline carries what the subcommands share once the root has
// loaded the configuration.
type commandline struct {
	configFile string
	cfg        *config.Config
	log        logger.Logger
}

func newRootCmd() *cobra.Command {
	cl := &commandline{}
	cmd := &cobra.Command{
		Use:   "retention",
		Short: "retention - employee attrition prediction and explanation",
		Long: `retention builds monthly employee panels from raw HR tables, trains a
gradient-boosted attrition model, scores the latest snapshot and explains
each prediction.

Settings are read from defaults, an optional YAML file and RETENTION_*
environment variables, e.g. RETENTION_DATA_DIR=./data retention run.
`,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		PersistentPreRunE: cl.configure,
	}
	cmd.PersistentFlags().StringVar(&cl.configFile, "config", "", "YAML config file (overrides "+config.EnvFile+")")

	cl.serve(cmd)
	cl.run(cmd)
	cl.predict(cmd)
	cl.train(cmd)
	cl.panel(cmd)
	cl.migrate(cmd)
	return cmd
}

func (cl *commandline) configure(cmd *cobra.Command, _ []string) error {
	if cl.configFile != "" {
		if err := os.Setenv(config.EnvFile, cl.configFile); err != nil {
			return err
		}
	}
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return err
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithOutput(cmd.ErrOrStderr())); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(cmd.Context(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	cl.cfg, cl.log = cfg, log
	return nil
}

// service builds the application without starting its workers.
func (cl *commandline) service(ctx context.Context, opts ...service.Option) (*service.Service, error) {
	return service.New(ctx, cl.cfg, append([]service.Option{service.WithLogger(cl.log)}, opts...)...)
}

// requestFlags are shared by the commands that run the pipeline.
type requestFlags struct {
	asOf      string
	employees []string
	noExplain bool
	top       int
}

func (f *requestFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.asOf, "as-of", "", "panel cut-off date (YYYY-MM-DD), defaults to today")
	cmd.Flags().StringSliceVar(&f.employees, "employee", nil, "restrict predictions to these employee ids")
	cmd.Flags().BoolVar(&f.noExplain, "no-explain", false, "skip per-employee explanations")
	cmd.Flags().IntVar(&f.top, "top", 10, "number of at-risk employees to print")
}

func (f *requestFlags) request(mode job.Mode) job.Request {
	req := job.Request{Mode: mode, AsOf: f.asOf, EmployeeIDs: f.employees}
	if f.noExplain {
		no := false
		req.IncludeExplanations = &no
	}
	return req
}
