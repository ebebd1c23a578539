// Package pipeline runs the retention stages in order for one job: load the
// raw tables, build the panel, train, predict, attribute, report and
// publish. Nothing is published unless every stage succeeded.
package pipeline

import (
	"context"
	"time"

	"github.com/okian/retention/internal/domain/attribution"
	"github.com/okian/retention/internal/domain/failure"
	"github.com/okian/retention/internal/domain/hr"
	"github.com/okian/retention/internal/domain/job"
	"github.com/okian/retention/internal/domain/panel"
	"github.com/okian/retention/internal/domain/prediction"
	"github.com/okian/retention/internal/domain/report"
	"github.com/okian/retention/internal/domain/training"
	"github.com/okian/retention/pkg/logger"
	"github.com/okian/retention/pkg/metrics"
)

// Stage names.
const (
	StageLoad      = "load"
	StagePanel     = "panel"
	StageTrain     = "train"
	StagePredict   = "predict"
	StageAttribute = "attribute"
	StageReport    = "report"
	StagePublish   = "publish"
)

// Source loads the raw HR tables.
type Source interface {
	Load(ctx context.Context) (*hr.Dataset, error)
}

// Models persists trained models.
type Models interface {
	SaveModel(ctx context.Context, m *training.Model) error
	LatestModel(ctx context.Context) (*training.Model, error)
}

// Reports persists report documents and returns their key.
type Reports interface {
	SaveReport(ctx context.Context, jobID string, r *report.Report) (string, error)
}

// Panels persists the engineered feature table and returns its key.
type Panels interface {
	SavePanel(ctx context.Context, jobID string, f *panel.Frame) (string, error)
}

// ExplainerFactory returns the explainer for a model.
type ExplainerFactory func(m *training.Model) attribution.Explainer

// Progress is told about every finished stage.
type Progress func(stage string, fraction float64)

// Output is everything a run produced.
type Output struct {
	Panel        *panel.Frame
	Model        *training.Model
	Batch        *prediction.Batch
	Attributions *attribution.Result
	Report       *report.Report
	PanelKey     string
	ReportKey    string
}

// Option configures a Runner.
type Option func(*Runner)

// WithBuilder sets the panel builder.
func WithBuilder(b *panel.Builder) Option {
	return func(r *Runner) {
		if b != nil {
			r.builder = b
		}
	}
}

// WithTrainer sets the model trainer.
func WithTrainer(t *training.Trainer) Option {
	return func(r *Runner) {
		if t != nil {
			r.trainer = t
		}
	}
}

// WithPredictor sets the predictor.
func WithPredictor(p *prediction.Predictor) Option {
	return func(r *Runner) {
		if p != nil {
			r.predictor = p
		}
	}
}

// WithEngine sets the attribution engine.
func WithEngine(e *attribution.Engine) Option {
	return func(r *Runner) {
		if e != nil {
			r.engine = e
		}
	}
}

// WithReportBuilder sets the report builder.
func WithReportBuilder(b *report.Builder) Option {
	return func(r *Runner) {
		if b != nil {
			r.reporter = b
		}
	}
}

// WithExplainerFactory replaces how explainers are derived from models.
func WithExplainerFactory(f ExplainerFactory) Option {
	return func(r *Runner) {
		if f != nil {
			r.explainer = f
		}
	}
}

// WithPanels persists the engineered table of every run.
func WithPanels(p Panels) Option {
	return func(r *Runner) { r.panels = p }
}

// WithJobStore sets the store Process records job state in.
func WithJobStore(s job.Store) Option {
	return func(r *Runner) { r.jobs = s }
}

// WithJobTimeout bounds a single Process call.
func WithJobTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// Runner executes pipeline runs.
type Runner struct {
	source  Source
	models  Models
	reports Reports
	panels  Panels
	jobs    job.Store

	builder   *panel.Builder
	trainer   *training.Trainer
	predictor *prediction.Predictor
	engine    *attribution.Engine
	reporter  *report.Builder
	explainer ExplainerFactory

	timeout time.Duration
	now     func() time.Time
	logger  logger.Logger
}

// NewRunner returns a Runner.
func NewRunner(source Source, models Models, reports Reports, opts ...Option) *Runner {
	r := &Runner{
		source:    source,
		models:    models,
		reports:   reports,
		builder:   panel.NewBuilder(),
		trainer:   training.NewTrainer(),
		predictor: prediction.New(),
		engine:    attribution.NewEngine(),
		explainer: func(m *training.Model) attribution.Explainer { return m.Ensemble },
		now:       time.Now,
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.reporter == nil {
		r.reporter = report.NewBuilder(report.WithEngine(r.engine), report.WithLogger(r.logger))
	}
	return r
}

// stage runs fn as the named stage, timing and logging it and tagging its
// error with the stage name.
func (r *Runner) stage(ctx context.Context, log logger.Logger, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return failure.InStage(name, err)
	}
	start := time.Now()
	log.Info(ctx, "stage started", logger.String("stage", name))
	err := fn(ctx)
	elapsed := time.Since(start)
	metrics.ObserveStage(name, elapsed, err)
	if err != nil {
		log.Error(ctx, "stage failed", logger.String("stage", name), logger.Duration("elapsed", elapsed), logger.Error(err))
		return failure.InStage(name, err)
	}
	log.Info(ctx, "stage finished", logger.String("stage", name), logger.Duration("elapsed", elapsed))
	return nil
}

// Run executes the stages selected by req.Mode. progress may be nil.
func (r *Runner) Run(ctx context.Context, jobID string, req job.Request, progress Progress) (*Output, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(string, float64) {}
	}
	log := r.logger.With(logger.String("job_id", jobID), logger.String("mode", string(req.Mode)))
	asOf, _ := req.AsOfTime(r.now())
	out := &Output{}

	var ds *hr.Dataset
	err := r.stage(ctx, log, StageLoad, func(ctx context.Context) error {
		var err error
		ds, err = r.source.Load(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	progress(StageLoad, job.ProgressLoaded)

	err = r.stage(ctx, log, StagePanel, func(ctx context.Context) error {
		var err error
		out.Panel, err = r.builder.Build(ctx, ds, asOf)
		if err == nil {
			metrics.UpdatePanelRows(out.Panel.Len())
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	progress(StagePanel, job.ProgressPanel)

	if req.Mode.Trains() {
		err = r.stage(ctx, log, StageTrain, func(ctx context.Context) error {
			var err error
			out.Model, err = r.trainer.Train(ctx, out.Panel)
			if err == nil {
				q := out.Model.Metadata.Metrics
				metrics.UpdateModelQuality(out.Model.Threshold(), q.MacroF1, q.Recall)
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		progress(StageTrain, job.ProgressTrained)
	}

	if req.Mode.Predicts() {
		if err := r.predict(ctx, log, req, out); err != nil {
			return nil, err
		}
		progress(StagePredict, job.ProgressPredicted)
	}

	err = r.stage(ctx, log, StagePublish, func(ctx context.Context) error {
		return r.publish(ctx, jobID, req, out)
	})
	if err != nil {
		return nil, err
	}
	progress(StagePublish, job.ProgressDone)
	return out, nil
}

func (r *Runner) predict(ctx context.Context, log logger.Logger, req job.Request, out *Output) error {
	if out.Model == nil {
		err := r.stage(ctx, log, StagePredict, func(ctx context.Context) error {
			var err error
			out.Model, err = r.models.LatestModel(ctx)
			return err
		})
		if err != nil {
			return err
		}
	}

	err := r.stage(ctx, log, StagePredict, func(ctx context.Context) error {
		b, err := r.predictor.Run(ctx, out.Model, out.Panel)
		if err != nil {
			return err
		}
		out.Batch = b.Restrict(req.EmployeeIDs)
		metrics.RecordPredictions(len(out.Batch.Predictions), out.Batch.PredictedLeavers())
		if missing := len(req.EmployeeIDs) - len(out.Batch.Predictions); len(req.EmployeeIDs) > 0 && missing > 0 {
			log.Warn(ctx, "requested employees not in the latest snapshot", logger.Int("missing", missing))
		}
		return nil
	})
	if err != nil {
		return err
	}

	if req.Explain() {
		err = r.stage(ctx, log, StageAttribute, func(ctx context.Context) error {
			var err error
			out.Attributions, err = r.engine.Explain(ctx, r.explainer(out.Model), out.Batch.Inputs)
			return err
		})
		if err != nil {
			return err
		}
	}

	return r.stage(ctx, log, StageReport, func(ctx context.Context) error {
		var err error
		out.Report, err = r.reporter.Build(ctx, report.Input{
			Panel:        out.Panel,
			Batch:        out.Batch,
			Model:        out.Model,
			Attributions: out.Attributions,
		})
		return err
	})
}

func (r *Runner) publish(ctx context.Context, jobID string, req job.Request, out *Output) error {
	if r.panels != nil {
		key, err := r.panels.SavePanel(ctx, jobID, out.Panel)
		if err != nil {
			return err
		}
		out.PanelKey = key
	}
	if out.Report != nil {
		key, err := r.reports.SaveReport(ctx, jobID, out.Report)
		if err != nil {
			return err
		}
		out.ReportKey = key
	}
	// The model goes last so a failed job never moves the latest pointer.
	if req.Mode.Trains() {
		if err := r.models.SaveModel(ctx, out.Model); err != nil {
			return err
		}
	}
	return nil
}
