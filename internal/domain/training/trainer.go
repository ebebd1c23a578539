// Package training fits the retention model with a walk-forward split:
// sparse columns are dropped, features are pruned by baseline importance,
// hyperparameters are found by random search and the decision threshold is
// calibrated on a held-out month.
package training

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/okian/retention/internal/domain/evaluation"
	"github.com/okian/retention/internal/domain/failure"
	"github.com/okian/retention/internal/domain/gbm"
	"github.com/okian/retention/internal/domain/panel"
	"github.com/okian/retention/pkg/logger"
)

const op = "train model"

// Config holds the trainer settings.
type Config struct {
	HoldoutMonths       int
	TestOffset          int
	RecallFloor         float64
	Trials              int
	Parallelism         int
	EarlyStoppingRounds int
	Seed                int64
	TuneFraction        float64
	MaxMissingRatio     float64
	Grid                evaluation.Grid
	Baseline            gbm.Params
	Space               SearchSpace
}

// DefaultConfig returns the production trainer settings.
func DefaultConfig() Config {
	return Config{
		HoldoutMonths:       7,
		TestOffset:          4,
		RecallFloor:         0,
		Trials:              100,
		Parallelism:         runtime.NumCPU(),
		EarlyStoppingRounds: 50,
		Seed:                98,
		TuneFraction:        0.8,
		MaxMissingRatio:     0.8,
		Grid:                evaluation.DefaultGrid(),
		Baseline:            gbm.DefaultParams(),
		Space:               DefaultSearchSpace(),
	}
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithHoldout sets how many trailing execution dates are withheld from
// training and which of them is the test month.
func WithHoldout(holdout, testOffset int) Option {
	return func(t *Trainer) {
		t.cfg.HoldoutMonths = holdout
		t.cfg.TestOffset = testOffset
	}
}

// WithRecallFloor sets the minimum recall of the calibrated threshold.
func WithRecallFloor(floor float64) Option {
	return func(t *Trainer) { t.cfg.RecallFloor = floor }
}

// WithTrials sets the number of search trials and how many run at once.
func WithTrials(trials, parallelism int) Option {
	return func(t *Trainer) {
		if trials > 0 {
			t.cfg.Trials = trials
		}
		if parallelism > 0 {
			t.cfg.Parallelism = parallelism
		}
	}
}

// WithSeed sets the search seed.
func WithSeed(seed int64) Option {
	return func(t *Trainer) { t.cfg.Seed = seed }
}

// WithSearchSpace replaces the hyperparameter ranges.
func WithSearchSpace(s SearchSpace) Option {
	return func(t *Trainer) { t.cfg.Space = s }
}

// WithBaseline sets the parameters of the pruning fit.
func WithBaseline(p gbm.Params) Option {
	return func(t *Trainer) { t.cfg.Baseline = p }
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(t *Trainer) { t.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Trainer) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithClock sets the time source used for TrainedAt.
func WithClock(now func() time.Time) Option {
	return func(t *Trainer) {
		if now != nil {
			t.now = now
		}
	}
}

// Trainer fits retention models.
type Trainer struct {
	cfg    Config
	logger logger.Logger
	now    func() time.Time
}

// NewTrainer returns a Trainer.
func NewTrainer(opts ...Option) *Trainer {
	t := &Trainer{cfg: DefaultConfig(), logger: logger.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	if t.cfg.Parallelism < 1 {
		t.cfg.Parallelism = 1
	}
	return t
}

// Config returns the effective settings.
func (t *Trainer) Config() Config { return t.cfg }

// Train fits a model on f. f must carry the label column values and at least
// HoldoutMonths+1 execution dates.
func (t *Trainer) Train(ctx context.Context, f *panel.Frame) (*Model, error) {
	if err := panel.CheckUnique(f); err != nil {
		return nil, err
	}
	dates := f.Dates()
	trainDates, testDate, err := Split(dates, t.cfg.HoldoutMonths, t.cfg.TestOffset)
	if err != nil {
		return nil, err
	}
	train, test := f.OnDates(trainDates...), f.OnDates(testDate)
	t.logger.Info(ctx, "training window selected",
		logger.String("train_from", trainDates[0].Format(time.DateOnly)),
		logger.String("train_to", trainDates[len(trainDates)-1].Format(time.DateOnly)),
		logger.String("test", testDate.Format(time.DateOnly)),
		logger.Int("train_rows", train.Len()),
		logger.Int("test_rows", test.Len()))

	if !anyPositive(train.Targets()) {
		return nil, failure.Newf(op, failure.ErrTrainingFailure, "no terminations in the training window")
	}

	dropped := sparseColumns(train, t.cfg.MaxMissingRatio)
	train = train.Drop(dropped...)
	if len(dropped) > 0 {
		t.logger.Info(ctx, "sparse columns dropped", logger.Any("columns", dropped))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	features, err := t.prune(ctx, train)
	if err != nil {
		return nil, err
	}
	t.logger.Info(ctx, "features selected", logger.Int("count", len(features)))

	best, err := t.tune(ctx, train, features)
	if err != nil {
		return nil, err
	}

	return t.finalize(ctx, train, test, features, best, dropped, trainDates, testDate)
}

// prune fits a baseline model and keeps the features whose importance is at
// least the mean importance.
func (t *Trainer) prune(ctx context.Context, train *panel.Frame) ([]string, error) {
	if len(train.Columns) == 0 {
		return nil, failure.Newf(op, failure.ErrTrainingFailure, "no usable columns")
	}
	base, err := gbm.Fit(ctx, train.Columns, train.Matrix(), train.Targets(), t.cfg.Baseline, nil)
	if err != nil {
		return nil, fitError(ctx, "baseline fit", err)
	}
	imp := base.Importance()
	mean := 0.0
	for _, v := range imp {
		mean += v
	}
	mean /= float64(len(imp))

	var keep []string
	for i, v := range imp {
		if v > 0 && v >= mean-1e-12 {
			keep = append(keep, train.Columns[i].Name)
		}
	}
	if len(keep) == 0 {
		return nil, failure.Newf(op, failure.ErrTrainingFailure, "feature set is empty after pruning")
	}
	return keep, nil
}

// tune runs the random search on a positional split of the training rows.
func (t *Trainer) tune(ctx context.Context, train *panel.Frame, features []string) (Trial, error) {
	sel, err := train.Select(features)
	if err != nil {
		return Trial{}, failure.Wrap(op, failure.ErrTrainingFailure, err)
	}
	n := sel.Len()
	cut := int(float64(n) * t.cfg.TuneFraction)
	if cut < 1 || cut >= n {
		return Trial{}, failure.Newf(op, failure.ErrTrainingFailure, "cannot split %d rows for tuning", n)
	}
	X, y := sel.Matrix(), sel.Targets()
	ts := tuneSet{
		cols:   sel.Columns,
		trainX: X[:cut], trainY: y[:cut],
		valX: X[cut:], valY: y[cut:],
	}

	trials, err := t.search(ctx, ts)
	if err != nil {
		return Trial{}, err
	}
	best, ok := bestTrial(trials)
	if !ok {
		return Trial{}, failure.Wrap(op, failure.ErrTrainingFailure, errors.Join(trialErrors(trials)...))
	}
	t.logger.Info(ctx, "hyperparameter search finished",
		logger.Int("trials", len(trials)),
		logger.Int("best_trial", best.Index),
		logger.Float64("best_macro_f1", best.Score),
		logger.Int("best_iteration", best.BestIteration))
	return best, nil
}

// finalize refits the best configuration on the whole training window and
// calibrates the threshold on the test month.
func (t *Trainer) finalize(ctx context.Context, train, test *panel.Frame, features []string,
	best Trial, dropped []string, trainDates []time.Time, testDate time.Time) (*Model, error) {
	trainSel, err := train.Select(features)
	if err != nil {
		return nil, failure.Wrap(op, failure.ErrTrainingFailure, err)
	}
	testSel, err := test.Select(features)
	if err != nil {
		return nil, failure.Wrap(op, failure.ErrTrainingFailure, err)
	}

	p := best.Params
	p.EarlyStoppingRounds = 0
	ens, err := gbm.Fit(ctx, trainSel.Columns, trainSel.Matrix(), trainSel.Targets(), p, nil)
	if err != nil {
		return nil, fitError(ctx, "final fit", err)
	}
	probs, err := ens.PredictBatch(testSel.Matrix())
	if err != nil {
		return nil, failure.Wrap(op, failure.ErrTrainingFailure, err)
	}
	sel, err := evaluation.SearchThreshold(probs, evaluation.Binarize(testSel.Targets()), t.cfg.Grid, t.cfg.RecallFloor)
	if err != nil {
		return nil, failure.Wrap(op, failure.ErrTrainingFailure, err)
	}
	t.logger.Info(ctx, "threshold calibrated",
		logger.Float64("threshold", sel.Threshold),
		logger.Float64("f1", sel.Metrics.F1),
		logger.Float64("recall", sel.Metrics.Recall),
		logger.Float64("precision", sel.Metrics.Precision))

	return &Model{
		Ensemble: ens,
		Metadata: Metadata{
			Version:          uuid.NewString(),
			Features:         append([]string(nil), features...),
			OptimalThreshold: sel.Threshold,
			TrainingPeriod:   formatDates(trainDates),
			TestingPeriod:    formatDates([]time.Time{testDate}),
			Metrics:          sel.Metrics,
			Params:           p,
			DroppedColumns:   dropped,
			TrainedAt:        t.now().UTC(),
		},
	}, nil
}

// sparseColumns lists the columns whose missing share exceeds limit.
func sparseColumns(f *panel.Frame, limit float64) []string {
	var out []string
	for i, r := range f.MissingRatio() {
		if r > limit {
			out = append(out, f.Columns[i].Name)
		}
	}
	return out
}

func anyPositive(y []float64) bool {
	for _, v := range y {
		if v > 0 {
			return true
		}
	}
	return false
}

func fitError(ctx context.Context, what string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return failure.Wrap(op+": "+what, failure.ErrTrainingFailure, err)
}

func trialErrors(trials []Trial) []error {
	var errs []error
	for _, tr := range trials {
		if tr.Err != nil {
			errs = append(errs, tr.Err)
		}
	}
	return errs
}

func formatDates(ds []time.Time) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Format(time.DateOnly)
	}
	return out
}
