// Package attribution explains predictions with additive per-feature
// contributions and aggregates them into employee, cohort and company
// summaries.
package attribution

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/retention/internal/domain/failure"
	"github.com/okian/retention/internal/domain/feature"
	"github.com/okian/retention/internal/domain/panel"
	"github.com/okian/retention/pkg/logger"
	"github.com/okian/retention/pkg/metrics"
)

// Defaults.
const (
	DefaultTopDrivers        = 5
	DefaultRecommendTimeout  = 10 * time.Second
	maxLoggedFailedEmployees = 10
)

// Explainer returns the additive decomposition of one prediction: the bias
// plus the contributions sum to the raw model output.
type Explainer interface {
	Contributions(row []feature.Value) (float64, []float64, error)
}

// Record is the attribution of one employee.
type Record struct {
	EmployeeID    string
	Meta          panel.Meta
	Bias          float64
	Contributions []float64
}

// Failure is an employee whose attribution could not be computed.
type Failure struct {
	EmployeeID string
	Err        error
}

// Result holds the attributions of a batch.
type Result struct {
	Features []string
	Records  []Record
	Failures []Failure
}

// Employee returns the record of one employee.
func (r *Result) Employee(id string) (Record, bool) {
	for _, rec := range r.Records {
		if rec.EmployeeID == id {
			return rec, true
		}
	}
	return Record{}, false
}

// FailedIDs lists the employees without an attribution.
func (r *Result) FailedIDs() []string {
	out := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = f.EmployeeID
	}
	return out
}

// Vectors returns the contribution vectors of the records matching keep.
// A nil keep selects every record.
func (r *Result) Vectors(keep func(Record) bool) [][]float64 {
	var out [][]float64
	for _, rec := range r.Records {
		if keep == nil || keep(rec) {
			out = append(out, rec.Contributions)
		}
	}
	return out
}

// Option configures an Engine.
type Option func(*Engine)

// WithCatalog sets the display names and default actions.
func WithCatalog(c Catalog) Option {
	return func(e *Engine) {
		if c != nil {
			e.catalog = c
		}
	}
}

// WithRecommender sets the recommendation collaborator and its deadline.
func WithRecommender(r Recommender, timeout time.Duration) Option {
	return func(e *Engine) {
		if r != nil {
			e.recommender = r
		}
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithTopDrivers sets how many company-wide drivers are reported.
func WithTopDrivers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.topN = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine computes and summarizes attributions.
type Engine struct {
	catalog     Catalog
	recommender Recommender
	timeout     time.Duration
	topN        int
	logger      logger.Logger
}

// NewEngine returns an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		catalog:     DefaultCatalog(),
		recommender: NoopRecommender{},
		timeout:     DefaultRecommendTimeout,
		topN:        DefaultTopDrivers,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Explain attributes every row of inputs. A failing row is recorded in
// Result.Failures and the batch continues.
func (e *Engine) Explain(ctx context.Context, ex Explainer, inputs *panel.Frame) (*Result, error) {
	res := &Result{Features: inputs.Names()}
	for _, row := range inputs.Rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bias, contrib, err := explainRow(ex, row.Values, len(inputs.Columns))
		if err != nil {
			res.Failures = append(res.Failures, Failure{
				EmployeeID: row.EmployeeID,
				Err:        failure.Wrap("explain "+row.EmployeeID, failure.ErrAttributionComputation, err),
			})
			continue
		}
		res.Records = append(res.Records, Record{
			EmployeeID:    row.EmployeeID,
			Meta:          row.Meta,
			Bias:          bias,
			Contributions: contrib,
		})
	}

	if n := len(res.Failures); n > 0 {
		metrics.RecordAttributionFailures(n)
		ids := res.FailedIDs()
		if len(ids) > maxLoggedFailedEmployees {
			ids = ids[:maxLoggedFailedEmployees]
		}
		e.logger.Warn(ctx, "attribution failed for some employees",
			logger.Int("failed", n),
			logger.Any("employee_ids", ids),
			logger.Error(res.Failures[0].Err))
	}
	e.logger.Info(ctx, "attributions computed",
		logger.Int("explained", len(res.Records)),
		logger.Int("failed", len(res.Failures)))
	return res, nil
}

func explainRow(ex Explainer, row []feature.Value, width int) (bias float64, contrib []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("explainer panicked: %v", r)
		}
	}()
	bias, contrib, err = ex.Contributions(row)
	if err != nil {
		return 0, nil, err
	}
	if len(contrib) != width {
		return 0, nil, fmt.Errorf("%d contributions for %d features", len(contrib), width)
	}
	for i, c := range contrib {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return 0, nil, fmt.Errorf("contribution %d is %v", i, c)
		}
	}
	return bias, contrib, nil
}

// Employee summarizes one record with display names and default actions.
func (e *Engine) Employee(features []string, rec Record) []Impact {
	return e.catalog.Label(Summarize(features, rec.Contributions))
}

// Cohort averages the signed vectors of a cohort before summarizing.
func (e *Engine) Cohort(features []string, vectors [][]float64) []Impact {
	return e.catalog.Label(Summarize(features, Average(vectors)))
}

// TopDrivers ranks the population-average contributions and asks the
// recommender for an action per driver. A failed or late recommender
// leaves the actions empty. Repeated actions are kept only on the first
// driver that received them.
func (e *Engine) TopDrivers(ctx context.Context, features []string, vectors [][]float64) []Impact {
	top := TopDrivers(features, Average(vectors), e.topN)
	if len(top) == 0 {
		return nil
	}
	drivers := make([]Driver, len(top))
	for i := range top {
		top[i].FeatureName = e.catalog.Name(top[i].Feature)
		drivers[i] = Driver{Feature: top[i].Feature, ImpactValue: top[i].ImpactValue, ImpactPercentage: top[i].ImpactPercentage}
	}

	rctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	actions, err := e.recommender.Recommend(rctx, drivers)
	if err != nil {
		e.logger.Warn(ctx, "recommendations unavailable", logger.Error(err))
		return top
	}
	seen := make(map[string]struct{}, len(actions))
	for i := range top {
		a := actions[top[i].Feature]
		if a == "" {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		top[i].RecommendationAction = a
	}
	return top
}
