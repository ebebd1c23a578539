// Package prediction applies a trained retention model to the most recent
// snapshot of a panel.
package prediction

import (
	"context"
	"math"
	"time"

	"github.com/okian/retention/internal/domain/failure"
	"github.com/okian/retention/internal/domain/panel"
	"github.com/okian/retention/internal/domain/training"
	"github.com/okian/retention/pkg/logger"
)

// Prediction is the decision for one employee.
type Prediction struct {
	EmployeeID             string  `json:"employee_id"`
	TerminationProbability float64 `json:"termination_probability"`
	PredictedTermination   bool    `json:"predicted_termination"`
}

// Batch is the output of one inference run. Inputs holds the model columns
// of the scored rows, aligned with Predictions.
type Batch struct {
	ExecutionDate time.Time
	Threshold     float64
	Predictions   []Prediction
	Inputs        *panel.Frame
}

// Restrict keeps only the listed employees. An empty list keeps everyone.
func (b *Batch) Restrict(ids []string) *Batch {
	if len(ids) == 0 {
		return b
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := &Batch{ExecutionDate: b.ExecutionDate, Threshold: b.Threshold, Inputs: &panel.Frame{Columns: b.Inputs.Columns}}
	for i, p := range b.Predictions {
		if _, ok := want[p.EmployeeID]; ok {
			out.Predictions = append(out.Predictions, p)
			out.Inputs.Rows = append(out.Inputs.Rows, b.Inputs.Rows[i])
		}
	}
	return out
}

// Probabilities returns the probabilities keyed by employee.
func (b *Batch) Probabilities() map[string]float64 {
	out := make(map[string]float64, len(b.Predictions))
	for _, p := range b.Predictions {
		out[p.EmployeeID] = p.TerminationProbability
	}
	return out
}

// PredictedLeavers returns how many employees are predicted to leave.
func (b *Batch) PredictedLeavers() int {
	n := 0
	for _, p := range b.Predictions {
		if p.PredictedTermination {
			n++
		}
	}
	return n
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Predictor) {
		if l != nil {
			p.logger = l
		}
	}
}

// Predictor scores panels.
type Predictor struct {
	logger logger.Logger
}

// New returns a Predictor.
func New(opts ...Option) *Predictor {
	p := &Predictor{logger: logger.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Predict scores the latest execution date of f.
func (p *Predictor) Predict(ctx context.Context, m *training.Model, f *panel.Frame) ([]Prediction, error) {
	b, err := p.Run(ctx, m, f)
	if err != nil {
		return nil, err
	}
	return b.Predictions, nil
}

// Run scores the latest execution date of f and keeps the model inputs for
// attribution. Columns not used by the model are ignored.
func (p *Predictor) Run(ctx context.Context, m *training.Model, f *panel.Frame) (*Batch, error) {
	const op = "predict"
	if err := m.Check(); err != nil {
		return nil, failure.Wrap(op, failure.ErrInferenceSchemaMismatch, err)
	}
	latest, at := f.Latest()
	if latest.Len() == 0 {
		return nil, failure.Newf(op, failure.ErrInsufficientHistory, "panel has no rows")
	}
	inputs, err := latest.Select(m.Features())
	if err != nil {
		return nil, failure.Wrap(op, failure.ErrInferenceSchemaMismatch, err)
	}
	for i, c := range inputs.Columns {
		if c.Kind != m.Ensemble.Columns[i].Kind {
			return nil, failure.Newf(op, failure.ErrInferenceSchemaMismatch,
				"column %q is %s, model expects %s", c.Name, c.Kind, m.Ensemble.Columns[i].Kind)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := m.Ensemble.PredictBatch(inputs.Matrix())
	if err != nil {
		return nil, failure.Wrap(op, failure.ErrInferenceSchemaMismatch, err)
	}
	th := m.Threshold()
	out := &Batch{ExecutionDate: at, Threshold: th, Inputs: inputs, Predictions: make([]Prediction, len(raw))}
	for i, v := range raw {
		prob := clip(v)
		out.Predictions[i] = Prediction{
			EmployeeID:             inputs.Rows[i].EmployeeID,
			TerminationProbability: prob,
			PredictedTermination:   prob > th,
		}
	}
	p.logger.Info(ctx, "predictions scored",
		logger.String("execution_date", at.Format(time.DateOnly)),
		logger.Int("employees", len(out.Predictions)),
		logger.Int("predicted_leavers", out.PredictedLeavers()),
		logger.Float64("threshold", th))
	return out, nil
}

func clip(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
