// Package gbm is a gradient-boosted regression tree ensemble with squared
// error loss, histogram split search, native missing-value routing and
// path-based additive feature contributions.
package gbm

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/okian/retention/internal/domain/feature"
)

// EvalSet is the validation data used for early stopping.
type EvalSet struct {
	X [][]feature.Value
	Y []float64
}

// Model is a fitted ensemble. It is immutable after Fit and safe for
// concurrent use.
type Model struct {
	Columns      []feature.Column              `json:"columns"`
	Categories   map[string]map[string]float64 `json:"categories,omitempty"`
	BaseScore    float64                       `json:"base_score"`
	LearningRate float64                       `json:"learning_rate"`
	Trees        []Tree                        `json:"trees"`
	Params       Params                        `json:"params"`
	// BestIteration is the number of trees kept after early stopping.
	BestIteration int `json:"best_iteration"`
	// ValidationLoss is the mean squared error on the eval set, NaN
	// without one.
	ValidationLoss float64 `json:"-"`
}

// Fit trains an ensemble on X (rows of cells laid out as cols) against y.
func Fit(ctx context.Context, cols []feature.Column, X [][]feature.Value, y []float64, p Params, eval *EvalSet) (*Model, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(X) == 0 || len(cols) == 0 {
		return nil, ErrEmptyDataset
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d targets", ErrShapeMismatch, len(X), len(y))
	}
	if err := checkWidth(cols, X); err != nil {
		return nil, err
	}
	if eval != nil {
		if len(eval.X) != len(eval.Y) {
			return nil, fmt.Errorf("%w: eval has %d rows, %d targets", ErrShapeMismatch, len(eval.X), len(eval.Y))
		}
		if err := checkWidth(cols, eval.X); err != nil {
			return nil, err
		}
	}

	m := &Model{
		Columns:        append([]feature.Column(nil), cols...),
		Categories:     fitEncoders(cols, X, y),
		LearningRate:   p.LearningRate,
		Params:         p,
		ValidationLoss: math.NaN(),
	}

	n := len(X)
	encoded := make([][]float64, n)
	for i, row := range X {
		encoded[i] = encodeRow(cols, m.Categories, row)
	}
	g := &grower{
		bins:     make([][]uint16, len(cols)),
		binnings: make([]binning, len(cols)),
		resid:    make([]float64, n),
		params:   p,
	}
	column := make([]float64, n)
	for j := range cols {
		for i := range encoded {
			column[i] = encoded[i][j]
		}
		g.binnings[j] = newBinning(column)
		g.bins[j] = make([]uint16, n)
		for i, v := range column {
			g.bins[j][i] = g.binnings[j].bin(v)
		}
	}

	for _, v := range y {
		m.BaseScore += v
	}
	m.BaseScore /= float64(n)

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = m.BaseScore
	}

	var evalX [][]float64
	var evalPred []float64
	if eval != nil && len(eval.X) > 0 {
		evalX = make([][]float64, len(eval.X))
		evalPred = make([]float64, len(eval.X))
		for i, row := range eval.X {
			evalX[i] = encodeRow(cols, m.Categories, row)
			evalPred[i] = m.BaseScore
		}
	}

	rng := rand.New(rand.NewSource(p.Seed))
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}

	bestLoss := math.Inf(1)
	bestIter := 0
	for it := 0; it < p.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range pred {
			g.resid[i] = y[i] - pred[i]
		}

		rows := all
		if p.Subsample < 1 {
			rows = sampleRows(rng, n, p.Subsample)
		}

		g.nodes = nil
		g.splitBin = nil
		g.grow(rows, 0)
		for i := range pred {
			pred[i] += p.LearningRate * g.route(i)
		}
		tree := Tree{Nodes: g.nodes}
		m.Trees = append(m.Trees, tree)

		if evalX == nil {
			continue
		}
		loss := 0.0
		for i, x := range evalX {
			evalPred[i] += p.LearningRate * tree.leafValue(x)
			d := eval.Y[i] - evalPred[i]
			loss += d * d
		}
		loss /= float64(len(evalX))
		if loss < bestLoss {
			bestLoss = loss
			bestIter = it + 1
		}
		if p.EarlyStoppingRounds > 0 && it+1-bestIter >= p.EarlyStoppingRounds {
			break
		}
	}

	m.BestIteration = len(m.Trees)
	if evalX != nil {
		m.Trees = m.Trees[:bestIter]
		m.BestIteration = bestIter
		m.ValidationLoss = bestLoss
	}
	return m, nil
}

func checkWidth(cols []feature.Column, X [][]feature.Value) error {
	for i, row := range X {
		if len(row) != len(cols) {
			return fmt.Errorf("%w: row %d has %d cells, want %d", ErrShapeMismatch, i, len(row), len(cols))
		}
	}
	return nil
}

// sampleRows draws each row independently with probability rate, keeping at
// least two rows.
func sampleRows(rng *rand.Rand, n int, rate float64) []int {
	rows := make([]int, 0, int(float64(n)*rate)+1)
	for i := 0; i < n; i++ {
		if rng.Float64() < rate {
			rows = append(rows, i)
		}
	}
	for len(rows) < 2 && len(rows) < n {
		rows = append(rows, rng.Intn(n))
	}
	return rows
}

// Predict scores one row.
func (m *Model) Predict(row []feature.Value) (float64, error) {
	if len(row) != len(m.Columns) {
		return 0, fmt.Errorf("%w: row has %d cells, want %d", ErrShapeMismatch, len(row), len(m.Columns))
	}
	x := encodeRow(m.Columns, m.Categories, row)
	out := m.BaseScore
	for i := range m.Trees {
		out += m.LearningRate * m.Trees[i].leafValue(x)
	}
	return out, nil
}

// PredictBatch scores many rows.
func (m *Model) PredictBatch(rows [][]feature.Value) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, r := range rows {
		v, err := m.Predict(r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// Importance returns the total split gain per column, scaled to sum to 100.
// A model without splits has all-zero importance.
func (m *Model) Importance() []float64 {
	out := make([]float64, len(m.Columns))
	total := 0.0
	for _, t := range m.Trees {
		for _, n := range t.Nodes {
			if n.IsLeaf() {
				continue
			}
			out[n.Feature] += n.Gain
			total += n.Gain
		}
	}
	if total == 0 {
		return out
	}
	for i := range out {
		out[i] = out[i] / total * 100
	}
	return out
}

// Contributions decomposes the prediction of one row into a bias and one
// signed contribution per column. Along each tree path the change in node
// value at a split is credited to the split feature, so
// bias + sum(contributions) equals Predict(row).
func (m *Model) Contributions(row []feature.Value) (float64, []float64, error) {
	if len(row) != len(m.Columns) {
		return 0, nil, fmt.Errorf("%w: row has %d cells, want %d", ErrShapeMismatch, len(row), len(m.Columns))
	}
	x := encodeRow(m.Columns, m.Categories, row)
	contrib := make([]float64, len(m.Columns))
	bias := m.BaseScore
	for _, t := range m.Trees {
		i := 0
		bias += m.LearningRate * t.Nodes[0].Value
		for !t.Nodes[i].IsLeaf() {
			n := t.Nodes[i]
			next := n.Right
			if goesLeft(n, x[n.Feature]) {
				next = n.Left
			}
			contrib[n.Feature] += m.LearningRate * (t.Nodes[next].Value - n.Value)
			i = next
		}
	}
	return bias, contrib, nil
}

// FeatureNames returns the model's column names in order.
func (m *Model) FeatureNames() []string { return feature.Names(m.Columns) }
