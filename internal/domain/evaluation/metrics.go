// Package evaluation scores binary decisions and searches decision
// thresholds.
package evaluation

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoThreshold is returned when no grid threshold meets the recall floor.
var ErrNoThreshold = errors.New("no threshold satisfies the recall floor")

// Metrics are the scores of a binary decision against the truth. F1,
// Recall and Precision refer to the positive class.
type Metrics struct {
	F1        float64 `json:"f1"`
	Recall    float64 `json:"recall"`
	Precision float64 `json:"precision"`
	MacroF1   float64 `json:"macro_f1"`
}

// Confusion counts outcomes of binary decisions.
type Confusion struct {
	TP, FP, TN, FN int
}

// Count builds the confusion counts for aligned truth and prediction slices.
func Count(truth, pred []bool) Confusion {
	var c Confusion
	for i := range truth {
		switch {
		case truth[i] && pred[i]:
			c.TP++
		case !truth[i] && pred[i]:
			c.FP++
		case truth[i] && !pred[i]:
			c.FN++
		default:
			c.TN++
		}
	}
	return c
}

// Precision is TP/(TP+FP), 0 when nothing was predicted positive.
func Precision(tp, fp int) float64 { return ratio(tp, tp+fp) }

// Recall is TP/(TP+FN), 0 when there are no positives.
func Recall(tp, fn int) float64 { return ratio(tp, tp+fn) }

// F1 is the harmonic mean of precision and recall, 0 when both are 0.
func F1(tp, fp, fn int) float64 { return ratio(2*tp, 2*tp+fp+fn) }

// Metrics derives the scores. Macro-F1 averages the F1 of the classes that
// occur in either the truth or the prediction.
func (c Confusion) Metrics() Metrics {
	m := Metrics{
		F1:        F1(c.TP, c.FP, c.FN),
		Recall:    Recall(c.TP, c.FN),
		Precision: Precision(c.TP, c.FP),
	}
	negF1 := F1(c.TN, c.FN, c.FP)
	hasPos := c.TP+c.FN+c.FP > 0
	hasNeg := c.TN+c.FP+c.FN > 0
	switch {
	case hasPos && hasNeg:
		m.MacroF1 = (m.F1 + negF1) / 2
	case hasPos:
		m.MacroF1 = m.F1
	case hasNeg:
		m.MacroF1 = negF1
	}
	return m
}

// Evaluate scores pred against truth.
func Evaluate(truth, pred []bool) Metrics {
	return Count(truth, pred).Metrics()
}

// Binarize marks every non-zero target as positive.
func Binarize(y []float64) []bool {
	out := make([]bool, len(y))
	for i, v := range y {
		out[i] = v != 0
	}
	return out
}

// Decide marks every probability strictly above threshold as positive.
func Decide(probs []float64, threshold float64) []bool {
	out := make([]bool, len(probs))
	for i, p := range probs {
		out[i] = p > threshold
	}
	return out
}

// MeanSquaredError of predictions against targets.
func MeanSquaredError(y, pred []float64) float64 {
	if len(y) == 0 {
		return math.NaN()
	}
	s := 0.0
	for i := range y {
		d := y[i] - pred[i]
		s += d * d
	}
	return s / float64(len(y))
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func (m Metrics) String() string {
	return fmt.Sprintf("f1=%.4f recall=%.4f precision=%.4f macro_f1=%.4f", m.F1, m.Recall, m.Precision, m.MacroF1)
}
