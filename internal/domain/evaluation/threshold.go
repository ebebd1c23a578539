package evaluation

import (
	"fmt"
	"math"
)

// Grid is an ascending scan of candidate thresholds from Start to Stop
// (exclusive) in increments of Step.
type Grid struct {
	Start float64 `json:"start" koanf:"start"`
	Stop  float64 `json:"stop" koanf:"stop"`
	Step  float64 `json:"step" koanf:"step"`
}

// DefaultGrid scans 0.001, 0.002, ..., 0.499.
func DefaultGrid() Grid {
	return Grid{Start: 0.001, Stop: 0.5, Step: 0.001}
}

// Values enumerates the grid. Values are rounded to the step's precision so
// 0.001 steps do not drift.
func (g Grid) Values() []float64 {
	if g.Step <= 0 || g.Stop <= g.Start {
		return nil
	}
	n := int(math.Ceil((g.Stop-g.Start)/g.Step - 1e-9))
	scale := math.Pow(10, math.Ceil(-math.Log10(g.Step))+3)
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, math.Round((g.Start+float64(i)*g.Step)*scale)/scale)
	}
	return out
}

// Selection is the outcome of a threshold search.
type Selection struct {
	Threshold float64 `json:"threshold"`
	Metrics   Metrics `json:"metrics"`
}

// SearchThreshold scans the grid in ascending order and returns the
// threshold with the strictly highest macro-F1 among those whose recall is
// at least recallFloor. The first threshold reaching the maximum wins.
func SearchThreshold(probs []float64, truth []bool, grid Grid, recallFloor float64) (Selection, error) {
	if len(probs) != len(truth) {
		return Selection{}, fmt.Errorf("threshold search: %d probabilities, %d labels", len(probs), len(truth))
	}
	best := Selection{Metrics: Metrics{MacroF1: -1}}
	found := false
	for _, th := range grid.Values() {
		m := Evaluate(truth, Decide(probs, th))
		if m.Recall < recallFloor {
			continue
		}
		if !found || m.MacroF1 > best.Metrics.MacroF1 {
			best = Selection{Threshold: th, Metrics: m}
			found = true
		}
	}
	if !found {
		return Selection{}, fmt.Errorf("%w: floor %.3f", ErrNoThreshold, recallFloor)
	}
	return best, nil
}
