package training

import (
	"fmt"
	"time"

	"github.com/okian/retention/internal/domain/evaluation"
	"github.com/okian/retention/internal/domain/gbm"
)

// Model is a trained, immutable retention model: the fitted ensemble and
// the companion record describing how it was produced.
type Model struct {
	Ensemble *gbm.Model
	Metadata Metadata
}

// Metadata is the companion record persisted next to the ensemble.
type Metadata struct {
	Version          string             `json:"version"`
	Features         []string           `json:"features"`
	OptimalThreshold float64            `json:"optimal_threshold"`
	TrainingPeriod   []string           `json:"training_period"`
	TestingPeriod    []string           `json:"testing_period"`
	Metrics          evaluation.Metrics `json:"metrics"`
	Params           gbm.Params         `json:"params"`
	DroppedColumns   []string           `json:"dropped_columns,omitempty"`
	TrainedAt        time.Time          `json:"trained_at"`
}

// Features returns the ordered model inputs.
func (m *Model) Features() []string { return m.Metadata.Features }

// Threshold returns the decision threshold.
func (m *Model) Threshold() float64 { return m.Metadata.OptimalThreshold }

// Check verifies that the ensemble and the metadata agree.
func (m *Model) Check() error {
	if m == nil || m.Ensemble == nil {
		return fmt.Errorf("model has no ensemble")
	}
	names := m.Ensemble.FeatureNames()
	if len(names) != len(m.Metadata.Features) {
		return fmt.Errorf("ensemble has %d features, metadata lists %d", len(names), len(m.Metadata.Features))
	}
	for i, n := range names {
		if n != m.Metadata.Features[i] {
			return fmt.Errorf("feature %d is %q in the ensemble and %q in the metadata", i, n, m.Metadata.Features[i])
		}
	}
	if m.Metadata.OptimalThreshold <= 0 || m.Metadata.OptimalThreshold >= 1 {
		return fmt.Errorf("threshold %v outside (0,1)", m.Metadata.OptimalThreshold)
	}
	return nil
}

// FeatureImportance is one entry of the global importance ranking.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// Importance returns the ensemble's gain importance, highest first.
func (m *Model) Importance() []FeatureImportance {
	imp := m.Ensemble.Importance()
	out := make([]FeatureImportance, len(imp))
	for i, v := range imp {
		out[i] = FeatureImportance{Feature: m.Ensemble.Columns[i].Name, Importance: v}
	}
	sortImportance(out)
	return out
}
