package gbm

import "fmt"

// Params are the ensemble hyperparameters.
type Params struct {
	Iterations   int     `json:"iterations"`
	LearningRate float64 `json:"learning_rate"`
	Depth        int     `json:"depth"`
	L2LeafReg    float64 `json:"l2_leaf_reg"`
	// Subsample is the share of rows each tree is grown on.
	Subsample   float64 `json:"subsample"`
	MinLeafSize int     `json:"min_leaf_size"`
	Seed        int64   `json:"seed"`
	// EarlyStoppingRounds stops fitting when the validation loss has not
	// improved for that many iterations. Zero disables it.
	EarlyStoppingRounds int `json:"early_stopping_rounds"`
}

// DefaultParams returns the baseline configuration.
func DefaultParams() Params {
	return Params{
		Iterations:   300,
		LearningRate: 0.1,
		Depth:        4,
		L2LeafReg:    3,
		Subsample:    1,
		MinLeafSize:  5,
		Seed:         98,
	}
}

// Validate checks the parameter ranges.
func (p Params) Validate() error {
	switch {
	case p.Iterations < 1:
		return fmt.Errorf("%w: iterations must be positive", ErrInvalidParams)
	case p.LearningRate <= 0 || p.LearningRate > 1:
		return fmt.Errorf("%w: learning_rate must be in (0,1]", ErrInvalidParams)
	case p.Depth < 1 || p.Depth > 16:
		return fmt.Errorf("%w: depth must be in [1,16]", ErrInvalidParams)
	case p.L2LeafReg < 0:
		return fmt.Errorf("%w: l2_leaf_reg must not be negative", ErrInvalidParams)
	case p.Subsample <= 0 || p.Subsample > 1:
		return fmt.Errorf("%w: subsample must be in (0,1]", ErrInvalidParams)
	case p.MinLeafSize < 1:
		return fmt.Errorf("%w: min_leaf_size must be positive", ErrInvalidParams)
	case p.EarlyStoppingRounds < 0:
		return fmt.Errorf("%w: early_stopping_rounds must not be negative", ErrInvalidParams)
	}
	return nil
}
