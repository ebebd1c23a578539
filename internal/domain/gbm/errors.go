package gbm

import "errors"

// Sentinel errors for model fitting and scoring.
var (
	ErrEmptyDataset  = errors.New("empty dataset")
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrInvalidParams = errors.New("invalid params")
)
