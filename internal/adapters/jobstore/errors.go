package jobstore

import "errors"

// Sentinel errors for job stores.
var (
	ErrDuplicate = errors.New("job already exists")
	ErrNilJob    = errors.New("job is nil")
)
