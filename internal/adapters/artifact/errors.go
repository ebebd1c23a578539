package artifact

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrNotFound indicates the requested object does not exist. It matches
	// fs.ErrNotExist so table readers can treat optional inputs uniformly.
	ErrNotFound = fmt.Errorf("artifact not found: %w", fs.ErrNotExist)
	// ErrEmptyKey indicates an empty object key.
	ErrEmptyKey = errors.New("artifact key must not be empty")
	// ErrInvalidKey indicates a key with a path traversal segment.
	ErrInvalidKey = errors.New("artifact key contains invalid path segment")
	// ErrModelExists is returned when a model version is saved twice.
	ErrModelExists = errors.New("model version already stored")
	// ErrNoModel is returned when no model has been published yet.
	ErrNoModel = errors.New("no model published")
)
