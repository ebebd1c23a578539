// Package failure defines the error kinds shared by every pipeline stage.
//
// Kinds are sentinels and are matched with errors.Is. Wrap attaches an
// operation name and a cause to a kind; InStage records which pipeline
// stage produced the error so job records can report it.
package failure

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	ErrDataIntegrity           = errors.New("data integrity error")
	ErrInsufficientHistory     = errors.New("insufficient history")
	ErrTrainingFailure         = errors.New("training failure")
	ErrInferenceSchemaMismatch = errors.New("inference schema mismatch")
	ErrAttributionComputation  = errors.New("attribution computation error")
)

var kinds = []error{
	ErrDataIntegrity,
	ErrInsufficientHistory,
	ErrTrainingFailure,
	ErrInferenceSchemaMismatch,
	ErrAttributionComputation,
}

// Error is a kind-tagged error raised by operation Op.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New returns an error of the given kind without a cause.
func New(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// Wrap tags err with kind. A nil err still produces a kind-tagged error.
func Wrap(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Newf builds a kind-tagged error from a formatted message.
func Newf(op string, kind error, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the first known kind in err's chain, or nil.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// StageError records the pipeline stage an error came from.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// InStage wraps err with the stage name. It returns nil for a nil err and
// keeps the innermost stage when err is already stage-tagged.
func InStage(stage string, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the stage recorded on err, or "".
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
