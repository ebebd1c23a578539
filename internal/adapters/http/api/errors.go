package api

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/okian/retention/internal/domain/failure"
	"github.com/okian/retention/internal/domain/job"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
	ErrUnavailable  = errors.New("service unavailable")
	ErrNotReady     = errors.New("job has no report yet")
)

// statusFor maps an error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, job.ErrInvalidRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, job.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrNotReady), errors.Is(err, job.ErrInvalidTransition):
		return http.StatusConflict, "conflict"
	case errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, failure.ErrDataIntegrity), errors.Is(err, failure.ErrInsufficientHistory),
		errors.Is(err, failure.ErrInferenceSchemaMismatch):
		return http.StatusUnprocessableEntity, "unprocessable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
