// Package job models pipeline jobs and their lifecycle:
// queued -> running -> completed | failed.
package job

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/retention/internal/domain/failure"
)

// Errors.
var (
	ErrNotFound          = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job transition")
	ErrInvalidRequest    = errors.New("invalid job request")
)

// Mode selects which stages a job runs.
type Mode string

// Modes.
const (
	ModeFull    Mode = "full"
	ModeTrain   Mode = "train"
	ModePredict Mode = "predict"
)

// Trains reports whether the mode fits a new model.
func (m Mode) Trains() bool { return m == ModeFull || m == ModeTrain }

// Predicts reports whether the mode scores employees.
func (m Mode) Predicts() bool { return m == ModeFull || m == ModePredict }

// State is the lifecycle state of a job.
type State string

// States.
const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

var transitions = map[State][]State{
	StateQueued:  {StateRunning, StateFailed},
	StateRunning: {StateCompleted, StateFailed},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Progress fractions reported after each stage.
const (
	ProgressLoaded    = 0.1
	ProgressPanel     = 0.3
	ProgressTrained   = 0.6
	ProgressPredicted = 0.9
	ProgressDone      = 1.0
)

// Request is what a client submits.
type Request struct {
	Mode                Mode     `json:"mode"`
	AsOf                string   `json:"as_of,omitempty"`
	EmployeeIDs         []string `json:"employee_ids,omitempty"`
	IncludeExplanations *bool    `json:"include_explanations,omitempty"`
	CallbackURL         string   `json:"callback_url,omitempty"`
	IdempotencyKey      string   `json:"idempotency_key,omitempty"`
}

// Explain reports whether explanations were requested. They are on unless
// explicitly disabled.
func (r Request) Explain() bool {
	return r.IncludeExplanations == nil || *r.IncludeExplanations
}

// AsOfTime parses AsOf, falling back to now.
func (r Request) AsOfTime(now time.Time) (time.Time, error) {
	if r.AsOf == "" {
		return now.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, r.AsOf)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: as_of must be YYYY-MM-DD", ErrInvalidRequest)
	}
	return t, nil
}

// Normalize fills defaults.
func (r *Request) Normalize() {
	if r.Mode == "" {
		r.Mode = ModeFull
	}
	r.CallbackURL = strings.TrimSpace(r.CallbackURL)
}

// Validate checks the request.
func (r Request) Validate() error {
	switch r.Mode {
	case ModeFull, ModeTrain, ModePredict:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, r.Mode)
	}
	if _, err := r.AsOfTime(time.Now()); err != nil {
		return err
	}
	for _, id := range r.EmployeeIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: empty employee id", ErrInvalidRequest)
		}
	}
	if r.CallbackURL != "" && !strings.HasPrefix(r.CallbackURL, "http://") && !strings.HasPrefix(r.CallbackURL, "https://") {
		return fmt.Errorf("%w: callback_url must be http or https", ErrInvalidRequest)
	}
	return nil
}

// Job is the durable record of one pipeline run.
type Job struct {
	ID           string     `json:"id"`
	Request      Request    `json:"request"`
	State        State      `json:"state"`
	Progress     float64    `json:"progress"`
	Stage        string     `json:"stage,omitempty"`
	Error        string     `json:"error,omitempty"`
	ErrorKind    string     `json:"error_kind,omitempty"`
	ModelVersion string     `json:"model_version,omitempty"`
	ReportKey    string     `json:"report_key,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// New returns a queued job.
func New(id string, req Request, now time.Time) *Job {
	now = now.UTC()
	return &Job{ID: id, Request: req, State: StateQueued, CreatedAt: now, UpdatedAt: now}
}

func (j *Job) move(to State, now time.Time) error {
	if !CanTransition(j.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, to)
	}
	j.State = to
	j.UpdatedAt = now.UTC()
	return nil
}

// Start moves a queued job to running.
func (j *Job) Start(now time.Time) error {
	if err := j.move(StateRunning, now); err != nil {
		return err
	}
	t := now.UTC()
	j.StartedAt = &t
	return nil
}

// Advance records a finished stage.
func (j *Job) Advance(stage string, progress float64, now time.Time) {
	j.Stage = stage
	if progress > j.Progress {
		j.Progress = progress
	}
	j.UpdatedAt = now.UTC()
}

// Complete moves a running job to completed.
func (j *Job) Complete(modelVersion, reportKey string, now time.Time) error {
	if err := j.move(StateCompleted, now); err != nil {
		return err
	}
	j.Progress = ProgressDone
	j.ModelVersion = modelVersion
	j.ReportKey = reportKey
	t := now.UTC()
	j.FinishedAt = &t
	return nil
}

// Fail moves the job to failed and records the stage and kind of err.
func (j *Job) Fail(err error, now time.Time) error {
	if mErr := j.move(StateFailed, now); mErr != nil {
		return mErr
	}
	if err != nil {
		j.Error = err.Error()
		if k := failure.KindOf(err); k != nil {
			j.ErrorKind = k.Error()
		}
		if s := failure.StageOf(err); s != "" {
			j.Stage = s
		}
	}
	t := now.UTC()
	j.FinishedAt = &t
	return nil
}

// Task is the unit of work put on a queue.
type Task struct {
	JobID   string
	Request Request
}

// Outcome is published once a task has been processed.
type Outcome struct {
	JobID    string
	State    State
	Err      error
	Duration time.Duration
}

// Store persists jobs.
type Store interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, j *Job) error
	List(ctx context.Context, limit int) ([]*Job, error)
}
