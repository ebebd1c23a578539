package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/retention/internal/domain/job"
	"github.com/okian/retention/pkg/logger"
)

// ErrCallbackStatus is returned when the callback endpoint answers non-2xx.
var ErrCallbackStatus = errors.New("callback returned error status")

const defaultCallbackTimeout = 10 * time.Second

// Notifier posts finished jobs to their callback URL.
type Notifier struct {
	client *http.Client
	logger logger.Logger
}

// NewNotifier returns a Notifier with the default timeout.
func NewNotifier(log logger.Logger) *Notifier {
	return &Notifier{client: &http.Client{Timeout: defaultCallbackTimeout}, logger: log}
}

// NewNotifierWithClient returns a Notifier using client.
func NewNotifierWithClient(client *http.Client, log logger.Logger) *Notifier {
	return &Notifier{client: client, logger: log}
}

// CallbackPayload is the body posted to a job's callback URL.
type CallbackPayload struct {
	JobID        string          `json:"job_id"`
	Status       job.State       `json:"status"`
	Error        string          `json:"error,omitempty"`
	ErrorKind    string          `json:"error_kind,omitempty"`
	Stage        string          `json:"stage,omitempty"`
	ModelVersion string          `json:"model_version,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
}

// Notify posts the state of j, with its report when there is one.
func (n *Notifier) Notify(ctx context.Context, j *job.Job, report []byte) error {
	body, err := json.Marshal(CallbackPayload{
		JobID:        j.ID,
		Status:       j.State,
		Error:        j.Error,
		ErrorKind:    j.ErrorKind,
		Stage:        j.Stage,
		ModelVersion: j.ModelVersion,
		Result:       report,
	})
	if err != nil {
		return fmt.Errorf("encode callback: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.Request.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post callback: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrCallbackStatus, resp.StatusCode)
	}
	n.logger.Debug(ctx, "callback delivered", logger.String("job_id", j.ID), logger.Int("status", resp.StatusCode))
	return nil
}
