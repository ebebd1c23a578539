package smoke

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/retention/internal/adapters/http/api"
	"github.com/okian/retention/internal/domain/job"
)

// ErrStatus is returned for unexpected response codes.
var ErrStatus = errors.New("unexpected status")

// Client talks to the job API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient returns a client for baseURL with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

type submitResponse struct {
	Job       *job.Job `json:"job"`
	Duplicate bool     `json:"duplicate"`
}

// Health checks /healthz.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health %d", ErrStatus, resp.StatusCode)
	}
	return nil
}

// Submit posts a job. key, when set, is sent as the idempotency header.
func (c *Client) Submit(ctx context.Context, req job.Request, key string) (*job.Job, bool, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal request body: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/jobs", body, key)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return nil, false, statusError(resp)
	}
	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, fmt.Errorf("failed to decode submit response: %w", err)
	}
	if out.Job == nil {
		return nil, false, fmt.Errorf("%w: submit response without job", ErrStatus)
	}
	return out.Job, out.Duplicate, nil
}

// Job fetches a job.
func (c *Client) Job(ctx context.Context, id string) (*job.Job, error) {
	resp, err := c.do(ctx, http.MethodGet, "/jobs/"+id, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	var j job.Job
	if err := json.NewDecoder(resp.Body).Decode(&j); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &j, nil
}

// Report is the subset of the report document the smoke run checks.
type Report struct {
	OverallSummary struct {
		TotalEmployees            int     `json:"total_employees"`
		EmployeesPredictedToLeave int     `json:"employees_predicted_to_leave"`
		TerminationThreshold      float64 `json:"termination_threshold"`
	} `json:"overall_summary"`
	Predictions []struct {
		EmployeeID             string  `json:"employee_id"`
		TerminationProbability float64 `json:"termination_probability"`
		PredictedTermination   bool    `json:"predicted_termination"`
	} `json:"predictions"`
}

// Report fetches the report of a completed job.
func (c *Client) Report(ctx context.Context, id string) (*Report, error) {
	resp, err := c.do(ctx, http.MethodGet, "/jobs/"+id+"/report", nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	var r Report
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &r, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, key string) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set(api.IdempotencyHeader, key)
	}
	return c.client.Do(req)
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%w: %d %s", ErrStatus, resp.StatusCode, bytes.TrimSpace(msg))
}
