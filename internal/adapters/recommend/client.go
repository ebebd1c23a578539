// Package recommend asks a remote text generation service for one action
// per company-wide driver.
package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/retention/internal/domain/attribution"
)

var (
	// ErrStatus is returned for non-2xx responses.
	ErrStatus = errors.New("recommender returned error status")
	// ErrMalformed is returned when the response does not follow the schema.
	ErrMalformed = errors.New("malformed recommender response")
)

const maxResponseBytes = 1 << 20

// Client calls a JSON endpoint that answers with grouped recommendations.
type Client struct {
	url    string
	model  string
	apiKey string
	http   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithModel names the generation model sent with each request.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// NewClient returns a Client posting to url. The timeout bounds each call on
// top of the caller's context.
func NewClient(url string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{url: url, http: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type request struct {
	Model   string               `json:"model,omitempty"`
	Prompt  string               `json:"prompt"`
	Drivers []attribution.Driver `json:"drivers"`
}

type response struct {
	Recommendation []struct {
		Feature []string `json:"feature"`
		Action  string   `json:"recommendation_action"`
	} `json:"recommendation"`
}

// Recommend implements attribution.Recommender.
func (c *Client) Recommend(ctx context.Context, drivers []attribution.Driver) (map[string]string, error) {
	if len(drivers) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(request{Model: c.model, Prompt: Prompt(drivers), Drivers: drivers})
	if err != nil {
		return nil, fmt.Errorf("encode recommend request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build recommend request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call recommender: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	var out response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(out.Recommendation) == 0 {
		return nil, fmt.Errorf("%w: no recommendations", ErrMalformed)
	}

	known := make(map[string]struct{}, len(drivers))
	for _, d := range drivers {
		known[d.Feature] = struct{}{}
	}
	actions := make(map[string]string)
	for _, rec := range out.Recommendation {
		action := strings.TrimSpace(rec.Action)
		if action == "" {
			continue
		}
		for _, group := range rec.Feature {
			// Grouped features sometimes arrive comma separated in one entry.
			for _, f := range strings.Split(group, ",") {
				f = strings.TrimSpace(f)
				if _, ok := known[f]; !ok {
					continue
				}
				if _, taken := actions[f]; !taken {
					actions[f] = action
				}
			}
		}
	}
	return actions, nil
}

// Prompt renders the instruction sent for drivers.
func Prompt(drivers []attribution.Driver) string {
	var b strings.Builder
	b.WriteString("You are an HR analytics expert. You receive the top features contributing to employee termination risk, ")
	b.WriteString("with their impact values and percentages. Suggest 2 to 5 concise, actionable recommendations to reduce attrition, ")
	b.WriteString("one sentence each, grouping similar features under one recommendation.\n\n")
	fmt.Fprintf(&b, "Top %d features contributing to employee termination risk:\n", len(drivers))
	fmt.Fprintf(&b, "%-40s %14s %18s\n", "feature", "impact_value", "impact_percentage")
	for _, d := range drivers {
		fmt.Fprintf(&b, "%-40s %14.6f %18.2f\n", d.Feature, d.ImpactValue, d.ImpactPercentage)
	}
	b.WriteString("\nAnswer with JSON: {\"recommendation\": [{\"feature\": [string], \"recommendation_action\": string}]}\n")
	return b.String()
}
