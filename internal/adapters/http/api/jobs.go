package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/retention/internal/domain/job"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxRequestBytes  = 1 << 20
	// IdempotencyHeader overrides the idempotency_key of the body.
	IdempotencyHeader = "Idempotency-Key"
)

// JobsHandler serves job submission and lookup.
type JobsHandler struct {
	svc Service
}

// NewJobsHandler creates a jobs handler.
func NewJobsHandler(svc Service) *JobsHandler {
	return &JobsHandler{svc: svc}
}

type submitResponse struct {
	Job       *job.Job `json:"job"`
	Duplicate bool     `json:"duplicate"`
}

type listResponse struct {
	Jobs []*job.Job `json:"jobs"`
}

// HandleSubmit handles POST /jobs.
func (h *JobsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_job"
	var req job.Request
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, fmt.Errorf("%s: %w: %v", op, ErrBadRequest, err))
		return
	}
	if key := strings.TrimSpace(r.Header.Get(IdempotencyHeader)); key != "" {
		req.IdempotencyKey = key
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		writeError(w, fmt.Errorf("%s: %w", op, err))
		return
	}

	j, existing, err := h.svc.Submit(r.Context(), req)
	if err != nil {
		writeError(w, fmt.Errorf("%s: %w", op, err))
		return
	}
	w.Header().Set("Location", "/jobs/"+j.ID)
	status := http.StatusAccepted
	if existing {
		status = http.StatusOK
	}
	writeJSON(w, status, submitResponse{Job: j, Duplicate: existing})
}

// HandleList handles GET /jobs?limit=N.
func (h *JobsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest))
			return
		}
		limit = min(n, maxListLimit)
	}
	jobs, err := h.svc.Jobs(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*job.Job{}
	}
	writeJSON(w, http.StatusOK, listResponse{Jobs: jobs})
}

// HandleGet handles GET /jobs/{id}.
func (h *JobsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	j, err := h.svc.Job(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// HandleReport handles GET /jobs/{id}/report.
func (h *JobsHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	raw, err := h.svc.Report(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}
