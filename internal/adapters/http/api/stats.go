package api

import (
	"context"
	"net/http"

	"github.com/okian/retention/internal/domain/job"
)

// Stats is the operational snapshot served on /stats.
type Stats struct {
	Started         bool `json:"started"`
	Workers         int  `json:"workers"`
	ActiveWorkers   int  `json:"active_workers"`
	TrainingWorkers int  `json:"training_workers"`
	QueueLength     int  `json:"queue_length"`
	QueueCapacity   int  `json:"queue_capacity"`
	IdempotencyKeys int  `json:"idempotency_keys"`

	// Jobs counts the most recent RecentJobs jobs by state.
	Jobs       map[job.State]int `json:"jobs"`
	RecentJobs int               `json:"recent_jobs"`
}

// StatsProvider reports service statistics.
type StatsProvider interface {
	Stats(ctx context.Context) (*Stats, error)
}

// StatsHandler serves /stats.
type StatsHandler struct {
	provider StatsProvider
}

// NewStatsHandler returns a StatsHandler over provider.
func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{provider: provider}
}

// HandleStats handles GET /stats.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.provider.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
