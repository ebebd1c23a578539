package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/retention/pkg/metrics"
)

// HealthHandler serves the service registry on /healthz and /metrics.
type HealthHandler struct {
	exposition http.Handler
}

// NewHealthHandler returns a HealthHandler over the service registry.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{
		exposition: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}),
	}
}

// HandleHealth answers with the current exposition. A reachable handler
// means the process is up.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.exposition.ServeHTTP(w, r)
}
