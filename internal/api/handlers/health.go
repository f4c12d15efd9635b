package handlers

import (
	"context"
	"net/http"

	"github.com/agendia-app/agendia-platform/internal/queue"
	"github.com/agendia-app/agendia-platform/pkg/logging"
)

// QueueHealthSource reports job counts by status.
type QueueHealthSource interface {
	Health(ctx context.Context) (queue.QueueHealth, error)
}

// HealthHandler serves liveness and queue depth endpoints.
type HealthHandler struct {
	jobs   QueueHealthSource
	logger *logging.Logger
}

// NewHealthHandler creates the health endpoints handler.
func NewHealthHandler(jobs QueueHealthSource, logger *logging.Logger) *HealthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &HealthHandler{jobs: jobs, logger: logger}
}

// Live answers 200 as long as the process serves requests.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// QueueHealth reports pending/completed/failed job counts.
func (h *HealthHandler) QueueHealth(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "job store not configured")
		return
	}
	health, err := h.jobs.Health(r.Context())
	if err != nil {
		h.logger.Error("failed to read queue health", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read queue health")
		return
	}
	writeJSON(w, http.StatusOK, health)
}
