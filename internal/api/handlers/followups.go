package handlers

import (
	"context"
	"net/http"

	"github.com/agendia-app/agendia-platform/pkg/logging"
)

// SweepRunner triggers one follow-up sweep across all companies.
type SweepRunner interface {
	ProcessAllCompanies(ctx context.Context) error
}

// FollowUpHandler exposes a manual sweep trigger for operators.
type FollowUpHandler struct {
	engine SweepRunner
	logger *logging.Logger
}

// NewFollowUpHandler creates the manual sweep handler.
func NewFollowUpHandler(engine SweepRunner, logger *logging.Logger) *FollowUpHandler {
	if engine == nil {
		panic("handlers: sweep runner cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FollowUpHandler{engine: engine, logger: logger}
}

// Run executes a sweep synchronously and reports the outcome.
func (h *FollowUpHandler) Run(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ProcessAllCompanies(r.Context()); err != nil {
		h.logger.Error("manual followup sweep failed", "error", err)
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}
