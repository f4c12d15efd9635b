package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/agendia-app/agendia-platform/internal/queue"
	"github.com/agendia-app/agendia-platform/pkg/logging"
)

// JobSource loads persisted job records and cancels pending ones.
type JobSource interface {
	Get(ctx context.Context, jobID uuid.UUID) (*queue.JobRecord, error)
	CancelPending(ctx context.Context, jobID uuid.UUID) (bool, error)
}

// JobStatusHandler serves job status lookups for webhook callers that poll.
type JobStatusHandler struct {
	jobs   JobSource
	logger *logging.Logger
}

// NewJobStatusHandler creates the job status handler.
func NewJobStatusHandler(jobs JobSource, logger *logging.Logger) *JobStatusHandler {
	if jobs == nil {
		panic("handlers: job source cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &JobStatusHandler{jobs: jobs, logger: logger}
}

// Get answers the status of one job.
func (h *JobStatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	rec, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("failed to load job", "error", err, "job_id", jobID)
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":   rec.JobID,
		"status":   rec.Status,
		"attempts": rec.Attempts,
		"error":    rec.ErrorMessage,
	})
}

// Cancel marks a pending job cancelled so the dispatcher drops it before
// handling. Jobs already picked up answer 409.
func (h *JobStatusHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	cancelled, err := h.jobs.CancelPending(r.Context(), jobID)
	if err != nil {
		h.logger.Error("failed to cancel job", "error", err, "job_id", jobID)
		writeError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}
	if !cancelled {
		writeError(w, http.StatusConflict, "job is not pending")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id": jobID,
		"status": queue.JobStatusCancelled,
	})
}
