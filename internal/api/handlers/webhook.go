// Package handlers contains the HTTP handlers of the public API surface.
package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/agendia-app/agendia-platform/pkg/logging"
)

// JobPublisher enqueues an inbound message for asynchronous processing.
type JobPublisher interface {
	Publish(ctx context.Context, companyID uuid.UUID, subjectAddress, rawText string, metadata map[string]string) (uuid.UUID, error)
}

// Transcriber converts inbound audio to text before the job is enqueued.
type Transcriber interface {
	AudioToText(ctx context.Context, audio []byte) (string, error)
}

// WebhookHandler accepts inbound gateway messages. It enqueues and returns
// immediately; all processing happens on the dispatcher side.
type WebhookHandler struct {
	publisher   JobPublisher
	transcriber Transcriber
	logger      *logging.Logger
}

// NewWebhookHandler creates the inbound message webhook handler.
func NewWebhookHandler(publisher JobPublisher, transcriber Transcriber, logger *logging.Logger) *WebhookHandler {
	if publisher == nil {
		panic("handlers: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		publisher:   publisher,
		transcriber: transcriber,
		logger:      logger,
	}
}

type inboundMessageRequest struct {
	CompanyID string `json:"company_id"`
	From      string `json:"from"`
	Text      string `json:"text"`
	Audio     string `json:"audio,omitempty"` // base64, transcribed when text is empty
	MessageID string `json:"message_id,omitempty"`
	Channel   string `json:"channel,omitempty"`
}

// HandleMessage ingests one inbound message and answers 202 with the job id.
func (h *WebhookHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req inboundMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	companyID, err := uuid.Parse(strings.TrimSpace(req.CompanyID))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company_id")
		return
	}
	from := strings.TrimSpace(req.From)
	if from == "" {
		writeError(w, http.StatusBadRequest, "from is required")
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" && req.Audio != "" {
		if h.transcriber == nil {
			writeError(w, http.StatusUnprocessableEntity, "audio messages not supported")
			return
		}
		audio, decodeErr := base64.StdEncoding.DecodeString(req.Audio)
		if decodeErr != nil {
			writeError(w, http.StatusBadRequest, "invalid audio encoding")
			return
		}
		text, err = h.transcriber.AudioToText(r.Context(), audio)
		if err != nil {
			h.logger.Error("audio transcription failed", "error", err, "company_id", companyID)
			writeError(w, http.StatusBadGateway, "transcription failed")
			return
		}
	}
	if text == "" {
		writeError(w, http.StatusBadRequest, "text or audio is required")
		return
	}

	metadata := map[string]string{}
	if req.MessageID != "" {
		metadata["provider_message_id"] = req.MessageID
	}
	if req.Channel != "" {
		metadata["channel"] = req.Channel
	}

	jobID, err := h.publisher.Publish(r.Context(), companyID, from, text, metadata)
	if err != nil {
		h.logger.Error("failed to enqueue inbound message", "error", err, "company_id", companyID)
		writeError(w, http.StatusInternalServerError, "failed to accept message")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": jobID,
		"status": "queued",
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
