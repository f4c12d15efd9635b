package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendia-app/agendia-platform/pkg/logging"
)

type fakePublisher struct {
	jobID     uuid.UUID
	err       error
	companyID uuid.UUID
	address   string
	text      string
	metadata  map[string]string
}

func (f *fakePublisher) Publish(ctx context.Context, companyID uuid.UUID, subjectAddress, rawText string, metadata map[string]string) (uuid.UUID, error) {
	f.companyID = companyID
	f.address = subjectAddress
	f.text = rawText
	f.metadata = metadata
	if f.err != nil {
		return uuid.Nil, f.err
	}
	if f.jobID == uuid.Nil {
		f.jobID = uuid.New()
	}
	return f.jobID, nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) AudioToText(ctx context.Context, audio []byte) (string, error) {
	return f.text, f.err
}

func postWebhook(t *testing.T, h *WebhookHandler, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway/messages", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleMessage(rec, req)
	return rec
}

func TestHandleMessageEnqueues(t *testing.T) {
	pub := &fakePublisher{}
	h := NewWebhookHandler(pub, nil, logging.New("error"))

	companyID := uuid.New()
	rec := postWebhook(t, h, map[string]any{
		"company_id": companyID.String(),
		"from":       "+5511999990000",
		"text":       "quero marcar um corte",
		"message_id": "wamid.123",
		"channel":    "whatsapp",
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, companyID, pub.companyID)
	assert.Equal(t, "+5511999990000", pub.address)
	assert.Equal(t, "quero marcar um corte", pub.text)
	assert.Equal(t, "wamid.123", pub.metadata["provider_message_id"])

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, pub.jobID.String(), resp["job_id"])
	assert.Equal(t, "queued", resp["status"])
}

func TestHandleMessageTranscribesAudio(t *testing.T) {
	pub := &fakePublisher{}
	h := NewWebhookHandler(pub, &fakeTranscriber{text: "quero cancelar"}, logging.New("error"))

	rec := postWebhook(t, h, map[string]any{
		"company_id": uuid.New().String(),
		"from":       "+5511999990000",
		"audio":      base64.StdEncoding.EncodeToString([]byte("ogg-bytes")),
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "quero cancelar", pub.text)
}

func TestHandleMessageRejectsBadInput(t *testing.T) {
	pub := &fakePublisher{}
	h := NewWebhookHandler(pub, nil, logging.New("error"))

	cases := []struct {
		name    string
		payload map[string]any
		status  int
	}{
		{"missing company", map[string]any{"from": "+55", "text": "oi"}, http.StatusBadRequest},
		{"bad company id", map[string]any{"company_id": "nope", "from": "+55", "text": "oi"}, http.StatusBadRequest},
		{"missing from", map[string]any{"company_id": uuid.New().String(), "text": "oi"}, http.StatusBadRequest},
		{"empty text", map[string]any{"company_id": uuid.New().String(), "from": "+55"}, http.StatusBadRequest},
		{"audio without transcriber", map[string]any{"company_id": uuid.New().String(), "from": "+55", "audio": "b2dn"}, http.StatusUnprocessableEntity},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postWebhook(t, h, tc.payload)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestHandleMessagePublishFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("queue down")}
	h := NewWebhookHandler(pub, nil, logging.New("error"))

	rec := postWebhook(t, h, map[string]any{
		"company_id": uuid.New().String(),
		"from":       "+5511999990000",
		"text":       "oi",
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleMessageTranscriptionFailure(t *testing.T) {
	pub := &fakePublisher{}
	h := NewWebhookHandler(pub, &fakeTranscriber{err: errors.New("no audio service")}, logging.New("error"))

	rec := postWebhook(t, h, map[string]any{
		"company_id": uuid.New().String(),
		"from":       "+5511999990000",
		"audio":      base64.StdEncoding.EncodeToString([]byte("ogg")),
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
