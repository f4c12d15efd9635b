// Package messaging adapts the gateway client to the interfaces the
// conversation pipeline and follow-up engine send through, and persists the
// per-conversation message history.
package messaging

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/agendia-app/agendia-platform/internal/messaging/gateway"
	"github.com/agendia-app/agendia-platform/pkg/logging"
)

// Service sends outbound text through the gateway.
type Service struct {
	client *gateway.Client
	logger *logging.Logger
}

// NewService creates a messaging service around the gateway client.
func NewService(client *gateway.Client, logger *logging.Logger) *Service {
	if client == nil {
		panic("messaging: gateway client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{client: client, logger: logger}
}

// SendText dispatches a text message and returns the provider message id.
func (s *Service) SendText(ctx context.Context, companyID uuid.UUID, address, text string) (string, error) {
	resp, err := s.client.SendText(ctx, gateway.SendTextRequest{
		CompanyID: companyID,
		To:        address,
		Text:      text,
	})
	if err != nil {
		return "", fmt.Errorf("messaging: send text: %w", err)
	}
	s.logger.Debug("outbound message accepted",
		"company_id", companyID, "to", address, "provider_message_id", resp.ID)
	return resp.ID, nil
}

// AudioToText transcribes an inbound audio payload via the gateway.
func (s *Service) AudioToText(ctx context.Context, audio []byte) (string, error) {
	text, err := s.client.Transcribe(ctx, audio)
	if err != nil {
		return "", fmt.Errorf("messaging: transcribe audio: %w", err)
	}
	return text, nil
}
