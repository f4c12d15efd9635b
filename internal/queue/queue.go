package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is a raw queue envelope.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Payload is the inbound-message job carried through the queue. Attempt
// starts at 1 and is incremented on every retry re-enqueue.
type Payload struct {
	JobID          uuid.UUID         `json:"job_id"`
	CompanyID      uuid.UUID         `json:"company_id"`
	SubjectAddress string            `json:"subject_address"`
	RawText        string            `json:"raw_text"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	ReceivedAt     time.Time         `json:"received_at"`
	Attempt        int               `json:"attempt"`
	// Priority is carried on the wire but the dispatcher treats all jobs
	// uniformly; there is no per-subject ordering lane.
	Priority int `json:"priority"`
}

// Encode serializes the payload for transport.
func (p Payload) Encode() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("queue: failed to encode payload: %w", err)
	}
	return string(raw), nil
}

// DecodePayload parses a queue message body.
func DecodePayload(body string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return Payload{}, fmt.Errorf("queue: failed to decode payload: %w", err)
	}
	return p, nil
}

// Client is the transport the dispatcher and publisher speak to. SendDelayed
// makes the message invisible to consumers until the delay elapses, which is
// how retries back off.
type Client interface {
	Send(ctx context.Context, body string) error
	SendDelayed(ctx context.Context, body string, delay time.Duration) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}
