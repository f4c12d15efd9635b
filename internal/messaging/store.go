package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agendia-app/agendia-platform/internal/store"
)

// Message directions as stored.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Record is one row of the message history.
type Record struct {
	ID                uuid.UUID `json:"id"`
	CompanyID         uuid.UUID `json:"company_id"`
	SubjectAddress    string    `json:"subject_address"`
	Direction         string    `json:"direction"`
	Body              string    `json:"body"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Store persists the per-conversation message history in Postgres.
type Store struct {
	db store.DB
}

// NewStore creates a message history store.
func NewStore(db store.DB) *Store {
	if db == nil {
		panic("messaging: db cannot be nil")
	}
	return &Store{db: db}
}

// RecordIncoming logs an inbound message. Webhook redeliveries carrying the
// same provider message id are absorbed by the conflict target.
func (s *Store) RecordIncoming(ctx context.Context, companyID uuid.UUID, address, body, providerMessageID string) error {
	return s.record(ctx, companyID, address, DirectionIn, body, providerMessageID)
}

// RecordOutgoing logs an outbound message after the gateway accepted it.
func (s *Store) RecordOutgoing(ctx context.Context, companyID uuid.UUID, address, body, providerMessageID string) error {
	return s.record(ctx, companyID, address, DirectionOut, body, providerMessageID)
}

func (s *Store) record(ctx context.Context, companyID uuid.UUID, address, direction, body, providerMessageID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO messages (id, company_id, subject_address, direction, body, provider_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		ON CONFLICT (provider_message_id) WHERE provider_message_id IS NOT NULL DO NOTHING
	`, uuid.New(), companyID, address, direction, body, providerMessageID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("messaging: record %s message: %w", direction, err)
	}
	return nil
}

// History lists the most recent messages exchanged with one subject, newest
// first.
func (s *Store) History(ctx context.Context, companyID uuid.UUID, address string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, company_id, subject_address, direction, body, COALESCE(provider_message_id, ''), created_at
		FROM messages
		WHERE company_id = $1 AND subject_address = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, companyID, address, limit)
	if err != nil {
		return nil, fmt.Errorf("messaging: list history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.SubjectAddress, &r.Direction, &r.Body, &r.ProviderMessageID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("messaging: scan message: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("messaging: read history: %w", err)
	}
	return out, nil
}
