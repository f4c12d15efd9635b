package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ClientStore reads and writes end-customer records.
type ClientStore struct {
	db DB
}

// NewClientStore creates a client store.
func NewClientStore(db DB) *ClientStore {
	return &ClientStore{db: db}
}

// FindByAddress returns the client reachable at the given address, or nil.
func (s *ClientStore) FindByAddress(ctx context.Context, companyID uuid.UUID, address string) (*Client, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, company_id, name, address, active, followup_mode_ids
		FROM clients
		WHERE company_id = $1 AND address = $2`, companyID, address)

	client, err := scanClient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: find client by address: %w", err)
	}
	return client, nil
}

// ListActive returns all active clients of a company with their mode subscriptions.
func (s *ClientStore) ListActive(ctx context.Context, companyID uuid.UUID) ([]Client, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, company_id, name, address, active, followup_mode_ids
		FROM clients
		WHERE company_id = $1 AND active = TRUE
		ORDER BY created_at ASC`, companyID)
	if err != nil {
		return nil, fmt.Errorf("store: list active clients: %w", err)
	}
	defer rows.Close()

	var result []Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan client: %w", err)
		}
		result = append(result, *client)
	}
	return result, rows.Err()
}

// Create persists a new client. Used when a booking is confirmed for a
// previously unknown address.
func (s *ClientStore) Create(ctx context.Context, c *Client) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()

	_, err := s.db.Exec(ctx, `
		INSERT INTO clients (id, company_id, name, address, active, followup_mode_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		c.ID, c.CompanyID, c.Name, c.Address, true, c.FollowUpModeIDs, now)
	if err != nil {
		return fmt.Errorf("store: create client: %w", err)
	}
	c.Active = true
	return nil
}

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	if err := row.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Address, &c.Active, &c.FollowUpModeIDs); err != nil {
		return nil, err
	}
	return &c, nil
}

// AnonymousClient builds a transient client shape for an unknown address.
// Nothing is persisted until a booking is confirmed.
func AnonymousClient(companyID uuid.UUID, address string) *Client {
	return &Client{
		CompanyID: companyID,
		Address:   address,
		Active:    true,
		Anonymous: true,
	}
}
