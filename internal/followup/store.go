package followup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/agendia-app/agendia-platform/internal/store"
)

// ModeStore reads persisted follow-up modes.
type ModeStore struct {
	db store.DB
}

// NewModeStore creates a mode store.
func NewModeStore(db store.DB) *ModeStore {
	return &ModeStore{db: db}
}

// ListActive returns a company's active persisted modes, with the synthetic
// default mode injected ahead of them.
func (s *ModeStore) ListActive(ctx context.Context, companyID uuid.UUID) ([]Mode, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, company_id, name, active, trigger_type, warning_time, reminder_minutes, trigger_days, template_warning, template_reminder
		FROM followup_modes
		WHERE company_id = $1 AND active = TRUE
		ORDER BY created_at ASC`, companyID)
	if err != nil {
		return nil, fmt.Errorf("followup: list active modes: %w", err)
	}
	defer rows.Close()

	modes := []Mode{DefaultMode(companyID)}
	for rows.Next() {
		var (
			m       Mode
			trigger string
		)
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.Name, &m.Active, &trigger,
			&m.WarningTime, &m.ReminderMinutes, &m.TriggerDays,
			&m.TemplateWarning, &m.TemplateReminder); err != nil {
			return nil, fmt.Errorf("followup: scan mode: %w", err)
		}
		m.Trigger = TriggerType(trigger)
		modes = append(modes, m)
	}
	return modes, rows.Err()
}

// NotificationStore is the append-only dedupe/audit log. The engine's core
// invariant rides on it: never send the same (appointment, dedupe key) pair
// twice.
type NotificationStore struct {
	db store.DB
}

// NewNotificationStore creates a notification log store.
func NewNotificationStore(db store.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// AlreadySent reports whether a sent record exists for the pair.
func (s *NotificationStore) AlreadySent(ctx context.Context, appointmentID uuid.UUID, dedupeKey string) (bool, error) {
	var exists int
	err := s.db.QueryRow(ctx, `
		SELECT 1 FROM followup_notifications
		WHERE appointment_id = $1 AND dedupe_key = $2 AND status = 'sent'`,
		appointmentID, dedupeKey).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("followup: check sent: %w", err)
	}
	return true, nil
}

// Record appends an audit row for one send attempt. Sent rows are guarded by
// a conditional insert so a raced duplicate collapses to a no-op.
func (s *NotificationStore) Record(ctx context.Context, appointmentID uuid.UUID, dedupeKey, status string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO followup_notifications (id, appointment_id, dedupe_key, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING`,
		uuid.New(), appointmentID, dedupeKey, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("followup: record notification: %w", err)
	}
	return nil
}
