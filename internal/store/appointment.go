package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const appointmentColumns = `id, company_id, client_id, professional, service, starts_at, duration_min, status, warned, created_at, updated_at`

// AppointmentStore reads and writes appointments.
type AppointmentStore struct {
	db DB
}

// NewAppointmentStore creates an appointment store.
func NewAppointmentStore(db DB) *AppointmentStore {
	return &AppointmentStore{db: db}
}

// Create persists a new scheduled appointment.
func (s *AppointmentStore) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = StatusScheduled
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.CompanyID, a.ClientID, a.Professional, a.Service,
		a.StartsAt, a.DurationMin, string(a.Status), a.Warned, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create appointment: %w", err)
	}
	return nil
}

// ListDayScheduled returns scheduled appointments starting within [dayStart, dayEnd).
func (s *AppointmentStore) ListDayScheduled(ctx context.Context, companyID uuid.UUID, dayStart, dayEnd time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE company_id = $1 AND status = 'agendado' AND starts_at >= $2 AND starts_at < $3
		ORDER BY starts_at ASC`, companyID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("store: list day scheduled: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListUpcomingByClient returns the client's next scheduled appointments from the given instant.
func (s *AppointmentStore) ListUpcomingByClient(ctx context.Context, companyID, clientID uuid.UUID, from time.Time, limit int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE company_id = $1 AND client_id = $2 AND status = 'agendado' AND starts_at >= $3
		ORDER BY starts_at ASC LIMIT $4`, companyID, clientID, from, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list upcoming by client: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// BookedIntervals returns a professional's non-cancelled appointments within [dayStart, dayEnd),
// for free-slot computation.
func (s *AppointmentStore) BookedIntervals(ctx context.Context, companyID uuid.UUID, professional string, dayStart, dayEnd time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE company_id = $1 AND professional = $2 AND status <> 'cancelado'
		  AND starts_at >= $3 AND starts_at < $4
		ORDER BY starts_at ASC`, companyID, professional, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("store: booked intervals: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// LatestFinished returns the client's most recent finalizado appointment, or nil.
func (s *AppointmentStore) LatestFinished(ctx context.Context, companyID, clientID uuid.UUID) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE company_id = $1 AND client_id = $2 AND status = 'finalizado'
		ORDER BY starts_at DESC LIMIT 1`, companyID, clientID)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: latest finished: %w", err)
	}
	return appt, nil
}

// MarkWarned atomically flags an appointment as warned. Returns false when the
// appointment was already warned (or does not exist).
func (s *AppointmentStore) MarkWarned(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET warned = TRUE, updated_at = $1
		WHERE id = $2 AND warned = FALSE`, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("store: mark warned: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateStatus transitions an appointment to a new status.
func (s *AppointmentStore) UpdateStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET status = $1, updated_at = $2
		WHERE id = $3`, string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: update appointment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: update appointment status: no appointment with id %s", id)
	}
	return nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a      Appointment
		status string
	)
	if err := row.Scan(&a.ID, &a.CompanyID, &a.ClientID, &a.Professional, &a.Service,
		&a.StartsAt, &a.DurationMin, &status, &a.Warned, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Status = AppointmentStatus(status)
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan appointment: %w", err)
		}
		result = append(result, *appt)
	}
	return result, rows.Err()
}
