package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrCompanyNotFound indicates the requested company does not exist.
var ErrCompanyNotFound = errors.New("store: company not found")

// CompanyStore reads company configuration.
type CompanyStore struct {
	db DB
}

// NewCompanyStore creates a company store.
func NewCompanyStore(db DB) *CompanyStore {
	return &CompanyStore{db: db}
}

// Get loads one company by id.
func (s *CompanyStore) Get(ctx context.Context, id uuid.UUID) (*Company, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, timezone, followups_enabled, schedule, services, professionals
		FROM companies
		WHERE id = $1`, id)

	company, err := scanCompany(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCompanyNotFound
		}
		return nil, fmt.Errorf("store: get company: %w", err)
	}
	return company, nil
}

// ListActive returns all active companies, for the follow-up sweep.
func (s *CompanyStore) ListActive(ctx context.Context) ([]Company, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, timezone, followups_enabled, schedule, services, professionals
		FROM companies
		WHERE active = TRUE
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list active companies: %w", err)
	}
	defer rows.Close()

	var result []Company
	for rows.Next() {
		company, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan company: %w", err)
		}
		result = append(result, *company)
	}
	return result, rows.Err()
}

func scanCompany(row pgx.Row) (*Company, error) {
	var (
		c                 Company
		scheduleJSON      []byte
		servicesJSON      []byte
		professionalsJSON []byte
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Timezone, &c.FollowUpsEnabled,
		&scheduleJSON, &servicesJSON, &professionalsJSON); err != nil {
		return nil, err
	}

	if len(scheduleJSON) > 0 {
		var raw map[string]DayWindow
		if err := json.Unmarshal(scheduleJSON, &raw); err != nil {
			return nil, fmt.Errorf("decode schedule: %w", err)
		}
		c.Schedule = make(WeekSchedule, len(raw))
		for day, window := range raw {
			wd, ok := parseWeekday(day)
			if !ok {
				continue
			}
			c.Schedule[wd] = window
		}
	}
	if len(servicesJSON) > 0 {
		if err := json.Unmarshal(servicesJSON, &c.Services); err != nil {
			return nil, fmt.Errorf("decode services: %w", err)
		}
	}
	if len(professionalsJSON) > 0 {
		if err := json.Unmarshal(professionalsJSON, &c.Professionals); err != nil {
			return nil, fmt.Errorf("decode professionals: %w", err)
		}
	}
	return &c, nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseWeekday(name string) (time.Weekday, bool) {
	wd, ok := weekdayNames[name]
	return wd, ok
}
