package store

import (
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus tracks the lifecycle of an appointment.
type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "agendado"
	StatusFinished  AppointmentStatus = "finalizado"
	StatusCancelled AppointmentStatus = "cancelado"
)

// DayWindow describes a company's opening window for one weekday.
// Start and End are wall-clock times in "15:04" format, company timezone.
type DayWindow struct {
	Open  bool   `json:"open"`
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// WeekSchedule maps weekdays to opening windows. Missing days are closed.
type WeekSchedule map[time.Weekday]DayWindow

// Service is a bookable service offered by a company.
type Service struct {
	Name        string `json:"name"`
	DurationMin int    `json:"duration_min"`
}

// Professional offers a subset of the company's services.
type Professional struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Services []string  `json:"services"`
}

// Company is a tenant of the platform.
type Company struct {
	ID               uuid.UUID      `json:"id"`
	Name             string         `json:"name"`
	Timezone         string         `json:"timezone"`
	FollowUpsEnabled bool           `json:"followups_enabled"`
	Schedule         WeekSchedule   `json:"schedule"`
	Services         []Service      `json:"services"`
	Professionals    []Professional `json:"professionals"`
}

// Client is an end customer reachable at a messaging address.
type Client struct {
	ID              uuid.UUID   `json:"id"`
	CompanyID       uuid.UUID   `json:"company_id"`
	Name            string      `json:"name"`
	Address         string      `json:"address"`
	Active          bool        `json:"active"`
	FollowUpModeIDs []uuid.UUID `json:"followup_mode_ids"`
	Anonymous       bool        `json:"-"`
}

// Appointment is a booked (or past) visit.
type Appointment struct {
	ID           uuid.UUID         `json:"id"`
	CompanyID    uuid.UUID         `json:"company_id"`
	ClientID     uuid.UUID         `json:"client_id"`
	Professional string            `json:"professional"`
	Service      string            `json:"service"`
	StartsAt     time.Time         `json:"starts_at"`
	DurationMin  int               `json:"duration_min"`
	Status       AppointmentStatus `json:"status"`
	Warned       bool              `json:"warned"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// End returns the appointment's end instant.
func (a Appointment) End() time.Time {
	return a.StartsAt.Add(time.Duration(a.DurationMin) * time.Minute)
}

// ServiceDuration resolves a service's duration in minutes, false when unknown.
func (c Company) ServiceDuration(name string) (int, bool) {
	for _, s := range c.Services {
		if s.Name == name {
			return s.DurationMin, true
		}
	}
	return 0, false
}

// ProfessionalOffers reports whether the named professional offers the service.
func (c Company) ProfessionalOffers(professional, service string) bool {
	for _, p := range c.Professionals {
		if p.Name != professional {
			continue
		}
		for _, s := range p.Services {
			if s == service {
				return true
			}
		}
	}
	return false
}

// Location resolves the company timezone, falling back to UTC.
func (c Company) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
