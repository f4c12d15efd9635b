package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agendia-app/agendia-platform/internal/store"
	"github.com/agendia-app/agendia-platform/pkg/logging"
)

// Blocking statuses returned when a stage fails closed.
const (
	StatusClosed             = "fechado"
	StatusPastDate           = "data_passada"
	StatusPastTime           = "horario_passado"
	StatusIncompatibleServer = "profissional_incompativel"
)

// AppointmentSource loads a professional's booked intervals for a day.
type AppointmentSource interface {
	BookedIntervals(ctx context.Context, companyID uuid.UUID, professional string, dayStart, dayEnd time.Time) ([]store.Appointment, error)
}

// Request carries the fields to validate for one conversation turn.
// Date is "2006-01-02" and Clock "15:04", both in the company timezone.
// Empty fields skip the stages that need them.
type Request struct {
	Company      store.Company
	Service      string
	Professional string
	Date         string
	Clock        string
	Now          time.Time
}

// Result is either a blocking response or an enriched, safe-to-act-on context.
type Result struct {
	Blocked        bool       `json:"blocked"`
	Status         string     `json:"status,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	Target         *time.Time `json:"target,omitempty"`
	DurationMin    int        `json:"duration_min,omitempty"`
	SlotAvailable  bool       `json:"slot_available"`
	SuggestedSlots []Slot     `json:"suggested_slots,omitempty"`
}

// Pipeline runs the sequential validation gate over a booking request.
type Pipeline struct {
	appointments AppointmentSource
	logger       *logging.Logger
}

// NewPipeline creates a validation pipeline.
func NewPipeline(appointments AppointmentSource, logger *logging.Logger) *Pipeline {
	if appointments == nil {
		panic("validation: appointment source cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Pipeline{appointments: appointments, logger: logger}
}

// Validate runs the stages in fixed order, short-circuiting on the first
// blocking failure: day open, future date, time of day, slot availability,
// professional/service compatibility.
func (p *Pipeline) Validate(ctx context.Context, req Request) (Result, error) {
	if req.Date == "" {
		// Nothing date-bound to validate yet; the conversation still needs
		// more fields before a booking can be attempted.
		return Result{}, nil
	}

	loc := req.Company.Location()
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(loc)

	day, err := ParseDate(req.Date, loc)
	if err != nil {
		return Result{}, err
	}

	// Stage 1: day open.
	window, open := req.Company.Schedule[day.Weekday()]
	if !open || !window.Open {
		return Result{
			Blocked: true,
			Status:  StatusClosed,
			Reason:  fmt.Sprintf("Não atendemos em %s. Pode escolher outro dia?", weekdayPT(day.Weekday())),
		}, nil
	}

	// Stage 2: future date.
	if day.Before(StartOfDay(now, loc)) {
		return Result{
			Blocked: true,
			Status:  StatusPastDate,
			Reason:  "Essa data já passou. Pode escolher uma data a partir de hoje?",
		}, nil
	}

	if req.Clock == "" {
		return Result{}, nil
	}

	clockMin, err := ParseClock(req.Clock)
	if err != nil {
		return Result{}, err
	}
	target := CombineDateClock(day, clockMin)

	// Stage 3: time of day must not be in the past when the date is today.
	if SameDay(target, now, loc) && target.Before(now) {
		return Result{
			Blocked: true,
			Status:  StatusPastTime,
			Reason:  "Esse horário já passou hoje. Pode escolher um horário mais tarde?",
		}, nil
	}

	result := Result{Target: &target}

	// Stage 4: slot availability for professional + service duration.
	if req.Service != "" && req.Professional != "" {
		duration, known := req.Company.ServiceDuration(req.Service)
		if known {
			result.DurationMin = duration
			dayStart := StartOfDay(day, loc)
			booked, err := p.appointments.BookedIntervals(ctx, req.Company.ID, req.Professional, dayStart, dayStart.AddDate(0, 0, 1))
			if err != nil {
				return Result{}, fmt.Errorf("validation: load booked intervals: %w", err)
			}
			free := FreeSlots(day, window, duration, booked, now)
			if slotIsFree(free, target) {
				result.SlotAvailable = true
			} else {
				result.SuggestedSlots = NearestSlots(free, target)
			}
		}
	}

	// Stage 5: professional must offer the requested service.
	if req.Service != "" && req.Professional != "" && !req.Company.ProfessionalOffers(req.Professional, req.Service) {
		return Result{
			Blocked: true,
			Status:  StatusIncompatibleServer,
			Reason:  fmt.Sprintf("%s não atende %s. Posso sugerir outro profissional?", req.Professional, req.Service),
		}, nil
	}

	return result, nil
}

func slotIsFree(free []Slot, target time.Time) bool {
	for _, s := range free {
		if s.Start.Equal(target) {
			return true
		}
	}
	return false
}

func weekdayPT(d time.Weekday) string {
	switch d {
	case time.Sunday:
		return "domingo"
	case time.Monday:
		return "segunda-feira"
	case time.Tuesday:
		return "terça-feira"
	case time.Wednesday:
		return "quarta-feira"
	case time.Thursday:
		return "quinta-feira"
	case time.Friday:
		return "sexta-feira"
	default:
		return "sábado"
	}
}
