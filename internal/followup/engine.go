package followup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agendia-app/agendia-platform/internal/observability/metrics"
	"github.com/agendia-app/agendia-platform/internal/store"
	"github.com/agendia-app/agendia-platform/internal/validation"
	"github.com/agendia-app/agendia-platform/pkg/logging"
)

// CompanySource lists companies eligible for the sweep.
type CompanySource interface {
	ListActive(ctx context.Context) ([]store.Company, error)
}

// ClientSource lists a company's active clients with their subscriptions.
type ClientSource interface {
	ListActive(ctx context.Context, companyID uuid.UUID) ([]store.Client, error)
}

// AppointmentSource reads appointment state and flags warned appointments.
type AppointmentSource interface {
	ListDayScheduled(ctx context.Context, companyID uuid.UUID, dayStart, dayEnd time.Time) ([]store.Appointment, error)
	LatestFinished(ctx context.Context, companyID, clientID uuid.UUID) (*store.Appointment, error)
	MarkWarned(ctx context.Context, id uuid.UUID) (bool, error)
}

// ModeSource lists a company's active modes, default included.
type ModeSource interface {
	ListActive(ctx context.Context, companyID uuid.UUID) ([]Mode, error)
}

// DedupeLog gates every send on the (appointment, dedupe key) pair.
type DedupeLog interface {
	AlreadySent(ctx context.Context, appointmentID uuid.UUID, dedupeKey string) (bool, error)
	Record(ctx context.Context, appointmentID uuid.UUID, dedupeKey, status string) error
}

// Sender dispatches outbound notification text.
type Sender interface {
	SendText(ctx context.Context, companyID uuid.UUID, address, text string) (string, error)
}

// Engine evaluates per-client, per-appointment notification rules on each
// sweep and dispatches deduplicated messages.
type Engine struct {
	companies    CompanySource
	clients      ClientSource
	appointments AppointmentSource
	modes        ModeSource
	dedupe       DedupeLog
	sender       Sender
	logger       *logging.Logger
	metrics      *metrics.FollowUpMetrics

	// running guards against overlapping sweeps of the same company.
	running sync.Map
	now     func() time.Time
}

// EngineOption customizes engine behavior.
type EngineOption func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMetrics wires sweep metrics.
func WithMetrics(m *metrics.FollowUpMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates a follow-up trigger engine.
func NewEngine(
	companies CompanySource,
	clients ClientSource,
	appointments AppointmentSource,
	modes ModeSource,
	dedupe DedupeLog,
	sender Sender,
	logger *logging.Logger,
	opts ...EngineOption,
) *Engine {
	if companies == nil {
		panic("followup: company source cannot be nil")
	}
	if clients == nil {
		panic("followup: client source cannot be nil")
	}
	if appointments == nil {
		panic("followup: appointment source cannot be nil")
	}
	if modes == nil {
		panic("followup: mode source cannot be nil")
	}
	if dedupe == nil {
		panic("followup: dedupe log cannot be nil")
	}
	if sender == nil {
		panic("followup: sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	e := &Engine{
		companies:    companies,
		clients:      clients,
		appointments: appointments,
		modes:        modes,
		dedupe:       dedupe,
		sender:       sender,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessAllCompanies sweeps every active company. A failure in one company
// never aborts the sweep for the others.
func (e *Engine) ProcessAllCompanies(ctx context.Context) error {
	companies, err := e.companies.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("followup: list companies: %w", err)
	}

	for i := range companies {
		company := &companies[i]
		if err := e.CheckAndSendFollowUps(ctx, company); err != nil {
			e.metrics.ObserveSweepError()
			e.logger.Error("followup sweep failed for company",
				"error", err, "company_id", company.ID)
		}
	}
	return nil
}

// CheckAndSendFollowUps evaluates all trigger rules for one company.
// Overlapping calls for the same company are skipped.
func (e *Engine) CheckAndSendFollowUps(ctx context.Context, company *store.Company) error {
	if !company.FollowUpsEnabled {
		return nil
	}
	if _, loaded := e.running.LoadOrStore(company.ID, struct{}{}); loaded {
		e.logger.Debug("skipping overlapping sweep", "company_id", company.ID)
		e.metrics.ObserveSkip("overlap")
		return nil
	}
	defer e.running.Delete(company.ID)

	modes, err := e.modes.ListActive(ctx, company.ID)
	if err != nil {
		return fmt.Errorf("load modes: %w", err)
	}
	clients, err := e.clients.ListActive(ctx, company.ID)
	if err != nil {
		return fmt.Errorf("load clients: %w", err)
	}
	clientsByID := make(map[uuid.UUID]*store.Client, len(clients))
	for i := range clients {
		clientsByID[clients[i].ID] = &clients[i]
	}

	loc := company.Location()
	now := e.now().In(loc)
	dayStart := validation.StartOfDay(now, loc)

	appointments, err := e.appointments.ListDayScheduled(ctx, company.ID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return fmt.Errorf("load day appointments: %w", err)
	}

	for i := range appointments {
		appt := &appointments[i]
		if appt.Warned {
			continue
		}
		client, ok := clientsByID[appt.ClientID]
		if !ok {
			continue
		}
		for _, mode := range modes {
			if !subscribed(*client, mode) {
				continue
			}
			switch mode.Trigger {
			case TriggerTimeFixed:
				e.evalTimeFixed(ctx, company, client, appt, mode, now, loc)
			case TriggerAntecedencia:
				e.evalAntecedencia(ctx, company, client, appt, mode, now, loc)
			case TriggerDiasApos:
				// Evaluated per client below, independent of today's appointments.
			default:
				e.logger.Warn("rejecting unknown trigger type",
					"trigger", string(mode.Trigger), "mode_id", mode.ID)
			}
		}
	}

	for i := range clients {
		client := &clients[i]
		for _, mode := range modes {
			if mode.Trigger != TriggerDiasApos || !subscribed(*client, mode) {
				continue
			}
			e.evalDiasApos(ctx, company, client, mode, now, loc)
		}
	}

	return nil
}

// evalTimeFixed sends the warning once the configured wall-clock time has
// passed today, then marks the appointment as warned.
func (e *Engine) evalTimeFixed(ctx context.Context, company *store.Company, client *store.Client, appt *store.Appointment, mode Mode, now time.Time, loc *time.Location) {
	warnMin, err := validation.ParseClock(mode.WarningTime)
	if err != nil {
		e.logger.Warn("invalid warning time on mode", "mode_id", mode.ID, "warning_time", mode.WarningTime)
		return
	}
	nowMin := now.Hour()*60 + now.Minute()
	if nowMin < warnMin {
		return
	}

	key, err := mode.DedupeKey()
	if err != nil {
		e.logger.Warn("cannot build dedupe key", "error", err, "mode_id", mode.ID)
		return
	}
	text := RenderTemplate(mode.TemplateWarning, TemplateVars(*client, *appt, loc, 0))
	if !e.sendOnce(ctx, company.ID, client.Address, appt.ID, key, text, string(TriggerTimeFixed)) {
		return
	}

	if _, err := e.appointments.MarkWarned(ctx, appt.ID); err != nil {
		e.logger.Error("failed to mark appointment warned", "error", err, "appointment_id", appt.ID)
	}
	appt.Warned = true
}

// evalAntecedencia fires iff minutes-until-start falls in (0, reminderMinutes].
func (e *Engine) evalAntecedencia(ctx context.Context, company *store.Company, client *store.Client, appt *store.Appointment, mode Mode, now time.Time, loc *time.Location) {
	until := appt.StartsAt.Sub(now)
	window := time.Duration(mode.ReminderMinutes) * time.Minute
	if until <= 0 || until > window {
		return
	}

	key, err := mode.DedupeKey()
	if err != nil {
		e.logger.Warn("cannot build dedupe key", "error", err, "mode_id", mode.ID)
		return
	}
	minutes := int(until.Minutes())
	text := RenderTemplate(mode.TemplateReminder, TemplateVars(*client, *appt, loc, minutes))
	e.sendOnce(ctx, company.ID, client.Address, appt.ID, key, text, string(TriggerAntecedencia))
}

// evalDiasApos sends a reactivation nudge once whole calendar days since the
// client's most recent finalizado appointment reach the mode threshold.
func (e *Engine) evalDiasApos(ctx context.Context, company *store.Company, client *store.Client, mode Mode, now time.Time, loc *time.Location) {
	last, err := e.appointments.LatestFinished(ctx, company.ID, client.ID)
	if err != nil {
		e.logger.Error("failed to load latest finished appointment",
			"error", err, "client_id", client.ID)
		return
	}
	if last == nil {
		return
	}

	elapsed := calendarDaysBetween(last.StartsAt, now, loc)
	if elapsed < mode.TriggerDays {
		return
	}

	key, err := mode.DedupeKey()
	if err != nil {
		e.logger.Warn("cannot build dedupe key", "error", err, "mode_id", mode.ID)
		return
	}
	text := RenderTemplate(mode.TemplateReminder, TemplateVars(*client, *last, loc, 0))
	e.sendOnce(ctx, company.ID, client.Address, last.ID, key, text, string(TriggerDiasApos))
}

// sendOnce gates the send on the dedupe log and records the attempt outcome.
// A transport failure logs a failed record and is naturally re-attempted on
// the next sweep. Returns true when a message went out.
func (e *Engine) sendOnce(ctx context.Context, companyID uuid.UUID, address string, appointmentID uuid.UUID, dedupeKey, text, trigger string) bool {
	sent, err := e.dedupe.AlreadySent(ctx, appointmentID, dedupeKey)
	if err != nil {
		e.logger.Error("dedupe check failed", "error", err, "dedupe_key", dedupeKey)
		return false
	}
	if sent {
		e.metrics.ObserveSkip("dedupe")
		return false
	}

	if _, err := e.sender.SendText(ctx, companyID, address, text); err != nil {
		e.logger.Error("followup send failed",
			"error", err, "dedupe_key", dedupeKey, "appointment_id", appointmentID)
		e.metrics.ObserveSend(trigger, NotificationFailed)
		if recordErr := e.dedupe.Record(ctx, appointmentID, dedupeKey, NotificationFailed); recordErr != nil {
			e.logger.Error("failed to record notification attempt", "error", recordErr)
		}
		return false
	}

	e.metrics.ObserveSend(trigger, NotificationSent)
	if err := e.dedupe.Record(ctx, appointmentID, dedupeKey, NotificationSent); err != nil {
		e.logger.Error("failed to record sent notification", "error", err, "dedupe_key", dedupeKey)
	}
	e.logger.Info("followup sent",
		"trigger", trigger, "appointment_id", appointmentID, "dedupe_key", dedupeKey)
	return true
}

// subscribed reports whether the client opted into the mode. A client with no
// explicit subscriptions is treated as subscribed to the default mode only.
func subscribed(client store.Client, mode Mode) bool {
	if len(client.FollowUpModeIDs) == 0 {
		return mode.IsDefault()
	}
	for _, id := range client.FollowUpModeIDs {
		if id == mode.ID {
			return true
		}
	}
	return false
}

// calendarDaysBetween counts calendar days in the company's timezone. The
// dates are re-anchored in UTC before subtracting so a DST transition inside
// the span cannot shift the count by an hour's worth of truncation.
func calendarDaysBetween(from, to time.Time, loc *time.Location) int {
	fy, fm, fd := from.In(loc).Date()
	ty, tm, td := to.In(loc).Date()
	fromDay := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	toDay := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(toDay.Sub(fromDay) / (24 * time.Hour))
}
