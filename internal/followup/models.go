package followup

import (
	"fmt"

	"github.com/google/uuid"
)

// TriggerType selects how a follow-up mode is evaluated.
type TriggerType string

const (
	// TriggerTimeFixed fires once per day after a configured wall-clock time.
	TriggerTimeFixed TriggerType = "time_fixed"
	// TriggerAntecedencia fires within a minutes-before-appointment window.
	TriggerAntecedencia TriggerType = "antecedencia"
	// TriggerDiasApos fires once a days-after-completion threshold is crossed.
	TriggerDiasApos TriggerType = "dias_apos"
)

// Mode is a company-configured notification rule. Read-only to the engine.
type Mode struct {
	ID               uuid.UUID   `json:"id"`
	CompanyID        uuid.UUID   `json:"company_id"`
	Name             string      `json:"name"`
	Active           bool        `json:"active"`
	Trigger          TriggerType `json:"trigger"`
	WarningTime      string      `json:"warning_time,omitempty"` // "15:04", time_fixed only
	ReminderMinutes  int         `json:"reminder_minutes,omitempty"`
	TriggerDays      int         `json:"trigger_days,omitempty"`
	TemplateWarning  string      `json:"template_warning,omitempty"`
	TemplateReminder string      `json:"template_reminder,omitempty"`
}

// DefaultModeID is the fixed id of the synthetic default mode that every
// company carries. It is injected ahead of persisted modes and filterable
// like any other mode.
var DefaultModeID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// DefaultMode builds the implicit per-company mode: a same-day warning at
// 09:00 with a standard template.
func DefaultMode(companyID uuid.UUID) Mode {
	return Mode{
		ID:              DefaultModeID,
		CompanyID:       companyID,
		Name:            "padrao",
		Active:          true,
		Trigger:         TriggerTimeFixed,
		WarningTime:     "09:00",
		TemplateWarning: "Olá {cliente_nome}! Lembrando seu horário de {servico} hoje às {horario} com {profissional}. Até já!",
	}
}

// IsDefault reports whether the mode is the synthetic default.
func (m Mode) IsDefault() bool {
	return m.ID == DefaultModeID
}

// DedupeKey returns the string identifying this mode's logical notification.
// For dias_apos the threshold is embedded, so an edited threshold is a new
// notification.
func (m Mode) DedupeKey() (string, error) {
	switch m.Trigger {
	case TriggerTimeFixed:
		return fmt.Sprintf("mode:%s:time_fixed", m.ID), nil
	case TriggerAntecedencia:
		return fmt.Sprintf("mode:%s:antecedencia", m.ID), nil
	case TriggerDiasApos:
		return fmt.Sprintf("mode:%s:dias_apos:%d", m.ID, m.TriggerDays), nil
	default:
		return "", fmt.Errorf("followup: unknown trigger type %q", m.Trigger)
	}
}

// Notification statuses recorded in the dedupe/audit log.
const (
	NotificationSent   = "sent"
	NotificationFailed = "failed"
)
