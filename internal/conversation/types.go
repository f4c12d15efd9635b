package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/agendia-app/agendia-platform/internal/store"
	"github.com/agendia-app/agendia-platform/internal/validation"
)

// ConversationType classifies the intent of an inbound turn.
type ConversationType string

const (
	TypeNewBooking   ConversationType = "novo_agendamento"
	TypeReschedule   ConversationType = "remarcacao"
	TypeCancellation ConversationType = "cancelamento"
	TypeFAQ          ConversationType = "faq"
	TypeUnknown      ConversationType = "indefinido"
)

// ExtractedFields is the partial booking intent accumulated across turns.
// Date is "2006-01-02" and Clock "15:04", company timezone.
type ExtractedFields struct {
	Service      string `json:"service,omitempty"`
	Date         string `json:"date,omitempty"`
	Clock        string `json:"clock,omitempty"`
	Professional string `json:"professional,omitempty"`
}

// Merge overlays newer onto f: a present value in newer overwrites, an absent
// value preserves what was already known.
func (f ExtractedFields) Merge(newer ExtractedFields) ExtractedFields {
	merged := f
	if newer.Service != "" {
		merged.Service = newer.Service
	}
	if newer.Date != "" {
		merged.Date = newer.Date
	}
	if newer.Clock != "" {
		merged.Clock = newer.Clock
	}
	if newer.Professional != "" {
		merged.Professional = newer.Professional
	}
	return merged
}

// Complete reports whether every field needed to book is known.
func (f ExtractedFields) Complete() bool {
	return f.Service != "" && f.Date != "" && f.Clock != "" && f.Professional != ""
}

// IsZero reports whether nothing has been extracted.
func (f ExtractedFields) IsZero() bool {
	return f == ExtractedFields{}
}

// Context is the transient per-turn conversation snapshot consumed by
// validation and reply generation. Never persisted as a whole.
type Context struct {
	Company          store.Company
	Client           *store.Client
	SubjectAddress   string
	ConversationType ConversationType
	Upcoming         []store.Appointment
	Pending          ExtractedFields
}

// InboundMessage is one unit of inbound-message work.
type InboundMessage struct {
	JobID          string
	CompanyID      uuid.UUID
	SubjectAddress string
	RawText        string
	Metadata       map[string]string
	ReceivedAt     time.Time
}

// ReplyMessenger sends outbound text and returns the provider message id.
type ReplyMessenger interface {
	SendText(ctx context.Context, companyID uuid.UUID, address, text string) (string, error)
}

// ReplyGenerator produces reply text from the assembled context, or "" for none.
// Treated as slow and unreliable; failures are retryable job errors.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, convo *Context, merged ExtractedFields, result validation.Result) (string, error)
}

// Transcriber converts audio to text before the job pipeline begins.
type Transcriber interface {
	AudioToText(ctx context.Context, audio []byte) (string, error)
}

// MessageLog persists the per-conversation message history.
type MessageLog interface {
	RecordIncoming(ctx context.Context, companyID uuid.UUID, address, body, providerMessageID string) error
	RecordOutgoing(ctx context.Context, companyID uuid.UUID, address, body, providerMessageID string) error
}

// Validator gates a booking intent against business rules.
type Validator interface {
	Validate(ctx context.Context, req validation.Request) (validation.Result, error)
}
