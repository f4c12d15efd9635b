package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agendia-app/agendia-platform/internal/store"
	"github.com/agendia-app/agendia-platform/internal/validation"
	"github.com/agendia-app/agendia-platform/pkg/logging"
)

const (
	defaultReplyTimeout = 30 * time.Second
	defaultSendTimeout  = 10 * time.Second
)

// AppointmentWriter persists booking outcomes.
type AppointmentWriter interface {
	Create(ctx context.Context, a *store.Appointment) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status store.AppointmentStatus) error
}

// ClientWriter creates client records on booking confirmation.
type ClientWriter interface {
	Create(ctx context.Context, c *store.Client) error
}

// Pipeline runs the per-message sequence: assemble context, extract and merge,
// validate, generate reply, dispatch. Any returned error aborts the attempt
// and is retried by the job dispatcher.
type Pipeline struct {
	assembler    *Assembler
	memory       MemoryStore
	validator    Validator
	replies      ReplyGenerator
	messenger    ReplyMessenger
	messages     MessageLog
	appointments AppointmentWriter
	clients      ClientWriter
	logger       *logging.Logger

	replyTimeout time.Duration
	sendTimeout  time.Duration
	now          func() time.Time
}

// PipelineOption customizes pipeline behavior.
type PipelineOption func(*Pipeline)

// WithReplyTimeout bounds the external reply-generation call.
func WithReplyTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.replyTimeout = d
		}
	}
}

// WithSendTimeout bounds the outbound send call.
func WithSendTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.sendTimeout = d
		}
	}
}

// NewPipeline wires the per-message processing sequence.
func NewPipeline(
	assembler *Assembler,
	memory MemoryStore,
	validator Validator,
	replies ReplyGenerator,
	messenger ReplyMessenger,
	messages MessageLog,
	appointments AppointmentWriter,
	clients ClientWriter,
	logger *logging.Logger,
	opts ...PipelineOption,
) *Pipeline {
	if assembler == nil {
		panic("conversation: assembler cannot be nil")
	}
	if memory == nil {
		panic("conversation: memory store cannot be nil")
	}
	if validator == nil {
		panic("conversation: validator cannot be nil")
	}
	if replies == nil {
		panic("conversation: reply generator cannot be nil")
	}
	if messenger == nil {
		panic("conversation: messenger cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	p := &Pipeline{
		assembler:    assembler,
		memory:       memory,
		validator:    validator,
		replies:      replies,
		messenger:    messenger,
		messages:     messages,
		appointments: appointments,
		clients:      clients,
		logger:       logger,
		replyTimeout: defaultReplyTimeout,
		sendTimeout:  defaultSendTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessInbound handles one inbound message job end to end.
func (p *Pipeline) ProcessInbound(ctx context.Context, msg InboundMessage) error {
	if p.messages != nil {
		if err := p.messages.RecordIncoming(ctx, msg.CompanyID, msg.SubjectAddress, msg.RawText, msg.Metadata["provider_message_id"]); err != nil {
			return fmt.Errorf("conversation: record incoming message: %w", err)
		}
	}

	convo, err := p.assembler.AssembleContext(ctx, msg.RawText, msg.SubjectAddress, msg.CompanyID)
	if err != nil {
		return err
	}

	extracted := ExtractFields(msg.RawText, convo.Company, p.now())
	merged, err := p.memory.Merge(ctx, msg.SubjectAddress, extracted)
	if err != nil {
		return fmt.Errorf("conversation: merge extraction: %w", err)
	}

	result, err := p.validator.Validate(ctx, validation.Request{
		Company:      convo.Company,
		Service:      merged.Service,
		Professional: merged.Professional,
		Date:         merged.Date,
		Clock:        merged.Clock,
		Now:          p.now(),
	})
	if err != nil {
		return fmt.Errorf("conversation: validate: %w", err)
	}

	// Blocked outcomes bypass reply generation: a fixed explanatory message
	// goes out instead.
	if result.Blocked {
		p.logger.Info("validation blocked inbound message",
			"job_id", msg.JobID,
			"company_id", msg.CompanyID,
			"status", result.Status,
		)
		return p.send(ctx, msg, result.Reason)
	}

	switch {
	case convo.ConversationType == TypeCancellation && len(convo.Upcoming) > 0:
		if err := p.cancelNext(ctx, convo, msg); err != nil {
			return err
		}
	case merged.Complete() && result.SlotAvailable:
		if err := p.confirmBooking(ctx, convo, merged, result, msg); err != nil {
			return err
		}
	}

	reply, err := p.generateReply(ctx, convo, merged, result)
	if err != nil {
		return fmt.Errorf("conversation: generate reply: %w", err)
	}
	if reply == "" {
		reply = p.fallbackReply(convo, merged, result)
	}
	if reply == "" {
		p.logger.Debug("no reply produced for inbound message", "job_id", msg.JobID)
		return nil
	}

	return p.send(ctx, msg, reply)
}

func (p *Pipeline) generateReply(ctx context.Context, convo *Context, merged ExtractedFields, result validation.Result) (string, error) {
	replyCtx, cancel := context.WithTimeout(ctx, p.replyTimeout)
	defer cancel()
	return p.replies.GenerateReply(replyCtx, convo, merged, result)
}

func (p *Pipeline) confirmBooking(ctx context.Context, convo *Context, merged ExtractedFields, result validation.Result, msg InboundMessage) error {
	if p.appointments == nil || result.Target == nil {
		return nil
	}

	client := convo.Client
	if client.Anonymous && p.clients != nil {
		if err := p.clients.Create(ctx, client); err != nil {
			return fmt.Errorf("conversation: create client on booking: %w", err)
		}
		client.Anonymous = false
	}

	appt := &store.Appointment{
		CompanyID:    msg.CompanyID,
		ClientID:     client.ID,
		Professional: merged.Professional,
		Service:      merged.Service,
		StartsAt:     *result.Target,
		DurationMin:  result.DurationMin,
		Status:       store.StatusScheduled,
	}
	if err := p.appointments.Create(ctx, appt); err != nil {
		return fmt.Errorf("conversation: create appointment: %w", err)
	}

	if err := p.memory.Reset(ctx, msg.SubjectAddress); err != nil {
		p.logger.Warn("failed to reset extraction memory", "error", err, "subject", msg.SubjectAddress)
	}

	p.logger.Info("booking confirmed",
		"appointment_id", appt.ID,
		"company_id", msg.CompanyID,
		"service", merged.Service,
		"starts_at", appt.StartsAt,
	)
	convo.Upcoming = append(convo.Upcoming, *appt)
	return nil
}

func (p *Pipeline) cancelNext(ctx context.Context, convo *Context, msg InboundMessage) error {
	if p.appointments == nil {
		return nil
	}
	next := convo.Upcoming[0]
	if err := p.appointments.UpdateStatus(ctx, next.ID, store.StatusCancelled); err != nil {
		return fmt.Errorf("conversation: cancel appointment: %w", err)
	}
	if err := p.memory.Reset(ctx, msg.SubjectAddress); err != nil {
		p.logger.Warn("failed to reset extraction memory", "error", err, "subject", msg.SubjectAddress)
	}
	p.logger.Info("appointment cancelled",
		"appointment_id", next.ID,
		"company_id", msg.CompanyID,
	)
	convo.Upcoming = convo.Upcoming[1:]
	return nil
}

func (p *Pipeline) fallbackReply(convo *Context, merged ExtractedFields, result validation.Result) string {
	switch {
	case convo.ConversationType == TypeCancellation:
		return "Seu agendamento foi cancelado. Esperamos te ver em breve!"
	case merged.Complete() && result.SlotAvailable && result.Target != nil:
		return fmt.Sprintf("Agendamento confirmado: %s com %s em %s às %s. Até lá!",
			merged.Service, merged.Professional,
			result.Target.Format("02/01"), result.Target.Format("15:04"))
	case len(result.SuggestedSlots) > 0:
		return FormatSlotSuggestions(result.SuggestedSlots)
	default:
		return ""
	}
}

// FormatSlotSuggestions renders alternative slots as a short SMS-friendly list.
func FormatSlotSuggestions(slots []validation.Slot) string {
	if len(slots) == 0 {
		return ""
	}
	var parts []string
	for _, s := range slots {
		parts = append(parts, s.Start.Format("02/01 às 15:04"))
	}
	return "Esse horário já está ocupado. Tenho disponível: " + strings.Join(parts, ", ") + ". Algum desses funciona?"
}

func (p *Pipeline) send(ctx context.Context, msg InboundMessage, text string) error {
	sendCtx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	defer cancel()

	providerID, err := p.messenger.SendText(sendCtx, msg.CompanyID, msg.SubjectAddress, text)
	if err != nil {
		return fmt.Errorf("conversation: send reply: %w", err)
	}

	if p.messages != nil {
		if err := p.messages.RecordOutgoing(ctx, msg.CompanyID, msg.SubjectAddress, text, providerID); err != nil {
			p.logger.Warn("failed to record outgoing message", "error", err, "company_id", msg.CompanyID)
		}
	}
	return nil
}
