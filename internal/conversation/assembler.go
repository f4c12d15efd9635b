package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agendia-app/agendia-platform/internal/store"
	"github.com/agendia-app/agendia-platform/pkg/logging"
)

const upcomingLimit = 5

// CompanySource loads company configuration.
type CompanySource interface {
	Get(ctx context.Context, id uuid.UUID) (*store.Company, error)
}

// ClientSource looks up a client by messaging address.
type ClientSource interface {
	FindByAddress(ctx context.Context, companyID uuid.UUID, address string) (*store.Client, error)
}

// AppointmentSource loads a client's upcoming appointments.
type AppointmentSource interface {
	ListUpcomingByClient(ctx context.Context, companyID, clientID uuid.UUID, from time.Time, limit int) ([]store.Appointment, error)
}

// Assembler builds the per-turn conversation snapshot from persisted state
// plus the extraction memory.
type Assembler struct {
	companies    CompanySource
	clients      ClientSource
	appointments AppointmentSource
	memory       MemoryStore
	logger       *logging.Logger
	now          func() time.Time
}

// NewAssembler creates a context assembler.
func NewAssembler(companies CompanySource, clients ClientSource, appointments AppointmentSource, memory MemoryStore, logger *logging.Logger) *Assembler {
	if companies == nil {
		panic("conversation: company source cannot be nil")
	}
	if clients == nil {
		panic("conversation: client source cannot be nil")
	}
	if appointments == nil {
		panic("conversation: appointment source cannot be nil")
	}
	if memory == nil {
		panic("conversation: memory store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Assembler{
		companies:    companies,
		clients:      clients,
		appointments: appointments,
		memory:       memory,
		logger:       logger,
		now:          time.Now,
	}
}

// AssembleContext loads the client record (an anonymous transient shape when
// the address is unknown), the client's open appointments and the pending
// extraction, and classifies the conversation type.
func (a *Assembler) AssembleContext(ctx context.Context, rawText, subjectAddress string, companyID uuid.UUID) (*Context, error) {
	company, err := a.companies.Get(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("conversation: load company: %w", err)
	}

	client, err := a.clients.FindByAddress(ctx, companyID, subjectAddress)
	if err != nil {
		return nil, fmt.Errorf("conversation: load client: %w", err)
	}
	if client == nil {
		// Actual creation is deferred to booking confirmation.
		client = store.AnonymousClient(companyID, subjectAddress)
	}

	var upcoming []store.Appointment
	if !client.Anonymous {
		upcoming, err = a.appointments.ListUpcomingByClient(ctx, companyID, client.ID, a.now(), upcomingLimit)
		if err != nil {
			return nil, fmt.Errorf("conversation: load upcoming appointments: %w", err)
		}
	}

	pending, err := a.memory.Get(ctx, subjectAddress)
	if err != nil {
		return nil, fmt.Errorf("conversation: load extraction memory: %w", err)
	}

	extracted := ExtractFields(rawText, *company, a.now())

	return &Context{
		Company:          *company,
		Client:           client,
		SubjectAddress:   subjectAddress,
		ConversationType: ClassifyConversation(rawText, pending.Merge(extracted), len(upcoming) > 0),
		Upcoming:         upcoming,
		Pending:          pending,
	}, nil
}
