package followup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendia-app/agendia-platform/internal/store"
	"github.com/agendia-app/agendia-platform/pkg/logging"
)

type fakeCompanySource struct {
	companies []store.Company
}

func (f *fakeCompanySource) ListActive(ctx context.Context) ([]store.Company, error) {
	return f.companies, nil
}

type fakeClientSource struct {
	clients map[uuid.UUID][]store.Client
}

func (f *fakeClientSource) ListActive(ctx context.Context, companyID uuid.UUID) ([]store.Client, error) {
	return f.clients[companyID], nil
}

type fakeAppointmentSource struct {
	day      []store.Appointment
	finished map[uuid.UUID]*store.Appointment
	warned   map[uuid.UUID]bool
}

func (f *fakeAppointmentSource) ListDayScheduled(ctx context.Context, companyID uuid.UUID, dayStart, dayEnd time.Time) ([]store.Appointment, error) {
	var out []store.Appointment
	for _, a := range f.day {
		if f.warned[a.ID] {
			a.Warned = true
		}
		if !a.StartsAt.Before(dayStart) && a.StartsAt.Before(dayEnd) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAppointmentSource) LatestFinished(ctx context.Context, companyID, clientID uuid.UUID) (*store.Appointment, error) {
	return f.finished[clientID], nil
}

func (f *fakeAppointmentSource) MarkWarned(ctx context.Context, id uuid.UUID) (bool, error) {
	if f.warned == nil {
		f.warned = make(map[uuid.UUID]bool)
	}
	already := f.warned[id]
	f.warned[id] = true
	return !already, nil
}

type fakeModeSource struct {
	modes []Mode
}

func (f *fakeModeSource) ListActive(ctx context.Context, companyID uuid.UUID) ([]Mode, error) {
	out := []Mode{DefaultMode(companyID)}
	return append(out, f.modes...), nil
}

// memoryDedupe mimics the partial-unique-index semantics of the persistent
// log: only "sent" rows block a retry.
type memoryDedupe struct {
	mu      sync.Mutex
	records map[string]string
}

func newMemoryDedupe() *memoryDedupe {
	return &memoryDedupe{records: make(map[string]string)}
}

func (d *memoryDedupe) AlreadySent(ctx context.Context, appointmentID uuid.UUID, dedupeKey string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.records[appointmentID.String()+"|"+dedupeKey] == NotificationSent, nil
}

func (d *memoryDedupe) Record(ctx context.Context, appointmentID uuid.UUID, dedupeKey, status string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := appointmentID.String() + "|" + dedupeKey
	if d.records[key] == NotificationSent {
		return nil
	}
	d.records[key] = status
	return nil
}

type sentMessage struct {
	address string
	text    string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	fail int
}

func (f *fakeSender) SendText(ctx context.Context, companyID uuid.UUID, address, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return "", errors.New("gateway unavailable")
	}
	f.sent = append(f.sent, sentMessage{address: address, text: text})
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

type engineFixture struct {
	engine       *Engine
	company      store.Company
	client       store.Client
	appointments *fakeAppointmentSource
	modes        *fakeModeSource
	dedupe       *memoryDedupe
	sender       *fakeSender
	now          time.Time
	loc          *time.Location
}

func newEngineFixture(t *testing.T, now time.Time) *engineFixture {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	company := store.Company{
		ID:               uuid.New(),
		Name:             "Studio Bela",
		Timezone:         "America/Sao_Paulo",
		FollowUpsEnabled: true,
	}
	client := store.Client{
		ID:        uuid.New(),
		CompanyID: company.ID,
		Name:      "Maria",
		Address:   "+5511999990000",
		Active:    true,
	}

	appointments := &fakeAppointmentSource{
		finished: make(map[uuid.UUID]*store.Appointment),
		warned:   make(map[uuid.UUID]bool),
	}
	modes := &fakeModeSource{}
	dedupe := newMemoryDedupe()
	sender := &fakeSender{}

	f := &engineFixture{
		company:      company,
		client:       client,
		appointments: appointments,
		modes:        modes,
		dedupe:       dedupe,
		sender:       sender,
		now:          now,
		loc:          loc,
	}
	f.engine = NewEngine(
		&fakeCompanySource{companies: []store.Company{company}},
		&fakeClientSource{clients: map[uuid.UUID][]store.Client{company.ID: {client}}},
		appointments,
		modes,
		dedupe,
		sender,
		logging.New("error"),
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

func (f *engineFixture) appointmentAt(start time.Time) store.Appointment {
	return store.Appointment{
		ID:           uuid.New(),
		CompanyID:    f.company.ID,
		ClientID:     f.client.ID,
		Professional: "Ana",
		Service:      "corte",
		StartsAt:     start,
		DurationMin:  60,
		Status:       store.StatusScheduled,
	}
}

func TestTimeFixedWarningSentOnceAndMarksWarned(t *testing.T) {
	loc, _ := time.LoadLocation("America/Sao_Paulo")
	now := time.Date(2025, 6, 2, 9, 30, 0, 0, loc) // past the 09:00 default
	f := newEngineFixture(t, now)

	appt := f.appointmentAt(time.Date(2025, 6, 2, 14, 0, 0, 0, loc))
	f.appointments.day = []store.Appointment{appt}

	require.NoError(t, f.engine.ProcessAllCompanies(context.Background()))
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, f.client.Address, f.sender.sent[0].address)
	assert.Contains(t, f.sender.sent[0].text, "Maria")
	assert.Contains(t, f.sender.sent[0].text, "corte")
	assert.Contains(t, f.sender.sent[0].text, "14:00")
	assert.True(t, f.appointments.warned[appt.ID])

	// Repeat sweeps never re-send.
	require.NoError(t, f.engine.ProcessAllCompanies(context.Background()))
	require.NoError(t, f.engine.ProcessAllCompanies(context.Background()))
	assert.Len(t, f.sender.sent, 1)
}

func TestTimeFixedWaitsForWallClock(t *testing.T) {
	loc, _ := time.LoadLocation("America/Sao_Paulo")
	now := time.Date(2025, 6, 2, 8, 59, 0, 0, loc)
	f := newEngineFixture(t, now)

	f.appointments.day = []store.Appointment{f.appointmentAt(time.Date(2025, 6, 2, 14, 0, 0, 0, loc))}

	require.NoError(t, f.engine.ProcessAllCompanies(context.Background()))
	assert.Empty(t, f.sender.sent)

	// Crossing the threshold on a later sweep fires.
	f.now = time.Date(2025, 6, 2, 9, 0, 0, 0, loc)
	require.NoError(t, f.engine.ProcessAllCompanies(context.Background()))
	assert.Len(t, f.sender.sent, 1)
}

func TestAntecedenciaWindowBoundaries(t *testing.T) {
	loc, _ := time.LoadLocation("America/Sao_Paulo")
	start := time.Date(2025, 6, 2, 15, 0, 0, 0, loc)

	cases := []struct {
		name       string
		minutesOut int
		want       bool
	}{
		{"outside window", 65, false},
		{"exactly at window edge", 60, true},
		{"inside window", 55, true},
		{"at start instant", 0, false},
		{"already started", -10, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newEngineFixture(t, start.Add(-time.Duration(tc.minutesOut)*time.Minute))
			mode := Mode{
				ID:               uuid.New(),
				CompanyID:        f.company.ID,
				Name:             "lembrete",
				Active:           true,
				Trigger:          TriggerAntecedencia,
				ReminderMinutes:  60,
				TemplateReminder: "{cliente_nome}, seu horário é em {minutos} minutos.",
			}
			f.modes.modes = []Mode{mode}
			f.client.FollowUpModeIDs = []uuid.UUID{mode.ID}
			f.engine.clients = &fakeClientSource{clients: map[uuid.UUID][]store.Client{f.company.ID: {f.client}}}

			f.appointments.day = []store.Appointment{f.appointmentAt(start)}

			require.NoError(t, f.engine.ProcessAllCompanies(context.Background()))
			if tc.want {
				require.Len(t, f.sender.sent, 1)
				assert.Contains(t, f.sender.sent[0].text, fmt.Sprintf("%d minutos", tc.minutesOut))
			} else {
				assert.Empty(t, f.sender.sent)
			}
		})
	}
}

func TestCalendarDaysAcrossDSTTransitions(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// The 2025-03-09 spring-forward sits inside the span, so the 30 calendar
	// days cover only 719 wall-clock hours.
	from := time.Date(2025, 2, 20, 10, 0, 0, 0, ny)
	to := time.Date(2025, 3, 22, 9, 0, 0, 0, ny)
	assert.Equal(t, 30, calendarDaysBetween(from, to, ny))

	// The 2025-11-02 fall-back stretches the same gap to 721 hours.
	from = time.Date(2025, 10, 20, 10, 0, 0, 0, ny)
	to = time.Date(2025, 11, 19, 9, 0, 0, 0, ny)
	assert.Equal(t, 30, calendarDaysBetween(from, to, ny))
}

func TestDiasAposFiresAtThresholdAcrossSpringForward(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2025, 3, 22, 10, 0, 0, 0, ny)

	f := newEngineFixture(t, now)
	f.company.Timezone = "America/New_York"
	f.engine.companies = &fakeCompanySource{companies: []store.Company{f.company}}

	mode := Mode{
		ID:               uuid.New(),
		CompanyID:        f.company.ID,
		Name:             "retorno",
		Active:           true,
		Trigger:          TriggerDiasApos,
		TriggerDays:      30,
		TemplateReminder: "Sentimos sua falta, {cliente_nome}!",
	}
	f.modes.modes = []Mode{mode}
	f.client.FollowUpModeIDs = []uuid.UUID{mode.ID}
	f.engine.clients = &fakeClientSource{clients: map[uuid.UUID][]store.Client{f.company.ID: {f.client}}}

	last := f.appointmentAt(time.Date(2025, 2, 20, 15, 0, 0, 0, ny))
	last.Status = store.StatusFinished
	f.appointments.finished[f.client.ID] = &last

	require.NoError(t, f.engine.ProcessAllCompanies(context.Background()))
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "Sentimos sua falta, Maria!", f.sender.sent[0].text)
}

func TestDiasAposThreshold(t *testing.T) {
	loc, _ := time.LoadLocation("America/Sao_Paulo")
	now := time.Date(2025, 6, 20, 10, 0, 0, 0, loc)

	cases := []struct {
		name        string
		daysElapsed int
		triggerDays int
		want        bool
	}{
		{"below threshold", 29, 30, false},
		{"exactly at threshold", 30, 30, true},
		{"past threshold", 45, 30, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newEngineFixture(t, now)
			mode := Mode{
				ID:               uuid.New(),
				CompanyID:        f.company.ID,
				Name:             "retorno",
				Active:           true,
				Trigger:          TriggerDiasApos,
				TriggerDays:      tc.triggerDays,
				TemplateReminder: "Sentimos sua falta, {cliente_nome}!",
			}
			f.modes.modes = []Mode{mode}
			f.client.FollowUpModeIDs = []uuid.UUID{mode.ID}
			f.engine.clients = &fakeClientSource{clients: map[uuid.UUID][]store.Client{f.company.ID: {f.client}}}

			last := f.appointmentAt(now.AddDate(0, 0, -tc.daysElapsed))
			last.Status = store.StatusFinished
			f.appointments.finished[f.client.ID] = &last

			require.NoError(t, f.engine.ProcessAllCompanies(context.Background()))
			if tc.want {
				require.Len(t, f.sender.sent, 1)
				assert.Equal(t, "Sentimos sua falta, Maria!", f.sender.sent[0].text)
			} else {
				assert.Empty(t, f.sender.sent)
			}
		})
	}
}

func TestDiasAposSentOnceAcrossSweeps(t *testing.T) {
	loc, _ := time.LoadLocation("America/Sao_Paulo")
	now := time.Date(2025, 6, 20, 10, 0, 0, 0, loc)
	f := newEngineFixture(t, now)

	mode := Mode{
		ID:               uuid.New(),
		CompanyID:        f.company.ID,
		Name:             "retorno",
		Active:           true,
		Trigger:          TriggerDiasApos,
		TriggerDays:      30,
		TemplateReminder: "Volte sempre, {cliente_nome}!",
	}
	f.modes.modes = []Mode{mode}
	f.client.FollowUpModeIDs = []uuid.UUID{mode.ID}
	f.engine.clients = &fakeClientSource{clients: map[uuid.UUID][]store.Client{f.company.ID: {f.client}}}

	last := f.appointmentAt(now.AddDate(0, 0, -40))
	last.Status = store.StatusFinished
	f.appointments.finished[f.client.ID] = &last

	for i := 0; i < 3; i++ {
		require.NoError(t, f.engine.ProcessAllCompanies(context.Background()))
		f.now = f.now.AddDate(0, 0, 1)
	}
	assert.Len(t, f.sender.sent, 1)
}

func TestFailedSendRetriedOnNextSweep(t *testing.T) {
	loc, _ := time.LoadLocation("America/Sao_Paulo")
	now := time.Date(2025, 6, 2, 9, 30, 0, 0, loc)
	f := newEngineFixture(t, now)
	f.sender.fail = 1

	appt := f.appointmentAt(time.Date(2025, 6, 2, 14, 0, 0, 0, loc))
	f.appointments.day = []store.Appointment{appt}

	require.NoError(t, f.engine.ProcessAllCompanies(context.Background()))
	assert.Empty(t, f.sender.sent)
	assert.False(t, f.appointments.warned[appt.ID])

	require.NoError(t, f.engine.ProcessAllCompanies(context.Background()))
	require.Len(t, f.sender.sent, 1)
	assert.True(t, f.appointments.warned[appt.ID])
}

func TestClientWithoutSubscriptionsGetsDefaultOnly(t *testing.T) {
	loc, _ := time.LoadLocation("America/Sao_Paulo")
	start := time.Date(2025, 6, 2, 15, 0, 0, 0, loc)
	f := newEngineFixture(t, start.Add(-30*time.Minute))

	// An antecedencia mode exists but the client never opted in.
	f.modes.modes = []Mode{{
		ID:               uuid.New(),
		CompanyID:        f.company.ID,
		Name:             "lembrete",
		Active:           true,
		Trigger:          TriggerAntecedencia,
		ReminderMinutes:  60,
		TemplateReminder: "em {minutos} minutos",
	}}
	f.appointments.day = []store.Appointment{f.appointmentAt(start)}

	require.NoError(t, f.engine.ProcessAllCompanies(context.Background()))
	// Only the default time_fixed warning goes out.
	require.Len(t, f.sender.sent, 1)
	assert.NotContains(t, f.sender.sent[0].text, "minutos")
}

func TestDisabledCompanySkipped(t *testing.T) {
	loc, _ := time.LoadLocation("America/Sao_Paulo")
	now := time.Date(2025, 6, 2, 9, 30, 0, 0, loc)
	f := newEngineFixture(t, now)
	f.company.FollowUpsEnabled = false
	f.engine.companies = &fakeCompanySource{companies: []store.Company{f.company}}

	f.appointments.day = []store.Appointment{f.appointmentAt(time.Date(2025, 6, 2, 14, 0, 0, 0, loc))}

	require.NoError(t, f.engine.ProcessAllCompanies(context.Background()))
	assert.Empty(t, f.sender.sent)
}

func TestUnknownTriggerRejected(t *testing.T) {
	mode := Mode{ID: uuid.New(), Trigger: TriggerType("mensal")}
	_, err := mode.DedupeKey()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown trigger type")
}

func TestDedupeKeyEmbedsDiasAposThreshold(t *testing.T) {
	mode := Mode{ID: uuid.New(), Trigger: TriggerDiasApos, TriggerDays: 30}
	key, err := mode.DedupeKey()
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("mode:%s:dias_apos:30", mode.ID), key)

	mode.TriggerDays = 45
	changed, err := mode.DedupeKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, changed)
}
