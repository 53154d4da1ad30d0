package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/Ananth-NQI/chatbook-backend/internal/models"
	"github.com/Ananth-NQI/chatbook-backend/internal/storage"
)

// Friday 16 October 2026; the first offered date is Saturday the 17th
var testNow = time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

const (
	testTenant = "salon-1"
	testPhone  = "+919876543210"
)

type flowFixture struct {
	t     *testing.T
	ctx   context.Context
	store *storage.MemoryStore
	flow  *BookingFlow
}

func seedTenant(t *testing.T, store *storage.MemoryStore, tenant *models.Tenant, withCatalog bool) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateTenant(ctx, tenant))
	if !withCatalog {
		return
	}
	for _, svc := range []models.Service{
		{Name: "Haircut", Price: 500},
		{Name: "Hair Color", Price: 2500},
		{Name: "Facial", Price: 1500, DurationMinutes: 50},
	} {
		svc.TenantID = tenant.ID
		svc.IsActive = true
		require.NoError(t, store.CreateService(ctx, &svc))
	}
	for _, st := range []models.StaffMember{
		{Name: "Priya", Specializations: "Haircut, Hair Color"},
		{Name: "Arjun", Specializations: "Facial"},
	} {
		st.TenantID = tenant.ID
		st.IsActive = true
		require.NoError(t, store.CreateStaff(ctx, &st))
	}
}

func newFlowFixture(t *testing.T) *flowFixture {
	store := storage.NewMemoryStore()
	seedTenant(t, store, &models.Tenant{ID: testTenant, Name: "Glow Salon", Timezone: "UTC", Currency: "INR"}, true)
	return &flowFixture{
		t:     t,
		ctx:   context.Background(),
		store: store,
		flow:  newTestFlow(store),
	}
}

func newTestFlow(catalog storage.CatalogStore) *BookingFlow {
	return newTestFlowAt(catalog, func() time.Time { return testNow })
}

func newTestFlowAt(catalog storage.CatalogStore, clock func() time.Time) *BookingFlow {
	var persister BookingPersister
	if bs, ok := catalog.(storage.BookingStore); ok {
		persister = NewPersister(bs, zerolog.Nop())
	}
	return NewBookingFlow(catalog, persister, zerolog.Nop(), FlowConfig{
		Location: time.UTC,
		Currency: "INR",
		Clock:    clock,
	})
}

func (f *flowFixture) newContext() *models.ConversationContext {
	return models.NewConversationContext(testTenant, testPhone, testNow)
}

func (f *flowFixture) send(c *models.ConversationContext, text string) models.BotReply {
	return f.flow.Handle(f.ctx, models.CustomerMessage{
		Text: models.MessageText{Body: text},
		From: c.CustomerPhone,
		Type: models.MessageTypeText,
	}, c.TenantID, c)
}

// advance sends each message and requires every one to succeed
func (f *flowFixture) advance(c *models.ConversationContext, texts ...string) {
	f.t.Helper()
	for _, text := range texts {
		reply := f.send(c, text)
		require.True(f.t, reply.Success, "%q at %s: %s", text, c.CurrentStep, reply.Message)
	}
}

func (f *flowFixture) book(date, clock string) {
	f.t.Helper()
	at, err := ScheduledAt(date, clock, time.UTC)
	require.NoError(f.t, err)
	_, err = f.store.CreateBookingWithConversation(f.ctx, &models.ConversationRecord{TenantID: testTenant}, &models.Booking{
		TenantID: testTenant, ScheduledAt: at, Status: models.BookingStatusConfirmed,
	})
	require.NoError(f.t, err)
}

func TestBookingFlowEndToEnd(t *testing.T) {
	f := newFlowFixture(t)
	c := f.newContext()

	reply := f.send(c, "hi")
	assert.True(t, reply.Success)
	assert.Equal(t, DefaultFlow().Greeting.Message, reply.Message)
	assert.Equal(t, models.StepWelcome, c.CurrentStep)

	reply = f.send(c, "I want to book")
	require.True(t, reply.Success)
	assert.Equal(t, models.StepServiceSelection, c.CurrentStep)
	assert.Contains(t, reply.Message, "1. *Facial*")
	assert.Contains(t, reply.Message, "3. *Haircut* - ₹500 (30 min)")

	reply = f.send(c, "3")
	require.True(t, reply.Success)
	assert.Equal(t, models.StepDateSelection, c.CurrentStep)
	require.NotNil(t, c.SelectedService)
	assert.Equal(t, "Haircut", c.SelectedService.Name)
	assert.Contains(t, reply.Message, "1. Saturday, October 17, 2026")

	reply = f.send(c, "1")
	require.True(t, reply.Success)
	assert.Equal(t, models.StepTimeSelection, c.CurrentStep)
	assert.Equal(t, "2026-10-17", c.SelectedDate)
	assert.Contains(t, reply.Message, "9:00 AM ✅ Available")

	reply = f.send(c, "2pm")
	require.True(t, reply.Success)
	assert.Equal(t, models.StepStaffSelection, c.CurrentStep)
	assert.Equal(t, "14:00", c.SelectedTime)
	assert.Contains(t, reply.Message, "1. *Arjun* (Facial)")

	reply = f.send(c, "priya")
	require.True(t, reply.Success)
	assert.Equal(t, models.StepConfirmation, c.CurrentStep)
	require.NotNil(t, c.AppointmentData)
	data := *c.AppointmentData
	assert.Equal(t, "Haircut", data.ServiceName)
	assert.Equal(t, 500, data.Price)
	assert.Equal(t, 30, data.DurationMinutes)
	assert.Equal(t, "Priya", data.StaffName)
	assert.Equal(t, "2026-10-17", data.Date)
	assert.Equal(t, "14:00", data.Time)
	assert.Equal(t, time.Date(2026, 10, 17, 14, 0, 0, 0, time.UTC), data.ScheduledAt)
	assert.Equal(t, "INR", data.Currency)
	assert.Equal(t, "Booked via WhatsApp", data.Notes)
	assert.Equal(t, models.PaymentStatusPending, data.PaymentStatus)
	assert.Equal(t, testPhone, data.CustomerPhone)
	assert.Contains(t, reply.Message, "Saturday, October 17, 2026")
	assert.Contains(t, reply.Message, "2:00 PM")

	reply = f.send(c, "yes")
	require.True(t, reply.Success)
	assert.Equal(t, models.StepCompleted, c.CurrentStep)
	require.NotEmpty(t, reply.AppointmentID)
	assert.Equal(t, reply.AppointmentID, c.LastAppointmentID)
	require.NotNil(t, c.CompletedAt)
	assert.Equal(t, data, *c.AppointmentData, "snapshot is not mutated by confirmation")

	booking, err := f.store.GetBooking(f.ctx, reply.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
	assert.Equal(t, 500, booking.Amount)
	assert.Equal(t, testPhone, booking.CustomerPhone)
	assert.Equal(t, "WhatsApp Customer", booking.CustomerName)
	assert.Equal(t, 1, f.store.ConversationCount())
}

func TestBookingFlowReplayedConfirmCreatesNoSecondBooking(t *testing.T) {
	f := newFlowFixture(t)
	c := f.newContext()
	f.advance(c, "book", "1", "1", "10am", "1")

	first := f.send(c, "yes")
	require.True(t, first.Success)
	require.Equal(t, 1, f.store.BookingCount())

	replay := f.send(c, "yes")
	assert.True(t, replay.Success)
	assert.Equal(t, models.StepCompleted, c.CurrentStep)
	assert.Equal(t, first.AppointmentID, replay.AppointmentID)
	assert.Equal(t, 1, f.store.BookingCount())

	// A stale copy of the confirmation context replayed against the store
	stale := f.newContext()
	f.advance(stale, "book", "1", "1", "11am", "1")
	staleCopy := stale.Clone()
	require.True(t, f.send(stale, "yes").Success)
	again := f.send(staleCopy, "yes")
	require.True(t, again.Success)
	assert.Equal(t, stale.LastAppointmentID, again.AppointmentID)
	assert.Equal(t, 2, f.store.BookingCount())
}

func TestBookingFlowCompletedRestartsOnBookingKeyword(t *testing.T) {
	f := newFlowFixture(t)
	c := f.newContext()
	f.advance(c, "book", "1", "1", "10am", "1", "yes")
	oldFlow := c.FlowID

	reply := f.send(c, "book again")
	require.True(t, reply.Success)
	assert.Equal(t, models.StepServiceSelection, c.CurrentStep)
	assert.NotEqual(t, oldFlow, c.FlowID)
	assert.Nil(t, c.SelectedService)
	assert.Nil(t, c.AppointmentData)
	assert.Equal(t, 1, f.store.BookingCount())
}

func TestBookingFlowNoMatchLeavesStateUnchanged(t *testing.T) {
	steps := map[models.Step][]string{
		models.StepWelcome:          nil,
		models.StepServiceSelection: {"book"},
		models.StepDateSelection:    {"book", "1"},
		models.StepTimeSelection:    {"book", "1", "1"},
		models.StepStaffSelection:   {"book", "1", "1", "10am"},
		models.StepConfirmation:     {"book", "1", "1", "10am", "1"},
		models.StepCompleted:        {"book", "1", "1", "10am", "1", "yes"},
	}
	for step, path := range steps {
		t.Run(string(step), func(t *testing.T) {
			f := newFlowFixture(t)
			c := f.newContext()
			f.advance(c, path...)
			require.Equal(t, step, c.CurrentStep)

			before := c.Clone()
			reply := f.send(c, "xyzzy")
			assert.Equal(t, before, c)
			assert.NotEmpty(t, reply.Message)
			require.NotNil(t, reply.NextStep)
			assert.Equal(t, step, *reply.NextStep)
		})
	}
}

func TestBookingFlowOrdinalOutOfRange(t *testing.T) {
	f := newFlowFixture(t)
	c := f.newContext()
	f.advance(c, "book")

	for _, input := range []string{"0", "-1", "4"} {
		before := c.Clone()
		reply := f.send(c, input)
		assert.False(t, reply.Success, input)
		assert.Equal(t, before, c, input)
		assert.Contains(t, reply.Message, "couldn't find that service")
	}
}

func TestBookingFlowEmptyCatalog(t *testing.T) {
	store := storage.NewMemoryStore()
	seedTenant(t, store, &models.Tenant{ID: "empty", Name: "New Shop"}, false)
	flow := newTestFlow(store)
	c := models.NewConversationContext("empty", testPhone, testNow)

	reply := flow.Handle(context.Background(), models.CustomerMessage{Text: models.MessageText{Body: "book"}}, "empty", c)

	assert.False(t, reply.Success)
	assert.Equal(t, "no services available", reply.Error)
	assert.Contains(t, reply.Message, "no services available")
	assert.NotEqual(t, apologyMessage, reply.Message)
	assert.Equal(t, models.StepWelcome, c.CurrentStep)
}

func TestBookingFlowPersistenceFailureStaysAtConfirmation(t *testing.T) {
	f := newFlowFixture(t)
	c := f.newContext()
	f.advance(c, "book", "1", "1", "10am", "1")
	snapshot := *c.AppointmentData

	f.store.FailBookings = errors.New("db down")
	reply := f.send(c, "yes")
	assert.False(t, reply.Success)
	assert.Equal(t, models.StepConfirmation, c.CurrentStep)
	assert.Equal(t, snapshot, *c.AppointmentData)
	assert.Empty(t, c.LastAppointmentID)
	assert.Equal(t, 0, f.store.BookingCount())

	f.store.FailBookings = nil
	reply = f.send(c, "confirm")
	assert.True(t, reply.Success)
	assert.Equal(t, models.StepCompleted, c.CurrentStep)
	assert.Equal(t, 1, f.store.BookingCount())
}

func TestBookingFlowCancelAtConfirmation(t *testing.T) {
	f := newFlowFixture(t)
	c := f.newContext()
	f.advance(c, "book", "1", "1", "10am", "1")
	oldFlow := c.FlowID

	reply := f.send(c, "cancel")
	assert.True(t, reply.Success)
	assert.Equal(t, models.StepWelcome, c.CurrentStep)
	assert.Nil(t, c.SelectedService)
	assert.Nil(t, c.SelectedStaff)
	assert.Nil(t, c.AppointmentData)
	assert.NotEqual(t, oldFlow, c.FlowID)
	assert.Equal(t, 0, f.store.BookingCount())
}

func TestBookingFlowDisplayIndexAsymmetry(t *testing.T) {
	f := newFlowFixture(t)
	f.book("2026-10-17", "09:00")
	c := f.newContext()
	f.advance(c, "book", "1")

	reply := f.send(c, "1")
	require.True(t, reply.Success)
	assert.Contains(t, reply.Message, "9:00 AM ❌ Booked")
	assert.Contains(t, reply.Message, "1. 10:00 AM ✅ Available")
	assert.False(t, c.AvailableSlots[0].Available)

	reply = f.send(c, "1")
	require.True(t, reply.Success)
	assert.Equal(t, "10:00", c.SelectedTime)
}

func TestBookingFlowBookedSlotCannotBeChosenByTime(t *testing.T) {
	f := newFlowFixture(t)
	f.book("2026-10-17", "09:00")
	c := f.newContext()
	f.advance(c, "book", "1", "1")

	reply := f.send(c, "9am")
	assert.False(t, reply.Success)
	assert.Equal(t, models.StepTimeSelection, c.CurrentStep)
	assert.Empty(t, c.SelectedTime)
}

func TestBookingFlowSlotTakenWhileChoosing(t *testing.T) {
	f := newFlowFixture(t)
	c := f.newContext()
	f.advance(c, "book", "1", "1")

	f.book("2026-10-17", "14:00")
	reply := f.send(c, "2pm")
	assert.False(t, reply.Success)
	assert.Equal(t, models.StepTimeSelection, c.CurrentStep)
	assert.Contains(t, reply.Message, "just booked")
	assert.False(t, c.AvailableSlots[5].Available, "the shown list is refreshed")
}

func TestBookingFlowFullyBookedDate(t *testing.T) {
	f := newFlowFixture(t)
	for _, slot := range SlotCatalog {
		f.book("2026-10-17", slot)
	}
	c := f.newContext()
	f.advance(c, "book", "1")

	reply := f.send(c, "tomorrow")
	assert.False(t, reply.Success)
	assert.Contains(t, reply.Message, "fully booked")
	assert.Equal(t, models.StepDateSelection, c.CurrentStep)
	assert.Empty(t, c.SelectedDate)

	reply = f.send(c, "2")
	assert.True(t, reply.Success)
	assert.Equal(t, "2026-10-18", c.SelectedDate)
}

func TestBookingFlowWithoutStaffNode(t *testing.T) {
	store := storage.NewMemoryStore()
	flowJSON := datatypes.JSON(`{"nodes":[
		{"type":"greeting","message":"Hello from Quick Cuts","keywords":["book"]},
		{"type":"service"},
		{"type":"date","days":3},
		{"type":"time"},
		{"type":"confirm","keywords":["yes"]}
	]}`)
	seedTenant(t, store, &models.Tenant{ID: "quick", Name: "Quick Cuts", Currency: "USD", Flow: flowJSON}, true)
	flow := newTestFlow(store)
	c := models.NewConversationContext("quick", testPhone, testNow)
	send := func(text string) models.BotReply {
		return flow.Handle(context.Background(), models.CustomerMessage{Text: models.MessageText{Body: text}}, "quick", c)
	}

	assert.Equal(t, "Hello from Quick Cuts", send("hello").Message)
	require.True(t, send("book").Success)
	reply := send("facial")
	require.True(t, reply.Success)
	assert.NotContains(t, reply.Message, "4.", "only three dates are offered")
	require.True(t, send("1").Success)

	reply = send("10am")
	require.True(t, reply.Success)
	assert.Equal(t, models.StepConfirmation, c.CurrentStep)
	require.NotNil(t, c.AppointmentData)
	assert.Equal(t, "Arjun", c.AppointmentData.StaffName, "first staff member is auto-assigned")
	assert.Equal(t, "USD", c.AppointmentData.Currency)
	assert.Equal(t, 50, c.AppointmentData.DurationMinutes)

	reply = send("yes")
	assert.True(t, reply.Success)
	assert.NotEmpty(t, reply.AppointmentID)
}

func TestBookingFlowTenantWithoutStaff(t *testing.T) {
	quickFlow := datatypes.JSON(`{"nodes":[
		{"type":"greeting","message":"Hi","keywords":["book"]},
		{"type":"service"},
		{"type":"date"},
		{"type":"time"},
		{"type":"confirm","keywords":["yes"]}
	]}`)
	for name, flowJSON := range map[string]datatypes.JSON{"default flow": nil, "no staff node": quickFlow} {
		t.Run(name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			seedTenant(t, store, &models.Tenant{ID: "solo", Name: "Solo Studio", Flow: flowJSON}, false)
			require.NoError(t, store.CreateService(context.Background(), &models.Service{TenantID: "solo", Name: "Haircut", Price: 500, IsActive: true}))
			flow := newTestFlow(store)
			c := models.NewConversationContext("solo", testPhone, testNow)
			send := func(text string) models.BotReply {
				return flow.Handle(context.Background(), models.CustomerMessage{Text: models.MessageText{Body: text}}, "solo", c)
			}

			require.True(t, send("book").Success)
			require.True(t, send("1").Success)
			require.True(t, send("1").Success)

			before := c.Clone()
			reply := send("10am")
			assert.False(t, reply.Success)
			assert.Equal(t, "no staff available", reply.Error)
			assert.Contains(t, reply.Message, "nobody is available")
			assert.Equal(t, models.StepTimeSelection, c.CurrentStep)
			assert.Empty(t, c.SelectedTime)
			assert.Nil(t, c.AppointmentData)
			assert.Equal(t, before.SelectedDate, c.SelectedDate)
			assert.Equal(t, 0, store.BookingCount())
		})
	}
}

func TestBookingFlowStaleDateListIsRefreshed(t *testing.T) {
	store := storage.NewMemoryStore()
	seedTenant(t, store, &models.Tenant{ID: testTenant, Name: "Glow Salon", Timezone: "UTC"}, true)
	now := testNow
	flow := newTestFlowAt(store, func() time.Time { return now })
	c := models.NewConversationContext(testTenant, testPhone, testNow)
	send := func(text string) models.BotReply {
		return flow.Handle(context.Background(), models.CustomerMessage{Text: models.MessageText{Body: text}}, testTenant, c)
	}

	require.True(t, send("book").Success)
	require.True(t, send("1").Success)
	require.Equal(t, "2026-10-17", c.OfferedDates[0].Date)

	// The customer answers the next morning, when the 17th is already today
	now = testNow.Add(20 * time.Hour)
	reply := send("1")
	assert.False(t, reply.Success)
	assert.Contains(t, reply.Message, "moved on")
	assert.Equal(t, models.StepDateSelection, c.CurrentStep)
	assert.Empty(t, c.SelectedDate)
	require.NotEmpty(t, c.OfferedDates)
	assert.Equal(t, "2026-10-18", c.OfferedDates[0].Date)

	reply = send("1")
	require.True(t, reply.Success, reply.Message)
	assert.Equal(t, "2026-10-18", c.SelectedDate)
}

func TestBookingFlowMixedAnswerAtConfirmation(t *testing.T) {
	f := newFlowFixture(t)
	c := f.newContext()
	f.advance(c, "book", "1", "1", "10am", "1")

	for _, text := range []string{"no, don't book", "yes... actually cancel"} {
		before := c.Clone()
		reply := f.send(c, text)
		assert.False(t, reply.Success, text)
		assert.Contains(t, reply.Message, "yes or a no", text)
		assert.Equal(t, before, c, text)
	}
	assert.Equal(t, 0, f.store.BookingCount())

	require.True(t, f.send(c, "yes").Success)
	assert.Equal(t, 1, f.store.BookingCount())
}

func TestBookingFlowSlotTakenBeforeConfirmation(t *testing.T) {
	f := newFlowFixture(t)
	first := f.newContext()
	second := models.NewConversationContext(testTenant, "+919800000002", testNow)
	f.advance(first, "book", "1", "1", "10am", "1")
	f.advance(second, "book", "1", "1", "10am", "2")

	require.True(t, f.send(first, "yes").Success)

	reply := f.send(second, "yes")
	assert.False(t, reply.Success)
	assert.Contains(t, reply.Message, "booked by someone else")
	assert.Empty(t, reply.AppointmentID)
	assert.Equal(t, models.StepTimeSelection, second.CurrentStep)
	assert.Empty(t, second.SelectedTime)
	assert.Nil(t, second.SelectedStaff)
	assert.Nil(t, second.AppointmentData)
	assert.Equal(t, "2026-10-17", second.SelectedDate)
	assert.False(t, second.AvailableSlots[1].Available, "the refreshed list shows 10:00 as booked")
	assert.Equal(t, 1, f.store.BookingCount())

	f.advance(second, "11am", "2", "yes")
	assert.Equal(t, models.StepCompleted, second.CurrentStep)
	assert.Equal(t, 2, f.store.BookingCount())
}

func TestBookingFlowSlotTakenOnAFullDay(t *testing.T) {
	f := newFlowFixture(t)
	first := f.newContext()
	second := models.NewConversationContext(testTenant, "+919800000002", testNow)
	f.advance(first, "book", "1", "1", "10am", "1")
	f.advance(second, "book", "1", "1", "10am", "1")
	for _, slot := range SlotCatalog {
		if slot != "10:00" {
			f.book("2026-10-17", slot)
		}
	}
	require.True(t, f.send(first, "yes").Success)

	reply := f.send(second, "yes")
	assert.False(t, reply.Success)
	assert.Contains(t, reply.Message, "that day is now full")
	assert.Equal(t, models.StepDateSelection, second.CurrentStep)
	assert.Empty(t, second.SelectedDate)
	assert.Nil(t, second.AppointmentData)

	require.True(t, f.send(second, "2").Success)
	assert.Equal(t, "2026-10-18", second.SelectedDate)
}

func TestBookingFlowInvalidTenantFlow(t *testing.T) {
	store := storage.NewMemoryStore()
	seedTenant(t, store, &models.Tenant{ID: "broken", Flow: datatypes.JSON(`{"nodes":[{"type":"service"}]}`)}, true)
	flow := newTestFlow(store)
	c := models.NewConversationContext("broken", testPhone, testNow)

	reply := flow.Handle(context.Background(), models.CustomerMessage{Text: models.MessageText{Body: "book"}}, "broken", c)
	assert.False(t, reply.Success)
	assert.Equal(t, apologyMessage, reply.Message)
	assert.Equal(t, models.StepWelcome, c.CurrentStep)
}

func TestBookingFlowUnknownTenantUsesDefaults(t *testing.T) {
	store := storage.NewMemoryStore()
	flow := newTestFlow(store)
	c := models.NewConversationContext("ghost", testPhone, testNow)

	reply := flow.Handle(context.Background(), models.CustomerMessage{Text: models.MessageText{Body: "hi"}}, "ghost", c)
	assert.True(t, reply.Success)
	assert.Equal(t, DefaultFlow().Greeting.Message, reply.Message)
}

func TestBookingFlowUnknownStep(t *testing.T) {
	f := newFlowFixture(t)
	c := f.newContext()
	c.CurrentStep = models.Step("payment")

	reply := f.send(c, "hello")
	assert.False(t, reply.Success)
	assert.Equal(t, restartMessage, reply.Message)
	assert.Equal(t, models.StepWelcome, c.CurrentStep)
}

func TestBookingFlowInconsistentContextRestarts(t *testing.T) {
	f := newFlowFixture(t)
	c := f.newContext()
	c.CurrentStep = models.StepTimeSelection

	reply := f.send(c, "10am")
	assert.False(t, reply.Success)
	assert.Equal(t, models.StepWelcome, c.CurrentStep)
}

type failingCatalog struct {
	*storage.MemoryStore
	err   error
	panic bool
}

func (c failingCatalog) GetActiveServices(ctx context.Context, tenantID string) ([]models.Service, error) {
	if c.panic {
		panic("catalog exploded")
	}
	return nil, c.err
}

func TestBookingFlowHandlerErrorsDoNotAdvance(t *testing.T) {
	base := storage.NewMemoryStore()
	seedTenant(t, base, &models.Tenant{ID: testTenant}, true)

	for name, catalog := range map[string]failingCatalog{
		"error": {MemoryStore: base, err: errors.New("connection reset")},
		"panic": {MemoryStore: base, panic: true},
	} {
		t.Run(name, func(t *testing.T) {
			flow := newTestFlow(catalog)
			c := models.NewConversationContext(testTenant, testPhone, testNow)
			before := c.Clone()

			reply := flow.Handle(context.Background(), models.CustomerMessage{Text: models.MessageText{Body: "book"}}, testTenant, c)

			assert.False(t, reply.Success)
			assert.Equal(t, apologyMessage, reply.Message)
			assert.NotEmpty(t, reply.Error)
			require.NotNil(t, reply.NextStep)
			assert.Equal(t, models.StepWelcome, *reply.NextStep)
			assert.Equal(t, before, c)
		})
	}
}
