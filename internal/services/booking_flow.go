package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/chatbook-backend/internal/models"
	"github.com/Ananth-NQI/chatbook-backend/internal/storage"
)

const (
	defaultCustomerName = "WhatsApp Customer"
	defaultNotes        = "Booked via WhatsApp"

	apologyMessage = "😔 Sorry, something went wrong on our side. Please send your last message again."
	restartMessage = "🤔 I lost track of where we were. Please type *book* to start again."
)

// BookingPersister is what the flow needs from the persister
type BookingPersister interface {
	Create(ctx context.Context, tenantID, flowID string, data *models.AppointmentData) (string, error)
}

// FlowConfig holds tenant-independent defaults
type FlowConfig struct {
	Location *time.Location
	Currency string
	Clock    func() time.Time
}

// BookingFlow is the conversation state machine
type BookingFlow struct {
	catalog      storage.CatalogStore
	availability *AvailabilityResolver
	persister    BookingPersister
	logger       zerolog.Logger

	location *time.Location
	currency string
	now      func() time.Time
}

// NewBookingFlow wires the state machine to its collaborators
func NewBookingFlow(catalog storage.CatalogStore, persister BookingPersister, logger zerolog.Logger, cfg FlowConfig) *BookingFlow {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &BookingFlow{
		catalog:      catalog,
		availability: NewAvailabilityResolver(catalog),
		persister:    persister,
		logger:       logger.With().Str("component", "booking_flow").Logger(),
		location:     cfg.Location,
		currency:     cfg.Currency,
		now:          cfg.Clock,
	}
}

// turn carries everything one handler invocation needs
type turn struct {
	tenantID string
	text     string
	msg      models.CustomerMessage
	conv     *models.ConversationContext
	def      *FlowDefinition
	loc      *time.Location
	currency string
}

type stepHandler func(ctx context.Context, t *turn) (models.BotReply, error)

// Handle advances c by one customer message. c is only updated when the handler
// succeeds; on any error the step and selections stay as they were.
func (f *BookingFlow) Handle(ctx context.Context, msg models.CustomerMessage, tenantID string, c *models.ConversationContext) (reply models.BotReply) {
	log := f.logger.With().
		Str("tenant_id", tenantID).
		Str("phone", c.CustomerPhone).
		Str("step", string(c.CurrentStep)).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("booking flow handler panicked")
			reply = failure(c.CurrentStep, fmt.Errorf("panic: %v", r))
		}
	}()

	t, err := f.newTurn(ctx, tenantID, msg, c)
	if err != nil {
		log.Error().Err(err).Msg("failed to prepare turn")
		return failure(c.CurrentStep, err)
	}

	handler := f.handlerFor(t.conv.CurrentStep)
	reply, err = handler(ctx, t)
	if err != nil {
		log.Error().Err(err).Msg("booking flow handler failed")
		return failure(c.CurrentStep, err)
	}

	t.conv.UpdatedAt = f.now()
	*c = *t.conv
	if reply.NextStep == nil {
		reply.NextStep = models.StepPtr(c.CurrentStep)
	}
	log.Debug().Str("next_step", string(c.CurrentStep)).Bool("success", reply.Success).Msg("message handled")
	return reply
}

func (f *BookingFlow) newTurn(ctx context.Context, tenantID string, msg models.CustomerMessage, c *models.ConversationContext) (*turn, error) {
	t := &turn{
		tenantID: tenantID,
		text:     strings.TrimSpace(msg.Text.Body),
		msg:      msg,
		conv:     c.Clone(),
		def:      DefaultFlow(),
		loc:      f.location,
		currency: f.currency,
	}

	tenant, err := f.catalog.GetTenant(ctx, tenantID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		f.logger.Warn().Str("tenant_id", tenantID).Msg("tenant not registered, using defaults")
	case err != nil:
		return nil, fmt.Errorf("load tenant: %w", err)
	default:
		t.loc = tenant.Location(f.location)
		if tenant.Currency != "" {
			t.currency = tenant.Currency
		}
		if len(tenant.Flow) > 0 && string(tenant.Flow) != "null" {
			def, err := DecodeFlowDefinition(tenant.Flow)
			if err != nil {
				return nil, fmt.Errorf("tenant %s flow: %w", tenantID, err)
			}
			t.def = def
		}
	}
	return t, nil
}

func (f *BookingFlow) handlerFor(step models.Step) stepHandler {
	switch step {
	case models.StepWelcome:
		return f.handleWelcome
	case models.StepServiceSelection:
		return f.handleServiceSelection
	case models.StepDateSelection:
		return f.handleDateSelection
	case models.StepTimeSelection:
		return f.handleTimeSelection
	case models.StepStaffSelection:
		return f.handleStaffSelection
	case models.StepConfirmation:
		return f.handleConfirmation
	case models.StepCompleted:
		return f.handleCompleted
	default:
		return f.handleUnknown
	}
}

func (f *BookingFlow) handleWelcome(ctx context.Context, t *turn) (models.BotReply, error) {
	if !HasKeyword(t.text, t.def.Greeting.Keywords) {
		return models.BotReply{
			Success:  true,
			Message:  t.def.Greeting.Message,
			NextStep: models.StepPtr(models.StepWelcome),
		}, nil
	}

	services, err := f.catalog.GetActiveServices(ctx, t.tenantID)
	if err != nil {
		return models.BotReply{}, fmt.Errorf("load services: %w", err)
	}
	if len(services) == 0 {
		return noServicesReply(t.conv.CurrentStep), nil
	}

	t.conv.CurrentStep = models.StepServiceSelection
	return models.BotReply{
		Success:  true,
		Message:  "Great! Let's get you booked. ✨\n\n" + serviceList(services, t.currency) + "\n" + prompt(t.def.Service.Prompt, "Reply with the number or the name of the service."),
		NextStep: models.StepPtr(models.StepServiceSelection),
	}, nil
}

func (f *BookingFlow) handleServiceSelection(ctx context.Context, t *turn) (models.BotReply, error) {
	services, err := f.catalog.GetActiveServices(ctx, t.tenantID)
	if err != nil {
		return models.BotReply{}, fmt.Errorf("load services: %w", err)
	}
	if len(services) == 0 {
		return noServicesReply(t.conv.CurrentStep), nil
	}

	idx, ok := ResolveOrdinal(t.text, len(services))
	if !ok {
		names := make([]string, len(services))
		for i, s := range services {
			names[i] = s.Name
		}
		idx, ok = MatchByName(t.text, names)
	}
	if !ok {
		return rePrompt(models.StepServiceSelection,
			"❌ Sorry, I couldn't find that service.\n\n"+serviceList(services, t.currency)+"\n"+prompt(t.def.Service.Prompt, "Reply with the number or the name of the service.")), nil
	}

	selected := services[idx]
	dates := GenerateDates(f.now(), t.loc, t.def.Date.Days)
	t.conv.SelectedService = &selected
	t.conv.OfferedDates = dates
	t.conv.CurrentStep = models.StepDateSelection

	return models.BotReply{
		Success: true,
		Message: fmt.Sprintf("You chose *%s*. 👍\n\n%s\n%s",
			selected.Name, dateList(dates), prompt(t.def.Date.Prompt, "Reply with the number of the date.")),
		NextStep: models.StepPtr(models.StepDateSelection),
	}, nil
}

func (f *BookingFlow) handleDateSelection(ctx context.Context, t *turn) (models.BotReply, error) {
	if t.conv.SelectedService == nil {
		return f.restart(t), nil
	}
	dates := t.conv.OfferedDates
	if len(dates) == 0 {
		dates = GenerateDates(f.now(), t.loc, t.def.Date.Days)
		t.conv.OfferedDates = dates
	} else if datesExpired(dates, f.now(), t.loc) {
		// Offered list went stale while the session sat idle
		dates = GenerateDates(f.now(), t.loc, t.def.Date.Days)
		t.conv.OfferedDates = dates
		return rePrompt(models.StepDateSelection,
			"📅 The dates have moved on since my last message. Here are the current ones:\n\n"+dateList(dates)+"\n"+prompt(t.def.Date.Prompt, "Reply with the number of the date.")), nil
	}

	idx, ok := ResolveDate(t.text, dates)
	if !ok {
		return rePrompt(models.StepDateSelection,
			"❌ I didn't catch that date.\n\n"+dateList(dates)+"\n"+prompt(t.def.Date.Prompt, "Reply with the number of the date.")), nil
	}

	chosen := dates[idx]
	slots, err := f.availability.SlotsForDate(ctx, t.tenantID, chosen.Date, t.loc)
	if err != nil {
		return models.BotReply{}, err
	}
	if len(AvailableOnly(slots)) == 0 {
		return rePrompt(models.StepDateSelection,
			fmt.Sprintf("😕 %s is fully booked. Please pick another date.\n\n%s", chosen.Label, dateList(dates))), nil
	}

	t.conv.SelectedDate = chosen.Date
	t.conv.AvailableSlots = slots
	t.conv.CurrentStep = models.StepTimeSelection

	return models.BotReply{
		Success: true,
		Message: fmt.Sprintf("📅 *%s*\n\n%s\n%s",
			chosen.Label, slotList(slots), prompt(t.def.Time.Prompt, "Reply with the number or a time like *10am*.")),
		NextStep: models.StepPtr(models.StepTimeSelection),
	}, nil
}

func (f *BookingFlow) handleTimeSelection(ctx context.Context, t *turn) (models.BotReply, error) {
	if t.conv.SelectedService == nil || t.conv.SelectedDate == "" {
		return f.restart(t), nil
	}
	slots := t.conv.AvailableSlots
	if len(slots) == 0 {
		fresh, err := f.availability.SlotsForDate(ctx, t.tenantID, t.conv.SelectedDate, t.loc)
		if err != nil {
			return models.BotReply{}, err
		}
		slots = fresh
		t.conv.AvailableSlots = fresh
	}

	chosen, ok := ResolveTime(t.text, slots)
	if !ok {
		return rePrompt(models.StepTimeSelection,
			"❌ That time isn't available.\n\n"+slotList(slots)+"\n"+prompt(t.def.Time.Prompt, "Reply with the number or a time like *10am*.")), nil
	}

	// Someone else may have taken the slot since the list was shown
	fresh, err := f.availability.SlotsForDate(ctx, t.tenantID, t.conv.SelectedDate, t.loc)
	if err != nil {
		return models.BotReply{}, err
	}
	if !slotAvailable(fresh, chosen) {
		t.conv.AvailableSlots = fresh
		return rePrompt(models.StepTimeSelection,
			fmt.Sprintf("😕 %s was just booked by someone else.\n\n%s", FormatClock(chosen), slotList(fresh))), nil
	}

	staff, err := f.availability.StaffFor(ctx, t.tenantID, t.conv.SelectedDate, chosen)
	if err != nil {
		return models.BotReply{}, err
	}
	if len(staff) == 0 {
		f.logger.Warn().Str("tenant_id", t.tenantID).Msg("no active staff to take the booking")
		return noStaffReply(models.StepTimeSelection), nil
	}
	t.conv.SelectedTime = chosen

	if t.def.Staff == nil {
		first := staff[0]
		t.conv.SelectedStaff = &first
		return f.toConfirmation(t)
	}

	t.conv.AvailableStaff = staff
	t.conv.CurrentStep = models.StepStaffSelection
	return models.BotReply{
		Success: true,
		Message: fmt.Sprintf("⏰ *%s* it is.\n\n%s\n%s",
			FormatClock(chosen), staffList(staff), prompt(t.def.Staff.Prompt, "Reply with the number or the name.")),
		NextStep: models.StepPtr(models.StepStaffSelection),
	}, nil
}

func (f *BookingFlow) handleStaffSelection(ctx context.Context, t *turn) (models.BotReply, error) {
	if t.conv.SelectedService == nil || t.conv.SelectedDate == "" || t.conv.SelectedTime == "" {
		return f.restart(t), nil
	}
	staff := t.conv.AvailableStaff
	if len(staff) == 0 {
		fresh, err := f.availability.StaffFor(ctx, t.tenantID, t.conv.SelectedDate, t.conv.SelectedTime)
		if err != nil {
			return models.BotReply{}, err
		}
		if len(fresh) == 0 {
			return noStaffReply(models.StepStaffSelection), nil
		}
		staff = fresh
		t.conv.AvailableStaff = fresh
	}
	staffPrompt := "Reply with the number or the name."
	if t.def.Staff != nil {
		staffPrompt = prompt(t.def.Staff.Prompt, staffPrompt)
	}

	idx, ok := ResolveOrdinal(t.text, len(staff))
	if !ok {
		names := make([]string, len(staff))
		for i, s := range staff {
			names[i] = s.Name
		}
		idx, ok = MatchByName(t.text, names)
	}
	if !ok {
		return rePrompt(models.StepStaffSelection,
			"❌ I couldn't find that person.\n\n"+staffList(staff)+"\n"+staffPrompt), nil
	}

	selected := staff[idx]
	t.conv.SelectedStaff = &selected
	return f.toConfirmation(t)
}

// toConfirmation assembles the appointment snapshot and asks for the go-ahead
func (f *BookingFlow) toConfirmation(t *turn) (models.BotReply, error) {
	data, err := f.snapshot(t)
	if err != nil {
		return models.BotReply{}, err
	}
	t.conv.AppointmentData = data
	t.conv.CurrentStep = models.StepConfirmation
	return models.BotReply{
		Success:  true,
		Message:  confirmationSummary(data) + "\n\n" + prompt(t.def.Confirm.Prompt, "Reply *yes* to confirm or *cancel* to start over."),
		NextStep: models.StepPtr(models.StepConfirmation),
	}, nil
}

func (f *BookingFlow) snapshot(t *turn) (*models.AppointmentData, error) {
	svc := t.conv.SelectedService
	scheduled, err := ScheduledAt(t.conv.SelectedDate, t.conv.SelectedTime, t.loc)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(t.msg.ProfileName)
	if name == "" {
		name = defaultCustomerName
	}
	data := &models.AppointmentData{
		ServiceID:       svc.ID,
		ServiceName:     svc.Name,
		Price:           svc.Price,
		DurationMinutes: svc.Duration(),
		Date:            t.conv.SelectedDate,
		Time:            t.conv.SelectedTime,
		ScheduledAt:     scheduled,
		Currency:        t.currency,
		Notes:           defaultNotes,
		PaymentStatus:   models.PaymentStatusPending,
		CustomerName:    name,
		CustomerPhone:   t.conv.CustomerPhone,
	}
	if st := t.conv.SelectedStaff; st != nil {
		data.StaffID = st.ID
		data.StaffName = st.Name
	}
	return data, nil
}

func (f *BookingFlow) handleConfirmation(ctx context.Context, t *turn) (models.BotReply, error) {
	data := t.conv.AppointmentData
	confirmPrompt := prompt(t.def.Confirm.Prompt, "Reply *yes* to confirm or *cancel* to start over.")

	confirm := HasKeyword(t.text, t.def.Confirm.Keywords)
	cancel := HasKeyword(t.text, CancelIntentKeywords)
	if confirm && cancel {
		return rePrompt(models.StepConfirmation,
			"🤔 I'm not sure if that's a yes or a no. Reply just *yes* to confirm or *cancel* to start over."), nil
	}

	if confirm {
		if data == nil {
			return f.restart(t), nil
		}
		bookingID, err := f.persister.Create(ctx, t.tenantID, t.conv.FlowID, data)
		if errors.Is(err, storage.ErrSlotTaken) {
			return f.slotLost(ctx, t)
		}
		if err != nil {
			return models.BotReply{
				Success:  false,
				Message:  "😔 We couldn't save your booking just now. Please reply *yes* to try again.",
				NextStep: models.StepPtr(models.StepConfirmation),
				Error:    "booking persistence failed",
			}, nil
		}

		completedAt := f.now()
		t.conv.CurrentStep = models.StepCompleted
		t.conv.CompletedAt = &completedAt
		t.conv.LastAppointmentID = bookingID
		return models.BotReply{
			Success:       true,
			Message:       fmt.Sprintf("🎉 *Booking confirmed!*\n\n%s\n\n🆔 Booking ID: %s\n\nSee you soon!", confirmationSummary(data), bookingID),
			NextStep:      models.StepPtr(models.StepCompleted),
			AppointmentID: bookingID,
		}, nil
	}

	if cancel {
		t.conv.Restart()
		return models.BotReply{
			Success:  true,
			Message:  "👌 No problem, nothing was booked. Type *book* whenever you want to start again.",
			NextStep: models.StepPtr(models.StepWelcome),
		}, nil
	}

	if data == nil {
		return rePrompt(models.StepConfirmation, confirmPrompt), nil
	}
	return rePrompt(models.StepConfirmation, confirmationSummary(data)+"\n\n"+confirmPrompt), nil
}

// slotLost sends the customer back to pick another time after someone else
// booked theirs between the summary and the confirmation.
func (f *BookingFlow) slotLost(ctx context.Context, t *turn) (models.BotReply, error) {
	lost := t.conv.SelectedTime
	fresh, err := f.availability.SlotsForDate(ctx, t.tenantID, t.conv.SelectedDate, t.loc)
	if err != nil {
		return models.BotReply{}, err
	}
	t.conv.SelectedTime = ""
	t.conv.SelectedStaff = nil
	t.conv.AvailableStaff = nil
	t.conv.AppointmentData = nil

	if len(AvailableOnly(fresh)) == 0 {
		dates := GenerateDates(f.now(), t.loc, t.def.Date.Days)
		t.conv.SelectedDate = ""
		t.conv.AvailableSlots = nil
		t.conv.OfferedDates = dates
		t.conv.CurrentStep = models.StepDateSelection
		return rePrompt(models.StepDateSelection,
			fmt.Sprintf("😕 Sorry, %s was booked by someone else just before you confirmed, and that day is now full.\n\n%s\n%s",
				FormatClock(lost), dateList(dates), prompt(t.def.Date.Prompt, "Reply with the number of the date."))), nil
	}

	t.conv.AvailableSlots = fresh
	t.conv.CurrentStep = models.StepTimeSelection
	return rePrompt(models.StepTimeSelection,
		fmt.Sprintf("😕 Sorry, %s was booked by someone else just before you confirmed. Please pick another time.\n\n%s\n%s",
			FormatClock(lost), slotList(fresh), prompt(t.def.Time.Prompt, "Reply with the number or a time like *10am*."))), nil
}

func (f *BookingFlow) handleCompleted(ctx context.Context, t *turn) (models.BotReply, error) {
	if HasKeyword(t.text, t.def.Greeting.Keywords) {
		t.conv.Restart()
		return f.handleWelcome(ctx, t)
	}
	msg := "✅ You're all booked!"
	if t.conv.LastAppointmentID != "" {
		msg = fmt.Sprintf("✅ You're all booked! Your booking ID is %s.", t.conv.LastAppointmentID)
	}
	return models.BotReply{
		Success:       true,
		Message:       msg + "\n\nType *book* to make another appointment.",
		NextStep:      models.StepPtr(models.StepCompleted),
		AppointmentID: t.conv.LastAppointmentID,
	}, nil
}

func (f *BookingFlow) handleUnknown(_ context.Context, t *turn) (models.BotReply, error) {
	f.logger.Warn().Str("step", string(t.conv.CurrentStep)).Msg("unknown conversation step")
	t.conv.CurrentStep = models.StepWelcome
	return models.BotReply{
		Success:  false,
		Message:  restartMessage,
		NextStep: models.StepPtr(models.StepWelcome),
		Error:    "unknown conversation step",
	}, nil
}

// restart recovers from a context whose selections do not match its step
func (f *BookingFlow) restart(t *turn) models.BotReply {
	f.logger.Warn().Str("step", string(t.conv.CurrentStep)).Msg("inconsistent conversation context, restarting")
	t.conv.Restart()
	return models.BotReply{
		Success:  false,
		Message:  restartMessage,
		NextStep: models.StepPtr(models.StepWelcome),
		Error:    "inconsistent conversation context",
	}
}

func failure(step models.Step, err error) models.BotReply {
	return models.BotReply{
		Success:  false,
		Message:  apologyMessage,
		NextStep: models.StepPtr(step),
		Error:    err.Error(),
	}
}

func rePrompt(step models.Step, message string) models.BotReply {
	return models.BotReply{
		Success:  false,
		Message:  message,
		NextStep: models.StepPtr(step),
	}
}

func noServicesReply(step models.Step) models.BotReply {
	return models.BotReply{
		Success:  false,
		Message:  "😕 Sorry, there are no services available to book right now. Please check back later.",
		NextStep: models.StepPtr(step),
		Error:    "no services available",
	}
}

func noStaffReply(step models.Step) models.BotReply {
	return models.BotReply{
		Success:  false,
		Message:  "😕 Sorry, nobody is available to take bookings right now. Please check back later.",
		NextStep: models.StepPtr(step),
		Error:    "no staff available",
	}
}

// datesExpired reports whether the offered list no longer starts after today in loc
func datesExpired(dates []models.DateOption, now time.Time, loc *time.Location) bool {
	today := now.In(loc).Format(dateLayout)
	return dates[0].Date <= today
}

func slotAvailable(slots []models.TimeSlot, clock string) bool {
	for _, s := range slots {
		if s.Time == clock {
			return s.Available
		}
	}
	return false
}
