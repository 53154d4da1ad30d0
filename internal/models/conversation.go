package models

import (
	"time"

	"github.com/google/uuid"
)

// Step is the position of a customer in the booking dialogue
type Step string

const (
	StepWelcome          Step = "welcome"
	StepServiceSelection Step = "service_selection"
	StepDateSelection    Step = "date_selection"
	StepTimeSelection    Step = "time_selection"
	StepStaffSelection   Step = "staff_selection"
	StepConfirmation     Step = "confirmation"
	StepCompleted        Step = "completed"
)

var validSteps = map[Step]bool{
	StepWelcome:          true,
	StepServiceSelection: true,
	StepDateSelection:    true,
	StepTimeSelection:    true,
	StepStaffSelection:   true,
	StepConfirmation:     true,
	StepCompleted:        true,
}

// Valid reports whether s is one of the known steps
func (s Step) Valid() bool {
	return validSteps[s]
}

// ParseStep rejects unknown values and maps them to StepWelcome
func ParseStep(raw string) (Step, bool) {
	s := Step(raw)
	if !s.Valid() {
		return StepWelcome, false
	}
	return s, true
}

// StepPtr is a helper for BotReply.NextStep
func StepPtr(s Step) *Step {
	return &s
}

// TimeSlot is one entry of the slot catalog for a date
type TimeSlot struct {
	Time      string `json:"time"` // canonical HH:MM
	Available bool   `json:"available"`
}

// DateOption is one of the dates offered to the customer
type DateOption struct {
	Date  string `json:"date"`  // YYYY-MM-DD
	Label string `json:"label"` // "Monday, January 2, 2006"
}

// AppointmentData is the snapshot shown at confirmation and persisted verbatim
type AppointmentData struct {
	ServiceID       string    `json:"service_id"`
	ServiceName     string    `json:"service_name"`
	Price           int       `json:"price"`
	DurationMinutes int       `json:"duration_minutes"`
	StaffID         string    `json:"staff_id"`
	StaffName       string    `json:"staff_name"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	Currency        string    `json:"currency"`
	Notes           string    `json:"notes"`
	PaymentStatus   string    `json:"payment_status"`
	CustomerName    string    `json:"customer_name"`
	CustomerPhone   string    `json:"customer_phone"`
}

// ConversationContext is the externalised state of one in-flight dialogue,
// keyed by (TenantID, CustomerPhone)
type ConversationContext struct {
	TenantID      string `json:"tenant_id"`
	CustomerPhone string `json:"customer_phone"`
	CurrentStep   Step   `json:"current_step"`

	SelectedService *Service     `json:"selected_service,omitempty"`
	SelectedDate    string       `json:"selected_date,omitempty"`
	SelectedTime    string       `json:"selected_time,omitempty"`
	SelectedStaff   *StaffMember `json:"selected_staff,omitempty"`

	AppointmentData *AppointmentData `json:"appointment_data,omitempty"`

	// What was last shown, so ordinals index the same list the customer saw
	OfferedDates   []DateOption  `json:"offered_dates,omitempty"`
	AvailableSlots []TimeSlot    `json:"available_slots,omitempty"`
	AvailableStaff []StaffMember `json:"available_staff,omitempty"`

	FlowID            string     `json:"flow_id"`
	LastAppointmentID string     `json:"last_appointment_id,omitempty"`
	Version           int64      `json:"version"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// NewConversationContext starts a dialogue at the welcome step
func NewConversationContext(tenantID, phone string, now time.Time) *ConversationContext {
	return &ConversationContext{
		TenantID:      tenantID,
		CustomerPhone: phone,
		CurrentStep:   StepWelcome,
		FlowID:        uuid.NewString(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Restart clears every selection and begins a new logical flow
func (c *ConversationContext) Restart() {
	c.CurrentStep = StepWelcome
	c.SelectedService = nil
	c.SelectedDate = ""
	c.SelectedTime = ""
	c.SelectedStaff = nil
	c.AppointmentData = nil
	c.OfferedDates = nil
	c.AvailableSlots = nil
	c.AvailableStaff = nil
	c.CompletedAt = nil
	c.FlowID = uuid.NewString()
}

// Normalize fills fields an older stored context may lack. An unknown step is left as
// is so the flow can tell the customer to start over.
func (c *ConversationContext) Normalize() {
	if c.CurrentStep == "" {
		c.CurrentStep = StepWelcome
	}
	if c.FlowID == "" {
		c.FlowID = uuid.NewString()
	}
}

// Clone returns a deep copy so a failed handler never leaks partial mutations
func (c *ConversationContext) Clone() *ConversationContext {
	if c == nil {
		return nil
	}
	cp := *c
	if c.SelectedService != nil {
		s := *c.SelectedService
		cp.SelectedService = &s
	}
	if c.SelectedStaff != nil {
		s := *c.SelectedStaff
		cp.SelectedStaff = &s
	}
	if c.AppointmentData != nil {
		a := *c.AppointmentData
		cp.AppointmentData = &a
	}
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		cp.CompletedAt = &t
	}
	cp.OfferedDates = append([]DateOption(nil), c.OfferedDates...)
	cp.AvailableSlots = append([]TimeSlot(nil), c.AvailableSlots...)
	cp.AvailableStaff = append([]StaffMember(nil), c.AvailableStaff...)
	return &cp
}
