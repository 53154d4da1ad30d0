package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Ananth-NQI/chatbook-backend/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicateBooking is returned when an idempotency key was already used
	ErrDuplicateBooking = errors.New("duplicate booking")
	// ErrSlotTaken is returned when another live booking holds the same start time
	ErrSlotTaken = errors.New("time slot already booked")
)

// CatalogStore answers the read-only questions asked during a conversation.
// Services and staff come back sorted by name; ordinal selection depends on it.
type CatalogStore interface {
	GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error)
	GetActiveServices(ctx context.Context, tenantID string) ([]models.Service, error)
	GetActiveStaff(ctx context.Context, tenantID string) ([]models.StaffMember, error)
	// GetBookedTimeSlots returns HH:MM strings of non-cancelled bookings on date (YYYY-MM-DD) in loc
	GetBookedTimeSlots(ctx context.Context, tenantID, date string, loc *time.Location) ([]string, error)
}

// BookingStore persists confirmed appointments
type BookingStore interface {
	// CreateBookingWithConversation writes the audit row and the booking atomically.
	// A reused idempotency key yields the existing booking and ErrDuplicateBooking.
	// A confirmed booking whose start time is already held fails with ErrSlotTaken.
	CreateBookingWithConversation(ctx context.Context, record *models.ConversationRecord, booking *models.Booking) (*models.Booking, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetBookingsDueForReminder(ctx context.Context, from, to time.Time) ([]models.Booking, error)
	MarkReminderSent(ctx context.Context, bookingID string, at time.Time) error
}

// Store defines the interface for storage operations
type Store interface {
	CatalogStore
	BookingStore

	// Seeding and admin helpers used by tests and local setups
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	CreateService(ctx context.Context, service *models.Service) error
	CreateStaff(ctx context.Context, staff *models.StaffMember) error

	Ping(ctx context.Context) error
}
