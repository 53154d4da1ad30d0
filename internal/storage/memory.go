package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ananth-NQI/chatbook-backend/internal/models"
)

// MemoryStore holds all data in memory for local runs and tests
type MemoryStore struct {
	tenants       map[string]*models.Tenant
	services      map[string]*models.Service
	staff         map[string]*models.StaffMember
	bookings      map[string]*models.Booking
	conversations map[string]*models.ConversationRecord
	byIdempotency map[string]string // idempotency key -> booking id

	// Mutexes for thread safety
	catalogMu sync.RWMutex
	bookingMu sync.RWMutex

	// FailBookings makes booking writes fail, for exercising retry paths
	FailBookings error
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:       make(map[string]*models.Tenant),
		services:      make(map[string]*models.Service),
		staff:         make(map[string]*models.StaffMember),
		bookings:      make(map[string]*models.Booking),
		conversations: make(map[string]*models.ConversationRecord),
		byIdempotency: make(map[string]string),
	}
}

// Tenant and catalog operations
func (m *MemoryStore) CreateTenant(_ context.Context, tenant *models.Tenant) error {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	now := time.Now()
	tenant.CreatedAt, tenant.UpdatedAt = now, now
	cp := *tenant
	m.tenants[tenant.ID] = &cp
	return nil
}

func (m *MemoryStore) GetTenant(_ context.Context, tenantID string) (*models.Tenant, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	tenant, exists := m.tenants[tenantID]
	if !exists {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
	}
	cp := *tenant
	return &cp, nil
}

func (m *MemoryStore) CreateService(_ context.Context, service *models.Service) error {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	if service.ID == "" {
		service.ID = uuid.NewString()
	}
	now := time.Now()
	service.CreatedAt, service.UpdatedAt = now, now
	cp := *service
	m.services[service.ID] = &cp
	return nil
}

func (m *MemoryStore) GetActiveServices(_ context.Context, tenantID string) ([]models.Service, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	var services []models.Service
	for _, s := range m.services {
		if s.TenantID == tenantID && s.IsActive {
			services = append(services, *s)
		}
	}
	sort.SliceStable(services, func(i, j int) bool {
		if services[i].Name != services[j].Name {
			return services[i].Name < services[j].Name
		}
		return services[i].ID < services[j].ID
	})
	return services, nil
}

func (m *MemoryStore) CreateStaff(_ context.Context, staff *models.StaffMember) error {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	if staff.ID == "" {
		staff.ID = uuid.NewString()
	}
	now := time.Now()
	staff.CreatedAt, staff.UpdatedAt = now, now
	cp := *staff
	m.staff[staff.ID] = &cp
	return nil
}

func (m *MemoryStore) GetActiveStaff(_ context.Context, tenantID string) ([]models.StaffMember, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	var staff []models.StaffMember
	for _, s := range m.staff {
		if s.TenantID == tenantID && s.IsActive {
			staff = append(staff, *s)
		}
	}
	sort.SliceStable(staff, func(i, j int) bool {
		if staff[i].Name != staff[j].Name {
			return staff[i].Name < staff[j].Name
		}
		return staff[i].ID < staff[j].ID
	})
	return staff, nil
}

// Booking operations
func (m *MemoryStore) GetBookedTimeSlots(_ context.Context, tenantID, date string, loc *time.Location) ([]string, error) {
	if loc == nil {
		loc = time.UTC
	}
	m.bookingMu.RLock()
	defer m.bookingMu.RUnlock()

	seen := make(map[string]bool)
	var slots []string
	for _, b := range m.bookings {
		if b.TenantID != tenantID || b.Status == models.BookingStatusCancelled {
			continue
		}
		local := b.ScheduledAt.In(loc)
		if local.Format("2006-01-02") != date {
			continue
		}
		hhmm := local.Format("15:04")
		if !seen[hhmm] {
			seen[hhmm] = true
			slots = append(slots, hhmm)
		}
	}
	sort.Strings(slots)
	return slots, nil
}

func (m *MemoryStore) CreateBookingWithConversation(_ context.Context, record *models.ConversationRecord, booking *models.Booking) (*models.Booking, error) {
	m.bookingMu.Lock()
	defer m.bookingMu.Unlock()

	if m.FailBookings != nil {
		return nil, m.FailBookings
	}

	if booking.IdempotencyKey != "" {
		if existingID, ok := m.byIdempotency[booking.IdempotencyKey]; ok {
			existing := *m.bookings[existingID]
			return &existing, ErrDuplicateBooking
		}
	}
	if booking.Status != models.BookingStatusCancelled {
		for _, b := range m.bookings {
			if b.TenantID == booking.TenantID && b.Status != models.BookingStatusCancelled && b.ScheduledAt.Equal(booking.ScheduledAt) {
				return nil, ErrSlotTaken
			}
		}
	}

	now := time.Now()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	record.CreatedAt = now
	booking.ConversationID = record.ID
	booking.CreatedAt, booking.UpdatedAt = now, now

	rec := *record
	m.conversations[rec.ID] = &rec
	b := *booking
	m.bookings[b.ID] = &b
	if b.IdempotencyKey != "" {
		m.byIdempotency[b.IdempotencyKey] = b.ID
	}
	return booking, nil
}

func (m *MemoryStore) GetBooking(_ context.Context, id string) (*models.Booking, error) {
	m.bookingMu.RLock()
	defer m.bookingMu.RUnlock()

	booking, exists := m.bookings[id]
	if !exists {
		return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	cp := *booking
	return &cp, nil
}

func (m *MemoryStore) GetBookingsDueForReminder(_ context.Context, from, to time.Time) ([]models.Booking, error) {
	m.bookingMu.RLock()
	defer m.bookingMu.RUnlock()

	var due []models.Booking
	for _, b := range m.bookings {
		if b.Status != models.BookingStatusConfirmed || b.ReminderSentAt != nil {
			continue
		}
		if b.ScheduledAt.Before(from) || b.ScheduledAt.After(to) {
			continue
		}
		due = append(due, *b)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledAt.Before(due[j].ScheduledAt) })
	return due, nil
}

func (m *MemoryStore) MarkReminderSent(_ context.Context, bookingID string, at time.Time) error {
	m.bookingMu.Lock()
	defer m.bookingMu.Unlock()

	booking, exists := m.bookings[bookingID]
	if !exists {
		return fmt.Errorf("booking %s: %w", bookingID, ErrNotFound)
	}
	booking.ReminderSentAt = &at
	booking.UpdatedAt = at
	return nil
}

// BookingCount is a test helper
func (m *MemoryStore) BookingCount() int {
	m.bookingMu.RLock()
	defer m.bookingMu.RUnlock()
	return len(m.bookings)
}

// ConversationCount is a test helper
func (m *MemoryStore) ConversationCount() int {
	m.bookingMu.RLock()
	defer m.bookingMu.RUnlock()
	return len(m.conversations)
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}
