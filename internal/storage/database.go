package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Ananth-NQI/chatbook-backend/internal/models"
)

// DatabaseStore implements Store on top of gorm (PostgreSQL in production, SQLite locally)
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a database-backed store
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	if db == nil {
		panic("storage: gorm db required")
	}
	return &DatabaseStore{db: db}
}

func (d *DatabaseStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	if err := d.db.WithContext(ctx).Create(tenant).Error; err != nil {
		return fmt.Errorf("storage: create tenant: %w", err)
	}
	return nil
}

func (d *DatabaseStore) GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := d.db.WithContext(ctx).Where("id = ?", tenantID).First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get tenant: %w", err)
	}
	return &tenant, nil
}

func (d *DatabaseStore) CreateService(ctx context.Context, service *models.Service) error {
	if service.ID == "" {
		service.ID = uuid.NewString()
	}
	// Select("*") so an explicit IsActive=false is not replaced by the column default
	if err := d.db.WithContext(ctx).Select("*").Create(service).Error; err != nil {
		return fmt.Errorf("storage: create service: %w", err)
	}
	return nil
}

func (d *DatabaseStore) GetActiveServices(ctx context.Context, tenantID string) ([]models.Service, error) {
	var services []models.Service
	err := d.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Order("name ASC").Order("id ASC").
		Find(&services).Error
	if err != nil {
		return nil, fmt.Errorf("storage: list services: %w", err)
	}
	return services, nil
}

func (d *DatabaseStore) CreateStaff(ctx context.Context, staff *models.StaffMember) error {
	if staff.ID == "" {
		staff.ID = uuid.NewString()
	}
	if err := d.db.WithContext(ctx).Select("*").Create(staff).Error; err != nil {
		return fmt.Errorf("storage: create staff: %w", err)
	}
	return nil
}

func (d *DatabaseStore) GetActiveStaff(ctx context.Context, tenantID string) ([]models.StaffMember, error) {
	var staff []models.StaffMember
	err := d.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Order("name ASC").Order("id ASC").
		Find(&staff).Error
	if err != nil {
		return nil, fmt.Errorf("storage: list staff: %w", err)
	}
	return staff, nil
}

func (d *DatabaseStore) GetBookedTimeSlots(ctx context.Context, tenantID, date string, loc *time.Location) ([]string, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return nil, fmt.Errorf("storage: invalid date %q: %w", date, err)
	}
	start := day.UTC()
	end := day.AddDate(0, 0, 1).UTC()

	var bookings []models.Booking
	err = d.db.WithContext(ctx).
		Select("scheduled_at").
		Where("tenant_id = ? AND status <> ? AND scheduled_at >= ? AND scheduled_at < ?",
			tenantID, models.BookingStatusCancelled, start, end).
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("storage: booked slots: %w", err)
	}

	seen := make(map[string]bool, len(bookings))
	slots := make([]string, 0, len(bookings))
	for _, b := range bookings {
		hhmm := b.ScheduledAt.In(loc).Format("15:04")
		if !seen[hhmm] {
			seen[hhmm] = true
			slots = append(slots, hhmm)
		}
	}
	sort.Strings(slots)
	return slots, nil
}

func (d *DatabaseStore) CreateBookingWithConversation(ctx context.Context, record *models.ConversationRecord, booking *models.Booking) (*models.Booking, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	booking.ConversationID = record.ID
	booking.ScheduledAt = booking.ScheduledAt.UTC()

	var existing *models.Booking
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if booking.IdempotencyKey != "" {
			var prior models.Booking
			err := tx.Where("idempotency_key = ?", booking.IdempotencyKey).Limit(1).Find(&prior).Error
			if err != nil {
				return fmt.Errorf("storage: idempotency lookup: %w", err)
			}
			if prior.ID != "" {
				existing = &prior
				return ErrDuplicateBooking
			}
		}
		if booking.Status != models.BookingStatusCancelled {
			var held int64
			err := tx.Model(&models.Booking{}).
				Where("tenant_id = ? AND status <> ? AND scheduled_at = ?", booking.TenantID, models.BookingStatusCancelled, booking.ScheduledAt).
				Count(&held).Error
			if err != nil {
				return fmt.Errorf("storage: slot lookup: %w", err)
			}
			if held > 0 {
				return ErrSlotTaken
			}
		}
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("storage: insert conversation: %w", err)
		}
		if err := tx.Create(booking).Error; err != nil {
			return fmt.Errorf("storage: insert booking: %w", err)
		}
		return nil
	})
	if errors.Is(err, ErrDuplicateBooking) {
		return existing, ErrDuplicateBooking
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) && booking.IdempotencyKey != "" {
		// Lost a race with a concurrent confirm for the same flow
		var prior models.Booking
		if lookupErr := d.db.WithContext(ctx).Where("idempotency_key = ?", booking.IdempotencyKey).First(&prior).Error; lookupErr == nil {
			return &prior, ErrDuplicateBooking
		}
	}
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (d *DatabaseStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := d.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get booking: %w", err)
	}
	return &booking, nil
}

func (d *DatabaseStore) GetBookingsDueForReminder(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.db.WithContext(ctx).
		Where("status = ? AND reminder_sent_at IS NULL AND scheduled_at >= ? AND scheduled_at <= ?",
			models.BookingStatusConfirmed, from.UTC(), to.UTC()).
		Order("scheduled_at ASC").
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("storage: due reminders: %w", err)
	}
	return bookings, nil
}

func (d *DatabaseStore) MarkReminderSent(ctx context.Context, bookingID string, at time.Time) error {
	res := d.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ?", bookingID).
		Update("reminder_sent_at", at.UTC())
	if res.Error != nil {
		return fmt.Errorf("storage: mark reminder: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("booking %s: %w", bookingID, ErrNotFound)
	}
	return nil
}

func (d *DatabaseStore) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("storage: sql handle: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
