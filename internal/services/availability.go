package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Ananth-NQI/chatbook-backend/internal/models"
	"github.com/Ananth-NQI/chatbook-backend/internal/storage"
)

const (
	// DefaultBookingDays is how many dates are offered, starting tomorrow
	DefaultBookingDays = 7

	dateLayout  = "2006-01-02"
	labelLayout = "Monday, January 2, 2006"
)

// SlotCatalog is the canonical hourly catalog: 09:00 to 17:00 inclusive
var SlotCatalog = []string{
	"09:00", "10:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00", "17:00",
}

// AvailabilityResolver computes what the customer can choose from at each step
type AvailabilityResolver struct {
	catalog storage.CatalogStore
}

// NewAvailabilityResolver creates a resolver over the tenant catalog
func NewAvailabilityResolver(catalog storage.CatalogStore) *AvailabilityResolver {
	return &AvailabilityResolver{catalog: catalog}
}

// GenerateDates returns the next days calendar days starting tomorrow in loc.
// Today is never offered.
func GenerateDates(now time.Time, loc *time.Location, days int) []models.DateOption {
	if loc == nil {
		loc = time.UTC
	}
	if days <= 0 {
		days = DefaultBookingDays
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	dates := make([]models.DateOption, 0, days)
	for offset := 1; offset <= days; offset++ {
		d := midnight.AddDate(0, 0, offset)
		dates = append(dates, models.DateOption{
			Date:  d.Format(dateLayout),
			Label: d.Format(labelLayout),
		})
	}
	return dates
}

// BuildSlots tags every catalog slot; booked ones stay in the list as unavailable
func BuildSlots(booked []string) []models.TimeSlot {
	taken := make(map[string]bool, len(booked))
	for _, b := range booked {
		taken[b] = true
	}
	slots := make([]models.TimeSlot, 0, len(SlotCatalog))
	for _, t := range SlotCatalog {
		slots = append(slots, models.TimeSlot{Time: t, Available: !taken[t]})
	}
	return slots
}

// AvailableOnly filters slots down to the ones that can still be booked, in order
func AvailableOnly(slots []models.TimeSlot) []models.TimeSlot {
	var out []models.TimeSlot
	for _, s := range slots {
		if s.Available {
			out = append(out, s)
		}
	}
	return out
}

// SlotsForDate loads existing bookings for the date and tags the catalog
func (r *AvailabilityResolver) SlotsForDate(ctx context.Context, tenantID, date string, loc *time.Location) ([]models.TimeSlot, error) {
	booked, err := r.catalog.GetBookedTimeSlots(ctx, tenantID, date, loc)
	if err != nil {
		return nil, fmt.Errorf("availability: booked slots for %s: %w", date, err)
	}
	return BuildSlots(booked), nil
}

// StaffFor returns the staff offered for a date and time. Every active staff member is
// offered; conflicts are not filtered at this step.
func (r *AvailabilityResolver) StaffFor(ctx context.Context, tenantID, date, clock string) ([]models.StaffMember, error) {
	staff, err := r.catalog.GetActiveStaff(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("availability: staff for %s %s: %w", date, clock, err)
	}
	return staff, nil
}

// ScheduledAt combines a YYYY-MM-DD date and HH:MM time into an instant in loc
func ScheduledAt(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(dateLayout+" 15:04", date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("availability: invalid schedule %s %s: %w", date, clock, err)
	}
	return t, nil
}

// FormatDateLabel renders a stored YYYY-MM-DD date the way it was offered
func FormatDateLabel(date string) string {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return date
	}
	return t.Format(labelLayout)
}

// FormatClock renders HH:MM as "2:00 PM"
func FormatClock(clock string) string {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return clock
	}
	return t.Format("3:04 PM")
}
