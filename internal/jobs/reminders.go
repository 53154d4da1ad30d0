package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/chatbook-backend/internal/models"
	"github.com/Ananth-NQI/chatbook-backend/internal/services"
	"github.com/Ananth-NQI/chatbook-backend/internal/storage"
)

// ReminderStore is what the reminder job reads and updates
type ReminderStore interface {
	GetTenant(ctx context.Context, tenantID string) (*models.Tenant, error)
	GetBookingsDueForReminder(ctx context.Context, from, to time.Time) ([]models.Booking, error)
	MarkReminderSent(ctx context.Context, bookingID string, at time.Time) error
}

// ReminderJob sends a WhatsApp reminder ahead of confirmed appointments
type ReminderJob struct {
	store      ReminderStore
	dispatcher services.Dispatcher
	interval   time.Duration
	leadTime   time.Duration
	location   *time.Location
	now        func() time.Time
	logger     zerolog.Logger
}

// ReminderConfig tunes the job. Zero values take the defaults.
type ReminderConfig struct {
	Interval time.Duration
	LeadTime time.Duration
	Location *time.Location
	Clock    func() time.Time
}

// NewReminderJob creates a reminder job
func NewReminderJob(store ReminderStore, dispatcher services.Dispatcher, logger zerolog.Logger, cfg ReminderConfig) *ReminderJob {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.LeadTime <= 0 {
		cfg.LeadTime = 24 * time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &ReminderJob{
		store:      store,
		dispatcher: dispatcher,
		interval:   cfg.Interval,
		leadTime:   cfg.LeadTime,
		location:   cfg.Location,
		now:        cfg.Clock,
		logger:     logger.With().Str("component", "reminder_job").Logger(),
	}
}

// Start runs the job every interval until ctx is cancelled
func (r *ReminderJob) Start(ctx context.Context) {
	r.logger.Info().Dur("interval", r.interval).Dur("lead_time", r.leadTime).Msg("starting appointment reminders")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("stopping appointment reminders")
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error().Err(err).Msg("reminder run failed")
			}
		}
	}
}

// RunOnce reminds every confirmed booking starting within the lead time and returns
// how many reminders went out. A failed send leaves the booking for the next run.
func (r *ReminderJob) RunOnce(ctx context.Context) (int, error) {
	now := r.now()
	due, err := r.store.GetBookingsDueForReminder(ctx, now, now.Add(r.leadTime))
	if err != nil {
		return 0, fmt.Errorf("reminders: load due bookings: %w", err)
	}

	sent := 0
	for _, booking := range due {
		if err := r.dispatcher.Send(ctx, booking.CustomerPhone, r.message(ctx, booking)); err != nil {
			r.logger.Error().Err(err).Str("booking_id", booking.ID).Msg("failed to send reminder")
			continue
		}
		if err := r.store.MarkReminderSent(ctx, booking.ID, now); err != nil {
			r.logger.Error().Err(err).Str("booking_id", booking.ID).Msg("failed to mark reminder sent")
			continue
		}
		sent++
	}

	if sent > 0 {
		r.logger.Info().Int("sent", sent).Int("due", len(due)).Msg("appointment reminders sent")
	}
	return sent, nil
}

func (r *ReminderJob) message(ctx context.Context, booking models.Booking) string {
	loc := r.location
	name := ""
	tenant, err := r.store.GetTenant(ctx, booking.TenantID)
	switch {
	case err == nil:
		loc = tenant.Location(r.location)
		name = tenant.Name
	case !errors.Is(err, storage.ErrNotFound):
		r.logger.Warn().Err(err).Str("tenant_id", booking.TenantID).Msg("tenant lookup failed for reminder")
	}

	local := booking.ScheduledAt.In(loc)
	response := "⏰ *Appointment Reminder*\n\n"
	if name != "" {
		response += fmt.Sprintf("🏪 %s\n", name)
	}
	response += fmt.Sprintf("📅 %s\n", local.Format("Monday, January 2, 2006"))
	response += fmt.Sprintf("🕐 %s\n", local.Format("3:04 PM"))
	response += fmt.Sprintf("🆔 Booking ID: %s\n\nSee you soon!", booking.ID)
	return response
}
