package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ananth-NQI/chatbook-backend/internal/models"
	"github.com/Ananth-NQI/chatbook-backend/internal/storage"
)

func sampleAppointment() *models.AppointmentData {
	return &models.AppointmentData{
		ServiceID:       "svc-1",
		ServiceName:     "Haircut",
		Price:           500,
		DurationMinutes: 30,
		StaffID:         "staff-1",
		StaffName:       "Priya",
		Date:            "2026-10-17",
		Time:            "14:00",
		ScheduledAt:     time.Date(2026, 10, 17, 14, 0, 0, 0, time.UTC),
		Currency:        "INR",
		Notes:           defaultNotes,
		PaymentStatus:   models.PaymentStatusPending,
		CustomerName:    "Asha",
		CustomerPhone:   testPhone,
	}
}

func TestIdempotencyKey(t *testing.T) {
	a := IdempotencyKey("salon-1", testPhone, "flow-a")
	assert.Len(t, a, 64)
	assert.Equal(t, a, IdempotencyKey("salon-1", testPhone, "flow-a"))
	assert.NotEqual(t, a, IdempotencyKey("salon-1", testPhone, "flow-b"))
	assert.NotEqual(t, a, IdempotencyKey("salon-2", testPhone, "flow-a"))
}

func TestPersisterCreate(t *testing.T) {
	store := storage.NewMemoryStore()
	p := NewPersister(store, zerolog.Nop())
	ctx := context.Background()

	id, err := p.Create(ctx, testTenant, "flow-a", sampleAppointment())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	booking, err := store.GetBooking(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, testTenant, booking.TenantID)
	assert.Equal(t, "svc-1", booking.ServiceID)
	assert.Equal(t, "staff-1", booking.StaffID)
	assert.Equal(t, "Asha", booking.CustomerName)
	assert.Equal(t, 500, booking.Amount)
	assert.Equal(t, "INR", booking.Currency)
	assert.Equal(t, "Booked via WhatsApp", booking.Notes)
	assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
	assert.NotEmpty(t, booking.ConversationID)
	assert.Equal(t, 1, store.ConversationCount())
}

func TestPersisterDuplicateConfirmReturnsExisting(t *testing.T) {
	store := storage.NewMemoryStore()
	p := NewPersister(store, zerolog.Nop())
	ctx := context.Background()

	first, err := p.Create(ctx, testTenant, "flow-a", sampleAppointment())
	require.NoError(t, err)
	second, err := p.Create(ctx, testTenant, "flow-a", sampleAppointment())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.BookingCount())
	assert.Equal(t, 1, store.ConversationCount())

	later := sampleAppointment()
	later.Time = "15:00"
	later.ScheduledAt = later.ScheduledAt.Add(time.Hour)
	other, err := p.Create(ctx, testTenant, "flow-b", later)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
	assert.Equal(t, 2, store.BookingCount())
}

func TestPersisterSlotTakenByAnotherFlow(t *testing.T) {
	store := storage.NewMemoryStore()
	p := NewPersister(store, zerolog.Nop())
	ctx := context.Background()

	_, err := p.Create(ctx, testTenant, "flow-a", sampleAppointment())
	require.NoError(t, err)

	id, err := p.Create(ctx, testTenant, "flow-b", sampleAppointment())
	assert.ErrorIs(t, err, storage.ErrSlotTaken)
	assert.Empty(t, id)
	assert.Equal(t, 1, store.BookingCount())
	assert.Equal(t, 1, store.ConversationCount())
}

func TestPersisterFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	store.FailBookings = errors.New("disk full")
	p := NewPersister(store, zerolog.Nop())

	id, err := p.Create(context.Background(), testTenant, "flow-a", sampleAppointment())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrSlotTaken)
	assert.Empty(t, id)
	assert.Equal(t, 0, store.BookingCount())

	id, err = p.Create(context.Background(), testTenant, "flow-a", nil)
	assert.Error(t, err)
	assert.Empty(t, id)
}
