package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/Ananth-NQI/chatbook-backend/internal/models"
	"github.com/Ananth-NQI/chatbook-backend/internal/storage"
)

var errMissingAppointment = errors.New("no appointment data to persist")

// Persister writes confirmed appointments
type Persister struct {
	store  storage.BookingStore
	logger zerolog.Logger
}

// NewPersister creates a booking persister
func NewPersister(store storage.BookingStore, logger zerolog.Logger) *Persister {
	return &Persister{
		store:  store,
		logger: logger.With().Str("component", "persister").Logger(),
	}
}

// IdempotencyKey identifies the confirmation of one logical flow
func IdempotencyKey(tenantID, phone, flowID string) string {
	sum := sha256.Sum256([]byte(tenantID + "|" + phone + "|" + flowID + "|" + string(models.StepConfirmation)))
	return hex.EncodeToString(sum[:])
}

// Create stores the audit conversation row and the confirmed booking in one transaction.
// Confirming the same flow twice returns the booking created the first time.
// It returns storage.ErrSlotTaken when another booking already holds the start time.
func (p *Persister) Create(ctx context.Context, tenantID, flowID string, data *models.AppointmentData) (string, error) {
	if data == nil {
		p.logger.Error().Str("tenant_id", tenantID).Msg("create called without appointment data")
		return "", errMissingAppointment
	}

	snapshot, err := json.Marshal(data)
	if err != nil {
		p.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("failed to encode appointment snapshot")
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	record := &models.ConversationRecord{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		CustomerPhone: data.CustomerPhone,
		FlowID:        flowID,
		ServiceID:     data.ServiceID,
		StaffID:       data.StaffID,
		Amount:        data.Price,
		Status:        string(models.StepCompleted),
		Snapshot:      datatypes.JSON(snapshot),
	}
	booking := &models.Booking{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		ServiceID:      data.ServiceID,
		StaffID:        data.StaffID,
		CustomerName:   data.CustomerName,
		CustomerPhone:  data.CustomerPhone,
		Amount:         data.Price,
		Currency:       data.Currency,
		ScheduledAt:    data.ScheduledAt,
		Status:         models.BookingStatusConfirmed,
		Notes:          data.Notes,
		IdempotencyKey: IdempotencyKey(tenantID, data.CustomerPhone, flowID),
	}

	saved, err := p.store.CreateBookingWithConversation(ctx, record, booking)
	switch {
	case errors.Is(err, storage.ErrDuplicateBooking) && saved != nil:
		p.logger.Warn().
			Str("tenant_id", tenantID).
			Str("booking_id", saved.ID).
			Msg("duplicate confirmation, returning existing booking")
		return saved.ID, nil
	case errors.Is(err, storage.ErrSlotTaken):
		p.logger.Warn().
			Str("tenant_id", tenantID).
			Time("scheduled_at", data.ScheduledAt).
			Msg("slot taken before confirmation")
		return "", err
	case err != nil:
		p.logger.Error().Err(err).
			Str("tenant_id", tenantID).
			Str("service_id", data.ServiceID).
			Msg("failed to persist booking")
		return "", fmt.Errorf("persist booking: %w", err)
	}

	p.logger.Info().
		Str("tenant_id", tenantID).
		Str("booking_id", saved.ID).
		Str("conversation_id", saved.ConversationID).
		Time("scheduled_at", saved.ScheduledAt).
		Msg("booking created")
	return saved.ID, nil
}
