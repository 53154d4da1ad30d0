package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/chatbook-backend/internal/models"
	"github.com/Ananth-NQI/chatbook-backend/internal/storage"
)

// BookingReader is the lookup side of the booking store
type BookingReader interface {
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
}

// BookingHandler handles booking-related requests
type BookingHandler struct {
	store BookingReader
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(store BookingReader) *BookingHandler {
	return &BookingHandler{store: store}
}

// GetBooking returns one booking by id
func (h *BookingHandler) GetBooking(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Booking ID is required",
		})
	}

	booking, err := h.store.GetBooking(c.UserContext(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Booking not found",
		})
	}
	if err != nil {
		return err
	}

	return c.JSON(booking)
}
