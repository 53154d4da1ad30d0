package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Ananth-NQI/chatbook-backend/internal/services"
)

// Pinger is anything whose connectivity can be checked
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionStatsProvider reports conversation counts
type SessionStatsProvider interface {
	Stats(ctx context.Context) (*services.SessionStats, error)
}

// HealthHandler handles health check requests
type HealthHandler struct {
	Version  string
	store    Pinger
	sessions SessionStatsProvider
}

// NewHealthHandler creates a new health handler. sessions may be nil.
func NewHealthHandler(version string, store Pinger, sessions SessionStatsProvider) *HealthHandler {
	return &HealthHandler{
		Version:  version,
		store:    store,
		sessions: sessions,
	}
}

// Check returns the health status of the service
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":  "unavailable",
			"service": "ChatBook Backend",
			"version": h.Version,
			"error":   err.Error(),
		})
	}

	resp := fiber.Map{
		"status":  "OK",
		"service": "ChatBook Backend",
		"version": h.Version,
	}
	if h.sessions != nil {
		if stats, err := h.sessions.Stats(ctx); err == nil {
			resp["sessions"] = stats
		}
	}
	return c.JSON(resp)
}
