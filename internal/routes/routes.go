package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/chatbook-backend/internal/handlers"
	"github.com/Ananth-NQI/chatbook-backend/internal/middleware"
)

// Dependencies are the handlers and settings the routes need
type Dependencies struct {
	WhatsApp *handlers.WhatsAppHandler
	Bookings *handlers.BookingHandler
	Health   *handlers.HealthHandler
	Gatherer prometheus.Gatherer

	ValidateWebhooks bool
	EnableTestRoutes bool
	TwilioAuthToken  string
	PublicBaseURL    string
	Logger           zerolog.Logger
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, deps Dependencies) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to ChatBook Backend!",
			"version": deps.Health.Version,
			"endpoints": fiber.Map{
				"health":        "/health",
				"metrics":       "/metrics",
				"bookings":      "/api/bookings/:id",
				"webhook":       "/webhook/whatsapp/:tenantID",
				"test_whatsapp": "/test/whatsapp/:tenantID",
			},
		})
	})

	app.Get("/health", deps.Health.Check)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := app.Group("/api")
	api.Get("/bookings/:id", deps.Bookings.GetBooking)

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook")
	if deps.ValidateWebhooks {
		webhooks.Post("/whatsapp/:tenantID",
			middleware.ValidateTwilioSignature(deps.TwilioAuthToken, deps.PublicBaseURL, deps.Logger),
			deps.WhatsApp.HandleWebhook)
	} else {
		deps.Logger.Warn().Msg("⚠️  WhatsApp webhook validation DISABLED")
		webhooks.Post("/whatsapp/:tenantID", deps.WhatsApp.HandleWebhook)
	}

	// ========== TEST ROUTES (Development Only) ==========
	if deps.EnableTestRoutes {
		app.Post("/test/whatsapp/:tenantID", deps.WhatsApp.HandleTestWebhook)
	}
}
