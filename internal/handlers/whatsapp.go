package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/chatbook-backend/internal/models"
	"github.com/Ananth-NQI/chatbook-backend/internal/services"
)

// MessageProcessor runs one inbound message through the conversation
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, tenantID string, msg models.CustomerMessage) (models.BotReply, error)
}

// WhatsAppHandler handles WhatsApp webhook requests
type WhatsAppHandler struct {
	live   MessageProcessor
	test   MessageProcessor
	logger zerolog.Logger
}

// NewWhatsAppHandler creates a new WhatsApp handler. test processes the development
// endpoint and normally has no dispatcher; nil falls back to live.
func NewWhatsAppHandler(live, test MessageProcessor, logger zerolog.Logger) *WhatsAppHandler {
	if test == nil {
		test = live
	}
	return &WhatsAppHandler{
		live:   live,
		test:   test,
		logger: logger.With().Str("component", "whatsapp_handler").Logger(),
	}
}

// TwilioWebhookPayload represents incoming WhatsApp message from Twilio
type TwilioWebhookPayload struct {
	MessageSid          string `form:"MessageSid"`
	AccountSid          string `form:"AccountSid"`
	MessagingServiceSid string `form:"MessagingServiceSid"`
	From                string `form:"From"` // WhatsApp number (whatsapp:+919876543210)
	To                  string `form:"To"`   // Your Twilio number
	Body                string `form:"Body"` // Message text
	ProfileName         string `form:"ProfileName"`
	NumMedia            string `form:"NumMedia"`
	MessageStatus       string `form:"MessageStatus"` // set on delivery status callbacks
}

// CustomerMessage converts the Twilio form into the flow's message shape
func (p TwilioWebhookPayload) CustomerMessage() models.CustomerMessage {
	msgType := models.MessageTypeText
	if n, _ := strconv.Atoi(p.NumMedia); n > 0 && p.Body == "" {
		msgType = "media"
	}
	return models.CustomerMessage{
		Text:        models.MessageText{Body: p.Body},
		From:        services.NormalizePhone(p.From),
		ID:          p.MessageSid,
		Type:        msgType,
		ProfileName: p.ProfileName,
	}
}

// HandleWebhook processes incoming WhatsApp messages for the tenant in the path
func (h *WhatsAppHandler) HandleWebhook(c *fiber.Ctx) error {
	tenantID := c.Params("tenantID")

	var payload TwilioWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		h.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("error parsing webhook")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}

	// Status callbacks carry no customer input
	if payload.MessageStatus != "" || payload.From == "" {
		return c.SendStatus(fiber.StatusOK)
	}

	h.logger.Info().
		Str("tenant_id", tenantID).
		Str("message_sid", payload.MessageSid).
		Str("from", payload.From).
		Msg("📱 WhatsApp message received")

	_, err := h.live.ProcessMessage(c.UserContext(), tenantID, payload.CustomerMessage())
	switch {
	case errors.Is(err, services.ErrInvalidMessage):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrDuplicateMessage):
		// Acknowledge so Twilio stops retrying
	case err != nil:
		// The customer already received an apology; a retry would not help
		h.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("error processing message")
	}

	// Acknowledge webhook receipt
	return c.SendStatus(fiber.StatusOK)
}

// TestWebhookPayload is the development endpoint body
type TestWebhookPayload struct {
	From    string `json:"from"`
	Message string `json:"message"`
	ID      string `json:"id"`
	Name    string `json:"name"`
}

// HandleTestWebhook processes a message without Twilio and returns the bot reply
func (h *WhatsAppHandler) HandleTestWebhook(c *fiber.Ctx) error {
	tenantID := c.Params("tenantID")

	var payload TestWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid test payload",
		})
	}

	h.logger.Debug().Str("tenant_id", tenantID).Str("from", payload.From).Msg("🧪 test webhook received")

	reply, err := h.test.ProcessMessage(c.UserContext(), tenantID, models.CustomerMessage{
		Text:        models.MessageText{Body: payload.Message},
		From:        payload.From,
		ID:          payload.ID,
		Type:        models.MessageTypeText,
		ProfileName: payload.Name,
	})
	switch {
	case errors.Is(err, services.ErrInvalidMessage):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrDuplicateMessage):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}

	// Handler failures are already folded into the reply
	return c.JSON(reply)
}
