package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/chatbook-backend/internal/metrics"
	"github.com/Ananth-NQI/chatbook-backend/internal/models"
	"github.com/Ananth-NQI/chatbook-backend/internal/storage"
)

var (
	// ErrDuplicateMessage means the message id was already processed
	ErrDuplicateMessage = errors.New("duplicate inbound message")
	// ErrInvalidMessage means the message lacks a tenant or sender
	ErrInvalidMessage = errors.New("invalid inbound message")
)

const defaultSaveAttempts = 3

const unsupportedTypeMessage = "🙏 Sorry, I can only read text messages. Type *book* to make an appointment."

// MessageHandler advances a conversation by one message
type MessageHandler interface {
	Handle(ctx context.Context, msg models.CustomerMessage, tenantID string, c *models.ConversationContext) models.BotReply
}

// ConversationService runs one inbound message through load, handle, save and dispatch
type ConversationService struct {
	sessions   *SessionManager
	seen       storage.ContextStore
	flow       MessageHandler
	dispatcher Dispatcher
	metrics    *metrics.ConversationMetrics
	logger     zerolog.Logger
	attempts   int
}

// NewConversationService wires the pipeline. dispatcher and m may be nil.
func NewConversationService(
	sessions *SessionManager,
	seen storage.ContextStore,
	flow MessageHandler,
	dispatcher Dispatcher,
	m *metrics.ConversationMetrics,
	logger zerolog.Logger,
) *ConversationService {
	return &ConversationService{
		sessions:   sessions,
		seen:       seen,
		flow:       flow,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger.With().Str("component", "conversation").Logger(),
		attempts:   defaultSaveAttempts,
	}
}

// NormalizePhone strips the WhatsApp channel prefix and surrounding space
func NormalizePhone(from string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(from), "whatsapp:"))
}

// ProcessMessage handles msg for tenantID and sends the reply. Concurrent messages
// from the same customer are serialised through optimistic saves; a handler whose
// save loses the race is re-run on the fresh context.
func (s *ConversationService) ProcessMessage(ctx context.Context, tenantID string, msg models.CustomerMessage) (models.BotReply, error) {
	start := time.Now()
	phone := NormalizePhone(msg.From)
	if tenantID == "" || phone == "" {
		s.metrics.ObserveInbound("whatsapp", "invalid")
		return models.BotReply{}, fmt.Errorf("%w: tenant and sender are required", ErrInvalidMessage)
	}
	msg.From = phone

	log := s.logger.With().
		Str("tenant_id", tenantID).
		Str("phone", phone).
		Str("message_id", msg.ID).
		Logger()

	marked := false
	if msg.ID != "" && s.seen != nil {
		first, err := s.seen.MarkMessageSeen(ctx, tenantID, msg.ID)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("dedupe check failed, processing anyway")
		case first:
			marked = true
		case !first:
			log.Info().Msg("duplicate message ignored")
			s.metrics.ObserveInbound("whatsapp", "duplicate")
			return models.BotReply{}, ErrDuplicateMessage
		}
	}

	if (msg.Type != "" && msg.Type != models.MessageTypeText) || strings.TrimSpace(msg.Text.Body) == "" {
		s.metrics.ObserveInbound("whatsapp", "unsupported")
		reply := models.BotReply{Success: false, Message: unsupportedTypeMessage, Error: "unsupported message type"}
		s.dispatch(ctx, log, phone, reply)
		return reply, nil
	}

	var (
		reply models.BotReply
		from  models.Step
		conv  *models.ConversationContext
	)
	for attempt := 1; ; attempt++ {
		c, err := s.sessions.Open(ctx, tenantID, phone)
		if err != nil {
			log.Error().Err(err).Msg("failed to load conversation")
			s.metrics.ObserveInbound("whatsapp", "error")
			s.forget(ctx, log, marked, tenantID, msg.ID)
			reply = failure(models.StepWelcome, err)
			s.dispatch(ctx, log, phone, reply)
			return reply, err
		}
		from = c.CurrentStep
		reply = s.flow.Handle(ctx, msg, tenantID, c)

		err = s.sessions.Save(ctx, c)
		if err == nil {
			conv = c
			break
		}
		if errors.Is(err, storage.ErrVersionConflict) {
			s.metrics.ObserveConflict()
			if attempt < s.attempts {
				log.Debug().Int("attempt", attempt).Msg("context changed concurrently, retrying")
				continue
			}
			log.Error().Err(err).Int("attempts", attempt).Msg("giving up after repeated version conflicts")
			s.metrics.ObserveInbound("whatsapp", "conflict")
			s.forget(ctx, log, marked, tenantID, msg.ID)
			reply = failure(from, err)
			s.dispatch(ctx, log, phone, reply)
			return reply, err
		}
		// The reply may already reflect a stored booking, so it is still delivered
		log.Error().Err(err).Msg("failed to save conversation")
		s.forget(ctx, log, marked, tenantID, msg.ID)
		marked = false
		conv = c
		break
	}
	if reply.Error != "" {
		// Failed turns leave the message retryable when the channel redelivers it
		s.forget(ctx, log, marked, tenantID, msg.ID)
	}

	s.metrics.ObserveTransition(string(from), string(conv.CurrentStep), reply.Success)
	if reply.AppointmentID != "" && from == models.StepConfirmation {
		s.metrics.ObserveBooking(tenantID)
	}
	s.metrics.ObserveInbound("whatsapp", "processed")
	s.metrics.ObserveLatency(string(from), time.Since(start).Seconds())

	log.Info().
		Str("from_step", string(from)).
		Str("to_step", string(conv.CurrentStep)).
		Bool("success", reply.Success).
		Msg("message processed")

	s.dispatch(ctx, log, phone, reply)
	return reply, nil
}

// forget clears the dedupe marker of a message whose processing did not complete
func (s *ConversationService) forget(ctx context.Context, log zerolog.Logger, marked bool, tenantID, messageID string) {
	if !marked {
		return
	}
	if err := s.seen.ForgetMessage(ctx, tenantID, messageID); err != nil {
		log.Warn().Err(err).Msg("failed to clear message marker")
	}
}

func (s *ConversationService) dispatch(ctx context.Context, log zerolog.Logger, to string, reply models.BotReply) {
	if s.dispatcher == nil || reply.Message == "" {
		return
	}
	if err := s.dispatcher.Send(ctx, to, reply.Message); err != nil {
		log.Error().Err(err).Msg("failed to send reply")
		s.metrics.ObserveOutbound("failed")
		return
	}
	s.metrics.ObserveOutbound("sent")
}
