package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Dispatcher delivers a bot reply to a customer
type Dispatcher interface {
	Send(ctx context.Context, to, body string) error
}

// TwilioConfig holds the Twilio credentials
type TwilioConfig struct {
	AccountSID   string
	AuthToken    string
	WhatsAppFrom string // "whatsapp:+14155238886"
}

// TwilioService sends WhatsApp messages through the Twilio REST API
type TwilioService struct {
	client *twilio.RestClient
	from   string
	logger zerolog.Logger
}

// NewTwilioService creates a new Twilio service instance
func NewTwilioService(cfg TwilioConfig, logger zerolog.Logger) (*TwilioService, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.WhatsAppFrom == "" {
		return nil, fmt.Errorf("missing Twilio credentials")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	from := cfg.WhatsAppFrom
	if !strings.HasPrefix(from, "whatsapp:") {
		from = "whatsapp:" + from
	}
	return &TwilioService{
		client: client,
		from:   from,
		logger: logger.With().Str("component", "twilio").Logger(),
	}, nil
}

// Send sends a WhatsApp text message via Twilio
func (t *TwilioService) Send(_ context.Context, to, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo("whatsapp:" + strings.TrimPrefix(to, "whatsapp:"))
	params.SetBody(body)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		t.logger.Error().Err(err).Str("to", to).Msg("failed to send WhatsApp message")
		return fmt.Errorf("twilio: send message: %w", err)
	}
	if resp.ErrorCode != nil && *resp.ErrorCode != 0 {
		msg := ""
		if resp.ErrorMessage != nil {
			msg = *resp.ErrorMessage
		}
		return fmt.Errorf("twilio error %d: %s", *resp.ErrorCode, msg)
	}

	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	t.logger.Info().Str("to", to).Str("sid", sid).Msg("WhatsApp message sent")
	return nil
}

// SentMessage is one message captured by RecordingDispatcher
type SentMessage struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// RecordingDispatcher keeps messages in memory. It is used when Twilio is not
// configured and in tests.
type RecordingDispatcher struct {
	mu     sync.Mutex
	sent   []SentMessage
	logger zerolog.Logger

	// Err, when set, is returned by every Send
	Err error
}

// NewRecordingDispatcher creates a dispatcher that only logs and records
func NewRecordingDispatcher(logger zerolog.Logger) *RecordingDispatcher {
	return &RecordingDispatcher{logger: logger.With().Str("component", "dispatcher").Logger()}
}

func (d *RecordingDispatcher) Send(_ context.Context, to, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.sent = append(d.sent, SentMessage{To: to, Body: body})
	d.logger.Debug().Str("to", to).Int("length", len(body)).Msg("message recorded")
	return nil
}

// Sent returns a copy of everything sent so far
func (d *RecordingDispatcher) Sent() []SentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]SentMessage(nil), d.sent...)
}
