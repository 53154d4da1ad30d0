package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ananth-NQI/chatbook-backend/internal/metrics"
	"github.com/Ananth-NQI/chatbook-backend/internal/models"
	"github.com/Ananth-NQI/chatbook-backend/internal/storage"
)

// conflictingStore fails the first conflicts saves with a version conflict
// and the first loadFailures loads with loadErr
type conflictingStore struct {
	*storage.MemoryContextStore
	mu           sync.Mutex
	conflicts    int
	saves        int
	saveErr      error
	loadFailures int
	loadErr      error
}

func (s *conflictingStore) Load(ctx context.Context, tenantID, phone string) (*models.ConversationContext, error) {
	s.mu.Lock()
	if s.loadFailures > 0 {
		s.loadFailures--
		s.mu.Unlock()
		return nil, s.loadErr
	}
	s.mu.Unlock()
	return s.MemoryContextStore.Load(ctx, tenantID, phone)
}

func (s *conflictingStore) Save(ctx context.Context, c *models.ConversationContext) error {
	s.mu.Lock()
	s.saves++
	if s.saveErr != nil {
		s.mu.Unlock()
		return s.saveErr
	}
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return storage.ErrVersionConflict
	}
	s.mu.Unlock()
	return s.MemoryContextStore.Save(ctx, c)
}

type conversationFixture struct {
	store      *storage.MemoryStore
	contexts   *conflictingStore
	dispatcher *RecordingDispatcher
	svc        *ConversationService
}

func newConversationFixture(t *testing.T) *conversationFixture {
	store := storage.NewMemoryStore()
	seedTenant(t, store, &models.Tenant{ID: testTenant, Name: "Glow Salon", Timezone: "UTC", Currency: "INR"}, true)
	contexts := &conflictingStore{MemoryContextStore: storage.NewMemoryContextStore()}
	now := testNow
	sessions := newTestSessions(contexts, &now)
	dispatcher := NewRecordingDispatcher(zerolog.Nop())
	m := metrics.NewConversationMetrics(prometheus.NewRegistry())

	return &conversationFixture{
		store:      store,
		contexts:   contexts,
		dispatcher: dispatcher,
		svc:        NewConversationService(sessions, contexts, newTestFlow(store), dispatcher, m, zerolog.Nop()),
	}
}

func textMessage(id, body string) models.CustomerMessage {
	return models.CustomerMessage{
		Text: models.MessageText{Body: body},
		From: "whatsapp:" + testPhone,
		ID:   id,
		Type: models.MessageTypeText,
	}
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+919876543210", NormalizePhone("whatsapp:+919876543210"))
	assert.Equal(t, "+919876543210", NormalizePhone("  whatsapp:+919876543210 "))
	assert.Equal(t, "+15551234", NormalizePhone("+15551234"))
	assert.Equal(t, "", NormalizePhone("whatsapp:"))
}

func TestProcessMessageBooksAppointment(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()

	var reply models.BotReply
	for i, body := range []string{"hi", "book", "3", "1", "2pm", "2", "yes"} {
		var err error
		reply, err = f.svc.ProcessMessage(ctx, testTenant, textMessage(string(rune('a'+i)), body))
		require.NoError(t, err, body)
		require.True(t, reply.Success, "%s: %s", body, reply.Message)
	}

	assert.NotEmpty(t, reply.AppointmentID)
	assert.Equal(t, 1, f.store.BookingCount())

	sent := f.dispatcher.Sent()
	require.Len(t, sent, 7)
	assert.Equal(t, testPhone, sent[0].To)
	assert.Contains(t, sent[6].Body, reply.AppointmentID)

	stored, err := f.contexts.Load(ctx, testTenant, testPhone)
	require.NoError(t, err)
	assert.Equal(t, models.StepCompleted, stored.CurrentStep)
	assert.Equal(t, int64(7), stored.Version)
	assert.Equal(t, reply.AppointmentID, stored.LastAppointmentID)
}

func TestProcessMessageRejectsInvalid(t *testing.T) {
	f := newConversationFixture(t)

	_, err := f.svc.ProcessMessage(context.Background(), "", textMessage("m1", "book"))
	assert.ErrorIs(t, err, ErrInvalidMessage)

	msg := textMessage("m2", "book")
	msg.From = "whatsapp:"
	_, err = f.svc.ProcessMessage(context.Background(), testTenant, msg)
	assert.ErrorIs(t, err, ErrInvalidMessage)
	assert.Empty(t, f.dispatcher.Sent())
}

func TestProcessMessageIgnoresDuplicates(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()

	_, err := f.svc.ProcessMessage(ctx, testTenant, textMessage("SM1", "book"))
	require.NoError(t, err)

	_, err = f.svc.ProcessMessage(ctx, testTenant, textMessage("SM1", "book"))
	assert.ErrorIs(t, err, ErrDuplicateMessage)
	assert.Len(t, f.dispatcher.Sent(), 1)

	stored, err := f.contexts.Load(ctx, testTenant, testPhone)
	require.NoError(t, err)
	assert.Equal(t, models.StepServiceSelection, stored.CurrentStep)
	assert.Equal(t, int64(1), stored.Version)
}

func TestProcessMessageNonTextLeavesContextAlone(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()

	msg := textMessage("MM1", "")
	msg.Type = "image"
	reply, err := f.svc.ProcessMessage(ctx, testTenant, msg)
	require.NoError(t, err)
	assert.False(t, reply.Success)
	assert.Equal(t, unsupportedTypeMessage, reply.Message)

	reply, err = f.svc.ProcessMessage(ctx, testTenant, textMessage("SM2", "   "))
	require.NoError(t, err)
	assert.Equal(t, unsupportedTypeMessage, reply.Message)

	_, err = f.contexts.Load(ctx, testTenant, testPhone)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Len(t, f.dispatcher.Sent(), 2)
}

func TestProcessMessageRetriesVersionConflict(t *testing.T) {
	f := newConversationFixture(t)
	f.contexts.conflicts = 2

	reply, err := f.svc.ProcessMessage(context.Background(), testTenant, textMessage("SM1", "book"))
	require.NoError(t, err)
	assert.True(t, reply.Success)
	assert.Equal(t, 3, f.contexts.saves)
	assert.Len(t, f.dispatcher.Sent(), 1, "one reply per message regardless of retries")

	stored, err := f.contexts.Load(context.Background(), testTenant, testPhone)
	require.NoError(t, err)
	assert.Equal(t, models.StepServiceSelection, stored.CurrentStep)
}

func TestProcessMessageGivesUpAfterRepeatedConflicts(t *testing.T) {
	f := newConversationFixture(t)
	f.contexts.conflicts = 10

	reply, err := f.svc.ProcessMessage(context.Background(), testTenant, textMessage("SM1", "book"))
	assert.ErrorIs(t, err, storage.ErrVersionConflict)
	assert.False(t, reply.Success)
	assert.Equal(t, apologyMessage, reply.Message)
	assert.Equal(t, defaultSaveAttempts, f.contexts.saves)
}

func TestProcessMessageDeliversReplyWhenSaveFails(t *testing.T) {
	f := newConversationFixture(t)
	f.contexts.saveErr = errors.New("redis unavailable")

	reply, err := f.svc.ProcessMessage(context.Background(), testTenant, textMessage("SM1", "book"))
	require.NoError(t, err)
	assert.True(t, reply.Success)
	assert.Len(t, f.dispatcher.Sent(), 1)
}

func TestProcessMessageRedeliveryAfterLoadFailure(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()
	f.contexts.loadFailures = 1
	f.contexts.loadErr = errors.New("redis timeout")

	reply, err := f.svc.ProcessMessage(ctx, testTenant, textMessage("SM1", "book"))
	require.Error(t, err)
	assert.Equal(t, apologyMessage, reply.Message)

	reply, err = f.svc.ProcessMessage(ctx, testTenant, textMessage("SM1", "book"))
	require.NoError(t, err)
	assert.True(t, reply.Success)

	stored, err := f.contexts.Load(ctx, testTenant, testPhone)
	require.NoError(t, err)
	assert.Equal(t, models.StepServiceSelection, stored.CurrentStep)
	assert.Len(t, f.dispatcher.Sent(), 2)

	_, err = f.svc.ProcessMessage(ctx, testTenant, textMessage("SM1", "book"))
	assert.ErrorIs(t, err, ErrDuplicateMessage, "a handled message is still deduplicated")
}

func TestProcessMessageRedeliveryAfterRepeatedConflicts(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()
	f.contexts.conflicts = defaultSaveAttempts

	_, err := f.svc.ProcessMessage(ctx, testTenant, textMessage("SM1", "book"))
	require.ErrorIs(t, err, storage.ErrVersionConflict)

	reply, err := f.svc.ProcessMessage(ctx, testTenant, textMessage("SM1", "book"))
	require.NoError(t, err)
	assert.True(t, reply.Success)

	stored, err := f.contexts.Load(ctx, testTenant, testPhone)
	require.NoError(t, err)
	assert.Equal(t, models.StepServiceSelection, stored.CurrentStep)
}

func TestProcessMessageRedeliveryAfterSaveFailure(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()
	f.contexts.saveErr = errors.New("redis unavailable")

	_, err := f.svc.ProcessMessage(ctx, testTenant, textMessage("SM1", "book"))
	require.NoError(t, err)

	f.contexts.mu.Lock()
	f.contexts.saveErr = nil
	f.contexts.mu.Unlock()

	reply, err := f.svc.ProcessMessage(ctx, testTenant, textMessage("SM1", "book"))
	require.NoError(t, err)
	assert.True(t, reply.Success)

	stored, err := f.contexts.Load(ctx, testTenant, testPhone)
	require.NoError(t, err)
	assert.Equal(t, models.StepServiceSelection, stored.CurrentStep)
}

func TestProcessMessageRedeliveredConfirmationAfterPersistenceFailure(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()

	for i, body := range []string{"book", "3", "1", "2pm", "2"} {
		_, err := f.svc.ProcessMessage(ctx, testTenant, textMessage(string(rune('a'+i)), body))
		require.NoError(t, err, body)
	}

	f.store.FailBookings = errors.New("database unavailable")
	reply, err := f.svc.ProcessMessage(ctx, testTenant, textMessage("SM-yes", "yes"))
	require.NoError(t, err)
	require.False(t, reply.Success)
	assert.Equal(t, 0, f.store.BookingCount())

	f.store.FailBookings = nil
	reply, err = f.svc.ProcessMessage(ctx, testTenant, textMessage("SM-yes", "yes"))
	require.NoError(t, err)
	assert.True(t, reply.Success, reply.Message)
	assert.NotEmpty(t, reply.AppointmentID)
	assert.Equal(t, 1, f.store.BookingCount())
}

func TestProcessMessageDispatchFailureIsNotFatal(t *testing.T) {
	f := newConversationFixture(t)
	f.dispatcher.Err = errors.New("twilio down")

	reply, err := f.svc.ProcessMessage(context.Background(), testTenant, textMessage("SM1", "book"))
	require.NoError(t, err)
	assert.True(t, reply.Success)
	assert.Empty(t, f.dispatcher.Sent())

	stored, err := f.contexts.Load(context.Background(), testTenant, testPhone)
	require.NoError(t, err)
	assert.Equal(t, models.StepServiceSelection, stored.CurrentStep)
}

func TestProcessMessageWithoutDispatcher(t *testing.T) {
	store := storage.NewMemoryStore()
	seedTenant(t, store, &models.Tenant{ID: testTenant}, true)
	contexts := storage.NewMemoryContextStore()
	now := testNow
	svc := NewConversationService(newTestSessions(contexts, &now), contexts, newTestFlow(store), nil, nil, zerolog.Nop())

	reply, err := svc.ProcessMessage(context.Background(), testTenant, textMessage("", "book"))
	require.NoError(t, err)
	assert.True(t, reply.Success)
	assert.Contains(t, reply.Message, "*Haircut*")
}

func TestProcessMessageConcurrentCustomersAreIsolated(t *testing.T) {
	f := newConversationFixture(t)
	phones := []string{"+911", "+912", "+913", "+914"}

	var wg sync.WaitGroup
	for _, phone := range phones {
		wg.Add(1)
		go func(phone string) {
			defer wg.Done()
			msg := textMessage("", "book")
			msg.From = phone
			_, err := f.svc.ProcessMessage(context.Background(), testTenant, msg)
			assert.NoError(t, err)
		}(phone)
	}
	wg.Wait()

	for _, phone := range phones {
		stored, err := f.contexts.Load(context.Background(), testTenant, phone)
		require.NoError(t, err)
		assert.Equal(t, models.StepServiceSelection, stored.CurrentStep)
	}
}

func TestRecordingDispatcher(t *testing.T) {
	d := NewRecordingDispatcher(zerolog.Nop())
	require.NoError(t, d.Send(context.Background(), "+1", "hello"))
	require.NoError(t, d.Send(context.Background(), "+2", "bye"))

	sent := d.Sent()
	assert.Equal(t, []SentMessage{{To: "+1", Body: "hello"}, {To: "+2", Body: "bye"}}, sent)

	sent[0].Body = "changed"
	assert.Equal(t, "hello", d.Sent()[0].Body)

	d.Err = errors.New("boom")
	assert.EqualError(t, d.Send(context.Background(), "+3", "x"), "boom")
	assert.Len(t, d.Sent(), 2)
}

func TestNewTwilioServiceRequiresCredentials(t *testing.T) {
	_, err := NewTwilioService(TwilioConfig{AccountSID: "AC123"}, zerolog.Nop())
	assert.Error(t, err)

	svc, err := NewTwilioService(TwilioConfig{AccountSID: "AC123", AuthToken: "secret", WhatsAppFrom: "+14155238886"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "whatsapp:+14155238886", svc.from)
}
