package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Ananth-NQI/chatbook-backend/internal/models"
)

// ErrVersionConflict means the context changed since it was loaded
var ErrVersionConflict = errors.New("conversation context version conflict")

// ContextStore keeps ConversationContext between messages, addressed by (tenantID, phone).
// Save is optimistic: it succeeds only if the stored version equals c.Version, and bumps it.
type ContextStore interface {
	Load(ctx context.Context, tenantID, phone string) (*models.ConversationContext, error)
	Save(ctx context.Context, c *models.ConversationContext) error
	Delete(ctx context.Context, tenantID, phone string) error
	// MarkMessageSeen records an inbound message id; false means it was already handled
	MarkMessageSeen(ctx context.Context, tenantID, messageID string) (bool, error)
	// ForgetMessage drops the seen marker so a redelivery of messageID is processed again
	ForgetMessage(ctx context.Context, tenantID, messageID string) error
	List(ctx context.Context) ([]*models.ConversationContext, error)
}

func contextKey(tenantID, phone string) string {
	return tenantID + ":" + phone
}

// MemoryContextStore is a single-process ContextStore
type MemoryContextStore struct {
	mu       sync.RWMutex
	contexts map[string]*models.ConversationContext
	seen     map[string]time.Time
	seenTTL  time.Duration
}

// NewMemoryContextStore creates an in-memory context store
func NewMemoryContextStore() *MemoryContextStore {
	return &MemoryContextStore{
		contexts: make(map[string]*models.ConversationContext),
		seen:     make(map[string]time.Time),
		seenTTL:  24 * time.Hour,
	}
}

func (m *MemoryContextStore) Load(_ context.Context, tenantID, phone string) (*models.ConversationContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contexts[contextKey(tenantID, phone)]
	if !ok {
		return nil, fmt.Errorf("context %s/%s: %w", tenantID, phone, ErrNotFound)
	}
	return c.Clone(), nil
}

func (m *MemoryContextStore) Save(_ context.Context, c *models.ConversationContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := contextKey(c.TenantID, c.CustomerPhone)
	current, ok := m.contexts[key]
	switch {
	case ok && current.Version != c.Version:
		return ErrVersionConflict
	case !ok && c.Version != 0:
		return ErrVersionConflict
	}
	c.Version++
	m.contexts[key] = c.Clone()
	return nil
}

func (m *MemoryContextStore) Delete(_ context.Context, tenantID, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contexts, contextKey(tenantID, phone))
	return nil
}

func (m *MemoryContextStore) MarkMessageSeen(_ context.Context, tenantID, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	key := contextKey(tenantID, messageID)
	if at, ok := m.seen[key]; ok && now.Sub(at) < m.seenTTL {
		return false, nil
	}
	m.seen[key] = now
	return true, nil
}

func (m *MemoryContextStore) ForgetMessage(_ context.Context, tenantID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, contextKey(tenantID, messageID))
	return nil
}

func (m *MemoryContextStore) List(_ context.Context) ([]*models.ConversationContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.ConversationContext, 0, len(m.contexts))
	for _, c := range m.contexts {
		out = append(out, c.Clone())
	}
	return out, nil
}

// Sweep drops seen-message markers older than the dedupe window
func (m *MemoryContextStore) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, at := range m.seen {
		if now.Sub(at) >= m.seenTTL {
			delete(m.seen, key)
			removed++
		}
	}
	return removed
}
