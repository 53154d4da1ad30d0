package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/chatbook-backend/internal/models"
	"github.com/Ananth-NQI/chatbook-backend/internal/storage"
)

const (
	DefaultSessionTTL       = 24 * time.Hour
	DefaultContextRetention = 30 * 24 * time.Hour
)

// SessionManager loads and stores conversation contexts and decides when an idle
// dialogue has expired
type SessionManager struct {
	store     storage.ContextStore
	ttl       time.Duration
	retention time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

// SessionConfig tunes expiry. Zero values take the defaults.
type SessionConfig struct {
	TTL       time.Duration
	Retention time.Duration
	Clock     func() time.Time
}

// NewSessionManager creates a session manager over a context store
func NewSessionManager(store storage.ContextStore, logger zerolog.Logger, cfg SessionConfig) *SessionManager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultContextRetention
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &SessionManager{
		store:     store,
		ttl:       cfg.TTL,
		retention: cfg.Retention,
		now:       cfg.Clock,
		logger:    logger.With().Str("component", "session_manager").Logger(),
	}
}

// Open returns the context for (tenantID, phone), creating one at welcome if none exists.
// A dialogue left idle past the TTL before completion starts over.
func (sm *SessionManager) Open(ctx context.Context, tenantID, phone string) (*models.ConversationContext, error) {
	now := sm.now()
	c, err := sm.store.Load(ctx, tenantID, phone)
	if errors.Is(err, storage.ErrNotFound) {
		sm.logger.Debug().Str("tenant_id", tenantID).Str("phone", phone).Msg("new conversation")
		return models.NewConversationContext(tenantID, phone, now), nil
	}
	if err != nil {
		return nil, err
	}

	c.Normalize()
	if sm.expired(c, now) {
		sm.logger.Info().
			Str("tenant_id", tenantID).
			Str("phone", phone).
			Str("step", string(c.CurrentStep)).
			Time("last_active", c.UpdatedAt).
			Msg("session expired, restarting conversation")
		c.Restart()
		c.UpdatedAt = now
	}
	return c, nil
}

// Save persists c, failing with storage.ErrVersionConflict if another writer got there first
func (sm *SessionManager) Save(ctx context.Context, c *models.ConversationContext) error {
	return sm.store.Save(ctx, c)
}

// Reset forgets the conversation entirely
func (sm *SessionManager) Reset(ctx context.Context, tenantID, phone string) error {
	return sm.store.Delete(ctx, tenantID, phone)
}

func (sm *SessionManager) expired(c *models.ConversationContext, now time.Time) bool {
	if c.CurrentStep == models.StepWelcome || c.CurrentStep == models.StepCompleted {
		return false
	}
	return now.Sub(c.UpdatedAt) > sm.ttl
}

// ActiveSessions returns the dialogues still in progress
func (sm *SessionManager) ActiveSessions(ctx context.Context) ([]*models.ConversationContext, error) {
	all, err := sm.store.List(ctx)
	if err != nil {
		return nil, err
	}
	now := sm.now()
	active := []*models.ConversationContext{}
	for _, c := range all {
		if c.CurrentStep != models.StepCompleted && now.Sub(c.UpdatedAt) <= sm.ttl {
			active = append(active, c)
		}
	}
	return active, nil
}

// SessionStats summarises stored conversations
type SessionStats struct {
	ActiveSessions  int            `json:"active_sessions"`
	TotalSessions   int            `json:"total_sessions"`
	SessionsByStep  map[string]int `json:"sessions_by_step"`
	AverageDuration float64        `json:"average_duration_minutes"`
}

// Stats returns current session statistics
func (sm *SessionManager) Stats(ctx context.Context) (*SessionStats, error) {
	all, err := sm.store.List(ctx)
	if err != nil {
		return nil, err
	}

	now := sm.now()
	stats := &SessionStats{
		TotalSessions:  len(all),
		SessionsByStep: make(map[string]int),
	}
	totalDuration := 0.0
	for _, c := range all {
		stats.SessionsByStep[string(c.CurrentStep)]++
		if c.CurrentStep != models.StepCompleted && now.Sub(c.UpdatedAt) <= sm.ttl {
			stats.ActiveSessions++
			totalDuration += c.UpdatedAt.Sub(c.CreatedAt).Minutes()
		}
	}
	if stats.ActiveSessions > 0 {
		stats.AverageDuration = totalDuration / float64(stats.ActiveSessions)
	}
	return stats, nil
}

// Cleanup deletes contexts untouched for longer than the retention window
func (sm *SessionManager) Cleanup(ctx context.Context) (int, error) {
	all, err := sm.store.List(ctx)
	if err != nil {
		return 0, err
	}
	now := sm.now()
	removed := 0
	for _, c := range all {
		if now.Sub(c.UpdatedAt) <= sm.retention {
			continue
		}
		if err := sm.store.Delete(ctx, c.TenantID, c.CustomerPhone); err != nil {
			return removed, err
		}
		removed++
	}
	if sweeper, ok := sm.store.(interface{ Sweep(time.Time) int }); ok {
		sweeper.Sweep(now)
	}
	return removed, nil
}

// RunCleanup calls Cleanup every interval until ctx is cancelled
func (sm *SessionManager) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := sm.Cleanup(ctx)
			if err != nil {
				sm.logger.Error().Err(err).Msg("session cleanup failed")
				continue
			}
			if removed > 0 {
				sm.logger.Info().Int("removed", removed).Msg("cleaned up stale conversations")
			}
		}
	}
}
