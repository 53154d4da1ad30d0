package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ananth-NQI/chatbook-backend/internal/models"
)

const (
	contextKeyPrefix = "conversation_context:"
	seenKeyPrefix    = "inbound_message:"
	seenMessageTTL   = 24 * time.Hour
)

// RedisContextStore shares conversation contexts between processes
type RedisContextStore struct {
	redis     *redis.Client
	tracer    trace.Tracer
	retention time.Duration
}

// NewRedisContextStore creates a Redis-backed context store. retention bounds how long an
// untouched context survives; zero keeps contexts forever.
func NewRedisContextStore(client *redis.Client, retention time.Duration, tracer trace.Tracer) *RedisContextStore {
	if client == nil {
		panic("storage: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("chatbook.internal.storage.context")
	}
	return &RedisContextStore{redis: client, tracer: tracer, retention: retention}
}

func redisContextKey(tenantID, phone string) string {
	return contextKeyPrefix + contextKey(tenantID, phone)
}

func (s *RedisContextStore) Load(ctx context.Context, tenantID, phone string) (*models.ConversationContext, error) {
	ctx, span := s.tracer.Start(ctx, "conversation_context.load",
		trace.WithAttributes(attribute.String("tenant_id", tenantID)))
	defer span.End()

	data, err := s.redis.Get(ctx, redisContextKey(tenantID, phone)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("context %s/%s: %w", tenantID, phone, ErrNotFound)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("storage: load context: %w", err)
	}

	var c models.ConversationContext
	if err := json.Unmarshal(data, &c); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("storage: decode context: %w", err)
	}
	return &c, nil
}

func (s *RedisContextStore) Save(ctx context.Context, c *models.ConversationContext) error {
	ctx, span := s.tracer.Start(ctx, "conversation_context.save",
		trace.WithAttributes(attribute.String("tenant_id", c.TenantID), attribute.Int64("version", c.Version)))
	defer span.End()

	key := redisContextKey(c.TenantID, c.CustomerPhone)
	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if c.Version != 0 {
				return ErrVersionConflict
			}
		case err != nil:
			return err
		default:
			var stored models.ConversationContext
			if err := json.Unmarshal(data, &stored); err != nil {
				return fmt.Errorf("storage: decode context: %w", err)
			}
			if stored.Version != c.Version {
				return ErrVersionConflict
			}
		}

		next := c.Clone()
		next.Version = c.Version + 1
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("storage: encode context: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.retention)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		err = ErrVersionConflict
	}
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrVersionConflict) {
			return err
		}
		return fmt.Errorf("storage: save context: %w", err)
	}
	c.Version++
	return nil
}

func (s *RedisContextStore) Delete(ctx context.Context, tenantID, phone string) error {
	if err := s.redis.Del(ctx, redisContextKey(tenantID, phone)).Err(); err != nil {
		return fmt.Errorf("storage: delete context: %w", err)
	}
	return nil
}

func (s *RedisContextStore) MarkMessageSeen(ctx context.Context, tenantID, messageID string) (bool, error) {
	ok, err := s.redis.SetNX(ctx, seenKeyPrefix+contextKey(tenantID, messageID), 1, seenMessageTTL).Result()
	if err != nil {
		return false, fmt.Errorf("storage: mark message seen: %w", err)
	}
	return ok, nil
}

func (s *RedisContextStore) ForgetMessage(ctx context.Context, tenantID, messageID string) error {
	if err := s.redis.Del(ctx, seenKeyPrefix+contextKey(tenantID, messageID)).Err(); err != nil {
		return fmt.Errorf("storage: forget message: %w", err)
	}
	return nil
}

func (s *RedisContextStore) List(ctx context.Context) ([]*models.ConversationContext, error) {
	var out []*models.ConversationContext
	iter := s.redis.Scan(ctx, 0, contextKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.redis.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("storage: list contexts: %w", err)
		}
		var c models.ConversationContext
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("storage: decode context: %w", err)
		}
		out = append(out, &c)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("storage: scan contexts: %w", err)
	}
	return out, nil
}
