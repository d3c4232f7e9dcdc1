package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/KazimAndrei/HollyProject/internal/models"
)

const (
	quotaPrefix       = "quota:"
	entitlementPrefix = "entitlement:"

	// lapsedEntitlementTTL keeps already-expired entitlements readable for a while.
	lapsedEntitlementTTL = 24 * time.Hour
)

// Connect initializes a Redis client from URL or host:port input.
func Connect(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisStorage keeps quota counters and entitlements in Redis.
type RedisStorage struct {
	client *redis.Client
	loc    *time.Location
	logger zerolog.Logger
}

func NewRedisStorage(client *redis.Client, loc *time.Location, logger zerolog.Logger) *RedisStorage {
	if loc == nil {
		loc = time.Local
	}
	return &RedisStorage{
		client: client,
		loc:    loc,
		logger: logger.With().Str("component", "redis_storage").Logger(),
	}
}

func quotaKey(userID, day string) string {
	return quotaPrefix + userID + ":" + day
}

func (s *RedisStorage) Used(ctx context.Context, userID string, now time.Time) (int, error) {
	n, err := s.client.Get(ctx, quotaKey(userID, dayKey(now, s.loc))).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read quota: %w", err)
	}
	return n, nil
}

// Increment counts one message and arms the key to expire at the next local midnight.
func (s *RedisStorage) Increment(ctx context.Context, userID string, now time.Time) (int, error) {
	key := quotaKey(userID, dayKey(now, s.loc))

	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.ExpireAt(ctx, key, nextMidnight(now, s.loc))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment quota: %w", err)
	}
	return int(incr.Val()), nil
}

// Release gives back one message. The key keeps its midnight expiry.
func (s *RedisStorage) Release(ctx context.Context, userID string, now time.Time) error {
	key := quotaKey(userID, dayKey(now, s.loc))

	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Decr(ctx, key)
		p.ExpireAt(ctx, key, nextMidnight(now, s.loc))
		return nil
	})
	if err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	return nil
}

func (s *RedisStorage) SaveEntitlement(ctx context.Context, ent models.Entitlement) error {
	data, err := json.Marshal(ent)
	if err != nil {
		return fmt.Errorf("marshal entitlement: %w", err)
	}

	ttl := lapsedEntitlementTTL
	if ent.ExpiresAt != nil {
		if until := ent.ExpiresAt.Sub(ent.UpdatedAt); until > ttl {
			ttl = until
		}
	}

	if err := s.client.Set(ctx, entitlementPrefix+ent.UserID, data, ttl).Err(); err != nil {
		return fmt.Errorf("save entitlement: %w", err)
	}
	return nil
}

func (s *RedisStorage) Entitlement(ctx context.Context, userID string) (models.Entitlement, error) {
	data, err := s.client.Get(ctx, entitlementPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Entitlement{}, ErrNotFound
	}
	if err != nil {
		return models.Entitlement{}, fmt.Errorf("read entitlement: %w", err)
	}

	var ent models.Entitlement
	if err := json.Unmarshal(data, &ent); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("Discarding unreadable entitlement")
		return models.Entitlement{}, ErrNotFound
	}
	return ent, nil
}

// Ping checks connectivity.
func (s *RedisStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
