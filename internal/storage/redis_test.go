package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KazimAndrei/HollyProject/internal/models"
)

func newRedisStorage(t *testing.T, loc *time.Location) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStorage(client, loc, zerolog.Nop()), mr
}

func TestRedisStorage_Quota(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	s, mr := newRedisStorage(t, loc)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC) // 23:00 local
	mr.SetTime(now)

	used, err := s.Used(ctx, "u1", now)
	require.NoError(t, err)
	assert.Zero(t, used)

	for i := 1; i <= 2; i++ {
		n, err := s.Increment(ctx, "u1", now)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	used, err = s.Used(ctx, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, 2, used)

	key := "quota:u1:2026-03-01"
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))

	used, err = s.Used(ctx, "u1", now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, used, "new local day starts from zero")

	mr.FastForward(time.Hour)
	assert.False(t, mr.Exists(key))
}

func TestRedisStorage_Release(t *testing.T) {
	s, mr := newRedisStorage(t, time.UTC)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	mr.SetTime(now)

	for i := 0; i < 3; i++ {
		_, err := s.Increment(ctx, "u1", now)
		require.NoError(t, err)
	}
	require.NoError(t, s.Release(ctx, "u1", now))

	used, err := s.Used(ctx, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, 2, used)
	assert.Equal(t, 6*time.Hour, mr.TTL("quota:u1:2026-03-01"))
}

func TestRedisStorage_Entitlement(t *testing.T) {
	s, mr := newRedisStorage(t, time.UTC)
	ctx := context.Background()

	_, err := s.Entitlement(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	updated := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	expires := updated.Add(7 * 24 * time.Hour)
	ent := models.Entitlement{
		UserID:                "u1",
		Status:                models.StatusTrial,
		OriginalTransactionID: "1000000123456789",
		ExpiresAt:             &expires,
		UpdatedAt:             updated,
	}
	require.NoError(t, s.SaveEntitlement(ctx, ent))

	got, err := s.Entitlement(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ent.Status, got.Status)
	assert.Equal(t, ent.OriginalTransactionID, got.OriginalTransactionID)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, expires.Equal(*got.ExpiresAt))
	assert.Equal(t, 7*24*time.Hour, mr.TTL("entitlement:u1"))

	lapsed := updated.Add(-time.Hour)
	require.NoError(t, s.SaveEntitlement(ctx, models.Entitlement{UserID: "u2", Status: models.StatusExpired, ExpiresAt: &lapsed, UpdatedAt: updated}))
	assert.Equal(t, 24*time.Hour, mr.TTL("entitlement:u2"))
}

func TestRedisStorage_UnreadableEntitlement(t *testing.T) {
	s, mr := newRedisStorage(t, time.UTC)
	require.NoError(t, mr.Set("entitlement:u1", "{not json"))

	_, err := s.Entitlement(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	for _, addr := range []string{mr.Addr(), "redis://" + mr.Addr() + "/0"} {
		client, err := Connect(addr)
		require.NoError(t, err)
		s := NewRedisStorage(client, time.UTC, zerolog.Nop())
		assert.NoError(t, s.Ping(context.Background()))
		assert.NoError(t, s.Close())
	}

	_, err := Connect("redis://localhost:6379/notadb")
	assert.Error(t, err)
}
