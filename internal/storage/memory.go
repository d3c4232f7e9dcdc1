package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/KazimAndrei/HollyProject/internal/models"
)

// MemoryStorage provides thread-safe in-memory quota counters and entitlements
type MemoryStorage struct {
	mu           sync.RWMutex
	quotas       map[string]map[string]int // key: local day, then user id
	entitlements map[string]models.Entitlement
	loc          *time.Location
	now          func() time.Time
	logger       zerolog.Logger
}

// NewMemoryStorage creates a new in-memory storage instance. Days roll over at midnight in loc.
func NewMemoryStorage(loc *time.Location, logger zerolog.Logger) *MemoryStorage {
	if loc == nil {
		loc = time.Local
	}
	return &MemoryStorage{
		quotas:       make(map[string]map[string]int),
		entitlements: make(map[string]models.Entitlement),
		loc:          loc,
		now:          time.Now,
		logger:       logger.With().Str("component", "storage").Logger(),
	}
}

// Used returns how many free messages the user sent on now's local day
func (ms *MemoryStorage) Used(_ context.Context, userID string, now time.Time) (int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	return ms.quotas[dayKey(now, ms.loc)][userID], nil
}

// Increment bumps the user's counter for now's local day and returns the new value
func (ms *MemoryStorage) Increment(_ context.Context, userID string, now time.Time) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	day := dayKey(now, ms.loc)
	counters, ok := ms.quotas[day]
	if !ok {
		counters = make(map[string]int)
		ms.quotas[day] = counters
	}
	counters[userID]++

	ms.logger.Debug().Str("user_id", userID).Str("day", day).Int("count", counters[userID]).Msg("Quota incremented")
	return counters[userID], nil
}

// Release gives back one message counted on now's local day. Counters never go below zero
func (ms *MemoryStorage) Release(_ context.Context, userID string, now time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	counters := ms.quotas[dayKey(now, ms.loc)]
	if counters[userID] > 0 {
		counters[userID]--
	}
	return nil
}

// SaveEntitlement stores the user's latest verification, replacing any earlier one
func (ms *MemoryStorage) SaveEntitlement(_ context.Context, ent models.Entitlement) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.entitlements[ent.UserID] = ent
	return nil
}

// Entitlement returns the stored entitlement or ErrNotFound
func (ms *MemoryStorage) Entitlement(_ context.Context, userID string) (models.Entitlement, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	ent, ok := ms.entitlements[userID]
	if !ok {
		return models.Entitlement{}, ErrNotFound
	}
	return ent, nil
}

// Cleanup drops counters of past days and entitlements that lapsed before now
func (ms *MemoryStorage) Cleanup(now time.Time) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	today := dayKey(now, ms.loc)
	removedDays := 0
	for day := range ms.quotas {
		if day != today {
			delete(ms.quotas, day)
			removedDays++
		}
	}

	removedEnts := 0
	for userID, ent := range ms.entitlements {
		if ent.ExpiresAt != nil && !ent.ExpiresAt.After(now) {
			delete(ms.entitlements, userID)
			removedEnts++
		}
	}

	if removedDays > 0 || removedEnts > 0 {
		ms.logger.Debug().
			Int("days", removedDays).
			Int("entitlements", removedEnts).
			Msg("Cleanup completed")
	}
}

// StartCleanupRoutine runs Cleanup every interval until ctx is done
func (ms *MemoryStorage) StartCleanupRoutine(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ms.logger.Info().Dur("interval", interval).Msg("Started cleanup routine")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ms.Cleanup(ms.now())
		}
	}
}

// Stats returns the number of tracked users today and stored entitlements
func (ms *MemoryStorage) Stats(now time.Time) (int, int) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	return len(ms.quotas[dayKey(now, ms.loc)]), len(ms.entitlements)
}
