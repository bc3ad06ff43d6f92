// Package cache is a redis-backed read-through cache for slot availability
// listings. A nil client degrades to a no-op so the store is always the
// source of truth.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"nailbook/internal/models"
)

// AvailabilityCache caches per-date slot listings. Every slot mutation on a
// date must invalidate that date.
type AvailabilityCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger
}

// New creates the cache. client may be nil to disable caching.
func New(client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *AvailabilityCache {
	return &AvailabilityCache{redis: client, ttl: ttl, logger: logger}
}

func dateKey(date string) string {
	return fmt.Sprintf("availability:%s", date)
}

func listingKey(date string, technicianID int64) string {
	return fmt.Sprintf("availability:%s:%d", date, technicianID)
}

// Get returns the cached listing for (date, technician), or ok=false on a
// miss, a disabled cache or a decode failure.
func (c *AvailabilityCache) Get(ctx context.Context, date string, technicianID int64) ([]models.Slot, bool) {
	if c.redis == nil || c.ttl <= 0 {
		return nil, false
	}
	val, err := c.redis.Get(ctx, listingKey(date, technicianID)).Result()
	if err != nil {
		return nil, false
	}
	var slots []models.Slot
	if err := json.Unmarshal([]byte(val), &slots); err != nil {
		c.logger.Warn().Err(err).Str("date", date).Msg("corrupt cache entry dropped")
		_ = c.redis.Del(ctx, listingKey(date, technicianID)).Err()
		return nil, false
	}
	return slots, true
}

// Set stores a listing and registers its key under the date so Invalidate
// can clear every technician at once.
func (c *AvailabilityCache) Set(ctx context.Context, date string, technicianID int64, slots []models.Slot) {
	if c.redis == nil || c.ttl <= 0 {
		return
	}
	data, err := json.Marshal(slots)
	if err != nil {
		return
	}
	key := listingKey(date, technicianID)
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
	_ = c.redis.SAdd(ctx, dateKey(date), key).Err()
	_ = c.redis.Expire(ctx, dateKey(date), c.ttl).Err()
}

// Invalidate drops all cached listings for a date.
func (c *AvailabilityCache) Invalidate(ctx context.Context, date string) {
	if c.redis == nil || c.ttl <= 0 {
		return
	}
	keys, err := c.redis.SMembers(ctx, dateKey(date)).Result()
	if err != nil {
		return
	}
	if len(keys) > 0 {
		_ = c.redis.Del(ctx, keys...).Err()
	}
	_ = c.redis.Del(ctx, dateKey(date)).Err()
}
