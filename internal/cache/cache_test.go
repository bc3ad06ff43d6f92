package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nailbook/internal/models"
)

func newTestCache(t *testing.T) (*AvailabilityCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := zerolog.New(io.Discard)
	return New(client, time.Minute, &logger), mr
}

func TestCache_RoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, ok := c.Get(ctx, "2026-03-02", 1)
	assert.False(t, ok)

	slots := []models.Slot{
		{ID: 1, TechnicianID: 1, Date: "2026-03-02", Time: "10:00", Status: models.SlotAvailable},
	}
	c.Set(ctx, "2026-03-02", 1, slots)

	got, ok := c.Get(ctx, "2026-03-02", 1)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "10:00", got[0].Time)
}

func TestCache_InvalidateClearsAllTechnicians(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "2026-03-02", 1, []models.Slot{{ID: 1}})
	c.Set(ctx, "2026-03-02", 2, []models.Slot{{ID: 2}})
	c.Set(ctx, "2026-03-03", 1, []models.Slot{{ID: 3}})

	c.Invalidate(ctx, "2026-03-02")

	_, ok := c.Get(ctx, "2026-03-02", 1)
	assert.False(t, ok)
	_, ok = c.Get(ctx, "2026-03-02", 2)
	assert.False(t, ok)
	_, ok = c.Get(ctx, "2026-03-03", 1)
	assert.True(t, ok)
}

func TestCache_ExpiryAndCorruptEntry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "2026-03-02", 1, []models.Slot{{ID: 1}})
	mr.FastForward(2 * time.Minute)
	_, ok := c.Get(ctx, "2026-03-02", 1)
	assert.False(t, ok)

	require.NoError(t, mr.Set("availability:2026-03-02:1", "not-json"))
	_, ok = c.Get(ctx, "2026-03-02", 1)
	assert.False(t, ok)
}

func TestCache_DisabledIsNoop(t *testing.T) {
	logger := zerolog.New(io.Discard)
	c := New(nil, time.Minute, &logger)
	ctx := context.Background()

	c.Set(ctx, "2026-03-02", 1, []models.Slot{{ID: 1}})
	_, ok := c.Get(ctx, "2026-03-02", 1)
	assert.False(t, ok)
	c.Invalidate(ctx, "2026-03-02")
}
