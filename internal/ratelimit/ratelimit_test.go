package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisAllow(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	l := NewRedis(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "otp:+919800000000", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "hit %d", i+1)
	}
	ok, err := l.Allow(ctx, "otp:+919800000000", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Allow(ctx, "otp:other", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	s.FastForward(time.Minute + time.Second)
	ok, err = l.Allow(ctx, "otp:+919800000000", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "window resets")
}

func TestRedisAllowFailsWhenRedisDown(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()
	s.Close()

	_, err := NewRedis(client).Allow(context.Background(), "k", 1, time.Minute)
	require.Error(t, err)
}

func TestMemoryAllow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _ := m.Allow(ctx, "k", 2, time.Minute)
		assert.True(t, ok)
	}
	ok, _ := m.Allow(ctx, "k", 2, time.Minute)
	assert.False(t, ok)

	now = now.Add(time.Minute)
	ok, _ = m.Allow(ctx, "k", 2, time.Minute)
	assert.True(t, ok)
}
