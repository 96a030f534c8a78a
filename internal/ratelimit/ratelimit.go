package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is a fixed-window counter keyed by caller-chosen strings.
type Limiter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error)
}

// Redis shares counters across every API instance.
type Redis struct {
	Client *redis.Client
	Prefix string
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{Client: client, Prefix: "ratelimit:"}
}

func (r *Redis) Allow(ctx context.Context, key string, max int, window time.Duration) (bool, error) {
	k := r.Prefix + key

	n, err := r.Client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}
	if n == 1 {
		if err := r.Client.PExpire(ctx, k, window).Err(); err != nil {
			return false, fmt.Errorf("rate limit expire: %w", err)
		}
	} else if ttl, err := r.Client.PTTL(ctx, k).Result(); err == nil && ttl < 0 {
		// a counter left without expiry would block the key forever
		_ = r.Client.PExpire(ctx, k, window).Err()
	}
	return n <= int64(max), nil
}

// Memory keeps counters in process. It is only correct for a single instance.
type Memory struct {
	mu      sync.Mutex
	windows map[string]window
	now     func() time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

func NewMemory() *Memory {
	return &Memory{windows: make(map[string]window), now: time.Now}
}

func (m *Memory) Allow(_ context.Context, key string, max int, d time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = window{resetAt: now.Add(d)}
	}
	w.count++
	m.windows[key] = w

	if len(m.windows) > 10000 {
		m.sweep(now)
	}
	return w.count <= max, nil
}

func (m *Memory) sweep(now time.Time) {
	for k, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, k)
		}
	}
}
