package deviceflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const pollKeyPrefix = "dc:poll:"

// MemoryThrottle tracks the last poll per device code in memory. Suitable
// for single-instance deployments and tests.
type MemoryThrottle struct {
	mu       sync.Mutex
	lastPoll map[string]time.Time
	now      func() time.Time
}

func NewMemoryThrottle() *MemoryThrottle {
	return &MemoryThrottle{
		lastPoll: make(map[string]time.Time),
		now:      time.Now,
	}
}

// WithClock replaces the clock, for tests.
func (t *MemoryThrottle) WithClock(now func() time.Time) *MemoryThrottle {
	if now != nil {
		t.now = now
	}
	return t
}

func (t *MemoryThrottle) ShouldSlowDown(_ context.Context, deviceCode string, interval time.Duration) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	last, polled := t.lastPoll[deviceCode]
	t.lastPoll[deviceCode] = now
	return polled && now.Sub(last) < interval, nil
}

// Forget drops the tracking entry once a device code is redeemed or removed.
func (t *MemoryThrottle) Forget(deviceCode string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastPoll, deviceCode)
}

// RedisThrottle enforces the polling interval across instances with a
// SET NX EX marker per device code: while the marker lives, polls are too
// fast.
type RedisThrottle struct {
	client *redis.Client
}

func NewRedisThrottle(client *redis.Client) *RedisThrottle {
	return &RedisThrottle{client: client}
}

func (t *RedisThrottle) ShouldSlowDown(ctx context.Context, deviceCode string, interval time.Duration) (bool, error) {
	claimed, err := t.client.SetNX(ctx, pollKeyPrefix+deviceCode, 1, interval).Result()
	if err != nil {
		return false, fmt.Errorf("polling throttle: %w", err)
	}
	return !claimed, nil
}
