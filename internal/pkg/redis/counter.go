package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript increments a counter and sets its expiry on the first hit,
// so the window starts with the first request.
var incrementScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// CounterStore keeps rate limit counters in Redis. It is safe to share
// across instances.
type CounterStore struct {
	client redis.UniversalClient
}

// NewCounterStore creates a new Redis counter store.
func NewCounterStore(client redis.UniversalClient) *CounterStore {
	return &CounterStore{client: client}
}

// Increment adds one to key, starting a ttl window when the key is new.
func (s *CounterStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := incrementScript.Run(ctx, s.client, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return count, nil
}

// Block marks key as blocked for ttl.
func (s *CounterStore) Block(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, 1, ttl).Err(); err != nil {
		return fmt.Errorf("block %s: %w", key, err)
	}
	return nil
}

// Blocked reports whether key is currently blocked.
func (s *CounterStore) Blocked(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("check block %s: %w", key, err)
	}
	return n > 0, nil
}
