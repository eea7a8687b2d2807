package notifications

import (
	"context"
	"fmt"
	"time"
)

// CounterStore is a shared counter service used for admission control and
// send-rate ceilings. Implementations must be atomic across processes.
type CounterStore interface {
	// Increment adds one to key and returns the new value. The first increment
	// of a key starts its ttl; later increments do not extend it.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Block marks key as blocked for ttl.
	Block(ctx context.Context, key string, ttl time.Duration) error

	// Blocked reports whether key is currently blocked.
	Blocked(ctx context.Context, key string) (bool, error)
}

// RateLimitConfig contains per-recipient admission policy.
type RateLimitConfig struct {
	Points        int
	Window        time.Duration
	BlockDuration time.Duration
	KeyPrefix     string
}

// DefaultRateLimitConfig returns default rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Points:        100,
		Window:        time.Minute,
		BlockDuration: time.Minute,
		KeyPrefix:     "ratelimit:notifications",
	}
}

// RateLimiter admits at most Points consumptions per key per Window. Once the
// budget is exceeded the key is blocked for BlockDuration, and calls during the
// block are denied without touching the counter.
type RateLimiter struct {
	store  CounterStore
	config RateLimitConfig
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(store CounterStore, config RateLimitConfig) (*RateLimiter, error) {
	if store == nil {
		return nil, fmt.Errorf("rate limiter: counter store is required")
	}
	if config.Points <= 0 {
		return nil, fmt.Errorf("rate limiter: points must be positive, got %d", config.Points)
	}
	if config.Window <= 0 {
		return nil, fmt.Errorf("rate limiter: window must be positive, got %v", config.Window)
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultRateLimitConfig().KeyPrefix
	}

	return &RateLimiter{store: store, config: config}, nil
}

// Consume spends one point for key. It fails open: when the counter store is
// unavailable the call is allowed and the store error is returned for logging.
func (l *RateLimiter) Consume(ctx context.Context, key string) (bool, error) {
	blockKey := l.config.KeyPrefix + ":block:" + key

	blocked, err := l.store.Blocked(ctx, blockKey)
	if err != nil {
		return true, fmt.Errorf("check block: %w", err)
	}
	if blocked {
		return false, nil
	}

	count, err := l.store.Increment(ctx, l.config.KeyPrefix+":points:"+key, l.config.Window)
	if err != nil {
		return true, fmt.Errorf("increment counter: %w", err)
	}

	if count <= int64(l.config.Points) {
		return true, nil
	}

	if l.config.BlockDuration > 0 {
		if err := l.store.Block(ctx, blockKey, l.config.BlockDuration); err != nil {
			return false, fmt.Errorf("block key: %w", err)
		}
	}

	return false, nil
}
