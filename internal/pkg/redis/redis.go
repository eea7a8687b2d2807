// Package redis provides the Redis connection plus the bus and counter
// store backends built on it.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/notify-engine/internal/pkg/connretry"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrFailedToParseURL is returned when the connection URL is invalid.
	ErrFailedToParseURL = errors.New("failed to parse redis connection url")
	// ErrNotReady is returned when redis did not answer in time.
	ErrNotReady = errors.New("redis did not become ready")
)

// Config contains Redis connection configuration.
type Config struct {
	URL             string
	ConnectAttempts int
	ConnectTimeout  time.Duration
}

// Connect creates a client and waits until redis answers PING.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseURL, err)
	}

	attempts := max(cfg.ConnectAttempts, 1)
	attempt := 0

	var client *redis.Client
	operation := func() error {
		attempt++

		c := redis.NewClient(opts)
		if err := c.Ping(ctx).Err(); err != nil {
			_ = c.Close()
			return err
		}

		client = c
		return nil
	}

	notify := func(err error, wait time.Duration) {
		slog.Warn("failed to connect to redis, retrying",
			"attempt", attempt,
			"max_attempts", attempts,
			"backoff", wait,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(operation, connretry.BackOff(ctx, attempts), notify); err != nil {
		return nil, errors.Join(ErrNotReady, fmt.Errorf("after %d attempts: %w", attempt, err))
	}

	slog.Info("connected to redis", "attempts", attempt)
	return client, nil
}
