package email

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bissquit/notify-engine/internal/notifications"
	"golang.org/x/time/rate"
)

// Throttle caps the global send rate.
type Throttle interface {
	Wait(ctx context.Context) error
}

// NewLocalThrottle returns a per-process token bucket allowing ratePerSecond
// sends with the given burst. A non-positive rate disables throttling.
func NewLocalThrottle(ratePerSecond float64, burst int) Throttle {
	if ratePerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(ratePerSecond), max(burst, 1))
}

// SharedThrottle enforces a send-rate ceiling shared by every instance using
// the same counter store. It counts sends in one-second fixed windows and
// waits for the next window once the ceiling is reached.
type SharedThrottle struct {
	store     notifications.CounterStore
	limit     int64
	keyPrefix string
	now       func() time.Time
	sleep     notifications.SleepFunc
}

// NewSharedThrottle creates a shared throttle allowing perSecond sends per second.
func NewSharedThrottle(store notifications.CounterStore, perSecond int, keyPrefix string) *SharedThrottle {
	if keyPrefix == "" {
		keyPrefix = "ratelimit:email"
	}
	return &SharedThrottle{
		store:     store,
		limit:     int64(max(perSecond, 1)),
		keyPrefix: keyPrefix,
		now:       time.Now,
		sleep:     notifications.Sleep,
	}
}

// Wait blocks until a send slot is available in the current or a later window.
// Store errors let the send through.
func (t *SharedThrottle) Wait(ctx context.Context) error {
	for {
		now := t.now()
		window := now.Unix()
		key := t.keyPrefix + ":" + strconv.FormatInt(window, 10)

		count, err := t.store.Increment(ctx, key, 2*time.Second)
		if err != nil {
			slog.Warn("shared email throttle unavailable, sending anyway", "error", err)
			return nil
		}
		if count <= t.limit {
			return nil
		}

		throttleWaits.Inc()
		next := time.Unix(window+1, 0)
		if err := t.sleep(ctx, next.Sub(now)); err != nil {
			return fmt.Errorf("wait for send slot: %w", err)
		}
	}
}

// chainThrottle waits on every throttle in order.
type chainThrottle []Throttle

func (c chainThrottle) Wait(ctx context.Context) error {
	for _, t := range c {
		if err := t.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ChainThrottles combines throttles; nil entries are skipped.
func ChainThrottles(throttles ...Throttle) Throttle {
	chain := make(chainThrottle, 0, len(throttles))
	for _, t := range throttles {
		if t != nil {
			chain = append(chain, t)
		}
	}
	return chain
}
