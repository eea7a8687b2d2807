// Package connretry holds the retry policy for startup connections.
package connretry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackOff returns the backoff used for startup connections:
// 1s doubling up to 16s, at most attempts tries, stopped by ctx.
func BackOff(ctx context.Context, attempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 16 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(attempts, 1)-1)), ctx)
}
