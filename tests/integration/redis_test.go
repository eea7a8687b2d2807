//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	redispkg "github.com/bissquit/notify-engine/internal/pkg/redis"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBus_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	bus := redispkg.NewBus(testRedis)
	topic := "it:topic:" + uuid.NewString()

	received := make(chan string, 4)
	unsubscribe, err := bus.Subscribe(ctx, topic, func(payload []byte) {
		received <- string(payload)
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, topic, []byte("one")))
	require.NoError(t, bus.Publish(ctx, topic, []byte("two")))

	for _, want := range []string{"one", "two"} {
		select {
		case got := <-received:
			assert.Equal(t, want, got)
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout waiting for %q", want)
		}
	}

	unsubscribe()
	unsubscribe()

	require.NoError(t, bus.Publish(ctx, topic, []byte("three")))
	select {
	case got := <-received:
		t.Fatalf("received %q after unsubscribe", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRedisBus_SubscribeContextCancel(t *testing.T) {
	bus := redispkg.NewBus(testRedis)
	topic := "it:topic:" + uuid.NewString()

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan string, 1)
	unsubscribe, err := bus.Subscribe(ctx, topic, func(payload []byte) {
		received <- string(payload)
	})
	require.NoError(t, err)
	defer unsubscribe()

	cancel()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), topic, []byte("late")))
	select {
	case got := <-received:
		t.Fatalf("received %q after cancel", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRedisCounterStore(t *testing.T) {
	ctx := context.Background()
	store := redispkg.NewCounterStore(testRedis)

	t.Run("increment starts a window", func(t *testing.T) {
		key := "it:counter:" + uuid.NewString()

		n, err := store.Increment(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = store.Increment(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		ttl, err := testRedis.PTTL(ctx, key).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
		assert.LessOrEqual(t, ttl, time.Minute)
	})

	t.Run("window expires", func(t *testing.T) {
		key := "it:counter:" + uuid.NewString()

		_, err := store.Increment(ctx, key, 100*time.Millisecond)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			n, err := testRedis.Exists(ctx, key).Result()
			return err == nil && n == 0
		}, 5*time.Second, 50*time.Millisecond)

		n, err := store.Increment(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("block", func(t *testing.T) {
		key := "it:block:" + uuid.NewString()

		blocked, err := store.Blocked(ctx, key)
		require.NoError(t, err)
		assert.False(t, blocked)

		require.NoError(t, store.Block(ctx, key, 200*time.Millisecond))

		blocked, err = store.Blocked(ctx, key)
		require.NoError(t, err)
		assert.True(t, blocked)

		require.Eventually(t, func() bool {
			blocked, err := store.Blocked(ctx, key)
			return err == nil && !blocked
		}, 5*time.Second, 50*time.Millisecond)
	})
}
