package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu   sync.Mutex
	msgs []string
}

func (c *collector) handle(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, string(payload))
}

func (c *collector) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func TestBus_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(16)
	defer bus.Close()

	var a, b, other collector
	unsubA, err := bus.Subscribe(ctx, "topic", a.handle)
	require.NoError(t, err)
	defer unsubA()
	unsubB, err := bus.Subscribe(ctx, "topic", b.handle)
	require.NoError(t, err)
	defer unsubB()
	unsubOther, err := bus.Subscribe(ctx, "other", other.handle)
	require.NoError(t, err)
	defer unsubOther()

	require.NoError(t, bus.Publish(ctx, "topic", []byte("one")))
	require.NoError(t, bus.Publish(ctx, "topic", []byte("two")))

	for _, c := range []*collector{&a, &b} {
		require.Eventually(t, func() bool { return len(c.received()) == 2 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, []string{"one", "two"}, c.received())
	}
	assert.Empty(t, other.received())
}

func TestBus_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(16)
	defer bus.Close()

	var c collector
	unsubscribe, err := bus.Subscribe(ctx, "topic", c.handle)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "topic", []byte("before")))
	require.Eventually(t, func() bool { return len(c.received()) == 1 }, time.Second, 5*time.Millisecond)

	unsubscribe()
	require.NoError(t, bus.Publish(ctx, "topic", []byte("after")))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"before"}, c.received())
}

func TestBus_ContextCancelEndsSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewBus(16)
	defer bus.Close()

	var c collector
	unsubscribe, err := bus.Subscribe(ctx, "topic", c.handle)
	require.NoError(t, err)

	cancel()
	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subscribers["topic"]) == 0
	}, time.Second, 5*time.Millisecond)

	unsubscribe()
}

func TestBus_SlowSubscriberDropsMessages(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(1)
	defer bus.Close()

	release := make(chan struct{})
	var c collector
	unsubscribe, err := bus.Subscribe(ctx, "topic", func(payload []byte) {
		<-release
		c.handle(payload)
	})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(ctx, "topic", []byte("msg")))
	}

	close(release)
	unsubscribe()
	assert.Less(t, len(c.received()), 10)
}

func TestBus_PayloadIsCopied(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(4)
	defer bus.Close()

	var c collector
	unsubscribe, err := bus.Subscribe(ctx, "topic", c.handle)
	require.NoError(t, err)
	defer unsubscribe()

	payload := []byte("original")
	require.NoError(t, bus.Publish(ctx, "topic", payload))
	copy(payload, "mutated!")

	require.Eventually(t, func() bool { return len(c.received()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "original", c.received()[0])
}

func TestBus_Close(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(4)

	var c collector
	_, err := bus.Subscribe(ctx, "topic", c.handle)
	require.NoError(t, err)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
	assert.NoError(t, bus.Publish(ctx, "topic", []byte("ignored")))

	unsubscribe, err := bus.Subscribe(ctx, "topic", c.handle)
	require.NoError(t, err)
	unsubscribe()
}
