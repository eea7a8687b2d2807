package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Bus publishes and subscribes through Redis pub/sub.
type Bus struct {
	client redis.UniversalClient
}

// NewBus creates a new Redis-backed bus.
func NewBus(client redis.UniversalClient) *Bus {
	return &Bus{client: client}
}

// Publish sends payload to every subscriber of topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe delivers every message on topic to handler until ctx is done or
// the returned func is called. Handlers run sequentially on one goroutine.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler func([]byte)) (func(), error) {
	pubsub := b.client.Subscribe(ctx, topic)

	// wait for the subscription confirmation so no message published after
	// Subscribe returns is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	messages := pubsub.Channel()

	go func() {
		defer close(done)
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			cancel()
			if err := pubsub.Close(); err != nil {
				slog.Warn("failed to close redis subscription", "topic", topic, "error", err)
			}
			<-done
		})
	}

	return unsubscribe, nil
}
