package memory

import (
	"context"
	"log/slog"
	"sync"
)

// Bus is an in-process pub/sub bus. Each subscriber has a buffered queue;
// when the queue is full the message is dropped for that subscriber rather
// than blocking the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]struct{}
	bufferSize  int
	closed      bool
	wg          sync.WaitGroup
}

type subscriber struct {
	ch     chan []byte
	done   chan struct{}
	once   sync.Once
	handle func([]byte)
}

// NewBus creates a bus with the given per-subscriber buffer (minimum 1).
func NewBus(bufferSize int) *Bus {
	return &Bus{
		subscribers: make(map[string]map[*subscriber]struct{}),
		bufferSize:  max(bufferSize, 1),
	}
}

// Publish queues payload for every subscriber of topic.
func (b *Bus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	for sub := range b.subscribers[topic] {
		msg := make([]byte, len(payload))
		copy(msg, payload)

		select {
		case sub.ch <- msg:
		default:
			slog.Warn("dropping message for slow subscriber", "topic", topic)
		}
	}
	return nil
}

// Subscribe calls handler for each message on topic until ctx is done or the
// returned func is called.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler func([]byte)) (func(), error) {
	sub := &subscriber{
		ch:     make(chan []byte, b.bufferSize),
		done:   make(chan struct{}),
		handle: handler,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}, nil
	}
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[*subscriber]struct{})
	}
	b.subscribers[topic][sub] = struct{}{}
	b.wg.Add(1)
	b.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		defer b.wg.Done()
		defer close(finished)
		for {
			select {
			case <-ctx.Done():
				b.remove(topic, sub)
				return
			case <-sub.done:
				return
			case msg := <-sub.ch:
				sub.handle(msg)
			}
		}
	}()

	unsubscribe := func() {
		b.remove(topic, sub)
		<-finished
	}
	return unsubscribe, nil
}

// Close stops every subscription and waits for their goroutines.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, subs := range b.subscribers {
		for sub := range subs {
			sub.stop()
		}
	}
	clear(b.subscribers)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

func (b *Bus) remove(topic string, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers[topic], sub)
	if len(b.subscribers[topic]) == 0 {
		delete(b.subscribers, topic)
	}
	sub.stop()
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}
