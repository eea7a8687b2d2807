package notifications

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bissquit/notify-engine/internal/domain"
)

type mockStore struct {
	mu            sync.Mutex
	notifications map[string]*domain.Notification
	saveErr       error
	updateErr     error
	updates       []domain.DeliveryStatus
	// checkCtx makes every call fail once ctx is done, like a real driver
	checkCtx bool
}

func newMockStore() *mockStore {
	return &mockStore{notifications: make(map[string]*domain.Notification)}
}

func (m *mockStore) Save(ctx context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.checkCtx && ctx.Err() != nil {
		return ctx.Err()
	}

	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *n
	m.notifications[n.ID] = &cp
	return nil
}

func (m *mockStore) UpdateDeliveryStatus(ctx context.Context, id string, status domain.DeliveryStatus) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.checkCtx && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if m.updateErr != nil {
		return nil, m.updateErr
	}
	n, ok := m.notifications[id]
	if !ok {
		return nil, ErrNotFound
	}

	m.updates = append(m.updates, status)
	if n.DeliveryStatus != domain.DeliveryStatusDelivered {
		n.DeliveryStatus = status
	}
	if n.DeliveryStatus == domain.DeliveryStatusDelivered && n.DeliveredAt == nil {
		now := time.Now()
		n.DeliveredAt = &now
	}

	cp := *n
	return &cp, nil
}

func (m *mockStore) Get(_ context.Context, id string) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *mockStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notifications)
}

type published struct {
	topic   string
	payload []byte
}

type mockBus struct {
	mu         sync.Mutex
	published  []published
	failures   int
	err        error
	handlers   map[string]func([]byte)
	subErr     error
	unsubCalls int
	checkCtx   bool
}

func newMockBus() *mockBus {
	return &mockBus{handlers: make(map[string]func([]byte))}
}

func (m *mockBus) Publish(ctx context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.checkCtx && ctx.Err() != nil {
		return ctx.Err()
	}

	if m.failures > 0 {
		m.failures--
		return errors.New("bus unavailable")
	}
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, published{topic: topic, payload: payload})
	return nil
}

func (m *mockBus) Subscribe(_ context.Context, topic string, handler func([]byte)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subErr != nil {
		return nil, m.subErr
	}
	m.handlers[topic] = handler
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.unsubCalls++
		delete(m.handlers, topic)
	}, nil
}

func (m *mockBus) messages(topic string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out [][]byte
	for _, p := range m.published {
		if p.topic == topic {
			out = append(out, p.payload)
		}
	}
	return out
}

func (m *mockBus) handler(topic string) func([]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handlers[topic]
}

// mockChannel returns a fixed result, or runs deliver when set.
type mockChannel struct {
	name    domain.ChannelName
	mu      sync.Mutex
	success bool
	err     error
	deliver func(ctx context.Context, n *domain.Notification) domain.ChannelResult
	calls   atomic.Int32
}

func (m *mockChannel) Name() domain.ChannelName {
	return m.name
}

func (m *mockChannel) Deliver(ctx context.Context, n *domain.Notification) domain.ChannelResult {
	m.calls.Add(1)
	if m.deliver != nil {
		return m.deliver(ctx, n)
	}

	m.mu.Lock()
	success, err := m.success, m.err
	m.mu.Unlock()

	if success {
		return Succeeded(m.name, 1)
	}
	if err == nil {
		err = errors.New("delivery failed")
	}
	return Failed(m.name, 1, err)
}

func (m *mockChannel) setSuccess(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.success = success
}

type mockLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (m *mockLimiter) Consume(_ context.Context, key string) (bool, error) {
	m.keys = append(m.keys, key)
	return m.allowed, m.err
}

type mockPreferences struct {
	prefs map[string]domain.NotificationPreferences
	err   error
}

func (m *mockPreferences) GetPreferences(_ context.Context, recipientID string) (domain.NotificationPreferences, bool, error) {
	if m.err != nil {
		return domain.NotificationPreferences{}, false, m.err
	}
	p, ok := m.prefs[recipientID]
	return p, ok, nil
}

type mockCounterStore struct {
	mu         sync.Mutex
	counts     map[string]int64
	blocked    map[string]time.Duration
	err        error
	increments int
}

func newMockCounterStore() *mockCounterStore {
	return &mockCounterStore{
		counts:  make(map[string]int64),
		blocked: make(map[string]time.Duration),
	}
}

func (m *mockCounterStore) Increment(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return 0, m.err
	}
	m.increments++
	m.counts[key]++
	return m.counts[key], nil
}

func (m *mockCounterStore) Block(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.blocked[key] = ttl
	return nil
}

func (m *mockCounterStore) Blocked(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return false, m.err
	}
	_, ok := m.blocked[key]
	return ok, nil
}

// recordSleeps returns a SleepFunc that records delays without waiting.
func recordSleeps(delays *[]time.Duration) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}
