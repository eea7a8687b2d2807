// Package memory provides in-process implementations of the notification
// store, preference source and bus.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/bissquit/notify-engine/internal/domain"
	"github.com/bissquit/notify-engine/internal/notifications"
)

// Store keeps notifications in a map. All methods are safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	notifications map[string]domain.Notification
	now           func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		notifications: make(map[string]domain.Notification),
		now:           time.Now,
	}
}

// Save persists a new notification.
func (s *Store) Save(_ context.Context, notification *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notifications[notification.ID]; exists {
		return fmt.Errorf("notification %s already exists", notification.ID)
	}
	s.notifications[notification.ID] = clone(*notification)
	return nil
}

// UpdateDeliveryStatus sets the delivery status. Delivered is never replaced
// and DeliveredAt is stamped only once.
func (s *Store) UpdateDeliveryStatus(_ context.Context, id string, status domain.DeliveryStatus) (*domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return nil, notifications.ErrNotFound
	}

	if n.DeliveryStatus != domain.DeliveryStatusDelivered {
		n.DeliveryStatus = status
	}
	if n.DeliveryStatus == domain.DeliveryStatusDelivered && n.DeliveredAt == nil {
		deliveredAt := s.now().UTC()
		n.DeliveredAt = &deliveredAt
	}
	s.notifications[id] = n

	result := clone(n)
	return &result, nil
}

// Get returns a notification by ID.
func (s *Store) Get(_ context.Context, id string) (*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[id]
	if !ok {
		return nil, notifications.ErrNotFound
	}

	result := clone(n)
	return &result, nil
}

func clone(n domain.Notification) domain.Notification {
	n.Metadata = maps.Clone(n.Metadata)
	n.Results = nil
	if n.DeliveredAt != nil {
		t := *n.DeliveredAt
		n.DeliveredAt = &t
	}
	if n.ReadAt != nil {
		t := *n.ReadAt
		n.ReadAt = &t
	}
	return n
}
