// Package notifications provides multi-channel notification delivery.
package notifications

import (
	"context"

	"github.com/bissquit/notify-engine/internal/domain"
)

// Store defines the persistence operations the dispatcher relies on.
type Store interface {
	// Save persists a new notification.
	Save(ctx context.Context, notification *domain.Notification) error

	// UpdateDeliveryStatus sets the delivery status. Moving to delivered stamps
	// DeliveredAt once; an existing DeliveredAt is never overwritten.
	// Returns the updated notification or ErrNotFound.
	UpdateDeliveryStatus(ctx context.Context, id string, status domain.DeliveryStatus) (*domain.Notification, error)

	// Get returns a notification by ID or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Notification, error)
}

// PreferenceSource resolves recipient preferences.
type PreferenceSource interface {
	// GetPreferences returns stored preferences. found is false when the
	// recipient has none.
	GetPreferences(ctx context.Context, recipientID string) (prefs domain.NotificationPreferences, found bool, err error)
}
