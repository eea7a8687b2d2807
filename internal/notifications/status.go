package notifications

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/bissquit/notify-engine/internal/domain"
)

// StatusMessage is the payload broadcast on TopicStatus.
type StatusMessage struct {
	NotificationID string                `json:"notificationId"`
	Status         domain.DeliveryStatus `json:"status"`
}

// StatusPublisher broadcasts delivery status transitions. Publishing is best
// effort: the status is already persisted, so failures are logged and dropped.
type StatusPublisher struct {
	bus   Bus
	topic string
}

// NewStatusPublisher creates a new status publisher.
func NewStatusPublisher(bus Bus) *StatusPublisher {
	return &StatusPublisher{bus: bus, topic: TopicStatus}
}

// Publish broadcasts the status of a notification.
func (p *StatusPublisher) Publish(ctx context.Context, notificationID string, status domain.DeliveryStatus) {
	if p == nil || p.bus == nil {
		return
	}

	payload, err := json.Marshal(StatusMessage{
		NotificationID: notificationID,
		Status:         status,
	})
	if err != nil {
		slog.Error("failed to encode status message", "notification_id", notificationID, "error", err)
		recordPublishFailure()
		return
	}

	if err := p.bus.Publish(ctx, p.topic, payload); err != nil {
		slog.Warn("failed to publish delivery status",
			"notification_id", notificationID,
			"status", status,
			"error", err,
		)
		recordPublishFailure()
		return
	}

	slog.Debug("delivery status published", "notification_id", notificationID, "status", status)
}
