package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/notify-engine/internal/domain"
)

// InAppMessage is the payload published on a recipient's in-app topic.
type InAppMessage struct {
	ID        string                  `json:"id"`
	Type      domain.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	SenderID  string                  `json:"senderId,omitempty"`
	Priority  domain.Priority         `json:"priority"`
	Link      string                  `json:"link,omitempty"`
	CreatedAt time.Time               `json:"createdAt"`
}

// InAppChannel publishes notifications on per-recipient pub/sub topics.
// Delivery is fire-and-forget: a publish without transport error is a success.
type InAppChannel struct {
	bus            Bus
	retry          RetryScheduler
	attemptTimeout time.Duration
	sleep          SleepFunc
}

// NewInAppChannel creates a new in-app channel.
func NewInAppChannel(bus Bus, retry RetryScheduler, attemptTimeout time.Duration) *InAppChannel {
	return &InAppChannel{
		bus:            bus,
		retry:          retry,
		attemptTimeout: attemptTimeout,
		sleep:          Sleep,
	}
}

// Name returns the channel name.
func (c *InAppChannel) Name() domain.ChannelName {
	return domain.ChannelInApp
}

// Deliver publishes the notification to the recipient topic.
func (c *InAppChannel) Deliver(ctx context.Context, notification *domain.Notification) domain.ChannelResult {
	payload, err := json.Marshal(InAppMessage{
		ID:        notification.ID,
		Type:      notification.Type,
		Title:     notification.Title,
		Message:   notification.Message,
		SenderID:  notification.SenderID,
		Priority:  notification.Priority,
		Link:      notification.Metadata[domain.MetadataLink],
		CreatedAt: notification.CreatedAt,
	})
	if err != nil {
		return Failed(domain.ChannelInApp, 0, NewNonRetryableError(fmt.Errorf("encode in-app payload: %w", err)))
	}

	topic := InAppTopic(notification.RecipientID)
	attempts, err := c.retry.Run(ctx, c.attemptTimeout, c.sleep, func(ctx context.Context) error {
		return c.bus.Publish(ctx, topic, payload)
	})
	if err != nil {
		slog.Warn("in-app publish failed",
			"notification_id", notification.ID,
			"channel", domain.ChannelInApp,
			"attempts", attempts,
			"error", err,
		)
		return Failed(domain.ChannelInApp, attempts, err)
	}

	return Succeeded(domain.ChannelInApp, attempts)
}
