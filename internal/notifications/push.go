package notifications

import (
	"context"
	"log/slog"

	"github.com/bissquit/notify-engine/internal/domain"
)

// PushChannel is a placeholder for mobile push delivery. It always fails with
// ErrNotImplemented so callers can tell "push not available" from "push failed".
type PushChannel struct{}

// NewPushChannel creates a new push channel stub.
func NewPushChannel() *PushChannel {
	return &PushChannel{}
}

// Name returns the channel name.
func (c *PushChannel) Name() domain.ChannelName {
	return domain.ChannelPush
}

// Deliver always reports a terminal "not implemented" failure.
func (c *PushChannel) Deliver(_ context.Context, notification *domain.Notification) domain.ChannelResult {
	slog.Debug("push delivery requested but not implemented",
		"notification_id", notification.ID,
		"channel", domain.ChannelPush,
	)
	return Failed(domain.ChannelPush, 1, ErrNotImplemented)
}
