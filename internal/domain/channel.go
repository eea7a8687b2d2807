package domain

import (
	"slices"
	"time"
)

// ChannelName identifies a delivery channel.
type ChannelName string

// Delivery channels.
const (
	ChannelEmail ChannelName = "email"
	ChannelInApp ChannelName = "in_app"
	ChannelPush  ChannelName = "push"
)

// IsValid checks if the channel name is known.
func (c ChannelName) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelInApp, ChannelPush:
		return true
	}
	return false
}

// Outcome tags the result of a channel delivery.
type Outcome string

// Channel outcomes.
const (
	OutcomeDelivered        Outcome = "delivered"
	OutcomeRetryableFailure Outcome = "retryable_failure"
	OutcomeTerminalFailure  Outcome = "terminal_failure"
)

// ChannelResult is the outcome of delivering one notification through one channel.
type ChannelResult struct {
	Channel   ChannelName `json:"channel"`
	Success   bool        `json:"success"`
	Outcome   Outcome     `json:"outcome"`
	Attempts  int         `json:"attempts"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// DeliveryAttempt tracks attempts per notification and channel for one dispatch.
type DeliveryAttempt struct {
	NotificationID string
	Channel        ChannelName
	Attempts       int
}

// NotificationPreferences holds per-recipient delivery settings.
type NotificationPreferences struct {
	EmailEnabled      bool                               `json:"email_enabled"`
	InAppEnabled      bool                               `json:"in_app_enabled"`
	PushEnabled       bool                               `json:"push_enabled"`
	MutedTypes        []NotificationType                 `json:"muted_types,omitempty"`
	PriorityThreshold Priority                           `json:"priority_threshold,omitempty"`
	DeliveryChannels  map[NotificationType][]ChannelName `json:"delivery_channels,omitempty"`
}

// DefaultPreferences returns preferences used when a recipient has none stored.
func DefaultPreferences() NotificationPreferences {
	return NotificationPreferences{
		EmailEnabled: true,
		InAppEnabled: true,
		PushEnabled:  false,
	}
}

// IsMuted reports whether the notification type is muted.
func (p NotificationPreferences) IsMuted(t NotificationType) bool {
	return slices.Contains(p.MutedTypes, t)
}
