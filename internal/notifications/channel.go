package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bissquit/notify-engine/internal/domain"
)

// Channel delivers a notification through one delivery mechanism.
// Deliver never returns an error; every failure is encoded in the result.
type Channel interface {
	Name() domain.ChannelName
	Deliver(ctx context.Context, notification *domain.Notification) domain.ChannelResult
}

// ChannelSource tells where a channel selection came from.
type ChannelSource string

// Channel selection sources.
const (
	ChannelSourceExplicit ChannelSource = "explicit"
	ChannelSourceFlags    ChannelSource = "flags"
)

// ChannelSelection is the resolved set of channels for one notification.
type ChannelSelection struct {
	Source   ChannelSource
	Channels []domain.ChannelName
}

// ResolveChannels picks the channels for a notification type. An explicit
// DeliveryChannels entry wins; otherwise the enabled flags are used in the
// order email, in-app, push.
func ResolveChannels(prefs domain.NotificationPreferences, notificationType domain.NotificationType) ChannelSelection {
	if explicit, ok := prefs.DeliveryChannels[notificationType]; ok && len(explicit) > 0 {
		seen := make(map[domain.ChannelName]bool, len(explicit))
		channels := make([]domain.ChannelName, 0, len(explicit))
		for _, ch := range explicit {
			if !ch.IsValid() {
				slog.Warn("ignoring unknown delivery channel", "channel", ch, "type", notificationType)
				continue
			}
			if seen[ch] {
				continue
			}
			seen[ch] = true
			channels = append(channels, ch)
		}
		return ChannelSelection{Source: ChannelSourceExplicit, Channels: channels}
	}

	channels := make([]domain.ChannelName, 0, 3)
	if prefs.EmailEnabled {
		channels = append(channels, domain.ChannelEmail)
	}
	if prefs.InAppEnabled {
		channels = append(channels, domain.ChannelInApp)
	}
	if prefs.PushEnabled {
		channels = append(channels, domain.ChannelPush)
	}
	return ChannelSelection{Source: ChannelSourceFlags, Channels: channels}
}

// Succeeded builds a successful channel result.
func Succeeded(channel domain.ChannelName, attempts int) domain.ChannelResult {
	return domain.ChannelResult{
		Channel:   channel,
		Success:   true,
		Outcome:   domain.OutcomeDelivered,
		Attempts:  attempts,
		Timestamp: time.Now(),
	}
}

// Failed builds a failed channel result, tagging it retryable or terminal
// from the error.
func Failed(channel domain.ChannelName, attempts int, err error) domain.ChannelResult {
	outcome := domain.OutcomeTerminalFailure
	if IsRetryable(err) && !errors.Is(err, ErrNotImplemented) {
		outcome = domain.OutcomeRetryableFailure
	}

	msg := ""
	if err != nil {
		msg = err.Error()
	}

	return domain.ChannelResult{
		Channel:   channel,
		Success:   false,
		Outcome:   outcome,
		Attempts:  attempts,
		Error:     msg,
		Timestamp: time.Now(),
	}
}
