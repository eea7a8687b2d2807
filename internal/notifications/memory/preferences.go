package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/bissquit/notify-engine/internal/domain"
)

// Preferences keeps recipient preferences in a map.
type Preferences struct {
	mu    sync.RWMutex
	prefs map[string]domain.NotificationPreferences
}

// NewPreferences creates an empty preference source.
func NewPreferences() *Preferences {
	return &Preferences{prefs: make(map[string]domain.NotificationPreferences)}
}

// Set stores preferences for a recipient.
func (p *Preferences) Set(recipientID string, prefs domain.NotificationPreferences) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prefs[recipientID] = copyPreferences(prefs)
}

// GetPreferences returns stored preferences for a recipient.
func (p *Preferences) GetPreferences(_ context.Context, recipientID string) (domain.NotificationPreferences, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	prefs, ok := p.prefs[recipientID]
	if !ok {
		return domain.NotificationPreferences{}, false, nil
	}
	return copyPreferences(prefs), true, nil
}

func copyPreferences(prefs domain.NotificationPreferences) domain.NotificationPreferences {
	prefs.MutedTypes = slices.Clone(prefs.MutedTypes)
	if prefs.DeliveryChannels != nil {
		channels := make(map[domain.NotificationType][]domain.ChannelName, len(prefs.DeliveryChannels))
		for t, list := range prefs.DeliveryChannels {
			channels[t] = slices.Clone(list)
		}
		prefs.DeliveryChannels = channels
	}
	return prefs
}
