package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bissquit/notify-engine/internal/domain"
	"github.com/bissquit/notify-engine/internal/pkg/ctxlog"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Limiter admits or rejects work for a key.
type Limiter interface {
	Consume(ctx context.Context, key string) (bool, error)
}

// DispatcherConfig contains dispatcher configuration.
type DispatcherConfig struct {
	// ChannelTimeout bounds one channel delivery including its retries.
	ChannelTimeout time.Duration
	// EmptyChannelStatus is the status given to a notification when no
	// channel is invoked: pending (default) or delivered.
	EmptyChannelStatus domain.DeliveryStatus
}

// DefaultDispatcherConfig returns default dispatcher configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		ChannelTimeout:     2 * time.Minute,
		EmptyChannelStatus: domain.DeliveryStatusPending,
	}
}

// Dispatcher creates notifications and fans them out to delivery channels.
type Dispatcher struct {
	store       Store
	limiter     Limiter
	publisher   *StatusPublisher
	preferences PreferenceSource
	channels    map[domain.ChannelName]Channel
	validator   *validator.Validate
	config      DispatcherConfig
	now         func() time.Time
}

// NewDispatcher creates a new notification dispatcher.
func NewDispatcher(
	store Store,
	limiter Limiter,
	publisher *StatusPublisher,
	preferences PreferenceSource,
	config DispatcherConfig,
	channels ...Channel,
) *Dispatcher {
	if config.ChannelTimeout <= 0 {
		config.ChannelTimeout = DefaultDispatcherConfig().ChannelTimeout
	}
	if config.EmptyChannelStatus != domain.DeliveryStatusDelivered {
		config.EmptyChannelStatus = domain.DeliveryStatusPending
	}

	channelMap := make(map[domain.ChannelName]Channel)
	for _, ch := range channels {
		channelMap[ch.Name()] = ch
	}

	return &Dispatcher{
		store:       store,
		limiter:     limiter,
		publisher:   publisher,
		preferences: preferences,
		channels:    channelMap,
		validator:   validator.New(),
		config:      config,
		now:         time.Now,
	}
}

// Create persists a notification and delivers it through the channels
// selected by prefs. Channel failures are reported in the returned
// notification's Results and never returned as errors.
func (d *Dispatcher) Create(ctx context.Context, req NotificationRequest, prefs domain.NotificationPreferences) (*domain.Notification, error) {
	req = req.withDefaults()
	if err := d.validator.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	if d.limiter != nil {
		allowed, err := d.limiter.Consume(ctx, req.RecipientID)
		if err != nil {
			ctxlog.FromContext(ctx).Warn("rate limiter unavailable, admitting request",
				"recipient_id", req.RecipientID,
				"error", err,
			)
		}
		if !allowed {
			recordRateLimited()
			ctxlog.FromContext(ctx).Info("notification rejected by rate limiter", "recipient_id", req.RecipientID)
			return nil, ErrRateLimited
		}
	}

	reason, suppressed := suppression(req, prefs)

	notification := &domain.Notification{
		ID:             uuid.NewString(),
		Type:           req.Type,
		Title:          req.Title,
		Message:        req.Message,
		RecipientID:    req.RecipientID,
		SenderID:       req.SenderID,
		Priority:       req.Priority,
		Metadata:       req.Metadata,
		DeliveryStatus: domain.DeliveryStatusPending,
		CreatedAt:      d.now().UTC(),
	}

	if err := d.store.Save(ctx, notification); err != nil {
		return nil, fmt.Errorf("save notification: %w", err)
	}
	recordCreated(notification.Type, suppressed)

	if suppressed {
		ctxlog.FromContext(ctx).Info("notification delivery suppressed by preferences",
			"notification_id", notification.ID,
			"type", notification.Type,
			"reason", reason,
		)
		return d.complete(ctx, notification, nil)
	}

	return d.deliver(ctx, notification, prefs)
}

// Redeliver runs channel delivery again for an existing notification.
// Admission and eligibility checks only apply at creation time.
func (d *Dispatcher) Redeliver(ctx context.Context, id string) (*domain.Notification, error) {
	notification, err := d.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	prefs := d.resolvePreferences(ctx, notification.RecipientID)
	return d.deliver(ctx, notification, prefs)
}

// Get returns a stored notification.
func (d *Dispatcher) Get(ctx context.Context, id string) (*domain.Notification, error) {
	return d.store.Get(ctx, id)
}

// GetDeliveryStatus returns the persisted delivery status of a notification.
func (d *Dispatcher) GetDeliveryStatus(ctx context.Context, id string) (domain.DeliveryStatus, error) {
	notification, err := d.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return notification.DeliveryStatus, nil
}

// Preferences returns the stored preferences for a recipient, or defaults.
func (d *Dispatcher) Preferences(ctx context.Context, recipientID string) domain.NotificationPreferences {
	return d.resolvePreferences(ctx, recipientID)
}

func (d *Dispatcher) resolvePreferences(ctx context.Context, recipientID string) domain.NotificationPreferences {
	if d.preferences == nil {
		return domain.DefaultPreferences()
	}

	prefs, found, err := d.preferences.GetPreferences(ctx, recipientID)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("failed to load preferences, using defaults", "recipient_id", recipientID, "error", err)
		return domain.DefaultPreferences()
	}
	if !found {
		return domain.DefaultPreferences()
	}
	return prefs
}

func (d *Dispatcher) deliver(ctx context.Context, notification *domain.Notification, prefs domain.NotificationPreferences) (*domain.Notification, error) {
	selection := ResolveChannels(prefs, notification.Type)

	ctxlog.FromContext(ctx).Debug("dispatching notification",
		"notification_id", notification.ID,
		"channels", selection.Channels,
		"source", selection.Source,
	)

	results := d.fanOut(ctx, notification, selection.Channels)
	return d.complete(ctx, notification, results)
}

// fanOut delivers through every channel concurrently and waits for all of them.
func (d *Dispatcher) fanOut(ctx context.Context, notification *domain.Notification, channels []domain.ChannelName) []domain.ChannelResult {
	results := make([]domain.ChannelResult, len(channels))

	var wg sync.WaitGroup
	for i, name := range channels {
		ch, ok := d.channels[name]
		if !ok {
			results[i] = Failed(name, 0, NewNonRetryableError(fmt.Errorf("%w: %s", ErrChannelNotWired, name)))
			continue
		}

		snapshot := *notification
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = d.deliverChannel(ctx, ch, &snapshot)
		}()
	}
	wg.Wait()

	for _, result := range results {
		if result.Success {
			continue
		}
		ctxlog.FromContext(ctx).Warn("channel delivery failed",
			"notification_id", notification.ID,
			"channel", result.Channel,
			"attempts", result.Attempts,
			"outcome", result.Outcome,
			"error", result.Error,
		)
	}

	return results
}

// deliverChannel runs one channel under the channel deadline. A channel that
// does not return in time yields a failed result.
func (d *Dispatcher) deliverChannel(ctx context.Context, ch Channel, notification *domain.Notification) domain.ChannelResult {
	start := time.Now()
	name := ch.Name()

	// only the channel timeout bounds an accepted delivery
	channelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.config.ChannelTimeout)
	defer cancel()

	done := make(chan domain.ChannelResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Failed(name, 0, NewNonRetryableError(fmt.Errorf("channel panicked: %v", r)))
			}
		}()
		done <- ch.Deliver(channelCtx, notification)
	}()

	var result domain.ChannelResult
	select {
	case result = <-done:
	case <-channelCtx.Done():
		// a result that raced the deadline still counts
		select {
		case result = <-done:
		default:
			result = Failed(name, 0, NewRetryableError(fmt.Errorf("%w: %w", ErrChannelTimeout, channelCtx.Err())))
		}
	}

	if result.Channel == "" {
		result.Channel = name
	}
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}

	recordChannelResult(result, time.Since(start))
	return result
}

// complete persists the aggregated status and broadcasts it. Channels have
// already run, so caller cancellation must not leave the record pending.
func (d *Dispatcher) complete(ctx context.Context, notification *domain.Notification, results []domain.ChannelResult) (*domain.Notification, error) {
	status := AggregateStatus(notification.DeliveryStatus, results, d.config.EmptyChannelStatus)

	ctx = context.WithoutCancel(ctx)
	updated, err := d.store.UpdateDeliveryStatus(ctx, notification.ID, status)
	if err != nil {
		return nil, fmt.Errorf("update delivery status: %w", err)
	}

	recordDeliveryStatus(updated.DeliveryStatus)
	d.publisher.Publish(ctx, updated.ID, updated.DeliveryStatus)

	ctxlog.FromContext(ctx).Info("notification delivery cycle complete",
		"notification_id", updated.ID,
		"status", updated.DeliveryStatus,
		"attempts", deliveryAttempts(updated.ID, results),
	)

	updated.Results = results
	return updated, nil
}

// AggregateStatus computes the delivery status of a cycle from a complete set
// of channel results. Any success means delivered; delivered is never
// downgraded; with no results the current status is kept unless the empty
// channel policy says delivered.
func AggregateStatus(current domain.DeliveryStatus, results []domain.ChannelResult, emptyStatus domain.DeliveryStatus) domain.DeliveryStatus {
	if current == domain.DeliveryStatusDelivered {
		return domain.DeliveryStatusDelivered
	}

	if len(results) == 0 {
		if emptyStatus == domain.DeliveryStatusDelivered {
			return domain.DeliveryStatusDelivered
		}
		if current == "" {
			return domain.DeliveryStatusPending
		}
		return current
	}

	for _, r := range results {
		if r.Success {
			return domain.DeliveryStatusDelivered
		}
	}
	return domain.DeliveryStatusFailed
}

func deliveryAttempts(notificationID string, results []domain.ChannelResult) []domain.DeliveryAttempt {
	attempts := make([]domain.DeliveryAttempt, 0, len(results))
	for _, r := range results {
		attempts = append(attempts, domain.DeliveryAttempt{
			NotificationID: notificationID,
			Channel:        r.Channel,
			Attempts:       r.Attempts,
		})
	}
	return attempts
}
