package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/bissquit/notify-engine/internal/domain"
	"github.com/bissquit/notify-engine/internal/pkg/ctxlog"
)

// RedeliveryRequest is the payload of a redelivery message.
type RedeliveryRequest struct {
	NotificationID string `json:"notificationId"`
}

// Redeliverer reruns delivery for a stored notification.
type Redeliverer interface {
	Redeliver(ctx context.Context, id string) (*domain.Notification, error)
}

// RedeliveryConsumer listens on the redelivery topic and re-runs delivery
// for each requested notification.
type RedeliveryConsumer struct {
	bus         Bus
	redeliverer Redeliverer
	topic       string

	mu          sync.Mutex
	unsubscribe func()
	wg          sync.WaitGroup
	ctx         context.Context
}

// NewRedeliveryConsumer creates a new redelivery consumer.
func NewRedeliveryConsumer(bus Bus, redeliverer Redeliverer) *RedeliveryConsumer {
	return &RedeliveryConsumer{
		bus:         bus,
		redeliverer: redeliverer,
		topic:       TopicRedeliver,
	}
}

// Start subscribes to the redelivery topic. Handlers run until ctx is cancelled
// or Stop is called.
func (c *RedeliveryConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unsubscribe != nil {
		return errors.New("redelivery consumer already started")
	}

	c.ctx = ctx
	unsubscribe, err := c.bus.Subscribe(ctx, c.topic, c.handle)
	if err != nil {
		return err
	}
	c.unsubscribe = unsubscribe

	slog.Info("redelivery consumer started", "topic", c.topic)
	return nil
}

// Stop unsubscribes and waits for in-flight redeliveries.
func (c *RedeliveryConsumer) Stop() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.wg.Wait()

	slog.Info("redelivery consumer stopped")
}

func (c *RedeliveryConsumer) handle(payload []byte) {
	var req RedeliveryRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		slog.Warn("invalid redelivery message", "error", err)
		return
	}
	if req.NotificationID == "" {
		slog.Warn("redelivery message without notification id")
		return
	}

	c.wg.Add(1)
	defer c.wg.Done()

	ctx, logger := ctxlog.With(c.ctx, nil, "trigger", "redelivery_topic")

	notification, err := c.redeliverer.Redeliver(ctx, req.NotificationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.Warn("redelivery requested for unknown notification", "notification_id", req.NotificationID)
			return
		}
		logger.Error("redelivery failed", "notification_id", req.NotificationID, "error", err)
		return
	}

	logger.Info("notification redelivered",
		"notification_id", notification.ID,
		"status", notification.DeliveryStatus,
	)
}
