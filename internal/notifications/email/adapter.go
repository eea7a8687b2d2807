package email

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bissquit/notify-engine/internal/domain"
	"github.com/bissquit/notify-engine/internal/notifications"
)

// Sender sends rendered email. *Transport satisfies it.
type Sender interface {
	Send(ctx context.Context, to, subject, templateName string, data any) (string, error)
	SendViaFailover(ctx context.Context, to, subject, templateName string, data any) (string, error)
}

// DefaultTemplateMapping returns the built-in notification type to template mapping.
func DefaultTemplateMapping() map[domain.NotificationType]string {
	return map[domain.NotificationType]string{
		domain.NotificationTypeTaskAssigned:   "task",
		domain.NotificationTypeTaskUpdated:    "task",
		domain.NotificationTypeTaskCompleted:  "task",
		domain.NotificationTypeTaskDue:        "task",
		domain.NotificationTypeCommentAdded:   "task",
		domain.NotificationTypeProjectCreated: "project",
		domain.NotificationTypeProjectUpdated: "project",
		domain.NotificationTypeMention:        "mention",
		domain.NotificationTypeSystem:         "system",
	}
}

// Adapter is the email delivery channel. It retries the primary endpoint with
// backoff, then makes one attempt through the failover endpoint.
type Adapter struct {
	sender         Sender
	retry          notifications.RetryScheduler
	templates      map[domain.NotificationType]string
	attemptTimeout time.Duration
	sleep          notifications.SleepFunc
}

// NewAdapter creates a new email channel. A nil mapping uses DefaultTemplateMapping.
func NewAdapter(sender Sender, retry notifications.RetryScheduler, templates map[domain.NotificationType]string, attemptTimeout time.Duration) *Adapter {
	if templates == nil {
		templates = DefaultTemplateMapping()
	}
	return &Adapter{
		sender:         sender,
		retry:          retry,
		templates:      templates,
		attemptTimeout: attemptTimeout,
		sleep:          notifications.Sleep,
	}
}

// Name returns the channel name.
func (a *Adapter) Name() domain.ChannelName {
	return domain.ChannelEmail
}

// Deliver sends the notification to Metadata["recipientEmail"].
func (a *Adapter) Deliver(ctx context.Context, n *domain.Notification) domain.ChannelResult {
	to, ok := n.RecipientEmail()
	if !ok {
		slog.Warn("email delivery skipped: no recipient address",
			"notification_id", n.ID,
			"channel", domain.ChannelEmail,
		)
		return notifications.Failed(domain.ChannelEmail, 0, notifications.NewNonRetryableError(notifications.ErrMissingRecipient))
	}

	templateName := a.templateFor(n.Type)
	subject := n.Title
	if subject == "" {
		subject = typeLabel(n.Type)
	}
	data := TemplateData{
		ID:          n.ID,
		Type:        n.Type,
		Title:       n.Title,
		Message:     n.Message,
		RecipientID: n.RecipientID,
		SenderID:    n.SenderID,
		Priority:    n.Priority,
		Link:        n.Metadata[domain.MetadataLink],
	}

	send := func(via func(ctx context.Context, to, subject, templateName string, data any) (string, error)) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			messageID, err := via(ctx, to, subject, templateName, data)
			if err == nil {
				slog.Debug("email sent", "notification_id", n.ID, "message_id", messageID)
			}
			return err
		}
	}

	attempts, err := a.retry.Run(ctx, a.attemptTimeout, a.sleep, send(a.sender.Send))
	if err == nil {
		return notifications.Succeeded(domain.ChannelEmail, attempts)
	}

	if !notifications.IsRetryable(err) || ctx.Err() != nil {
		slog.Warn("email delivery failed",
			"notification_id", n.ID,
			"channel", domain.ChannelEmail,
			"attempts", attempts,
			"error", err,
		)
		return notifications.Failed(domain.ChannelEmail, attempts, err)
	}

	slog.Warn("primary smtp exhausted, trying failover",
		"notification_id", n.ID,
		"channel", domain.ChannelEmail,
		"attempts", attempts,
		"error", err,
	)

	single := notifications.RetryScheduler{MaxAttempts: 1}
	_, failoverErr := single.Run(ctx, a.attemptTimeout, a.sleep, send(a.sender.SendViaFailover))
	if failoverErr == nil {
		return notifications.Succeeded(domain.ChannelEmail, attempts+1)
	}
	if !errors.Is(failoverErr, ErrFailoverNotConfigured) {
		attempts++
	}

	slog.Warn("email delivery failed",
		"notification_id", n.ID,
		"channel", domain.ChannelEmail,
		"attempts", attempts,
		"error", failoverErr,
	)
	return notifications.Failed(domain.ChannelEmail, attempts, errors.Join(err, failoverErr))
}

func (a *Adapter) templateFor(t domain.NotificationType) string {
	if name, ok := a.templates[t]; ok && name != "" {
		return name
	}
	return DefaultTemplate
}
