package domain

import "time"

// NotificationType represents the category of a notification.
type NotificationType string

// Notification types.
const (
	NotificationTypeTaskAssigned   NotificationType = "task_assigned"
	NotificationTypeTaskUpdated    NotificationType = "task_updated"
	NotificationTypeTaskCompleted  NotificationType = "task_completed"
	NotificationTypeTaskDue        NotificationType = "task_due"
	NotificationTypeProjectCreated NotificationType = "project_created"
	NotificationTypeProjectUpdated NotificationType = "project_updated"
	NotificationTypeCommentAdded   NotificationType = "comment_added"
	NotificationTypeMention        NotificationType = "mention"
	NotificationTypeSystem         NotificationType = "system"
)

// IsValid checks if the notification type is known.
func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationTypeTaskAssigned, NotificationTypeTaskUpdated,
		NotificationTypeTaskCompleted, NotificationTypeTaskDue,
		NotificationTypeProjectCreated, NotificationTypeProjectUpdated,
		NotificationTypeCommentAdded, NotificationTypeMention,
		NotificationTypeSystem:
		return true
	}
	return false
}

// Priority represents the urgency of a notification.
type Priority string

// Priority levels, lowest first.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank returns the ordinal of the priority. Unknown priorities rank below low.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	}
	return 0
}

// IsValid checks if the priority is known.
func (p Priority) IsValid() bool {
	return p.Rank() > 0
}

// Below reports whether p is strictly lower than threshold.
// An empty threshold never filters anything.
func (p Priority) Below(threshold Priority) bool {
	if threshold == "" {
		return false
	}
	return p.Rank() < threshold.Rank()
}

// DeliveryStatus represents the delivery state of a notification.
type DeliveryStatus string

// Delivery statuses.
const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// IsValid checks if the delivery status is known.
func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusDelivered, DeliveryStatusFailed:
		return true
	}
	return false
}

// Metadata keys understood by the delivery channels.
const (
	MetadataRecipientEmail = "recipientEmail"
	MetadataLink           = "link"
)

// Notification is the unit of delivery.
type Notification struct {
	ID             string            `json:"id"`
	Type           NotificationType  `json:"type"`
	Title          string            `json:"title"`
	Message        string            `json:"message"`
	RecipientID    string            `json:"recipient_id"`
	SenderID       string            `json:"sender_id,omitempty"`
	Priority       Priority          `json:"priority"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	DeliveryStatus DeliveryStatus    `json:"delivery_status"`
	CreatedAt      time.Time         `json:"created_at"`
	DeliveredAt    *time.Time        `json:"delivered_at,omitempty"`
	ReadAt         *time.Time        `json:"read_at,omitempty"`

	// Results holds the channel outcomes of the last delivery cycle.
	// It is not persisted.
	Results []ChannelResult `json:"results,omitempty"`
}

// RecipientEmail returns the recipient email address from metadata.
func (n *Notification) RecipientEmail() (string, bool) {
	if n.Metadata == nil {
		return "", false
	}
	email, ok := n.Metadata[MetadataRecipientEmail]
	return email, ok && email != ""
}
