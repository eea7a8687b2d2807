package notifications

import (
	"github.com/bissquit/notify-engine/internal/domain"
)

// NotificationRequest describes a notification to create.
type NotificationRequest struct {
	Type        domain.NotificationType `json:"type" validate:"required,oneof=task_assigned task_updated task_completed task_due project_created project_updated comment_added mention system"`
	Title       string                  `json:"title" validate:"max=255"`
	Message     string                  `json:"message"`
	RecipientID string                  `json:"recipient_id" validate:"required"`
	SenderID    string                  `json:"sender_id"`
	Priority    domain.Priority         `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Metadata    map[string]string       `json:"metadata"`
}

// withDefaults fills optional fields.
func (r NotificationRequest) withDefaults() NotificationRequest {
	if r.Priority == "" {
		r.Priority = domain.PriorityMedium
	}
	return r
}

// suppression reports why delivery should be skipped for the request, if at all.
func suppression(req NotificationRequest, prefs domain.NotificationPreferences) (string, bool) {
	if prefs.IsMuted(req.Type) {
		return "muted_type", true
	}
	if req.Priority.Below(prefs.PriorityThreshold) {
		return "below_priority_threshold", true
	}
	return "", false
}
