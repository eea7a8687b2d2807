package notifications

import (
	"context"
	"fmt"
)

// Pub/sub topics.
const (
	TopicStatus     = "notification:status"
	TopicRedeliver  = "notification:redeliver"
	inAppTopicShape = "user:%s:notifications"
)

// Bus is a topic-based publish/subscribe transport.
type Bus interface {
	// Publish sends payload to every current subscriber of topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers handler for topic until the returned unsubscribe
	// function is called or ctx is done.
	Subscribe(ctx context.Context, topic string, handler func(payload []byte)) (unsubscribe func(), err error)
}

// InAppTopic returns the per-recipient in-app topic.
func InAppTopic(recipientID string) string {
	return fmt.Sprintf(inAppTopicShape, recipientID)
}
