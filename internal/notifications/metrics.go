package notifications

import (
	"time"

	"github.com/bissquit/notify-engine/internal/domain"
	"github.com/bissquit/notify-engine/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	notificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "created_total",
			Help:      "Total notifications persisted, by type and whether delivery was suppressed",
		},
		[]string{"type", "suppressed"},
	)

	notificationsRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "rate_limited_total",
			Help:      "Total create requests rejected by recipient rate limiting",
		},
	)

	channelDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "channel_deliveries_total",
			Help:      "Total channel deliveries by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	channelDeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "channel_delivery_duration_seconds",
			Help:      "Time to deliver through one channel including retries",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"channel"},
	)

	deliveryStatuses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "delivery_status_total",
			Help:      "Final delivery status computed per delivery cycle",
		},
		[]string{"status"},
	)

	statusPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "notifications",
			Name:      "status_publish_failures_total",
			Help:      "Total status broadcasts that could not be published",
		},
	)
)

func recordCreated(notificationType domain.NotificationType, suppressed bool) {
	label := "false"
	if suppressed {
		label = "true"
	}
	notificationsCreated.WithLabelValues(string(notificationType), label).Inc()
}

func recordRateLimited() {
	notificationsRateLimited.Inc()
}

func recordChannelResult(result domain.ChannelResult, duration time.Duration) {
	channelDeliveries.WithLabelValues(string(result.Channel), string(result.Outcome)).Inc()
	channelDeliveryDuration.WithLabelValues(string(result.Channel)).Observe(duration.Seconds())
}

func recordDeliveryStatus(status domain.DeliveryStatus) {
	deliveryStatuses.WithLabelValues(string(status)).Inc()
}

func recordPublishFailure() {
	statusPublishFailures.Inc()
}
