package email

import (
	"github.com/bissquit/notify-engine/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	smtpSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "smtp",
			Name:      "sends_total",
			Help:      "Total SMTP send attempts by endpoint and result",
		},
		[]string{"endpoint", "result"},
	)

	smtpDials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "smtp",
			Name:      "dials_total",
			Help:      "Total SMTP connections opened by endpoint and result",
		},
		[]string{"endpoint", "result"},
	)

	smtpPoolInUse = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "smtp",
			Name:      "pool_connections_in_use",
			Help:      "SMTP connections currently sending",
		},
		[]string{"endpoint"},
	)

	throttleWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "smtp",
			Name:      "throttle_waits_total",
			Help:      "Times a send waited for the shared send-rate window",
		},
	)
)

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
