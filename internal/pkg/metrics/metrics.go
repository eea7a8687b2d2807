// Package metrics holds the process-wide Prometheus collectors shared by
// the HTTP layer and the connection pools.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric the service exports.
const Namespace = "notifyengine"

var (
	// HTTPRequestDuration tracks HTTP request latency by route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 120},
		},
		[]string{"method", "route", "status_code"},
	)

	// DBPoolConnections tracks PostgreSQL pool connections by state.
	DBPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "db",
			Name:      "pool_connections",
			Help:      "Number of database connections by state",
		},
		[]string{"state"},
	)

	// RedisPoolConnections tracks Redis pool connections by state.
	RedisPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "redis",
			Name:      "pool_connections",
			Help:      "Number of redis connections by state",
		},
		[]string{"state"},
	)

	// RedisPoolTimeouts mirrors the client's cumulative pool wait timeouts.
	RedisPoolTimeouts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "redis",
			Name:      "pool_timeouts",
			Help:      "Times a command waited too long for a redis connection",
		},
	)
)
