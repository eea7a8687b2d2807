package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// RedisPool is implemented by go-redis clients.
type RedisPool interface {
	PoolStats() *redis.PoolStats
}

// RecordDBPoolMetrics snapshots the PostgreSQL pool.
func RecordDBPoolMetrics(pool *pgxpool.Pool) {
	stats := pool.Stat()

	DBPoolConnections.WithLabelValues("in_use").Set(float64(stats.AcquiredConns()))
	DBPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns()))
	DBPoolConnections.WithLabelValues("max").Set(float64(stats.MaxConns()))
}

// RecordRedisPoolMetrics snapshots the Redis pool.
func RecordRedisPoolMetrics(pool RedisPool) {
	stats := pool.PoolStats()
	if stats == nil {
		return
	}

	RedisPoolConnections.WithLabelValues("total").Set(float64(stats.TotalConns))
	RedisPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns))
	RedisPoolConnections.WithLabelValues("stale").Set(float64(stats.StaleConns))
	RedisPoolTimeouts.Set(float64(stats.Timeouts))
}
