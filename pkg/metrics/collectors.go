package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// DatabaseStatsCollector exposes database/sql pool statistics of the
// postgres backend
type DatabaseStatsCollector struct {
	db *sql.DB

	openConnections *prometheus.Desc
	inUse           *prometheus.Desc
	idle            *prometheus.Desc
	waitCount       *prometheus.Desc
	waitDuration    *prometheus.Desc
}

// NewDatabaseStatsCollector creates a new database stats collector
func NewDatabaseStatsCollector(db *sql.DB) *DatabaseStatsCollector {
	return &DatabaseStatsCollector{
		db: db,
		openConnections: prometheus.NewDesc(
			"store_postgres_open_connections",
			"The number of established connections both in use and idle",
			nil, nil,
		),
		inUse: prometheus.NewDesc(
			"store_postgres_connections_in_use",
			"The number of connections currently in use",
			nil, nil,
		),
		idle: prometheus.NewDesc(
			"store_postgres_connections_idle",
			"The number of idle connections",
			nil, nil,
		),
		waitCount: prometheus.NewDesc(
			"store_postgres_wait_count_total",
			"The total number of connections waited for",
			nil, nil,
		),
		waitDuration: prometheus.NewDesc(
			"store_postgres_wait_duration_seconds_total",
			"The total time blocked waiting for a new connection",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *DatabaseStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.openConnections
	ch <- c.inUse
	ch <- c.idle
	ch <- c.waitCount
	ch <- c.waitDuration
}

// Collect implements prometheus.Collector
func (c *DatabaseStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.db.Stats()

	ch <- prometheus.MustNewConstMetric(c.openConnections, prometheus.GaugeValue, float64(stats.OpenConnections))
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(stats.InUse))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(stats.Idle))
	ch <- prometheus.MustNewConstMetric(c.waitCount, prometheus.CounterValue, float64(stats.WaitCount))
	ch <- prometheus.MustNewConstMetric(c.waitDuration, prometheus.CounterValue, stats.WaitDuration.Seconds())
}

// RedisStatsCollector exposes go-redis pool statistics of the redis backend
type RedisStatsCollector struct {
	client *redis.Client

	poolHits       *prometheus.Desc
	poolMisses     *prometheus.Desc
	poolTimeouts   *prometheus.Desc
	poolTotalConns *prometheus.Desc
	poolIdleConns  *prometheus.Desc
}

// NewRedisStatsCollector creates a new Redis stats collector
func NewRedisStatsCollector(client *redis.Client) *RedisStatsCollector {
	return &RedisStatsCollector{
		client: client,
		poolHits: prometheus.NewDesc(
			"store_redis_pool_hits_total",
			"Number of times free connection was found in the pool",
			nil, nil,
		),
		poolMisses: prometheus.NewDesc(
			"store_redis_pool_misses_total",
			"Number of times free connection was NOT found in the pool",
			nil, nil,
		),
		poolTimeouts: prometheus.NewDesc(
			"store_redis_pool_timeouts_total",
			"Number of times a wait timeout occurred",
			nil, nil,
		),
		poolTotalConns: prometheus.NewDesc(
			"store_redis_pool_total_connections",
			"Number of total connections in the pool",
			nil, nil,
		),
		poolIdleConns: prometheus.NewDesc(
			"store_redis_pool_idle_connections",
			"Number of idle connections in the pool",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *RedisStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.poolHits
	ch <- c.poolMisses
	ch <- c.poolTimeouts
	ch <- c.poolTotalConns
	ch <- c.poolIdleConns
}

// Collect implements prometheus.Collector
func (c *RedisStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.client.PoolStats()

	ch <- prometheus.MustNewConstMetric(c.poolHits, prometheus.CounterValue, float64(stats.Hits))
	ch <- prometheus.MustNewConstMetric(c.poolMisses, prometheus.CounterValue, float64(stats.Misses))
	ch <- prometheus.MustNewConstMetric(c.poolTimeouts, prometheus.CounterValue, float64(stats.Timeouts))
	ch <- prometheus.MustNewConstMetric(c.poolTotalConns, prometheus.GaugeValue, float64(stats.TotalConns))
	ch <- prometheus.MustNewConstMetric(c.poolIdleConns, prometheus.GaugeValue, float64(stats.IdleConns))
}

// RegisterCollectors registers the pool collectors for whichever backend
// client is in use; nil clients are skipped
func RegisterCollectors(db *sql.DB, redisClient *redis.Client) {
	if db != nil {
		prometheus.MustRegister(NewDatabaseStatsCollector(db))
	}

	if redisClient != nil {
		prometheus.MustRegister(NewRedisStatsCollector(redisClient))
	}
}
