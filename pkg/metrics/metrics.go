package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 外部调用延迟（毫秒）：Mailgun、deskctl -> API
	UpstreamCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_call_latency_ms",
			Help:    "Upstream call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		},
		[]string{"endpoint", "status"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	// 慢查询计数
	DBSlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"statement"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 线程组装规模
	ThreadsAssembled = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "threads_assembled",
			Help:    "Number of threads produced per assembly",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// 入站邮件处理计数
	EmailIngestedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_ingested_count",
			Help: "Total number of inbound emails processed",
		},
		[]string{"result"}, // result: stored, vendor_reply, duplicate, failed
	)

	// 发信计数
	NotificationSentCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_sent_count",
			Help: "Total number of outbound emails handed to the mail provider",
		},
		[]string{"kind", "status"}, // kind: vendor_assignment, operator_reply
	)

	// 统计缓存命中
	StatsCacheCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stats_cache_count",
			Help: "Stats summary cache lookups",
		},
		[]string{"result"}, // result: hit, miss, error
	)

	// 熔断器状态变化
	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "to"},
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordUpstreamCallLatency 记录外部调用延迟
func RecordUpstreamCallLatency(endpoint, status string, duration time.Duration) {
	UpstreamCallLatency.WithLabelValues(endpoint, status).Observe(float64(duration.Milliseconds()))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery 记录一次慢查询；statement 只取 SQL 的首个关键字，避免标签基数爆炸
func IncrementSlowQuery(sql string, duration time.Duration) {
	DBSlowQueryCount.WithLabelValues(statementKind(sql)).Inc()
	DBQueryDuration.WithLabelValues(statementKind(sql), "slow").Observe(duration.Seconds())
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func ObserveThreadsAssembled(n int) {
	ThreadsAssembled.Observe(float64(n))
}

func IncrementEmailIngested(result string) {
	EmailIngestedCount.WithLabelValues(result).Inc()
}

func IncrementNotificationSent(kind, status string) {
	NotificationSentCount.WithLabelValues(kind, status).Inc()
}

func IncrementStatsCache(result string) {
	StatsCacheCount.WithLabelValues(result).Inc()
}

func IncrementCircuitBreakerTransition(name, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, to).Inc()
}

func statementKind(sql string) string {
	start := 0
	for start < len(sql) && (sql[start] == ' ' || sql[start] == '\n' || sql[start] == '\t') {
		start++
	}
	end := start
	for end < len(sql) && sql[end] != ' ' && sql[end] != '\n' && sql[end] != '\t' {
		end++
	}
	if start == end {
		return "unknown"
	}
	kind := sql[start:end]
	if len(kind) > 16 {
		kind = kind[:16]
	}
	return kind
}
