package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	BatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_batches_total",
			Help: "Total number of micro-batches processed (count)",
		},
		[]string{"status"},
	)

	BatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_batch_duration_ms",
			Help:    "End-to-end micro-batch duration in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"status"},
	)

	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_batch_records",
			Help:    "Number of raw records per polled micro-batch (count)",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 5000},
		},
	)

	StageRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_records_total",
			Help: "Records leaving each pipeline stage (count)",
		},
		[]string{"stage", "result"},
	)

	DecodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decoder_errors_total",
			Help: "Records dropped by the decoder (count)",
		},
		[]string{"kind"},
	)

	FilterRuleEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filtering_rule_evaluations_total",
			Help: "Total number of filter rule evaluations (count)",
		},
		[]string{"rule", "result"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	CatalogSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_subscribers",
			Help: "Subscriber rows held by the resident catalog (count)",
		},
	)

	CatalogLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_loads_total",
			Help: "Catalog load attempts (count)",
		},
		[]string{"trigger", "status"},
	)

	CatalogLoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_load_duration_ms",
			Help:    "Catalog load duration in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)

	DedupRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_records_total",
			Help: "Records evaluated by the dedup engine (count)",
		},
		[]string{"result"},
	)

	DedupEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dedup_evictions_total",
			Help: "Dedup state entries evicted past the watermark (count)",
		},
	)

	DedupStateSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dedup_state_size",
			Help: "Keys currently held in dedup state (count)",
		},
	)

	DedupWatermark = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dedup_watermark_seconds",
			Help: "Current dedup watermark as unix seconds",
		},
	)

	SinkWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sink_writes_total",
			Help: "Sink write attempts per batch (count)",
		},
		[]string{"sink", "status"},
	)

	SinkRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sink_records_total",
			Help: "Records written to a sink (count)",
		},
		[]string{"sink"},
	)

	SinkWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sink_write_duration_ms",
			Help:    "Sink write duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"sink"},
	)

	DispatchRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_retries_total",
			Help: "Redelivery attempts of a finalized batch snapshot (count)",
		},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "operation"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between latest offset and committed offset) (count)",
		},
		[]string{"service", "topic", "partition"},
	)

	KafkaReadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_read_duration_ms",
			Help:    "Duration of a micro-batch poll in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ops_http_requests_total",
			Help: "Requests served by the ops API (count)",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ops_http_request_duration_ms",
			Help:    "Ops API request latency in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"method", "route"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)
)

func RegisterPipelineMetrics() {
	prometheus.MustRegister(BatchesTotal)
	prometheus.MustRegister(BatchDuration)
	prometheus.MustRegister(BatchSize)
	prometheus.MustRegister(StageRecordsTotal)
	prometheus.MustRegister(DecodeErrorsTotal)
	prometheus.MustRegister(FilterRuleEvaluationsTotal)
	prometheus.MustRegister(FallbackUsageTotal)
	prometheus.MustRegister(CatalogSubscribers)
	prometheus.MustRegister(CatalogLoadsTotal)
	prometheus.MustRegister(CatalogLoadDuration)
	prometheus.MustRegister(DedupRecordsTotal)
	prometheus.MustRegister(DedupEvictionsTotal)
	prometheus.MustRegister(DedupStateSize)
	prometheus.MustRegister(DedupWatermark)
	prometheus.MustRegister(SinkWritesTotal)
	prometheus.MustRegister(SinkRecordsTotal)
	prometheus.MustRegister(SinkWriteDuration)
	prometheus.MustRegister(DispatchRetriesTotal)
	prometheus.MustRegister(DatabaseQueriesTotal)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaConsumerLag)
	prometheus.MustRegister(KafkaReadDuration)
	prometheus.MustRegister(KafkaWriteDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterHTTPMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(float64(duration.Milliseconds()))
}

func ObserveBatch(duration time.Duration, status string, records int) {
	BatchesTotal.WithLabelValues(status).Inc()
	BatchDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
	BatchSize.Observe(float64(records))
}

func AddStageRecords(stage, result string, n int) {
	if n > 0 {
		StageRecordsTotal.WithLabelValues(stage, result).Add(float64(n))
	}
}

func IncDecodeError(kind string) {
	DecodeErrorsTotal.WithLabelValues(kind).Inc()
}

func IncFilterRuleEvaluation(rule, result string) {
	FilterRuleEvaluationsTotal.WithLabelValues(rule, result).Inc()
}

func ObserveCatalogLoad(trigger, status string, duration time.Duration, size int) {
	CatalogLoadsTotal.WithLabelValues(trigger, status).Inc()
	CatalogLoadDuration.Observe(float64(duration.Milliseconds()))
	if status == "success" {
		CatalogSubscribers.Set(float64(size))
	}
}

func ObserveDedup(emitted, suppressed, dropped, evicted, stateSize int, watermark time.Time) {
	if emitted > 0 {
		DedupRecordsTotal.WithLabelValues("emitted").Add(float64(emitted))
	}
	if suppressed > 0 {
		DedupRecordsTotal.WithLabelValues("suppressed").Add(float64(suppressed))
	}
	if dropped > 0 {
		DedupRecordsTotal.WithLabelValues("dropped").Add(float64(dropped))
	}
	DedupEvictionsTotal.Add(float64(evicted))
	DedupStateSize.Set(float64(stateSize))
	if !watermark.IsZero() {
		DedupWatermark.Set(float64(watermark.Unix()))
	}
}

func ObserveSinkWrite(sink, status string, duration time.Duration, records int) {
	SinkWritesTotal.WithLabelValues(sink, status).Inc()
	SinkWriteDuration.WithLabelValues(sink).Observe(float64(duration.Milliseconds()))
	if status == "success" {
		SinkRecordsTotal.WithLabelValues(sink).Add(float64(records))
	}
}

func IncKafkaMessagesRead(service, topic string, n int) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Add(float64(n))
}

func IncKafkaMessagesWritten(service, topic string, n int) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Add(float64(n))
}

func SetKafkaConsumerLag(service, topic string, partition int, lag int64) {
	KafkaConsumerLag.WithLabelValues(service, topic, strconv.Itoa(partition)).Set(float64(lag))
}

func ObserveKafkaReadDuration(service, topic string, duration time.Duration) {
	KafkaReadDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}
