package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds the bridge's Prometheus instruments. Register once,
// record from the HTTP middleware and the engine.
type Collector struct {
	// HTTP front
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// browser exchanges
	sendsTotal    *prometheus.CounterVec
	sendDuration  *prometheus.HistogramVec
	pollsPerSend  prometheus.Histogram
	retriesTotal  *prometheus.CounterVec
	rateLimitWait prometheus.Histogram
	reloadsTotal  prometheus.Counter
	throttles     prometheus.Counter
	conversations prometheus.Gauge

	logger *zap.Logger
}

// NewCollector creates and registers the bridge instruments under the given
// namespace on the default registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.sendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Total number of prompt sends to the browser",
		},
		[]string{"model", "status"},
	)

	// A full exchange is navigation plus generation; seconds to minutes.
	c.sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "End-to-end exchange duration in seconds",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"model"},
	)

	c.pollsPerSend = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "polls_per_send",
			Help:      "Poll attempts needed before a reply was recognized",
			Buckets:   []float64{1, 2, 3, 5, 10, 20, 30, 60},
		},
	)

	c.retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total number of send re-attempts",
		},
		[]string{"code"},
	)

	c.rateLimitWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limit_wait_seconds",
			Help:      "Scheduled waits after the remote app rate limited us",
			Buckets:   []float64{60, 300, 900, 1800, 3600, 7200, 14400},
		},
	)

	c.reloadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_reloads_total",
			Help:      "Total number of recovery page reloads",
		},
	)

	c.throttles = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttle_cooldowns_total",
			Help:      "Total number of self-imposed send cooldowns",
		},
	)

	c.conversations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversations",
			Help:      "Number of registered conversation threads",
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordHTTPRequest records one HTTP request on the front.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// RecordSend records one completed or failed exchange.
func (c *Collector) RecordSend(model, status string, duration time.Duration) {
	c.sendsTotal.WithLabelValues(model, status).Inc()
	c.sendDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordPolls records how many polls an accepted reply took.
func (c *Collector) RecordPolls(attempts int) {
	c.pollsPerSend.Observe(float64(attempts))
}

// RecordRetry records one re-attempt with the error code that caused it.
func (c *Collector) RecordRetry(code string) {
	if code == "" {
		code = "unknown"
	}
	c.retriesTotal.WithLabelValues(code).Inc()
}

// RecordRateLimitWait records a scheduled rate-limit pause.
func (c *Collector) RecordRateLimitWait(wait time.Duration) {
	c.rateLimitWait.Observe(wait.Seconds())
}

// RecordReload records a recovery page reload.
func (c *Collector) RecordReload() {
	c.reloadsTotal.Inc()
}

// RecordThrottle records a self-imposed cooldown.
func (c *Collector) RecordThrottle() {
	c.throttles.Inc()
}

// SetConversations records the registered thread count.
func (c *Collector) SetConversations(n int) {
	c.conversations.Set(float64(n))
}

// statusCode buckets an HTTP status into its class.
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
