package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailroom_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailroom_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	emailsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailroom_emails_enqueued_total",
			Help: "Total emails accepted into the queue by type and priority",
		},
		[]string{"email_type", "priority"},
	)

	enqueueDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailroom_enqueue_denied_total",
			Help: "Enqueues blocked by the preference gate, by reason",
		},
		[]string{"reason"},
	)

	emailsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailroom_emails_processed_total",
			Help: "Delivery attempts by outcome and provider",
		},
		[]string{"outcome", "provider"},
	)

	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailroom_send_duration_seconds",
			Help:    "Transport send latency distribution",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mailroom_queue_depth",
			Help: "Messages currently in the queue by status",
		},
		[]string{"status"},
	)

	circuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mailroom_circuit_breaker_state",
			Help: "Circuit breaker state per provider (0=closed, 1=open, 2=half-open)",
		},
		[]string{"provider"},
	)

	rateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailroom_rate_limit_rejections_total",
			Help: "Requests rejected by the API rate limiter",
		},
	)

	idempotencyHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailroom_idempotency_hits_total",
			Help: "Enqueues served from the idempotency cache",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordEmailEnqueued records an accepted enqueue.
func RecordEmailEnqueued(emailType, priority string) {
	emailsEnqueued.WithLabelValues(emailType, priority).Inc()
}

// RecordEnqueueDenied records a preference-gate denial.
func RecordEnqueueDenied(reason string) {
	enqueueDenied.WithLabelValues(reason).Inc()
}

// RecordEmailProcessed records a delivery attempt outcome
// (sent, retry, failed).
func RecordEmailProcessed(outcome, provider string) {
	emailsProcessed.WithLabelValues(outcome, provider).Inc()
}

// ObserveSendDuration records transport send latency.
func ObserveSendDuration(provider string, d time.Duration) {
	sendDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// SetQueueDepth sets the gauge for one status.
func SetQueueDepth(status string, count int) {
	queueDepth.WithLabelValues(status).Set(float64(count))
}

// SetCircuitState sets the circuit breaker state gauge for a provider.
func SetCircuitState(provider string, state int) {
	circuitState.WithLabelValues(provider).Set(float64(state))
}

// RecordRateLimitRejection records a rate limit rejection.
func RecordRateLimitRejection() {
	rateLimitRejections.Inc()
}

// RecordIdempotencyHit records an idempotency cache hit.
func RecordIdempotencyHit() {
	idempotencyHits.Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
