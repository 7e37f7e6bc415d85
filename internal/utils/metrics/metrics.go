package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "memora",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "memora",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	creationStatusTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "memora",
			Subsystem: "paywall",
			Name:      "creation_status_total",
			Help:      "Creation status decisions by resulting state.",
		},
		[]string{"status"},
	)

	ipFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "memora",
			Subsystem: "paywall",
			Name:      "ip_fallback_total",
			Help:      "IP fallback lookups by result (attempt, hit).",
		},
		[]string{"result"},
	)

	creditConsumeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "memora",
			Subsystem: "paywall",
			Name:      "credit_consume_total",
			Help:      "Paid credit consumption attempts by outcome.",
		},
		[]string{"outcome"},
	)

	paymentEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "memora",
			Subsystem: "payment",
			Name:      "webhook_events_total",
			Help:      "Stripe webhook events by type and outcome.",
		},
		[]string{"event_type", "outcome"},
	)

	songGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "memora",
			Subsystem: "song",
			Name:      "generations_total",
			Help:      "Song generation requests by outcome.",
		},
		[]string{"outcome"},
	)
)

// ObserveHTTPRequest records a completed HTTP request.
func ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCreationStatus records a creation-status decision.
func RecordCreationStatus(status string) {
	creationStatusTotal.WithLabelValues(status).Inc()
}

// RecordIPFallbackAttempt records an IP fallback lookup.
func RecordIPFallbackAttempt() {
	ipFallbackTotal.WithLabelValues("attempt").Inc()
}

// RecordIPFallbackHit records an IP fallback lookup that found a record.
func RecordIPFallbackHit() {
	ipFallbackTotal.WithLabelValues("hit").Inc()
}

// RecordCreditConsume records a credit consumption attempt outcome
// (consumed, exhausted, error).
func RecordCreditConsume(outcome string) {
	creditConsumeTotal.WithLabelValues(outcome).Inc()
}

// RecordPaymentEvent records a processed Stripe webhook event.
func RecordPaymentEvent(eventType, outcome string) {
	paymentEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// RecordSongGeneration records a song generation request outcome
// (started, blocked, failed).
func RecordSongGeneration(outcome string) {
	songGenerationsTotal.WithLabelValues(outcome).Inc()
}
