package metrics

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"net/http"
	"strconv"
	"time"
)

var (
	// HTTPRequests counts served requests by route pattern and status.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "http",
			Name:      "requests_total",
			Help:      "The total number of served HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "http",
			Name:      "request_duration_seconds",
			Help:      "Time spent serving HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// SupplierCalls counts supplier API calls by operation and outcome.
	SupplierCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supplier",
			Name:      "calls_total",
			Help:      "The total number of supplier API calls",
		},
		[]string{"operation", "outcome"},
	)

	SupplierCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "supplier",
			Name:      "call_duration_seconds",
			Help:      "Supplier API call latency",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"operation"},
	)

	Bookings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookings",
			Name:      "total",
			Help:      "Booking attempts by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	PaymentCallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payments",
			Name:      "callbacks_total",
			Help:      "Payment gateway callbacks by outcome",
		},
		[]string{"outcome"},
	)

	// StrayRefunds counts captures refunded because the booking no longer accepted payment.
	StrayRefunds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "payments",
			Name:      "stray_refunds_total",
			Help:      "Refunds of captures the booking could not accept, by outcome",
		},
		[]string{"outcome"},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notifications",
			Name:      "sent_total",
			Help:      "Notification deliveries by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	ReconcilerActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reconciler",
			Name:      "actions_total",
			Help:      "Reconciler actions by kind",
		},
		[]string{"action"},
	)

	// MessagesProcessed counts outbox messages handled by the router.
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messages",
			Name:      "processed_total",
			Help:      "The total number of processed messages",
		},
		[]string{"topic", "handler"},
	)

	MessagesProcessingFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messages",
			Name:      "processing_failed_total",
			Help:      "The total number of message processing failures",
		},
		[]string{"topic", "handler"},
	)

	MessagesProcessingDuration = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace:  "messages",
			Name:       "processing_duration_seconds",
			Help:       "The total time spent processing messages",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"topic", "handler"},
	)
)

// ObserveHTTPRequest records a finished request under its chi route pattern.
func ObserveHTTPRequest(r *http.Request, status int, elapsed time.Duration) {
	route := "unmatched"
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			route = p
		}
	}

	if status == 0 {
		status = http.StatusOK
	}

	HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
}

func ObserveSupplierCall(operation, outcome string, elapsed time.Duration) {
	SupplierCalls.WithLabelValues(operation, outcome).Inc()
	SupplierCallDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}
