package internal

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhooksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitevents_webhooks_total",
		Help: "Webhook deliveries by event type and outcome.",
	}, []string{"event", "outcome"})

	storedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitevents_events_stored_total",
		Help: "Canonical events appended to the store.",
	}, []string{"action"})

	publishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitevents_publish_errors_total",
		Help: "Failed publishes by driver.",
	}, []string{"driver"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitevents_http_requests_total",
		Help: "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gitevents_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
)

// Webhook outcomes.
const (
	OutcomeStored   = "stored"
	OutcomeIgnored  = "ignored"
	OutcomeRejected = "bad_request"
	OutcomeFailed   = "error"
)

func IncWebhook(eventType, outcome string) {
	webhooksTotal.WithLabelValues(eventType, outcome).Inc()
}

func IncStored(action Action) {
	storedTotal.WithLabelValues(string(action)).Inc()
}

func IncPublishError(driver string) {
	publishErrors.WithLabelValues(driver).Inc()
}

// InstrumentHandler records request count and latency for a route.
func InstrumentHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(wrapped.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
