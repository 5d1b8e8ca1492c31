package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector exported on /metrics.
var Registry = prometheus.NewRegistry()

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	recomputeLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "event_recompute_duration_seconds",
			Help:    "Latency of event aggregate recomputation.",
			Buckets: prometheus.DefBuckets,
		},
	)
	validationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_failures_total",
			Help: "Rejected mutations by record kind and reason.",
		},
		[]string{"record", "reason"},
	)
	notificationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Notifications persisted by source rule.",
		},
		[]string{"rule"},
	)
	emailFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_email_failures_total",
			Help: "Notification emails that could not be sent.",
		},
	)
	outboxPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_messages_total",
			Help: "Outbox messages by delivery result.",
		},
		[]string{"result"},
	)
	asynqQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "asynq_queue_depth",
			Help: "Asynq queue depth by queue.",
		},
		[]string{"queue"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequests, httpLatency, recomputeLatency, validationFailures,
		notificationsCreated, emailFailures, outboxPublished, asynqQueueDepth,
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func ObserveRecompute(d time.Duration) {
	recomputeLatency.Observe(d.Seconds())
}

func IncValidationFailure(record, reason string) {
	validationFailures.WithLabelValues(record, reason).Inc()
}

func AddNotifications(rule string, n int) {
	notificationsCreated.WithLabelValues(rule).Add(float64(n))
}

func IncEmailFailure() {
	emailFailures.Inc()
}

func IncOutbox(result string) {
	outboxPublished.WithLabelValues(result).Inc()
}

func SetAsynqQueueDepth(queue string, depth int) {
	asynqQueueDepth.WithLabelValues(queue).Set(float64(depth))
}
