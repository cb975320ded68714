package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// AppLabel is the value of the "app" label attached to every metric
	// exposed by the service.
	AppLabel = "stripe-checkout"

	// StatusInitiated marks an operation that was started.
	StatusInitiated = "initiated"
	// StatusSuccess marks an operation that finished without error.
	StatusSuccess = "success"
	// StatusFailed marks an operation that returned an error.
	StatusFailed = "failed"
	// StatusCompleted marks a payment reported as completed by the payment
	// provider.
	StatusCompleted = "completed"

	// StatusReceived marks a webhook event that passed verification.
	StatusReceived = "received"
	// StatusProcessed marks a verified webhook event that required no
	// further action.
	StatusProcessed = "processed"
	// StatusMalformed marks a verified webhook event whose payload could not
	// be decoded.
	StatusMalformed = "malformed"
	// StatusSignatureError marks a webhook delivery that failed verification.
	StatusSignatureError = "signature_error"

	// EventTypeUnknown is used as the event type of deliveries that couldn't
	// be verified and therefore have no trusted type.
	EventTypeUnknown = "unknown"

	// OperationCreate is the record store operation for creating a row.
	OperationCreate = "create"
)

type (
	// Metrics is a registry holding all the metrics of the service. It is
	// created once per process and shared by all handlers.
	Metrics struct {
		staticRegistry *prometheus.Registry

		staticRequestDuration *prometheus.HistogramVec
		staticRequests        *prometheus.CounterVec
		staticPayments        *prometheus.CounterVec
		staticStoreOps        *prometheus.CounterVec
		staticWebhookEvents   *prometheus.CounterVec
	}
)

// New creates a new registry with the service's collectors as well as the
// default Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		staticRegistry: prometheus.NewRegistry(),
		staticRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		}, []string{"method", "route", "status"}),
		staticRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		staticPayments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stripe_payments_total",
			Help: "Total number of Stripe payments",
		}, []string{"status"}),
		staticStoreOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "record_store_operations_total",
			Help: "Total number of record store operations",
		}, []string{"store", "operation", "status"}),
		staticWebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stripe_webhook_events_total",
			Help: "Total number of Stripe webhook events",
		}, []string{"event_type", "status"}),
	}

	reg := prometheus.WrapRegistererWith(prometheus.Labels{"app": AppLabel}, m.staticRegistry)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.staticRequestDuration,
		m.staticRequests,
		m.staticPayments,
		m.staticStoreOps,
		m.staticWebhookEvents,
	)
	return m
}

// Gatherer returns the underlying registry for reading the collected
// metrics.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.staticRegistry
}

// Handler returns an http.Handler serving the text exposition format of all
// registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.staticRegistry, promhttp.HandlerOpts{})
}

// ObserveRequest records a finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	code := strconv.Itoa(status)
	m.staticRequestDuration.WithLabelValues(method, route, code).Observe(d.Seconds())
	m.staticRequests.WithLabelValues(method, route, code).Inc()
}

// Payment increments the payment counter for the given status.
func (m *Metrics) Payment(status string) {
	m.staticPayments.WithLabelValues(status).Inc()
}

// RecordStoreOperation increments the record store counter.
func (m *Metrics) RecordStoreOperation(store, operation, status string) {
	m.staticStoreOps.WithLabelValues(store, operation, status).Inc()
}

// WebhookEvent increments the webhook event counter.
func (m *Metrics) WebhookEvent(eventType, status string) {
	m.staticWebhookEvents.WithLabelValues(eventType, status).Inc()
}
