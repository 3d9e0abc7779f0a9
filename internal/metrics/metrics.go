package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, route pattern, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)
	// HTTPRateLimited counts requests rejected by the rate limiter
	HTTPRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "http_rate_limited_total", Help: "Requests rejected with 429."},
	)

	// Optimizations counts optimizer runs by type (current_date, date_specific, batch) and outcome
	Optimizations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "induction_optimizations_total", Help: "Induction optimizations by type and outcome."},
		[]string{"type", "outcome"},
	)
	// OptimizeDuration tracks optimizer wall time per date in seconds
	OptimizeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "induction_optimize_duration_seconds", Help: "Optimizer run time per date.", Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5}},
	)
	// LastConflicts is the number of conflicts found by the most recent run, by severity
	LastConflicts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "induction_last_conflicts", Help: "Conflicts in the most recent plan."},
		[]string{"severity"},
	)
	// DraftDecisions counts draft approvals and rejections
	DraftDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "induction_draft_decisions_total", Help: "Draft plan decisions by status."},
		[]string{"status"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)

	// StreamClients is the number of connected SSE/websocket clients by transport
	StreamClients = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "event_stream_clients", Help: "Connected event stream clients."},
		[]string{"transport"},
	)
)

// RegisterDefault registers collectors to the API registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(HTTPRateLimited)
		Registry.MustRegister(Optimizations)
		Registry.MustRegister(OptimizeDuration)
		Registry.MustRegister(LastConflicts)
		Registry.MustRegister(DraftDecisions)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		Registry.MustRegister(StreamClients)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
