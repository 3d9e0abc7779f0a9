package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetops/internal/metrics"
)

// Routes registers every endpoint on a new mux.
func (s *Server) Routes() *http.ServeMux {
	metrics.RegisterDefault()
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.RootHandler)

	// Fleet data
	mux.HandleFunc("/api/trains", s.TrainsHandler)
	mux.HandleFunc("/api/trains/", s.TrainByIDHandler) // /{id}/history
	mux.HandleFunc("/api/full_trains", s.FullTrainsHandler)
	mux.HandleFunc("/full_train_data.json", s.FullTrainDataHandler)
	mux.HandleFunc("/api/dates", s.DatesHandler)
	mux.HandleFunc("/api/maintenance", s.MaintenanceHandler)
	mux.HandleFunc("/api/daily_requirements", s.DailyRequirementsHandler)

	// Planning
	mux.HandleFunc("/api/optimize", s.OptimizeHandler)
	mux.HandleFunc("/api/optimize_date", s.OptimizeDateHandler)
	mux.HandleFunc("/api/optimize_batch", s.OptimizeBatchHandler)
	mux.HandleFunc("/api/conflicts", s.ConflictsHandler)
	mux.HandleFunc("/api/audit", s.AuditHandler)
	mux.HandleFunc("/api/stats", s.StatsHandler)
	mux.HandleFunc("/api/performance", s.PerformanceHandler)
	mux.HandleFunc("/api/drafts", s.DraftsHandler)
	mux.HandleFunc("/api/drafts/", s.DraftByIDHandler) // latest, /{id}, /{id}/approve|reject

	// Streams
	mux.HandleFunc("/api/events/stream", s.EventStreamHandler)
	mux.HandleFunc("/api/events/ws", s.EventWSHandler)

	// Route corridor
	mux.HandleFunc("/api/route/timeline", s.RouteTimelineHandler)
	mux.HandleFunc("/api/route/map", s.RouteMapHandler)

	// Webhooks
	mux.HandleFunc("/api/subscriptions", s.SubscriptionsHandler)
	mux.HandleFunc("/api/subscriptions/", s.SubscriptionByIDHandler)
	mux.HandleFunc("/api/admin/webhook-deliveries", s.WebhookDeliveriesHandler)

	// Ops
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/info", s.DebugJSON)
	return mux
}
