package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"fleetops/internal/buildinfo"
	"fleetops/internal/model"
)

// SubscriptionsHandler handles GET and POST /api/subscriptions (admin).
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if _, ok := s.requireAdmin(w, r); !ok {
			return
		}
		var req model.SubscriptionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateSubscriptionRequest(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeError(w, r, "Create subscription failed", err)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		if _, ok := s.requireAdmin(w, r); !ok {
			return
		}
		items, err := s.Store.ListSubscriptions(r.Context())
		if err != nil {
			writeError(w, r, "List subscriptions failed", err)
			return
		}
		for i := range items {
			items[i].Secret = ""
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		methodNotAllowed(w, r, "GET, POST")
	}
}

// SubscriptionByIDHandler handles DELETE /api/subscriptions/{id} (admin).
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/subscriptions/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Endpoint not found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, "DELETE")
		return
	}
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
		writeError(w, r, "Delete subscription failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WebhookDeliveriesHandler handles GET /api/admin/webhook-deliveries?status=&limit=.
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid request", err.Error(), r.URL.Path)
		return
	}
	items, err := s.Store.ListWebhookDeliveries(r.Context(), r.URL.Query().Get("status"), limit)
	if err != nil {
		writeError(w, r, "List deliveries failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler pings the SQL store and the Redis broker when they are in use.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	type pinger interface{ Ping(ctx context.Context) error }
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	for name, dep := range map[string]any{"store": s.Store, "broker": s.Broker} {
		if p, ok := dep.(pinger); ok {
			if err := p.Ping(ctx); err != nil {
				writeProblem(w, http.StatusServiceUnavailable, "Not Ready", name+": "+err.Error(), r.URL.Path)
				return
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// DebugJSON handles GET /debug/info. Secrets are reported only as present or not.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	c := s.Cfg
	writeJSON(w, http.StatusOK, map[string]any{
		"build":  buildinfo.Info(),
		"time":   stamp(),
		"uptime": time.Since(s.started).Round(time.Second).String(),
		"config": map[string]any{
			"addr":             c.Server.Addr,
			"allow_origins":    c.Server.AllowOrigins,
			"rate_rps":         c.Server.RateRPS,
			"rate_burst":       c.Server.RateBurst,
			"store_driver":     c.Store.Driver,
			"auth_mode":        c.Auth.Mode,
			"webhooks_enabled": c.Webhooks.Enabled,
			"max_attempts":     c.Webhooks.MaxAttempts,
			"has_redis_url":    c.Redis.URL != "",
			"has_maps_key":     c.Corridor.MapsKey != "",
			"corridor":         s.Corridor.Name,
			"audit_limit":      c.Planner.AuditLimit,
		},
	})
}
