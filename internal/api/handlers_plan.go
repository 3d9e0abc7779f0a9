package api

import (
	"context"
	"net/http"
	"strings"

	"fleetops/internal/auth"
	"fleetops/internal/model"
	"fleetops/internal/planner"
	"fleetops/internal/webhooks"
)

// OptimizeHandler handles POST /api/optimize: plan the current date (or the
// latest loaded date) with the given weights.
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}
	if _, ok := s.requirePlanner(w, r); !ok {
		return
	}
	var req model.OptimizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	s.optimize(w, r, planner.Request{Type: model.OptCurrentDate, Weights: req.Weights, Requirements: req.Requirements})
}

// OptimizeDateHandler handles POST /api/optimize_date.
func (s *Server) OptimizeDateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}
	if _, ok := s.requirePlanner(w, r); !ok {
		return
	}
	var req model.OptimizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if req.Date == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid request", "date parameter is required", r.URL.Path)
		return
	}
	s.optimize(w, r, planner.Request{Type: model.OptDateSpecific, Date: req.Date, Weights: req.Weights, Requirements: req.Requirements})
}

func (s *Server) optimize(w http.ResponseWriter, r *http.Request, req planner.Request) {
	res, draft, err := s.Planner.Optimize(r.Context(), req)
	if err != nil {
		writeError(w, r, "Optimization failed", err)
		return
	}
	s.announcePlan(r.Context(), res, draft)
	writeJSON(w, http.StatusOK, res)
}

// OptimizeBatchHandler handles POST /api/optimize_batch. The response maps
// each date to its result or to {"error": msg}.
func (s *Server) OptimizeBatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}
	if _, ok := s.requirePlanner(w, r); !ok {
		return
	}
	var req model.OptimizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateDates(req.Dates); err != nil {
		writeError(w, r, "Invalid request", err)
		return
	}
	out, err := s.Planner.OptimizeBatch(r.Context(), req.Dates, req.Weights, req.Requirements)
	if err != nil {
		writeError(w, r, "Batch optimization failed", err)
		return
	}
	byID := make(map[string]model.Draft, len(out.Drafts))
	for _, d := range out.Drafts {
		byID[d.ID] = d
	}
	for _, item := range out.Results {
		if item.OptimizeResult != nil {
			s.announcePlan(r.Context(), *item.OptimizeResult, byID[item.DraftID])
		}
	}
	writeJSON(w, http.StatusOK, out.Results)
}

// announcePlan pushes a finished plan to stream subscribers and webhooks.
func (s *Server) announcePlan(ctx context.Context, res model.OptimizeResult, draft model.Draft) {
	s.Broker.Publish(TopicPlans, Event{Type: "plan.optimized", Data: map[string]any{
		"date":     res.Date,
		"summary":  res.Summary,
		"draft_id": res.DraftID,
	}})
	if len(res.Conflicts) > 0 {
		data := map[string]any{"date": res.Date, "draft_id": res.DraftID, "conflicts": res.Conflicts}
		s.Broker.Publish(TopicPlans, Event{Type: webhooks.EventConflictDetected, Data: data})
		s.Pub.Emit(ctx, webhooks.EventConflictDetected, data)
	}
	if draft.ID != "" {
		s.Broker.Publish(TopicDrafts, Event{Type: "draft.created", Data: draft})
		s.Pub.Emit(ctx, webhooks.EventPlanDrafted, draft)
	}
}

// ConflictsHandler handles GET /api/conflicts.
func (s *Server) ConflictsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	reports, err := s.Planner.Conflicts(r.Context())
	if err != nil {
		writeError(w, r, "List conflicts failed", err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

// AuditHandler handles GET /api/audit?limit=&type=.
func (s *Server) AuditHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid request", err.Error(), r.URL.Path)
		return
	}
	entries, err := s.Planner.Audit(r.Context(), r.URL.Query().Get("type"), limit)
	if err != nil {
		writeError(w, r, "List audit failed", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	st, err := s.Planner.Stats(r.Context())
	if err != nil {
		writeError(w, r, "Stats failed", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// PerformanceHandler handles GET /api/performance?date=.
func (s *Server) PerformanceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	date := r.URL.Query().Get("date")
	if date != "" {
		if err := planner.ValidateDate(date); err != nil {
			writeError(w, r, "Invalid date", err)
			return
		}
	}
	perf, err := s.Planner.Performance(r.Context(), date)
	if err != nil {
		writeError(w, r, "Performance failed", err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

// DraftsHandler handles GET /api/drafts?status=&limit=.
func (s *Server) DraftsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid request", err.Error(), r.URL.Path)
		return
	}
	ds, err := s.Planner.Drafts(r.Context(), r.URL.Query().Get("status"), limit)
	if err != nil {
		writeError(w, r, "List drafts failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

// DraftByIDHandler handles /api/drafts/latest, /api/drafts/{id} and
// POST /api/drafts/{id}/approve|reject.
func (s *Server) DraftByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/drafts/"), "/")
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, "GET")
			return
		}
		var d model.Draft
		var err error
		if parts[0] == "latest" {
			d, err = s.Planner.LatestDraft(r.Context())
		} else {
			d, err = s.Planner.Draft(r.Context(), parts[0])
		}
		if err != nil {
			writeError(w, r, "Get draft failed", err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	case len(parts) == 2 && (parts[1] == "approve" || parts[1] == "reject"):
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, "POST")
			return
		}
		p, ok := s.requirePlanner(w, r)
		if !ok {
			return
		}
		s.decide(w, r, p, parts[0], parts[1] == "approve")
	default:
		writeProblem(w, http.StatusNotFound, "Endpoint not found", "", r.URL.Path)
	}
}

func (s *Server) decide(w http.ResponseWriter, r *http.Request, p auth.Principal, id string, approve bool) {
	var body struct {
		Note string `json:"note"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	d, err := s.Planner.Decide(r.Context(), id, approve, p.Operator, body.Note)
	if err != nil {
		writeError(w, r, "Decide draft failed", err)
		return
	}
	evt, hook := "draft.rejected", webhooks.EventPlanRejected
	if approve {
		evt, hook = "draft.approved", webhooks.EventPlanApproved
	}
	s.Broker.Publish(TopicDrafts, Event{Type: evt, Data: d})
	s.Pub.Emit(r.Context(), hook, d)
	writeJSON(w, http.StatusOK, d)
}
