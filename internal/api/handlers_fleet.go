package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"fleetops/internal/buildinfo"
	"fleetops/internal/model"
	"fleetops/internal/planner"
)

// RootHandler answers GET / with the service status. Every path the mux does
// not know lands here and gets a JSON 404.
func (s *Server) RootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeProblem(w, http.StatusNotFound, "Endpoint not found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "fleetops induction planner running",
		"version": buildinfo.Version,
	})
}

// TrainsHandler handles GET /api/trains: the latest record of every train.
func (s *Server) TrainsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	recs, err := s.Store.ListFleet(r.Context())
	if err != nil {
		writeError(w, r, "List trains failed", err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// TrainByIDHandler handles GET /api/trains/{id}/history.
func (s *Server) TrainByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := strings.CutSuffix(strings.TrimPrefix(r.URL.Path, "/api/trains/"), "/history")
	if !ok || id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Endpoint not found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	hist, err := s.Store.TrainHistory(r.Context(), id)
	if err != nil {
		writeError(w, r, "Train history failed", err)
		return
	}
	if len(hist) == 0 {
		writeProblem(w, http.StatusNotFound, "Train not found", id, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

// FullTrainsHandler handles GET /api/full_trains?date=&q=&status=. The
// resolved snapshot date is returned in X-Snapshot-Date; with no data at
// all the list is empty.
func (s *Server) FullTrainsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	q := r.URL.Query()
	if d := q.Get("date"); d != "" {
		if err := planner.ValidateDate(d); err != nil {
			writeError(w, r, "Invalid date", err)
			return
		}
	}
	date, recs, err := s.Planner.Snapshot(r.Context(), q.Get("date"))
	if err != nil && !errors.Is(err, planner.ErrNoData) {
		writeError(w, r, "Load snapshot failed", err)
		return
	}
	out, err := planner.Filter(recs, q.Get("q"), q.Get("status"))
	if err != nil {
		writeError(w, r, "Invalid filter", err)
		return
	}
	if date != "" {
		w.Header().Set("X-Snapshot-Date", date)
	}
	writeJSON(w, http.StatusOK, out)
}

// FullTrainDataHandler handles GET /full_train_data.json: every snapshot
// keyed by date, the shape the data feed is published in.
func (s *Server) FullTrainDataHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	dates, err := s.Store.ListDates(r.Context())
	if err != nil {
		writeError(w, r, "List dates failed", err)
		return
	}
	out := make(map[string][]model.TrainRecord, len(dates))
	for _, d := range dates {
		recs, err := s.Store.ListTrainRecords(r.Context(), d)
		if err != nil {
			writeError(w, r, "Load snapshot failed", err)
			return
		}
		out[d] = recs
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) DatesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	dates, err := s.Store.ListDates(r.Context())
	if err != nil {
		writeError(w, r, "List dates failed", err)
		return
	}
	writeJSON(w, http.StatusOK, dates)
}

// MaintenanceHandler handles GET /api/maintenance?train_id=&limit=.
func (s *Server) MaintenanceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid request", err.Error(), r.URL.Path)
		return
	}
	logs, err := s.Store.ListMaintenanceLogs(r.Context(), r.URL.Query().Get("train_id"), limit)
	if err != nil {
		writeError(w, r, "List maintenance failed", err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// DailyRequirementsHandler handles GET and PUT /api/daily_requirements. PUT
// upserts a list of rows and needs the planner role.
func (s *Server) DailyRequirementsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		reqs, err := s.Store.ListRequirements(r.Context())
		if err != nil {
			writeError(w, r, "List requirements failed", err)
			return
		}
		writeJSON(w, http.StatusOK, reqs)
	case http.MethodPut:
		p, ok := s.requirePlanner(w, r)
		if !ok {
			return
		}
		var rows []model.DailyRequirement
		if err := decodeJSON(r, &rows); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		for _, row := range rows {
			if err := planner.ValidateDate(row.Date); err != nil {
				writeError(w, r, "Invalid requirement", err)
				return
			}
			if err := planner.Validate(nil, &model.Requirements{Service: row.ServiceTrainsRequired, Standby: row.StandbyTrainsRequired}); err != nil {
				writeError(w, r, "Invalid requirement", err)
				return
			}
		}
		for _, row := range rows {
			if err := s.Store.UpsertRequirement(r.Context(), row); err != nil {
				writeError(w, r, "Save requirement failed", err)
				return
			}
		}
		s.Log.Info("daily requirements updated", "rows", len(rows), "by", p.Operator)
		writeJSON(w, http.StatusOK, map[string]int{"updated": len(rows)})
	default:
		methodNotAllowed(w, r, "GET, PUT")
	}
}

// stamp is used for heartbeat and debug timestamps.
func stamp() string { return time.Now().UTC().Format(time.RFC3339) }
