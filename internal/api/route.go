package api

import (
	"io"
	"net/http"
)

// RouteTimelineHandler handles GET /api/route/timeline.
func (s *Server) RouteTimelineHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	writeJSON(w, http.StatusOK, s.Corridor.Timeline())
}

// RouteMapHandler handles GET /api/route/map by fetching the static map
// image server-side so the provider key never reaches the browser.
func (s *Server) RouteMapHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	cfg := s.Cfg.Corridor
	if cfg.MapsKey == "" {
		writeProblem(w, http.StatusServiceUnavailable, "Map unavailable", "no maps key configured", r.URL.Path)
		return
	}
	size := r.URL.Query().Get("size")
	if size == "" {
		size = cfg.MapSize
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, s.Corridor.MapURL(cfg.MapsBaseURL, cfg.MapsKey, size), nil)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Map request failed", err.Error(), r.URL.Path)
		return
	}
	resp, err := s.mapClient.Do(req)
	if err != nil {
		// the upstream error can echo the URL, which carries the key
		s.Log.Warn("map fetch failed", "err", err)
		writeProblem(w, http.StatusBadGateway, "Map fetch failed", "upstream unavailable", r.URL.Path)
		return
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		writeProblem(w, http.StatusBadGateway, "Map fetch failed", resp.Status, r.URL.Path)
		return
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, resp.Body)
}
