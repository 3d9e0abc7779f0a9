package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"fleetops/internal/config"
	"fleetops/internal/model"
	"fleetops/internal/store"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestServerWith(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewServer(cfg, quietLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestServer(t *testing.T) *Server { return newTestServerWith(t, nil) }

func seedFleet(t *testing.T, s *Server, date string, n int) {
	t.Helper()
	recs := make([]model.TrainRecord, 0, n)
	for i := 1; i <= n; i++ {
		action := model.ActionRevenueService
		if i%4 == 0 {
			action = model.ActionStandby
		}
		recs = append(recs, model.TrainRecord{
			TrainID:                 fmt.Sprintf("KMRL-T%02d", i),
			FitnessScore:            float64(i) / float64(n+1),
			LastMaintenanceDate:     "2025-09-01",
			JobCardStatus:           "Closed",
			MileageSinceMaintenance: 1000 * i,
			RSCertExpiry:            "2026-01-01",
			SigCertExpiry:           "2026-01-01",
			TelecomCertExpiry:       "2026-01-01",
			RecommendedAction:       action,
			StablingBayID:           fmt.Sprintf("SBL-%d", i),
		})
	}
	if _, err := s.Store.UpsertTrainRecords(context.Background(), date, recs); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

type call struct {
	method, path, body string
	role               string
	token              string
}

func do(t *testing.T, h http.Handler, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.role != "" {
		req.Header.Set("X-Role", c.role)
		req.Header.Set("X-Operator", "tester")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestReadySQLite(t *testing.T) {
	path := t.TempDir() + "/fleet.db"
	s := newTestServerWith(t, func(c *config.Config) {
		c.Store.Driver = "sqlite"
		c.Store.Path = path
	})
	if _, ok := s.Store.(*store.SQL); !ok {
		t.Fatalf("expected SQL store, got %T", s.Store)
	}
	rr := do(t, s.Handler(), call{method: http.MethodGet, path: "/readyz"})
	if rr.Code != 200 {
		t.Fatalf("ready: got %d %s", rr.Code, rr.Body.String())
	}
}

func TestNewServerBadCorridorOpensNothing(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = dir + "/fleet.db"
	cfg.Redis.URL = "redis://127.0.0.1:1/0"
	cfg.Corridor.File = dir + "/missing.yaml"

	s, err := NewServer(cfg, quietLogger())
	if err == nil || s != nil {
		t.Fatalf("expected corridor error, got server %v err %v", s, err)
	}
	if !strings.Contains(err.Error(), "load corridor") {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(cfg.Store.Path); !os.IsNotExist(err) {
		t.Fatalf("store should not be opened before config files load, stat err = %v", err)
	}
}

func TestRootAndNotFound(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	rr := do(t, h, call{method: http.MethodGet, path: "/"})
	root := decode[map[string]string](t, rr)
	if rr.Code != 200 || root["status"] != "ok" || root["version"] == "" {
		t.Fatalf("root: %d %v", rr.Code, root)
	}
	rr = do(t, h, call{method: http.MethodGet, path: "/api/nope"})
	if rr.Code != 404 || !strings.Contains(rr.Header().Get("Content-Type"), "json") {
		t.Fatalf("not found: %d %s", rr.Code, rr.Header().Get("Content-Type"))
	}
	rr = do(t, h, call{method: http.MethodDelete, path: "/api/trains"})
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("method: got %d", rr.Code)
	}
}

func TestFleetEndpoints(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rr := do(t, h, call{method: http.MethodGet, path: "/api/full_trains"})
	if rr.Code != 200 || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("empty full_trains: %d %s", rr.Code, rr.Body.String())
	}

	seedFleet(t, s, "2025-09-18", 8)
	seedFleet(t, s, "2025-09-19", 4)

	rr = do(t, h, call{method: http.MethodGet, path: "/api/full_trains?date=2025-09-18"})
	if got := decode[[]model.TrainRecord](t, rr); len(got) != 8 {
		t.Fatalf("full_trains: got %d", len(got))
	}
	if rr.Header().Get("X-Snapshot-Date") != "2025-09-18" {
		t.Fatalf("snapshot date header: %q", rr.Header().Get("X-Snapshot-Date"))
	}
	// unknown date falls back to the latest snapshot
	rr = do(t, h, call{method: http.MethodGet, path: "/api/full_trains?date=2030-01-01&status=standby"})
	if got := decode[[]model.TrainRecord](t, rr); len(got) != 1 || got[0].TrainID != "KMRL-T04" {
		t.Fatalf("standby filter: %+v", got)
	}
	rr = do(t, h, call{method: http.MethodGet, path: "/api/full_trains?date=2025-09-18&q=t0"})
	if got := decode[[]model.TrainRecord](t, rr); len(got) != 8 {
		t.Fatalf("query: got %d", len(got))
	}
	rr = do(t, h, call{method: http.MethodGet, path: "/api/full_trains?status=parked"})
	if rr.Code != 400 {
		t.Fatalf("bad status: got %d", rr.Code)
	}

	rr = do(t, h, call{method: http.MethodGet, path: "/full_train_data.json"})
	if all := decode[map[string][]model.TrainRecord](t, rr); len(all) != 2 || len(all["2025-09-19"]) != 4 {
		t.Fatalf("full_train_data: %d dates", len(all))
	}

	rr = do(t, h, call{method: http.MethodGet, path: "/api/trains"})
	fleet := decode[[]model.TrainRecord](t, rr)
	if len(fleet) != 8 {
		t.Fatalf("fleet: got %d", len(fleet))
	}

	rr = do(t, h, call{method: http.MethodGet, path: "/api/trains/KMRL-T01/history"})
	if hist := decode[[]model.TrainRecord](t, rr); len(hist) != 2 {
		t.Fatalf("history: got %d", len(hist))
	}
	rr = do(t, h, call{method: http.MethodGet, path: "/api/trains/KMRL-T99/history"})
	if rr.Code != 404 {
		t.Fatalf("missing history: got %d", rr.Code)
	}

	rr = do(t, h, call{method: http.MethodGet, path: "/api/dates"})
	if dates := decode[[]string](t, rr); len(dates) != 2 {
		t.Fatalf("dates: %v", dates)
	}
}

func TestDailyRequirements(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	body := `[{"date":"2025-09-18","service_trains_required":12,"standby_trains_required":4}]`
	rr := do(t, h, call{method: http.MethodPut, path: "/api/daily_requirements", body: body, role: "viewer"})
	if rr.Code != 403 {
		t.Fatalf("viewer put: got %d", rr.Code)
	}
	rr = do(t, h, call{method: http.MethodPut, path: "/api/daily_requirements", body: body, role: "planner"})
	if rr.Code != 200 {
		t.Fatalf("put: got %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, h, call{method: http.MethodPut, path: "/api/daily_requirements", body: `[{"date":"18-09-2025"}]`, role: "planner"})
	if rr.Code != 400 {
		t.Fatalf("bad date: got %d", rr.Code)
	}
	rr = do(t, h, call{method: http.MethodGet, path: "/api/daily_requirements"})
	if reqs := decode[[]model.DailyRequirement](t, rr); len(reqs) != 1 || reqs[0].ServiceTrainsRequired != 12 {
		t.Fatalf("requirements: %+v", reqs)
	}
}

func TestOptimizeAndDecide(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rr := do(t, h, call{method: http.MethodPost, path: "/api/optimize", body: `{}`, role: "planner"})
	if rr.Code != 404 {
		t.Fatalf("optimize without data: got %d", rr.Code)
	}

	seedFleet(t, s, "2025-09-18", 8)
	rr = do(t, h, call{method: http.MethodPost, path: "/api/optimize", body: `{}`, role: "viewer"})
	if rr.Code != 403 {
		t.Fatalf("viewer optimize: got %d", rr.Code)
	}
	rr = do(t, h, call{method: http.MethodPost, path: "/api/optimize_date", body: `{"requirements":{"service":4,"standby":2}}`, role: "planner"})
	if rr.Code != 400 {
		t.Fatalf("missing date: got %d", rr.Code)
	}
	rr = do(t, h, call{method: http.MethodPost, path: "/api/optimize", body: `{"weights":{"punctuality":150}}`, role: "planner"})
	if rr.Code != 400 {
		t.Fatalf("bad weights: got %d", rr.Code)
	}

	rr = do(t, h, call{method: http.MethodPost, path: "/api/optimize_date", body: `{"date":"2025-09-18","requirements":{"service":4,"standby":2}}`, role: "planner"})
	if rr.Code != 200 {
		t.Fatalf("optimize_date: %d %s", rr.Code, rr.Body.String())
	}
	res := decode[model.OptimizeResult](t, rr)
	if res.Summary.Service != 4 || res.Summary.Standby != 2 || res.DraftID == "" {
		t.Fatalf("result: %+v", res.Summary)
	}

	rr = do(t, h, call{method: http.MethodGet, path: "/api/drafts/latest"})
	if d := decode[model.Draft](t, rr); d.ID != res.DraftID || d.Status != model.DraftPending {
		t.Fatalf("latest draft: %+v", d)
	}
	rr = do(t, h, call{method: http.MethodPost, path: "/api/drafts/" + res.DraftID + "/approve", body: `{"note":"ok for service"}`, role: "viewer"})
	if rr.Code != 403 {
		t.Fatalf("viewer approve: got %d", rr.Code)
	}
	rr = do(t, h, call{method: http.MethodPost, path: "/api/drafts/" + res.DraftID + "/approve", body: `{"note":"ok for service"}`, role: "planner"})
	if d := decode[model.Draft](t, rr); rr.Code != 200 || d.Status != model.DraftApproved || d.DecidedBy != "tester" {
		t.Fatalf("approve: %d %+v", rr.Code, d)
	}
	rr = do(t, h, call{method: http.MethodPost, path: "/api/drafts/" + res.DraftID + "/reject", role: "planner"})
	if rr.Code != 409 {
		t.Fatalf("second decision: got %d", rr.Code)
	}
	rr = do(t, h, call{method: http.MethodGet, path: "/api/drafts/missing"})
	if rr.Code != 404 {
		t.Fatalf("missing draft: got %d", rr.Code)
	}
	rr = do(t, h, call{method: http.MethodGet, path: "/api/drafts?status=approved"})
	if ds := decode[[]model.Draft](t, rr); len(ds) != 1 {
		t.Fatalf("approved drafts: %d", len(ds))
	}

	rr = do(t, h, call{method: http.MethodGet, path: "/api/audit?type=date_specific"})
	if entries := decode[[]model.AuditEntry](t, rr); len(entries) != 1 || entries[0].Date != "2025-09-18" {
		t.Fatalf("audit: %+v", entries)
	}
	rr = do(t, h, call{method: http.MethodGet, path: "/api/audit?limit=x"})
	if rr.Code != 400 {
		t.Fatalf("bad limit: got %d", rr.Code)
	}
	rr = do(t, h, call{method: http.MethodGet, path: "/api/stats"})
	if st := decode[model.Stats](t, rr); st.TotalOptimizations != 1 || st.OptimizationTypes.DateSpecific != 1 {
		t.Fatalf("stats: %+v", st)
	}
	rr = do(t, h, call{method: http.MethodGet, path: "/api/performance?date=2025-09-18"})
	if perf := decode[model.Performance](t, rr); perf.TotalTrains != 8 || perf.Standby != 2 {
		t.Fatalf("performance: %+v", perf)
	}
}

func TestOptimizeBatch(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	seedFleet(t, s, "2025-09-18", 6)
	seedFleet(t, s, "2025-09-19", 6)

	rr := do(t, h, call{method: http.MethodPost, path: "/api/optimize_batch", body: `{"dates":[]}`, role: "planner"})
	if rr.Code != 400 {
		t.Fatalf("empty batch: got %d", rr.Code)
	}
	rr = do(t, h, call{method: http.MethodPost, path: "/api/optimize_batch", body: `{"dates":["2025-09-18","2025-09-18"]}`, role: "planner"})
	if rr.Code != 400 {
		t.Fatalf("duplicate dates: got %d", rr.Code)
	}

	rr = do(t, h, call{method: http.MethodPost, path: "/api/optimize_batch", body: `{"dates":["2025-09-18","2025-09-19","2025-12-25"],"requirements":{"service":3,"standby":1}}`, role: "planner"})
	if rr.Code != 200 {
		t.Fatalf("batch: %d %s", rr.Code, rr.Body.String())
	}
	var results map[string]map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("results: %d", len(results))
	}
	if _, ok := results["2025-12-25"]["error"]; !ok {
		t.Fatalf("expected per-date error: %v", results["2025-12-25"])
	}
	if results["2025-09-18"]["draft_id"] == "" {
		t.Fatalf("expected draft id: %v", results["2025-09-18"])
	}

	rr = do(t, h, call{method: http.MethodGet, path: "/api/audit?type=batch"})
	entries := decode[[]model.AuditEntry](t, rr)
	if len(entries) != 1 || entries[0].ResultsSummary.Successful != 2 || entries[0].ResultsSummary.Failed != 1 {
		t.Fatalf("batch audit: %+v", entries)
	}
}

func TestSubscriptionsAndWebhookEnqueue(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	seedFleet(t, s, "2025-09-18", 4)

	rr := do(t, h, call{method: http.MethodPost, path: "/api/subscriptions", body: `{"url":"https://hooks.example/plan","events":["plan.drafted"],"secret":"k"}`, role: "planner"})
	if rr.Code != 403 {
		t.Fatalf("planner subscribe: got %d", rr.Code)
	}
	rr = do(t, h, call{method: http.MethodPost, path: "/api/subscriptions", body: `{"url":"ftp://x","events":["plan.drafted"]}`, role: "admin"})
	if rr.Code != 400 {
		t.Fatalf("bad url: got %d", rr.Code)
	}
	rr = do(t, h, call{method: http.MethodPost, path: "/api/subscriptions", body: `{"url":"https://hooks.example/plan","events":["plan.exploded"]}`, role: "admin"})
	if rr.Code != 400 {
		t.Fatalf("bad event: got %d", rr.Code)
	}
	rr = do(t, h, call{method: http.MethodPost, path: "/api/subscriptions", body: `{"url":"https://hooks.example/plan","events":["plan.drafted","plan.approved"],"secret":"k"}`, role: "admin"})
	if rr.Code != 201 {
		t.Fatalf("subscribe: %d %s", rr.Code, rr.Body.String())
	}
	sub := decode[model.Subscription](t, rr)

	rr = do(t, h, call{method: http.MethodGet, path: "/api/subscriptions", role: "admin"})
	list := decode[struct{ Items []model.Subscription }](t, rr)
	if len(list.Items) != 1 || list.Items[0].Secret != "" {
		t.Fatalf("list: %+v", list.Items)
	}

	rr = do(t, h, call{method: http.MethodPost, path: "/api/optimize", body: `{}`, role: "planner"})
	if rr.Code != 200 {
		t.Fatalf("optimize: %d", rr.Code)
	}
	rr = do(t, h, call{method: http.MethodGet, path: "/api/admin/webhook-deliveries?status=pending", role: "admin"})
	var dres struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &dres); err != nil {
		t.Fatal(err)
	}
	if len(dres.Items) != 1 || dres.Items[0]["event_type"] != "plan.drafted" {
		t.Fatalf("deliveries: %+v", dres.Items)
	}

	rr = do(t, h, call{method: http.MethodDelete, path: "/api/subscriptions/" + sub.ID, role: "admin"})
	if rr.Code != 204 {
		t.Fatalf("delete: got %d", rr.Code)
	}
	rr = do(t, h, call{method: http.MethodDelete, path: "/api/subscriptions/" + sub.ID, role: "admin"})
	if rr.Code != 404 {
		t.Fatalf("delete again: got %d", rr.Code)
	}
}

func TestBearerAuthHMAC(t *testing.T) {
	s := newTestServerWith(t, func(c *config.Config) {
		c.Auth.Mode = "hmac"
		c.Auth.HMACSecret = "s3cret"
	})
	h := s.Handler()
	seedFleet(t, s, "2025-09-18", 4)

	// header roles are ignored outside dev mode
	rr := do(t, h, call{method: http.MethodPost, path: "/api/optimize", body: `{}`, role: "admin"})
	if rr.Code != 403 {
		t.Fatalf("anonymous optimize: got %d", rr.Code)
	}
	rr = do(t, h, call{method: http.MethodPost, path: "/api/optimize", body: `{}`, token: "not.a.jwt"})
	if rr.Code != 401 {
		t.Fatalf("bad token: got %d", rr.Code)
	}
	rr = do(t, h, call{method: http.MethodGet, path: "/api/stats"})
	if rr.Code != 200 {
		t.Fatalf("read endpoints stay open: got %d", rr.Code)
	}
}

// sseRecorder is a minimal ResponseWriter that implements http.Flusher
// and captures writes for SSE tests.
type sseRecorder struct {
	mu   sync.Mutex
	hdr  http.Header
	buf  bytes.Buffer
	code int
}

func (r *sseRecorder) Header() http.Header {
	if r.hdr == nil {
		r.hdr = http.Header{}
	}
	return r.hdr
}
func (r *sseRecorder) WriteHeader(c int) { r.code = c }
func (r *sseRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}
func (r *sseRecorder) Flush() {}
func (r *sseRecorder) contains(s string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return bytes.Contains(r.buf.Bytes(), []byte(s))
}

func TestEventStreamSSE(t *testing.T) {
	s := newTestServer(t)
	seedFleet(t, s, "2025-09-18", 4)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events/stream?topic=plans", nil).WithContext(ctx)
	rec := &sseRecorder{}
	done := make(chan struct{})
	go func() {
		s.EventStreamHandler(rec, req)
		close(done)
	}()

	deadline := time.Now().Add(500 * time.Millisecond)
	for !rec.contains("event: heartbeat") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	rr := do(t, s.Handler(), call{method: http.MethodPost, path: "/api/optimize", body: `{}`, role: "planner"})
	if rr.Code != 200 {
		t.Fatalf("optimize: %d", rr.Code)
	}
	deadline = time.Now().Add(500 * time.Millisecond)
	for !rec.contains("event: plan.optimized") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !rec.contains("event: plan.optimized") {
		t.Fatalf("expected plan.optimized event, got %q", rec.buf.String())
	}
	cancel()
	<-done

	rr = do(t, s.Handler(), call{method: http.MethodGet, path: "/api/events/stream?topic=weather"})
	if rr.Code != 400 {
		t.Fatalf("unknown topic: got %d", rr.Code)
	}
}

func TestEventStreamWebsocket(t *testing.T) {
	s := newTestServer(t)
	seedFleet(t, s, "2025-09-18", 4)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/events/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	send := func(m wsMessage) {
		if err := conn.WriteJSON(m); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	expect := func(typ string) wsMessage {
		t.Helper()
		var m wsMessage
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("read: %v", err)
		}
		if m.Type != typ {
			t.Fatalf("expected %s, got %+v", typ, m)
		}
		return m
	}

	send(wsMessage{Type: "connection_init"})
	expect("connection_ack")
	send(wsMessage{Type: "subscribe", ID: "1", Topic: "nope"})
	expect("error")
	expect("complete")
	send(wsMessage{Type: "subscribe", ID: "2", Topic: TopicDrafts})
	// messages are handled in order, so the pong means the subscription is live
	send(wsMessage{Type: "ping"})
	expect("pong")

	resp, err := http.Post(srv.URL+"/api/optimize", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("optimize: %d", resp.StatusCode)
	}

	m := expect("next")
	if m.ID != "2" || m.Topic != TopicDrafts || m.Event != "draft.created" {
		t.Fatalf("next: %+v", m)
	}
	var d model.Draft
	if err := json.Unmarshal(m.Payload, &d); err != nil || d.Status != model.DraftPending {
		t.Fatalf("payload: %s %v", m.Payload, err)
	}
	send(wsMessage{Type: "complete", ID: "2"})
	expect("complete")
}

func TestRouteEndpoints(t *testing.T) {
	var gotKey string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG"))
	}))
	defer upstream.Close()

	s := newTestServer(t)
	rr := do(t, s.Handler(), call{method: http.MethodGet, path: "/api/route/map"})
	if rr.Code != 503 {
		t.Fatalf("map without key: got %d", rr.Code)
	}
	rr = do(t, s.Handler(), call{method: http.MethodGet, path: "/api/route/timeline"})
	var tl struct {
		Stops []map[string]any `json:"stops"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &tl); err != nil || len(tl.Stops) == 0 {
		t.Fatalf("timeline: %s", rr.Body.String())
	}

	s = newTestServerWith(t, func(c *config.Config) {
		c.Corridor.MapsKey = "map-secret"
		c.Corridor.MapsBaseURL = upstream.URL
	})
	rr = do(t, s.Handler(), call{method: http.MethodGet, path: "/api/route/map"})
	if rr.Code != 200 || rr.Header().Get("Content-Type") != "image/png" || gotKey != "map-secret" {
		t.Fatalf("map proxy: %d %q key=%q", rr.Code, rr.Header().Get("Content-Type"), gotKey)
	}
	if strings.Contains(rr.Body.String(), "map-secret") {
		t.Fatal("key leaked to client")
	}
}

func TestMiddleware(t *testing.T) {
	s := newTestServerWith(t, func(c *config.Config) {
		c.Server.RateRPS = 0.001
		c.Server.RateBurst = 1
		c.Server.AllowOrigins = []string{"http://dash.example"}
	})
	h := s.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/optimize", nil)
	req.Header.Set("Origin", "http://dash.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != 204 || rr.Header().Get("Access-Control-Allow-Origin") != "http://dash.example" {
		t.Fatalf("preflight: %d %v", rr.Code, rr.Header())
	}

	if rr := do(t, h, call{method: http.MethodGet, path: "/api/stats"}); rr.Code != 200 {
		t.Fatalf("first request: got %d", rr.Code)
	}
	if rr := do(t, h, call{method: http.MethodGet, path: "/api/stats"}); rr.Code != 429 {
		t.Fatalf("second request: got %d", rr.Code)
	}
	if rr := do(t, h, call{method: http.MethodGet, path: "/healthz"}); rr.Code != 200 {
		t.Fatalf("healthz is exempt: got %d", rr.Code)
	}
	if rr := do(t, h, call{method: http.MethodGet, path: "/metrics"}); rr.Code != 200 || !strings.Contains(rr.Body.String(), "http_requests_total") {
		t.Fatalf("metrics: %d", rr.Code)
	}
}

func TestSeedGenerate(t *testing.T) {
	s := newTestServerWith(t, func(c *config.Config) { c.Seed.Generate = true })
	dates, err := s.Store.ListDates(context.Background())
	if err != nil || len(dates) != 7 {
		t.Fatalf("seeded dates: %v %v", dates, err)
	}
}
