package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"fleetops/internal/config"
	"fleetops/internal/model"
	"fleetops/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []MarkRec
	fails []FailRec
}

type MarkRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
}

type FailRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, MarkRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}

func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, FailRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func newTestWorker(rs store.Store, client *http.Client, maxAttempts int) *Worker {
	w := NewWorker(rs, config.WebhooksConfig{MaxAttempts: maxAttempts}, nil)
	w.HTTP = client
	return w
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := newTestWorker(rs, srv.Client(), 3)
	id, err := rs.Memory.EnqueueWebhook(context.Background(), "sub1", EventPlanDrafted, srv.URL, "secret", []byte(`{"id":"evt1"}`))
	if err != nil || id == "" {
		t.Fatalf("enqueue failed: %v", err)
	}

	w.processOnce(context.Background())

	if gotType != EventPlanDrafted {
		t.Fatalf("event type header = %q", gotType)
	}
	if !VerifyHMAC("secret", gotBody, gotSig) {
		t.Fatalf("signature %q does not verify", gotSig)
	}
	if len(rs.marks) == 0 || !rs.marks[0].Success {
		t.Fatalf("expected mark success, got: %+v", rs.marks)
	}
	items, _ := rs.ListWebhookDeliveries(context.Background(), store.DeliveryDelivered, 0)
	if len(items) != 1 {
		t.Fatalf("expected 1 delivered, got %d", len(items))
	}
}

func TestWorkerProcessOnce_Retry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(503) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := newTestWorker(rs, srv.Client(), 3)
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "sub1", EventPlanApproved, srv.URL, "", []byte(`{}`))

	w.processOnce(context.Background())
	if len(rs.marks) != 1 || rs.marks[0].Success || rs.marks[0].Code != 503 {
		t.Fatalf("expected one failed mark, got %+v", rs.marks)
	}
	// backoff pushes the next attempt into the future
	due, _ := rs.FetchDueWebhookDeliveries(context.Background(), 10)
	if len(due) != 0 {
		t.Fatalf("expected no due deliveries, got %d", len(due))
	}
}

func TestWorkerProcessOnce_Fail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := newTestWorker(rs, srv.Client(), 1)
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "sub1", EventPlanRejected, srv.URL, "", []byte(`{}`))
	w.processOnce(context.Background())
	if len(rs.fails) == 0 {
		t.Fatalf("expected fail recorded")
	}
	if rs.fails[0].LastErr == "" {
		t.Fatalf("expected last error to be set")
	}
}

func TestWorkerStartStop(t *testing.T) {
	hits := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case hits <- struct{}{}:
		default:
		}
	}))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := newTestWorker(rs, srv.Client(), 3)
	w.Interval = 10 * time.Millisecond
	_, _ = rs.Memory.EnqueueWebhook(context.Background(), "sub1", EventPlanDrafted, srv.URL, "", []byte(`{}`))

	w.Start(context.Background())
	select {
	case <-hits:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never delivered")
	}
	w.Stop()
	w.Stop()
}

func TestPublisherEmit(t *testing.T) {
	ms := store.NewMemory()
	ctx := context.Background()
	_, _ = ms.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://a.example/hook", Events: []string{EventPlanDrafted}})
	_, _ = ms.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://b.example/hook", Events: []string{"*"}})
	_, _ = ms.CreateSubscription(ctx, model.SubscriptionRequest{URL: "http://c.example/hook", Events: []string{EventPlanRejected}})

	p := NewPublisher(ms, nil)
	if n := p.Emit(ctx, EventPlanDrafted, map[string]string{"draft_id": "d1"}); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	items, _ := ms.ListWebhookDeliveries(ctx, store.DeliveryPending, 0)
	if len(items) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(items))
	}
	var env Envelope
	if err := json.Unmarshal(items[0].Payload, &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != EventPlanDrafted || env.ID == "" {
		t.Fatalf("bad envelope: %+v", env)
	}
	if n := p.Emit(ctx, EventConflictDetected, nil); n != 1 {
		t.Fatalf("expected 1 delivery for wildcard, got %d", n)
	}
}
