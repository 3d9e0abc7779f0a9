// Package webhooks fans planner events out to subscribed URLs and delivers
// them with HMAC signatures and exponential backoff.
package webhooks

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fleetops/internal/store"
)

// Event types.
const (
	EventPlanDrafted      = "plan.drafted"
	EventPlanApproved     = "plan.approved"
	EventPlanRejected     = "plan.rejected"
	EventConflictDetected = "conflict.detected"
)

// Events lists every event type a subscription may name ("*" matches all).
var Events = []string{EventPlanDrafted, EventPlanApproved, EventPlanRejected, EventConflictDetected}

// Envelope is the JSON body POSTed to subscribers.
type Envelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	TS   string `json:"ts"`
	Data any    `json:"data"`
}

type Publisher struct {
	Store  store.Store
	Logger *slog.Logger
	now    func() time.Time
}

func NewPublisher(s store.Store, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{Store: s, Logger: logger, now: time.Now}
}

// Emit enqueues one delivery per subscription interested in eventType and
// returns how many were queued. Failures are logged, not returned.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) int {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, eventType)
	if err != nil {
		p.Logger.Error("webhook subscriptions lookup failed", "event", eventType, "err", err)
		return 0
	}
	if len(subs) == 0 {
		return 0
	}
	body, err := json.Marshal(Envelope{
		ID:   "evt_" + uuid.NewString(),
		Type: eventType,
		TS:   p.now().UTC().Format(time.RFC3339),
		Data: data,
	})
	if err != nil {
		p.Logger.Error("webhook payload encode failed", "event", eventType, "err", err)
		return 0
	}
	n := 0
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			p.Logger.Error("webhook enqueue failed", "event", eventType, "subscription", s.ID, "err", err)
			continue
		}
		n++
	}
	p.Logger.Debug("webhook event queued", "event", eventType, "deliveries", n)
	return n
}
