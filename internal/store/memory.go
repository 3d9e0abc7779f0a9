package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetops/internal/model"
)

// Memory is a simple in-memory store used when no database is configured.
type Memory struct {
	mu         sync.Mutex
	records    map[string]map[string]model.TrainRecord // date -> trainID -> record
	reqs       map[string]model.DailyRequirement       // date -> requirement
	logs       []model.MaintenanceLog
	audit      []model.AuditEntry // newest first
	drafts     map[string]model.Draft
	draftOrder []string // newest first
	subs       []model.Subscription
	deliveries map[string]*WebhookDelivery
	delivOrder []string
}

func NewMemory() *Memory {
	return &Memory{
		records:    map[string]map[string]model.TrainRecord{},
		reqs:       map[string]model.DailyRequirement{},
		drafts:     map[string]model.Draft{},
		deliveries: map[string]*WebhookDelivery{},
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) UpsertTrainRecords(ctx context.Context, date string, recs []model.TrainRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := m.records[date]
	if day == nil {
		day = map[string]model.TrainRecord{}
		m.records[date] = day
	}
	for _, r := range recs {
		r.Date = date
		day[r.TrainID] = r
	}
	return len(recs), nil
}

func (m *Memory) ListTrainRecords(ctx context.Context, date string) ([]model.TrainRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedRecords(m.records[date]), nil
}

func (m *Memory) ListDates(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.records))
	for d := range m.records {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) ListFleet(ctx context.Context) ([]model.TrainRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := map[string]model.TrainRecord{}
	for _, day := range m.records {
		for id, r := range day {
			if cur, ok := latest[id]; !ok || r.Date > cur.Date {
				latest[id] = r
			}
		}
	}
	return sortedRecords(latest), nil
}

func (m *Memory) TrainHistory(ctx context.Context, trainID string) ([]model.TrainRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.TrainRecord{}
	for _, day := range m.records {
		if r, ok := day[trainID]; ok {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func sortedRecords(in map[string]model.TrainRecord) []model.TrainRecord {
	out := make([]model.TrainRecord, 0, len(in))
	for _, r := range in {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrainID < out[j].TrainID })
	return out
}

func (m *Memory) UpsertRequirement(ctx context.Context, req model.DailyRequirement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs[req.Date] = req
	return nil
}

func (m *Memory) ListRequirements(ctx context.Context) ([]model.DailyRequirement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.DailyRequirement, 0, len(m.reqs))
	for _, r := range m.reqs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (m *Memory) InsertMaintenanceLogs(ctx context.Context, logs []model.MaintenanceLog) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range logs {
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		m.logs = append(m.logs, l)
	}
	return len(logs), nil
}

func (m *Memory) ListMaintenanceLogs(ctx context.Context, trainID string, limit int) ([]model.MaintenanceLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	all := append([]model.MaintenanceLog(nil), m.logs...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Date > all[j].Date })
	out := []model.MaintenanceLog{}
	for _, l := range all {
		if trainID != "" && l.TrainID != trainID {
			continue
		}
		out = append(out, l)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) AppendAudit(ctx context.Context, e model.AuditEntry, keep int) (model.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	m.audit = append([]model.AuditEntry{e}, m.audit...)
	if keep > 0 && len(m.audit) > keep {
		m.audit = m.audit[:keep]
	}
	return e, nil
}

func (m *Memory) ListAudit(ctx context.Context, optType string, limit int) ([]model.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.AuditEntry{}
	for _, e := range m.audit {
		if optType != "" && e.OptimizationType != optType {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) CreateDraft(ctx context.Context, d model.Draft) (model.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	m.drafts[d.ID] = d
	m.draftOrder = append([]string{d.ID}, m.draftOrder...)
	return d, nil
}

func (m *Memory) GetDraft(ctx context.Context, id string) (model.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	if !ok {
		return model.Draft{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) ListDrafts(ctx context.Context, status string, limit int) ([]model.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	out := []model.Draft{}
	for _, id := range m.draftOrder {
		d := m.drafts[id]
		if status != "" && !strings.EqualFold(d.Status, status) {
			continue
		}
		out = append(out, d)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) UpdateDraft(ctx context.Context, d model.Draft, expectStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.drafts[d.ID]
	if !ok {
		return ErrNotFound
	}
	if expectStatus != "" && cur.Status != expectStatus {
		return ErrStatusChanged
	}
	m.drafts[d.ID] = d
	return nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{
		ID:        uuid.New().String(),
		URL:       req.URL,
		Events:    req.Events,
		Secret:    req.Secret,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	m.subs = append(m.subs, s)
	return s, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Subscription{}, m.subs...), nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.subs {
		if s.ID == id {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs {
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &WebhookDelivery{
		ID:             id,
		SubscriptionID: subscriptionID,
		EventType:      eventType,
		URL:            url,
		Secret:         secret,
		Payload:        payload,
		Status:         DeliveryPending,
		NextAttemptAt:  time.Now(),
	}
	m.delivOrder = append(m.delivOrder, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.delivOrder {
		d := m.deliveries[id]
		if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
			out = append(out, *d)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		now := time.Now()
		d.Status = DeliveryDelivered
		d.DeliveredAt = &now
		return nil
	}
	d.Status = DeliveryRetry
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = DeliveryFailed
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	out := []WebhookDelivery{}
	for i := len(m.delivOrder) - 1; i >= 0 && len(out) < limit; i-- {
		d := m.deliveries[m.delivOrder[i]]
		if status == "" || d.Status == status {
			out = append(out, *d)
		}
	}
	return out, nil
}
