package store

import (
	"context"
	"errors"
	"time"

	"fleetops/internal/model"
)

// Store is the persistence interface used by the planner and API server.
type Store interface {
	// Fleet snapshots
	UpsertTrainRecords(ctx context.Context, date string, recs []model.TrainRecord) (int, error)
	ListTrainRecords(ctx context.Context, date string) ([]model.TrainRecord, error)
	ListDates(ctx context.Context) ([]string, error)
	ListFleet(ctx context.Context) ([]model.TrainRecord, error)
	TrainHistory(ctx context.Context, trainID string) ([]model.TrainRecord, error)

	// Requirements & maintenance
	UpsertRequirement(ctx context.Context, req model.DailyRequirement) error
	ListRequirements(ctx context.Context) ([]model.DailyRequirement, error)
	InsertMaintenanceLogs(ctx context.Context, logs []model.MaintenanceLog) (int, error)
	ListMaintenanceLogs(ctx context.Context, trainID string, limit int) ([]model.MaintenanceLog, error)

	// Audit log, newest first. AppendAudit keeps at most keep entries.
	AppendAudit(ctx context.Context, e model.AuditEntry, keep int) (model.AuditEntry, error)
	ListAudit(ctx context.Context, optType string, limit int) ([]model.AuditEntry, error)

	// Drafts
	CreateDraft(ctx context.Context, d model.Draft) (model.Draft, error)
	GetDraft(ctx context.Context, id string) (model.Draft, error)
	ListDrafts(ctx context.Context, status string, limit int) ([]model.Draft, error)
	// UpdateDraft replaces d. With a non-empty expectStatus the write only
	// happens while the stored status still equals it (ErrStatusChanged otherwise).
	UpdateDraft(ctx context.Context, d model.Draft, expectStatus string) error

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]WebhookDelivery, error)

	Close() error
}

var (
	ErrNotFound      = errors.New("not found")
	ErrStatusChanged = errors.New("status changed")
)

// DefaultListLimit caps list queries when the caller passes no limit.
const DefaultListLimit = 100

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return DefaultListLimit
	}
	return limit
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*SQL)(nil)
)
