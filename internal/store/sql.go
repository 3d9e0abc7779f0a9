package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"fleetops/internal/model"
)

// SQL implements Store on database/sql. Postgres and SQLite share the
// queries; placeholders are written as '?' and rebound per dialect.
type SQL struct {
	db      *sql.DB
	dialect string
}

const (
	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite"
)

// tsLayout sorts lexically, which the due-delivery query relies on.
const tsLayout = "2006-01-02T15:04:05.000Z"

func fmtTS(t time.Time) string { return t.UTC().Format(tsLayout) }

func parseTS(s string) time.Time {
	t, _ := time.Parse(tsLayout, s)
	return t
}

// DB exposes the underlying handle (migrations, readiness checks).
func (s *SQL) DB() *sql.DB { return s.db }

func (s *SQL) Close() error { return s.db.Close() }

// Ping checks database connectivity.
func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQL) q(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	return rebindDollar(query)
}

// rebindDollar rewrites '?' placeholders as $1..$n.
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

const trainColumns = `date, train_id, fitness_score, last_maintenance_date, maintenance_due, job_card_status,
	maintenance_type, mileage_since_maintenance, total_mileage, last_cleaning_date, needs_cleaning,
	rs_cert_expiry, sig_cert_expiry, telecom_cert_expiry, branding_active, branding_start_date,
	branding_priority, branding_company, recommended_action, stabling_bay_id`

func (s *SQL) UpsertTrainRecords(ctx context.Context, date string, recs []model.TrainRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, s.q(`INSERT INTO train_records (`+trainColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (date, train_id) DO UPDATE SET
			fitness_score=excluded.fitness_score, last_maintenance_date=excluded.last_maintenance_date,
			maintenance_due=excluded.maintenance_due, job_card_status=excluded.job_card_status,
			maintenance_type=excluded.maintenance_type, mileage_since_maintenance=excluded.mileage_since_maintenance,
			total_mileage=excluded.total_mileage, last_cleaning_date=excluded.last_cleaning_date,
			needs_cleaning=excluded.needs_cleaning, rs_cert_expiry=excluded.rs_cert_expiry,
			sig_cert_expiry=excluded.sig_cert_expiry, telecom_cert_expiry=excluded.telecom_cert_expiry,
			branding_active=excluded.branding_active, branding_start_date=excluded.branding_start_date,
			branding_priority=excluded.branding_priority, branding_company=excluded.branding_company,
			recommended_action=excluded.recommended_action, stabling_bay_id=excluded.stabling_bay_id`))
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for _, r := range recs {
		_, err := stmt.ExecContext(ctx, date, r.TrainID, r.FitnessScore, r.LastMaintenanceDate, bool(r.MaintenanceDue),
			r.JobCardStatus, r.MaintenanceType, r.MileageSinceMaintenance, r.TotalMileage, r.LastCleaningDate,
			bool(r.NeedsCleaning), r.RSCertExpiry, r.SigCertExpiry, r.TelecomCertExpiry, bool(r.BrandingActive),
			r.BrandingStartDate, r.BrandingPriority, r.BrandingCompany, r.RecommendedAction, r.StablingBayID)
		if err != nil {
			return 0, fmt.Errorf("upsert %s/%s: %w", date, r.TrainID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(recs), nil
}

func (s *SQL) queryRecords(ctx context.Context, query string, args ...any) ([]model.TrainRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.TrainRecord{}
	for rows.Next() {
		var r model.TrainRecord
		var due, clean, branded bool
		if err := rows.Scan(&r.Date, &r.TrainID, &r.FitnessScore, &r.LastMaintenanceDate, &due, &r.JobCardStatus,
			&r.MaintenanceType, &r.MileageSinceMaintenance, &r.TotalMileage, &r.LastCleaningDate, &clean,
			&r.RSCertExpiry, &r.SigCertExpiry, &r.TelecomCertExpiry, &branded, &r.BrandingStartDate,
			&r.BrandingPriority, &r.BrandingCompany, &r.RecommendedAction, &r.StablingBayID); err != nil {
			return nil, err
		}
		r.MaintenanceDue = model.FlexBool(due)
		r.NeedsCleaning = model.FlexBool(clean)
		r.BrandingActive = model.FlexBool(branded)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQL) ListTrainRecords(ctx context.Context, date string) ([]model.TrainRecord, error) {
	return s.queryRecords(ctx, `SELECT `+trainColumns+` FROM train_records WHERE date=? ORDER BY train_id`, date)
}

func (s *SQL) ListDates(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT date FROM train_records ORDER BY date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQL) ListFleet(ctx context.Context) ([]model.TrainRecord, error) {
	return s.queryRecords(ctx, `SELECT `+trainColumns+` FROM train_records t
		WHERE date = (SELECT MAX(date) FROM train_records i WHERE i.train_id = t.train_id)
		ORDER BY train_id`)
}

func (s *SQL) TrainHistory(ctx context.Context, trainID string) ([]model.TrainRecord, error) {
	return s.queryRecords(ctx, `SELECT `+trainColumns+` FROM train_records WHERE train_id=? ORDER BY date`, trainID)
}

func (s *SQL) UpsertRequirement(ctx context.Context, req model.DailyRequirement) error {
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO daily_requirements (date, service_required, standby_required) VALUES (?,?,?)
		ON CONFLICT (date) DO UPDATE SET service_required=excluded.service_required, standby_required=excluded.standby_required`),
		req.Date, req.ServiceTrainsRequired, req.StandbyTrainsRequired)
	return err
}

func (s *SQL) ListRequirements(ctx context.Context) ([]model.DailyRequirement, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date, service_required, standby_required FROM daily_requirements ORDER BY date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.DailyRequirement{}
	for rows.Next() {
		var r model.DailyRequirement
		if err := rows.Scan(&r.Date, &r.ServiceTrainsRequired, &r.StandbyTrainsRequired); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQL) InsertMaintenanceLogs(ctx context.Context, logs []model.MaintenanceLog) (int, error) {
	if len(logs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	for _, l := range logs {
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		_, err := tx.ExecContext(ctx, s.q(`INSERT INTO maintenance_logs (id, train_id, date, type, description, mileage_at_service)
			VALUES (?,?,?,?,?,?) ON CONFLICT (id) DO NOTHING`), l.ID, l.TrainID, l.Date, l.Type, l.Description, l.MileageAtService)
		if err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(logs), nil
}

func (s *SQL) ListMaintenanceLogs(ctx context.Context, trainID string, limit int) ([]model.MaintenanceLog, error) {
	limit = clampLimit(limit)
	var rows *sql.Rows
	var err error
	if trainID != "" {
		rows, err = s.db.QueryContext(ctx, s.q(`SELECT id, train_id, date, type, description, mileage_at_service FROM maintenance_logs WHERE train_id=? ORDER BY date DESC, id LIMIT ?`), trainID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, s.q(`SELECT id, train_id, date, type, description, mileage_at_service FROM maintenance_logs ORDER BY date DESC, id LIMIT ?`), limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.MaintenanceLog{}
	for rows.Next() {
		var l model.MaintenanceLog
		if err := rows.Scan(&l.ID, &l.TrainID, &l.Date, &l.Type, &l.Description, &l.MileageAtService); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQL) AppendAudit(ctx context.Context, e model.AuditEntry, keep int) (model.AuditEntry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	body, err := json.Marshal(e)
	if err != nil {
		return e, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return e, err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO audit_log (id, created_at, optimization_type, plan_date, body) VALUES (?,?,?,?,?)`),
		e.ID, e.Timestamp, e.OptimizationType, e.Date, string(body)); err != nil {
		return e, fmt.Errorf("insert audit: %w", err)
	}
	if keep > 0 {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM audit_log WHERE seq NOT IN (SELECT seq FROM audit_log ORDER BY seq DESC LIMIT ?)`), keep); err != nil {
			return e, fmt.Errorf("trim audit: %w", err)
		}
	}
	return e, tx.Commit()
}

func (s *SQL) ListAudit(ctx context.Context, optType string, limit int) ([]model.AuditEntry, error) {
	query := `SELECT body FROM audit_log`
	args := []any{}
	if optType != "" {
		query += ` WHERE optimization_type=?`
		args = append(args, optType)
	}
	query += ` ORDER BY seq DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.AuditEntry{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var e model.AuditEntry
		if err := json.Unmarshal([]byte(body), &e); err != nil {
			return nil, fmt.Errorf("decode audit: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQL) CreateDraft(ctx context.Context, d model.Draft) (model.Draft, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	body, err := json.Marshal(d)
	if err != nil {
		return d, err
	}
	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO plan_drafts (id, plan_date, status, created_at, body) VALUES (?,?,?,?,?)`),
		d.ID, d.Date, d.Status, d.CreatedAt, string(body))
	return d, err
}

func (s *SQL) GetDraft(ctx context.Context, id string) (model.Draft, error) {
	var body string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT body FROM plan_drafts WHERE id=?`), id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Draft{}, ErrNotFound
	}
	if err != nil {
		return model.Draft{}, err
	}
	var d model.Draft
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		return model.Draft{}, fmt.Errorf("decode draft: %w", err)
	}
	return d, nil
}

func (s *SQL) ListDrafts(ctx context.Context, status string, limit int) ([]model.Draft, error) {
	limit = clampLimit(limit)
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = s.db.QueryContext(ctx, s.q(`SELECT body FROM plan_drafts WHERE LOWER(status)=LOWER(?) ORDER BY created_at DESC, seq DESC LIMIT ?`), status, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, s.q(`SELECT body FROM plan_drafts ORDER BY created_at DESC, seq DESC LIMIT ?`), limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Draft{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var d model.Draft
		if err := json.Unmarshal([]byte(body), &d); err != nil {
			return nil, fmt.Errorf("decode draft: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQL) UpdateDraft(ctx context.Context, d model.Draft, expectStatus string) error {
	body, err := json.Marshal(d)
	if err != nil {
		return err
	}
	var res sql.Result
	if expectStatus != "" {
		res, err = s.db.ExecContext(ctx, s.q(`UPDATE plan_drafts SET status=?, body=? WHERE id=? AND status=?`), d.Status, string(body), d.ID, expectStatus)
	} else {
		res, err = s.db.ExecContext(ctx, s.q(`UPDATE plan_drafts SET status=?, body=? WHERE id=?`), d.Status, string(body), d.ID)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	err = s.db.QueryRowContext(ctx, s.q(`SELECT 1 FROM plan_drafts WHERE id=?`), d.ID).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return err
	}
	return ErrStatusChanged
}

func (s *SQL) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	sub := model.Subscription{
		ID:        uuid.New().String(),
		URL:       req.URL,
		Events:    req.Events,
		Secret:    req.Secret,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO subscriptions (id, url, events, secret, created_at) VALUES (?,?,?,?,?)`),
		sub.ID, sub.URL, strings.Join(sub.Events, ","), sub.Secret, sub.CreatedAt)
	return sub, err
}

func (s *SQL) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, url, events, secret, created_at FROM subscriptions ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var sub model.Subscription
		var events string
		if err := rows.Scan(&sub.ID, &sub.URL, &events, &sub.Secret, &sub.CreatedAt); err != nil {
			return nil, err
		}
		if events != "" {
			sub.Events = strings.Split(events, ",")
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *SQL) DeleteSubscription(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM subscriptions WHERE id=?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	all, err := s.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Subscription
	for _, sub := range all {
		for _, e := range sub.Events {
			if e == eventType || e == "*" {
				out = append(out, sub)
				break
			}
		}
	}
	return out, nil
}

func (s *SQL) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	now := fmtTS(time.Now())
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO webhook_deliveries
		(id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, created_at)
		VALUES (?,?,?,?,?,?,?,0,?,?)`), id, subscriptionID, eventType, url, secret, string(payload), DeliveryPending, now, now)
	if err != nil {
		return "", err
	}
	return id, nil
}

const deliveryColumns = `id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, last_error, response_code, latency_ms, delivered_at`

func scanDeliveries(rows *sql.Rows) ([]WebhookDelivery, error) {
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		var payload, next, delivered string
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &payload, &d.Status, &d.Attempts,
			&next, &d.LastError, &d.ResponseCode, &d.LatencyMs, &delivered); err != nil {
			return nil, err
		}
		d.Payload = []byte(payload)
		d.NextAttemptAt = parseTS(next)
		if delivered != "" {
			t := parseTS(delivered)
			d.DeliveredAt = &t
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQL) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+deliveryColumns+` FROM webhook_deliveries
		WHERE status IN ('pending','retry') AND next_attempt_at <= ? ORDER BY next_attempt_at ASC LIMIT ?`), fmtTS(time.Now()), clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanDeliveries(rows)
}

func (s *SQL) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET status=?, attempts=attempts+1, response_code=?, latency_ms=?, delivered_at=? WHERE id=?`),
			DeliveryDelivered, responseCode, latencyMs, fmtTS(time.Now()), id)
		return err
	}
	next := time.Now().Add(time.Minute)
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET status=?, attempts=attempts+1, next_attempt_at=?, last_error=?, response_code=?, latency_ms=? WHERE id=?`),
		DeliveryRetry, fmtTS(next), lastError, responseCode, latencyMs, id)
	return err
}

func (s *SQL) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET status=?, attempts=attempts+1, last_error=?, response_code=?, latency_ms=? WHERE id=?`),
		DeliveryFailed, lastError, responseCode, latencyMs, id)
	return err
}

func (s *SQL) ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]WebhookDelivery, error) {
	limit = clampLimit(limit)
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = s.db.QueryContext(ctx, s.q(`SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE status=? ORDER BY created_at DESC LIMIT ?`), status, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, s.q(`SELECT `+deliveryColumns+` FROM webhook_deliveries ORDER BY created_at DESC LIMIT ?`), limit)
	}
	if err != nil {
		return nil, err
	}
	return scanDeliveries(rows)
}
