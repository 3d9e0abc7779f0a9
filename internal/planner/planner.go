// Package planner runs induction optimizations against stored fleet
// snapshots and keeps the audit log and draft plans that result.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"fleetops/internal/metrics"
	"fleetops/internal/model"
	"fleetops/internal/opt"
	"fleetops/internal/store"
)

var (
	// ErrNoData is returned when no fleet snapshot has been loaded.
	ErrNoData = errors.New("no fleet data loaded")
	// ErrInvalidTransition is returned when deciding a draft that is not pending.
	ErrInvalidTransition = errors.New("draft is not pending")
)

// ValidationError reports a bad optimization input.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

type Config struct {
	AuditLimit          int
	ConflictWindow      int
	BatchConcurrency    int
	DefaultRequirements model.Requirements
	Options             opt.Options
}

func DefaultConfig() Config {
	return Config{
		AuditLimit:          1000,
		ConflictWindow:      10,
		BatchConcurrency:    4,
		DefaultRequirements: model.Requirements{Service: 15, Standby: 5},
		Options:             opt.DefaultOptions(),
	}
}

type Planner struct {
	store store.Store
	cfg   Config
	log   *slog.Logger
	now   func() time.Time
}

func New(st store.Store, cfg Config, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	d := DefaultConfig()
	if cfg.AuditLimit <= 0 {
		cfg.AuditLimit = d.AuditLimit
	}
	if cfg.ConflictWindow <= 0 {
		cfg.ConflictWindow = d.ConflictWindow
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = d.BatchConcurrency
	}
	if cfg.Options == (opt.Options{}) {
		cfg.Options = d.Options
	}
	return &Planner{store: st, cfg: cfg, log: logger, now: time.Now}
}

// Request describes one optimization run. Nil Weights/Requirements fall back
// to defaults and the stored daily requirement.
type Request struct {
	Type         string
	Date         string
	Weights      *model.Weights
	Requirements *model.Requirements
}

// Snapshot returns the records for date. An empty date means today; a date
// with no data falls back to the latest date loaded.
func (p *Planner) Snapshot(ctx context.Context, date string) (string, []model.TrainRecord, error) {
	if date == "" {
		date = p.now().UTC().Format(model.DateLayout)
	}
	recs, err := p.store.ListTrainRecords(ctx, date)
	if err != nil {
		return "", nil, fmt.Errorf("list records: %w", err)
	}
	if len(recs) > 0 {
		return date, recs, nil
	}
	dates, err := p.store.ListDates(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("list dates: %w", err)
	}
	if len(dates) == 0 {
		return "", nil, ErrNoData
	}
	latest := dates[len(dates)-1]
	recs, err = p.store.ListTrainRecords(ctx, latest)
	if err != nil {
		return "", nil, fmt.Errorf("list records: %w", err)
	}
	return latest, recs, nil
}

// Requirement resolves the trains needed on date: override, then the stored
// row for that date, then the last stored row, then the configured default.
func (p *Planner) Requirement(ctx context.Context, date string, override *model.Requirements) (model.Requirements, error) {
	if override != nil {
		return *override, nil
	}
	rows, err := p.store.ListRequirements(ctx)
	if err != nil {
		return model.Requirements{}, fmt.Errorf("list requirements: %w", err)
	}
	for _, r := range rows {
		if r.Date == date {
			return model.Requirements{Service: r.ServiceTrainsRequired, Standby: r.StandbyTrainsRequired}, nil
		}
	}
	if n := len(rows); n > 0 {
		return model.Requirements{Service: rows[n-1].ServiceTrainsRequired, Standby: rows[n-1].StandbyTrainsRequired}, nil
	}
	return p.cfg.DefaultRequirements, nil
}

// Validate checks weights and requirements are in range.
func Validate(w *model.Weights, req *model.Requirements) error {
	if w != nil {
		for name, v := range map[string]float64{
			"punctuality": w.Punctuality, "maintenance": w.Maintenance, "cleaning": w.Cleaning,
			"branding": w.Branding, "mileage": w.Mileage, "telecom": w.Telecom,
		} {
			if math.IsNaN(v) || v < 0 || v > 100 {
				return &ValidationError{Msg: fmt.Sprintf("weight %s must be between 0 and 100", name)}
			}
		}
	}
	if req != nil && (req.Service < 0 || req.Standby < 0) {
		return &ValidationError{Msg: "requirements must be non-negative"}
	}
	return nil
}

// ValidateDate checks a YYYY-MM-DD date.
func ValidateDate(date string) error {
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return &ValidationError{Msg: fmt.Sprintf("invalid date %q, want YYYY-MM-DD", date)}
	}
	return nil
}

func weightsOrDefault(w *model.Weights) model.Weights {
	if w == nil {
		return model.DefaultWeights()
	}
	return *w
}

// run resolves inputs for one date and executes the optimizer.
func (p *Planner) run(ctx context.Context, date string, strict bool, w model.Weights, override *model.Requirements) (model.OptimizeResult, error) {
	resolved, recs, err := p.Snapshot(ctx, date)
	if err != nil {
		return model.OptimizeResult{}, err
	}
	if strict && date != "" && resolved != date {
		return model.OptimizeResult{}, fmt.Errorf("no data for %s", date)
	}
	req, err := p.Requirement(ctx, resolved, override)
	if err != nil {
		return model.OptimizeResult{}, err
	}
	start := time.Now()
	res := opt.Optimize(recs, resolved, w, req, p.cfg.Options)
	metrics.OptimizeDuration.Observe(time.Since(start).Seconds())
	return model.OptimizeResult{
		Date:          res.Date,
		ServiceNeeded: req.Service,
		StandbyNeeded: req.Standby,
		Plan:          res.Plan,
		Conflicts:     res.Conflicts,
		Summary:       res.Summary,
	}, nil
}

// Optimize runs a single-date optimization, records it in the audit log and
// auto-drafts a pending plan.
func (p *Planner) Optimize(ctx context.Context, r Request) (model.OptimizeResult, model.Draft, error) {
	if r.Type == "" {
		r.Type = model.OptCurrentDate
	}
	if err := Validate(r.Weights, r.Requirements); err != nil {
		return model.OptimizeResult{}, model.Draft{}, err
	}
	if r.Date != "" {
		if err := ValidateDate(r.Date); err != nil {
			return model.OptimizeResult{}, model.Draft{}, err
		}
	}
	w := weightsOrDefault(r.Weights)
	res, err := p.run(ctx, r.Date, false, w, r.Requirements)
	if err != nil {
		metrics.Optimizations.WithLabelValues(r.Type, "error").Inc()
		return model.OptimizeResult{}, model.Draft{}, err
	}

	now := p.now().UTC()
	entry := model.AuditEntry{
		ID:               uuid.New().String(),
		Timestamp:        now.Format(time.RFC3339),
		OptimizationType: r.Type,
		Weights:          w,
		ResultSummary: &model.ResultSummary{
			ServiceNeeded:  res.ServiceNeeded,
			StandbyNeeded:  res.StandbyNeeded,
			TotalTrains:    res.Summary.TotalTrains,
			ConflictsFound: res.Summary.ConflictsFound,
		},
		Plan:      res.Plan,
		Conflicts: res.Conflicts,
	}
	if r.Type != model.OptCurrentDate {
		entry.Date = res.Date
		entry.Requirements = &model.Requirements{Service: res.ServiceNeeded, Standby: res.StandbyNeeded}
	}
	if _, err := p.store.AppendAudit(ctx, entry, p.cfg.AuditLimit); err != nil {
		return model.OptimizeResult{}, model.Draft{}, fmt.Errorf("append audit: %w", err)
	}
	draft, err := p.createDraft(ctx, res, entry.ID, now)
	if err != nil {
		return model.OptimizeResult{}, model.Draft{}, err
	}
	res.DraftID = draft.ID
	metrics.Optimizations.WithLabelValues(r.Type, "ok").Inc()
	p.recordConflicts(res.Conflicts)
	p.log.Info("optimization complete", "type", r.Type, "date", res.Date,
		"service", res.Summary.Service, "standby", res.Summary.Standby, "ibl", res.Summary.IBL,
		"conflicts", res.Summary.ConflictsFound, "draft", draft.ID)
	return res, draft, nil
}

func (p *Planner) createDraft(ctx context.Context, res model.OptimizeResult, auditID string, now time.Time) (model.Draft, error) {
	d, err := p.store.CreateDraft(ctx, model.Draft{
		ID:        uuid.New().String(),
		Date:      res.Date,
		AuditID:   auditID,
		Status:    model.DraftPending,
		CreatedAt: now.Format(time.RFC3339),
		Summary:   res.Summary,
		Plan:      res.Plan,
		Conflicts: res.Conflicts,
	})
	if err != nil {
		return model.Draft{}, fmt.Errorf("create draft: %w", err)
	}
	return d, nil
}

func (p *Planner) recordConflicts(cs []model.Conflict) {
	var crit, warn int
	for _, c := range cs {
		if c.Severity == model.SeverityCritical {
			crit++
		} else {
			warn++
		}
	}
	metrics.LastConflicts.WithLabelValues(model.SeverityCritical).Set(float64(crit))
	metrics.LastConflicts.WithLabelValues(model.SeverityWarning).Set(float64(warn))
}

// BatchResult is the outcome of OptimizeBatch.
type BatchResult struct {
	Results map[string]model.BatchItem
	Summary model.BatchSummary
	Drafts  []model.Draft
}

// OptimizeBatch optimizes each date concurrently. A date that fails does not
// fail the batch; its error is reported in place of its result. One batch
// audit entry is written and each successful date is auto-drafted.
func (p *Planner) OptimizeBatch(ctx context.Context, dates []string, weights *model.Weights, override *model.Requirements) (BatchResult, error) {
	if len(dates) == 0 {
		return BatchResult{}, &ValidationError{Msg: "dates array is required"}
	}
	if err := Validate(weights, override); err != nil {
		return BatchResult{}, err
	}
	w := weightsOrDefault(weights)
	auditID := uuid.New().String()
	now := p.now().UTC()

	var mu sync.Mutex
	out := BatchResult{Results: make(map[string]model.BatchItem, len(dates))}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.BatchConcurrency)
	for _, date := range dates {
		g.Go(func() error {
			item, draft := p.batchOne(gctx, date, w, override, auditID, now)
			mu.Lock()
			out.Results[date] = item
			if draft.ID != "" {
				out.Drafts = append(out.Drafts, draft)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, date := range dates {
		if item := out.Results[date]; item.Error != "" {
			out.Summary.Failed++
		} else {
			out.Summary.Successful++
		}
	}
	out.Summary.TotalDates = len(out.Results)
	sort.Slice(out.Drafts, func(i, j int) bool { return out.Drafts[i].Date < out.Drafts[j].Date })

	resolved := make(map[string]model.Requirements, len(out.Results))
	for date, item := range out.Results {
		if item.OptimizeResult != nil {
			resolved[date] = model.Requirements{Service: item.ServiceNeeded, Standby: item.StandbyNeeded}
		}
	}
	summary := out.Summary
	entry := model.AuditEntry{
		ID:               auditID,
		Timestamp:        now.Format(time.RFC3339),
		OptimizationType: model.OptBatch,
		Dates:            dates,
		Weights:          w,
		Requirements:     override,
		DateRequirements: resolved,
		ResultsSummary:   &summary,
	}
	if _, err := p.store.AppendAudit(ctx, entry, p.cfg.AuditLimit); err != nil {
		return BatchResult{}, fmt.Errorf("append audit: %w", err)
	}
	metrics.Optimizations.WithLabelValues(model.OptBatch, "ok").Inc()
	p.log.Info("batch optimization complete", "dates", len(dates), "successful", summary.Successful, "failed", summary.Failed)
	return out, nil
}

func (p *Planner) batchOne(ctx context.Context, date string, w model.Weights, override *model.Requirements, auditID string, now time.Time) (model.BatchItem, model.Draft) {
	if err := ValidateDate(date); err != nil {
		return model.BatchItem{Error: err.Error()}, model.Draft{}
	}
	res, err := p.run(ctx, date, true, w, override)
	if err != nil {
		p.log.Warn("batch date failed", "date", date, "err", err)
		return model.BatchItem{Error: err.Error()}, model.Draft{}
	}
	d, err := p.createDraft(ctx, res, auditID, now)
	if err != nil {
		return model.BatchItem{Error: err.Error()}, model.Draft{}
	}
	res.DraftID = d.ID
	return model.BatchItem{OptimizeResult: &res}, d
}

// Conflicts returns the conflict sets from the most recent audited runs.
func (p *Planner) Conflicts(ctx context.Context) ([]model.ConflictReport, error) {
	entries, err := p.store.ListAudit(ctx, "", p.cfg.ConflictWindow)
	if err != nil {
		return nil, err
	}
	out := []model.ConflictReport{}
	for _, e := range entries {
		if len(e.Conflicts) == 0 {
			continue
		}
		out = append(out, model.ConflictReport{Timestamp: e.Timestamp, Date: e.Date, Conflicts: e.Conflicts})
	}
	return out, nil
}

// Audit lists audit entries newest first, optionally filtered by type.
func (p *Planner) Audit(ctx context.Context, optType string, limit int) ([]model.AuditEntry, error) {
	return p.store.ListAudit(ctx, optType, limit)
}

// Stats summarizes the audit log.
func (p *Planner) Stats(ctx context.Context) (model.Stats, error) {
	entries, err := p.store.ListAudit(ctx, "", 0)
	if err != nil {
		return model.Stats{}, err
	}
	var s model.Stats
	s.TotalOptimizations = len(entries)
	for _, e := range entries {
		switch e.OptimizationType {
		case model.OptCurrentDate:
			s.OptimizationTypes.CurrentDate++
		case model.OptDateSpecific:
			s.OptimizationTypes.DateSpecific++
		case model.OptBatch:
			s.OptimizationTypes.Batch++
		}
		s.TotalConflicts += len(e.Conflicts)
	}
	s.AvgConflictsPerOpt = math.Round(float64(s.TotalConflicts)/float64(max(1, s.TotalOptimizations))*100) / 100
	if len(entries) > 0 {
		ts := entries[0].Timestamp
		s.LastOptimization = &ts
	}
	return s, nil
}

// Performance computes fleet KPIs for the snapshot on date.
func (p *Planner) Performance(ctx context.Context, date string) (model.Performance, error) {
	resolved, recs, err := p.Snapshot(ctx, date)
	if err != nil {
		return model.Performance{}, err
	}
	ref, _ := time.Parse(model.DateLayout, resolved)
	perf := model.Performance{Date: resolved, TotalTrains: len(recs)}
	var fitness float64
	for _, r := range recs {
		fitness += r.FitnessScore
		switch r.RecommendedAction {
		case model.ActionRevenueService:
			perf.RevenueService++
		case model.ActionStandby:
			perf.Standby++
		case model.ActionMaintenance:
			perf.Maintenance++
		}
		if bool(r.BrandingActive) {
			perf.BrandedActive++
		}
		if bool(r.NeedsCleaning) {
			perf.CleaningDue++
		}
		if d := opt.DaysToCertExpiry(r, ref); d <= 7 {
			perf.CertsExpiring++
		}
		if strings.EqualFold(r.JobCardStatus, "open") {
			perf.OpenJobCards++
		}
	}
	if n := len(recs); n > 0 {
		perf.AvgFitness = math.Round(fitness/float64(n)*1000) / 1000
		perf.AvailabilityPct = math.Round(float64(perf.RevenueService+perf.Standby)/float64(n)*1000) / 10
	}
	return perf, nil
}

// Drafts lists drafts newest first.
func (p *Planner) Drafts(ctx context.Context, status string, limit int) ([]model.Draft, error) {
	return p.store.ListDrafts(ctx, status, limit)
}

// LatestDraft returns the newest draft.
func (p *Planner) LatestDraft(ctx context.Context) (model.Draft, error) {
	ds, err := p.store.ListDrafts(ctx, "", 1)
	if err != nil {
		return model.Draft{}, err
	}
	if len(ds) == 0 {
		return model.Draft{}, store.ErrNotFound
	}
	return ds[0], nil
}

func (p *Planner) Draft(ctx context.Context, id string) (model.Draft, error) {
	return p.store.GetDraft(ctx, id)
}

// Decide approves or rejects a pending draft.
func (p *Planner) Decide(ctx context.Context, id string, approve bool, by, note string) (model.Draft, error) {
	d, err := p.store.GetDraft(ctx, id)
	if err != nil {
		return model.Draft{}, err
	}
	if d.Status != model.DraftPending {
		return d, ErrInvalidTransition
	}
	d.Status = model.DraftRejected
	if approve {
		d.Status = model.DraftApproved
	}
	d.DecidedAt = p.now().UTC().Format(time.RFC3339)
	d.DecidedBy = by
	d.Note = note
	if err := p.store.UpdateDraft(ctx, d, model.DraftPending); err != nil {
		if errors.Is(err, store.ErrStatusChanged) {
			return model.Draft{}, ErrInvalidTransition
		}
		return model.Draft{}, fmt.Errorf("update draft: %w", err)
	}
	metrics.DraftDecisions.WithLabelValues(d.Status).Inc()
	p.log.Info("draft decided", "id", d.ID, "status", d.Status, "by", by)
	return d, nil
}
