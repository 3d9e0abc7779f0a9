package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fleetops/internal/model"
	"fleetops/internal/store"
)

func seed(t *testing.T, st store.Store, date string, n int) {
	t.Helper()
	recs := make([]model.TrainRecord, 0, n)
	for i := 1; i <= n; i++ {
		recs = append(recs, model.TrainRecord{
			TrainID:                 fmt.Sprintf("T%02d", i),
			FitnessScore:            float64(i) / float64(n+1),
			LastMaintenanceDate:     "2025-09-01",
			JobCardStatus:           "Closed",
			MileageSinceMaintenance: 1000 * i,
			RSCertExpiry:            "2026-01-01",
			SigCertExpiry:           "2026-01-01",
			TelecomCertExpiry:       "2026-01-01",
			RecommendedAction:       model.ActionRevenueService,
		})
	}
	_, err := st.UpsertTrainRecords(context.Background(), date, recs)
	require.NoError(t, err)
}

func newTestPlanner(t *testing.T) (*Planner, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	p := New(st, DefaultConfig(), nil)
	p.now = func() time.Time { return time.Date(2025, 9, 18, 6, 0, 0, 0, time.UTC) }
	return p, st
}

func TestSnapshotFallsBackToLatest(t *testing.T) {
	p, st := newTestPlanner(t)
	ctx := context.Background()

	_, _, err := p.Snapshot(ctx, "")
	require.ErrorIs(t, err, ErrNoData)

	seed(t, st, "2025-09-20", 3)
	seed(t, st, "2025-09-21", 2)
	date, recs, err := p.Snapshot(ctx, "2025-09-20")
	require.NoError(t, err)
	require.Equal(t, "2025-09-20", date)
	require.Len(t, recs, 3)

	// today (2025-09-18) has no data
	date, recs, err = p.Snapshot(ctx, "")
	require.NoError(t, err)
	require.Equal(t, "2025-09-21", date)
	require.Len(t, recs, 2)
}

func TestRequirementResolution(t *testing.T) {
	p, st := newTestPlanner(t)
	ctx := context.Background()

	req, err := p.Requirement(ctx, "2025-09-18", nil)
	require.NoError(t, err)
	require.Equal(t, model.Requirements{Service: 15, Standby: 5}, req)

	require.NoError(t, st.UpsertRequirement(ctx, model.DailyRequirement{Date: "2025-09-18", ServiceTrainsRequired: 12, StandbyTrainsRequired: 3}))
	require.NoError(t, st.UpsertRequirement(ctx, model.DailyRequirement{Date: "2025-09-19", ServiceTrainsRequired: 13, StandbyTrainsRequired: 4}))

	req, err = p.Requirement(ctx, "2025-09-18", nil)
	require.NoError(t, err)
	require.Equal(t, 12, req.Service)

	req, err = p.Requirement(ctx, "2025-10-01", nil)
	require.NoError(t, err)
	require.Equal(t, 13, req.Service)

	req, err = p.Requirement(ctx, "2025-09-18", &model.Requirements{Service: 2, Standby: 1})
	require.NoError(t, err)
	require.Equal(t, 2, req.Service)
}

func TestOptimizeAuditsAndDrafts(t *testing.T) {
	p, st := newTestPlanner(t)
	ctx := context.Background()
	seed(t, st, "2025-09-18", 6)

	res, draft, err := p.Optimize(ctx, Request{Type: model.OptDateSpecific, Date: "2025-09-18", Requirements: &model.Requirements{Service: 3, Standby: 2}})
	require.NoError(t, err)
	require.Equal(t, "2025-09-18", res.Date)
	require.Equal(t, 3, res.Summary.Service)
	require.Equal(t, 2, res.Summary.Standby)
	require.Equal(t, 1, res.Summary.IBL)
	require.Equal(t, draft.ID, res.DraftID)
	require.Equal(t, model.DraftPending, draft.Status)

	audit, err := st.ListAudit(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	require.Equal(t, model.OptDateSpecific, audit[0].OptimizationType)
	require.Equal(t, "2025-09-18", audit[0].Date)
	require.Equal(t, model.DefaultWeights(), audit[0].Weights)
	require.Equal(t, audit[0].ID, draft.AuditID)
	require.NotNil(t, audit[0].ResultSummary)
	require.Equal(t, 6, audit[0].ResultSummary.TotalTrains)
}

func TestOptimizeValidation(t *testing.T) {
	p, st := newTestPlanner(t)
	seed(t, st, "2025-09-18", 2)
	var ve *ValidationError

	_, _, err := p.Optimize(context.Background(), Request{Weights: &model.Weights{Punctuality: 101}})
	require.True(t, errors.As(err, &ve))

	_, _, err = p.Optimize(context.Background(), Request{Requirements: &model.Requirements{Service: -1}})
	require.True(t, errors.As(err, &ve))

	_, _, err = p.Optimize(context.Background(), Request{Type: model.OptDateSpecific, Date: "18/09/2025"})
	require.True(t, errors.As(err, &ve))
}

func TestAuditCapped(t *testing.T) {
	st := store.NewMemory()
	cfg := DefaultConfig()
	cfg.AuditLimit = 3
	p := New(st, cfg, nil)
	seed(t, st, "2025-09-18", 2)
	for i := 0; i < 5; i++ {
		_, _, err := p.Optimize(context.Background(), Request{Date: "2025-09-18"})
		require.NoError(t, err)
	}
	entries, err := p.Audit(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

func TestOptimizeBatch(t *testing.T) {
	p, st := newTestPlanner(t)
	ctx := context.Background()
	seed(t, st, "2025-09-18", 4)
	seed(t, st, "2025-09-19", 4)

	out, err := p.OptimizeBatch(ctx, []string{"2025-09-18", "2025-09-19", "2025-12-31", "bad"}, nil, &model.Requirements{Service: 2, Standby: 1})
	require.NoError(t, err)
	require.Equal(t, model.BatchSummary{TotalDates: 4, Successful: 2, Failed: 2}, out.Summary)
	require.Empty(t, out.Results["2025-09-18"].Error)
	require.Equal(t, 2, out.Results["2025-09-18"].Summary.Service)
	require.NotEmpty(t, out.Results["2025-12-31"].Error)
	require.NotEmpty(t, out.Results["bad"].Error)
	require.Len(t, out.Drafts, 2)

	audit, err := st.ListAudit(ctx, model.OptBatch, 0)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	require.Equal(t, 2, audit[0].ResultsSummary.Successful)
	require.Equal(t, &model.Requirements{Service: 2, Standby: 1}, audit[0].Requirements)

	_, err = p.OptimizeBatch(ctx, nil, nil, nil)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
}

func TestOptimizeBatchAuditsResolvedRequirements(t *testing.T) {
	p, st := newTestPlanner(t)
	ctx := context.Background()
	seed(t, st, "2025-09-18", 4)
	seed(t, st, "2025-09-19", 4)
	require.NoError(t, st.UpsertRequirement(ctx, model.DailyRequirement{Date: "2025-09-18", ServiceTrainsRequired: 3, StandbyTrainsRequired: 1}))
	require.NoError(t, st.UpsertRequirement(ctx, model.DailyRequirement{Date: "2025-09-19", ServiceTrainsRequired: 2, StandbyTrainsRequired: 2}))

	out, err := p.OptimizeBatch(ctx, []string{"2025-09-18", "2025-09-19", "2025-12-31"}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 3, out.Results["2025-09-18"].ServiceNeeded)

	audit, err := st.ListAudit(ctx, model.OptBatch, 0)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	require.Nil(t, audit[0].Requirements)
	require.Equal(t, map[string]model.Requirements{
		"2025-09-18": {Service: 3, Standby: 1},
		"2025-09-19": {Service: 2, Standby: 2},
	}, audit[0].DateRequirements)
}

func TestConflictsAndStats(t *testing.T) {
	p, st := newTestPlanner(t)
	ctx := context.Background()

	s, err := p.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, s.TotalOptimizations)
	require.Nil(t, s.LastOptimization)

	seed(t, st, "2025-09-18", 2)
	// asking for more service trains than exist is a conflict
	_, _, err = p.Optimize(ctx, Request{Requirements: &model.Requirements{Service: 5}})
	require.NoError(t, err)
	_, _, err = p.Optimize(ctx, Request{Type: model.OptDateSpecific, Date: "2025-09-18", Requirements: &model.Requirements{Service: 1}})
	require.NoError(t, err)

	reports, err := p.Conflicts(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Equal(t, "Service requirement short by 3 trains", reports[0].Conflicts[0].Issue)

	s, err = p.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, s.TotalOptimizations)
	require.Equal(t, 1, s.OptimizationTypes.CurrentDate)
	require.Equal(t, 1, s.OptimizationTypes.DateSpecific)
	require.Equal(t, 1, s.TotalConflicts)
	require.InDelta(t, 0.5, s.AvgConflictsPerOpt, 1e-9)
	require.NotNil(t, s.LastOptimization)
}

func TestDecide(t *testing.T) {
	p, st := newTestPlanner(t)
	ctx := context.Background()
	seed(t, st, "2025-09-18", 2)
	_, draft, err := p.Optimize(ctx, Request{})
	require.NoError(t, err)

	latest, err := p.LatestDraft(ctx)
	require.NoError(t, err)
	require.Equal(t, draft.ID, latest.ID)

	d, err := p.Decide(ctx, draft.ID, true, "ops", "looks good")
	require.NoError(t, err)
	require.Equal(t, model.DraftApproved, d.Status)
	require.Equal(t, "ops", d.DecidedBy)

	_, err = p.Decide(ctx, draft.ID, false, "ops", "")
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = p.Decide(ctx, "nope", true, "ops", "")
	require.ErrorIs(t, err, store.ErrNotFound)
}

// slowDrafts widens the gap between reading a draft and writing it back.
type slowDrafts struct {
	*store.Memory
}

func (s slowDrafts) GetDraft(ctx context.Context, id string) (model.Draft, error) {
	d, err := s.Memory.GetDraft(ctx, id)
	time.Sleep(20 * time.Millisecond)
	return d, err
}

func TestDecideConcurrent(t *testing.T) {
	mem := store.NewMemory()
	p := New(slowDrafts{mem}, DefaultConfig(), nil)
	ctx := context.Background()
	seed(t, mem, "2025-09-18", 2)
	_, draft, err := p.Optimize(ctx, Request{})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		decided []string
		errs    []error
	)
	for _, approve := range []bool{true, false, true, false} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := p.Decide(ctx, draft.ID, approve, "ops", "")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			decided = append(decided, d.Status)
		}()
	}
	wg.Wait()

	require.Len(t, decided, 1)
	require.Len(t, errs, 3)
	for _, err := range errs {
		require.ErrorIs(t, err, ErrInvalidTransition)
	}
	final, err := mem.GetDraft(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, decided[0], final.Status)
}

func TestPerformance(t *testing.T) {
	p, st := newTestPlanner(t)
	ctx := context.Background()
	_, err := st.UpsertTrainRecords(ctx, "2025-09-18", []model.TrainRecord{
		{TrainID: "T01", FitnessScore: 0.9, RecommendedAction: model.ActionRevenueService, BrandingActive: true, RSCertExpiry: "2025-09-20"},
		{TrainID: "T02", FitnessScore: 0.6, RecommendedAction: model.ActionStandby, NeedsCleaning: true},
		{TrainID: "T03", FitnessScore: 0.3, RecommendedAction: model.ActionMaintenance, JobCardStatus: "Open"},
	})
	require.NoError(t, err)

	perf, err := p.Performance(ctx, "2025-09-18")
	require.NoError(t, err)
	require.Equal(t, 3, perf.TotalTrains)
	require.Equal(t, 1, perf.RevenueService)
	require.Equal(t, 1, perf.Standby)
	require.Equal(t, 1, perf.Maintenance)
	require.InDelta(t, 66.7, perf.AvailabilityPct, 1e-9)
	require.InDelta(t, 0.6, perf.AvgFitness, 1e-9)
	require.Equal(t, 1, perf.BrandedActive)
	require.Equal(t, 1, perf.CleaningDue)
	require.Equal(t, 1, perf.CertsExpiring)
	require.Equal(t, 1, perf.OpenJobCards)
}
