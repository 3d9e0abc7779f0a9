// Package opt ranks trains for nightly induction and assigns them to
// revenue service, standby or the inspection bay line (IBL).
package opt

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"fleetops/internal/model"
)

// unknownDays stands in for a missing or unparsable date.
const unknownDays = 9999

// Options tunes conflict detection.
type Options struct {
	// BrandingThreshold is the branding weight above which sending a branded
	// train to IBL is reported as a conflict.
	BrandingThreshold float64
	// CertWarnDays flags service trains whose nearest certificate expires
	// within this many days.
	CertWarnDays int
}

// DefaultOptions returns the thresholds used by the planner.
func DefaultOptions() Options {
	return Options{BrandingThreshold: 60, CertWarnDays: 2}
}

// Metrics are the normalised (0..1) inputs to a train's score.
type Metrics struct {
	Health      float64
	Maintenance float64
	Mileage     float64
	Cleaning    float64
	Branding    float64
	Telecom     float64

	DaysSinceMaintenance int
	DaysToCertExpiry     int
}

// Result is the outcome of one optimization run.
type Result struct {
	Date      string
	Plan      []model.PlanEntry
	Conflicts []model.Conflict
	Summary   model.PlanSummary
}

type scored struct {
	rec     model.TrainRecord
	m       Metrics
	score   float64
	forced  []string
	reasons []model.Reason
}

// Optimize scores every record, assigns roles and detects conflicts.
// The snapshot date (refDate) anchors all day arithmetic.
func Optimize(records []model.TrainRecord, refDate string, w model.Weights, req model.Requirements, o Options) Result {
	ref, err := time.Parse(model.DateLayout, refDate)
	if err != nil {
		ref = time.Now().UTC().Truncate(24 * time.Hour)
	}
	if req.Service < 0 {
		req.Service = 0
	}
	if req.Standby < 0 {
		req.Standby = 0
	}

	maxKm := 1
	maxDays := 1
	for _, r := range records {
		if r.MileageSinceMaintenance > maxKm {
			maxKm = r.MileageSinceMaintenance
		}
		if d := daysBetween(r.LastMaintenanceDate, ref); d > maxDays {
			maxDays = d
		}
	}

	wsum := w.Sum()
	if wsum <= 0 {
		wsum = 1
	}

	var eligible, forced []scored
	for _, r := range records {
		s := scored{rec: r}
		s.m = computeMetrics(r, ref, maxKm, maxDays)
		s.score = Score(s.m, w, wsum)
		s.reasons = reasonsFor(r, s.m)
		s.forced = forcedCauses(r, ref)
		if len(s.forced) > 0 {
			forced = append(forced, s)
		} else {
			eligible = append(eligible, s)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].score != eligible[j].score {
			return eligible[i].score > eligible[j].score
		}
		return eligible[i].rec.TrainID < eligible[j].rec.TrainID
	})
	sort.SliceStable(forced, func(i, j int) bool { return forced[i].rec.TrainID < forced[j].rec.TrainID })

	plan := make([]model.PlanEntry, 0, len(records))
	for i, s := range eligible {
		a := model.AssignIBL
		switch {
		case i < req.Service:
			a = model.AssignService
		case i < req.Service+req.Standby:
			a = model.AssignStandby
		}
		plan = append(plan, entry(s, a, s.reasons))
	}
	for _, s := range forced {
		reasons := append(append([]model.Reason(nil), s.reasons...), model.Reason{
			Note: "Forced IBL due to " + strings.Join(s.forced, ", "),
		})
		plan = append(plan, entry(s, model.AssignIBL, reasons))
	}

	all := append(append([]scored(nil), eligible...), forced...)
	conflicts := detectConflicts(plan, all, len(eligible), w, req, o)
	return Result{Date: refDate, Plan: plan, Conflicts: conflicts, Summary: summarize(plan, conflicts)}
}

// Score combines metrics with weights normalised by wsum.
func Score(m Metrics, w model.Weights, wsum float64) float64 {
	if wsum <= 0 {
		wsum = 1
	}
	s := 0.0
	s += w.Punctuality / wsum * m.Health
	s += w.Maintenance / wsum * m.Maintenance
	s += w.Cleaning / wsum * m.Cleaning
	s += w.Branding / wsum * m.Branding
	s += w.Mileage / wsum * m.Mileage
	s += w.Telecom / wsum * m.Telecom
	return s
}

func computeMetrics(r model.TrainRecord, ref time.Time, maxKm, maxDays int) Metrics {
	m := Metrics{Health: clamp01(r.FitnessScore)}
	m.DaysSinceMaintenance = daysBetween(r.LastMaintenanceDate, ref)
	m.Maintenance = clamp01(1 - float64(m.DaysSinceMaintenance)/float64(maxDays))
	m.Mileage = clamp01(1 - float64(r.MileageSinceMaintenance)/float64(maxKm))
	if !bool(r.NeedsCleaning) {
		m.Cleaning = 1
	}
	if bool(r.BrandingActive) {
		m.Branding = 1
	}
	m.DaysToCertExpiry = DaysToCertExpiry(r, ref)
	m.Telecom = clamp01(float64(m.DaysToCertExpiry) / 30)
	return m
}

// DaysToCertExpiry returns the days until the earliest of the three fitness
// certificates expires. Unknown expiries are ignored; no certificates at all
// counts as unknownDays.
func DaysToCertExpiry(r model.TrainRecord, ref time.Time) int {
	best := unknownDays
	for _, s := range []string{r.RSCertExpiry, r.SigCertExpiry, r.TelecomCertExpiry} {
		t, err := time.Parse(model.DateLayout, s)
		if err != nil {
			continue
		}
		if d := int(t.Sub(ref).Hours() / 24); d < best {
			best = d
		}
	}
	return best
}

func forcedCauses(r model.TrainRecord, ref time.Time) []string {
	var out []string
	if strings.EqualFold(r.JobCardStatus, "open") {
		out = append(out, "open job card")
	}
	if bool(r.MaintenanceDue) {
		out = append(out, "maintenance due")
	}
	if DaysToCertExpiry(r, ref) < 0 {
		out = append(out, "expired certificate")
	}
	return out
}

func reasonsFor(r model.TrainRecord, m Metrics) []model.Reason {
	return []model.Reason{
		{Metric: "health", Value: round(m.Health, 2)},
		{Metric: "maintenance_age_days", Value: m.DaysSinceMaintenance},
		{Metric: "mileage_rank", Value: round(m.Mileage, 2)},
		{Metric: "is_branded", Value: bool(r.BrandingActive)},
		{Metric: "needs_cleaning", Value: bool(r.NeedsCleaning)},
		{Metric: "cert_days_left", Value: m.DaysToCertExpiry},
	}
}

func entry(s scored, a model.Assignment, reasons []model.Reason) model.PlanEntry {
	return model.PlanEntry{
		TrainID:       s.rec.TrainID,
		Assignment:    a,
		Score:         round(s.score, 3),
		Reasons:       reasons,
		StablingBayID: s.rec.StablingBayID,
	}
}

func detectConflicts(plan []model.PlanEntry, all []scored, eligible int, w model.Weights, req model.Requirements, o Options) []model.Conflict {
	byID := make(map[string]scored, len(all))
	for _, s := range all {
		byID[s.rec.TrainID] = s
	}
	out := []model.Conflict{}
	if eligible < req.Service {
		out = append(out, model.Conflict{
			Issue:    fmt.Sprintf("Service requirement short by %d trains", req.Service-eligible),
			Severity: model.SeverityCritical,
		})
	} else if eligible < req.Service+req.Standby {
		out = append(out, model.Conflict{
			Issue:    fmt.Sprintf("Standby requirement short by %d trains", req.Service+req.Standby-eligible),
			Severity: model.SeverityWarning,
		})
	}
	for _, p := range plan {
		s := byID[p.TrainID]
		switch p.Assignment {
		case model.AssignIBL:
			if w.Branding > o.BrandingThreshold && bool(s.rec.BrandingActive) {
				out = append(out, model.Conflict{
					TrainID:  p.TrainID,
					Issue:    "Branded train assigned to IBL while branding priority high",
					Severity: model.SeverityCritical,
				})
			}
		case model.AssignService:
			if s.m.DaysToCertExpiry <= o.CertWarnDays {
				out = append(out, model.Conflict{
					TrainID:  p.TrainID,
					Issue:    fmt.Sprintf("Certificate expires in %d days", s.m.DaysToCertExpiry),
					Severity: model.SeverityWarning,
				})
			}
			if bool(s.rec.NeedsCleaning) {
				out = append(out, model.Conflict{
					TrainID:  p.TrainID,
					Issue:    "Train assigned to service needs cleaning",
					Severity: model.SeverityWarning,
				})
			}
		}
	}
	return out
}

func summarize(plan []model.PlanEntry, conflicts []model.Conflict) model.PlanSummary {
	s := model.PlanSummary{TotalTrains: len(plan), ConflictsFound: len(conflicts)}
	total := 0.0
	for _, p := range plan {
		total += p.Score
		switch p.Assignment {
		case model.AssignService:
			s.Service++
		case model.AssignStandby:
			s.Standby++
		default:
			s.IBL++
		}
	}
	if len(plan) > 0 {
		s.AvgScore = round(total/float64(len(plan)), 3)
	}
	return s
}

func daysBetween(date string, ref time.Time) int {
	if date == "" {
		return unknownDays
	}
	t, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return unknownDays
	}
	return int(ref.Sub(t).Hours() / 24)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
