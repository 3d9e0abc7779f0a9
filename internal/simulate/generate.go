// Package simulate generates synthetic fleet datasets for demos and tests.
// A run advances every train day by day: revenue service adds mileage,
// maintenance resets it and standby cleans the train.
package simulate

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"fleetops/internal/ingest"
	"fleetops/internal/model"
)

// Profile parameterizes a simulation. Zero fields take DefaultProfile values.
type Profile struct {
	Trains              int      `yaml:"trains"`
	TrainPrefix         string   `yaml:"train_prefix"`
	StartDate           string   `yaml:"start_date"`
	Days                int      `yaml:"days"`
	ContractDays        int      `yaml:"contract_days"`
	MaintenanceInterval int      `yaml:"maintenance_interval_km"`
	DailyKmMin          int      `yaml:"daily_km_min"`
	DailyKmMax          int      `yaml:"daily_km_max"`
	CleaningDays        int      `yaml:"cleaning_days"`
	MinorDefectRate     float64  `yaml:"minor_defect_rate"`
	Seed                int64    `yaml:"seed"`
	Brands              []string `yaml:"brands"`
	Bays                Bays     `yaml:"bays"`
	ServiceRequired     int      `yaml:"service_required"`
	StandbyRequired     int      `yaml:"standby_required"`
}

// Bays counts stabling bays per line.
type Bays struct {
	IBL int `yaml:"ibl"`
	SBL int `yaml:"sbl"`
	CBL int `yaml:"cbl"`
}

func DefaultProfile() Profile {
	return Profile{
		Trains:              25,
		TrainPrefix:         "KMRL-T",
		StartDate:           "2025-09-18",
		Days:                7,
		ContractDays:        90,
		MaintenanceInterval: 20000,
		DailyKmMin:          300,
		DailyKmMax:          550,
		CleaningDays:        7,
		MinorDefectRate:     0.15,
		Seed:                42,
		Brands:              []string{"Brand A", "Brand B", "Brand C", "Brand D", "Brand E"},
		Bays:                Bays{IBL: 10, SBL: 30, CBL: 4},
		ServiceRequired:     15,
		StandbyRequired:     5,
	}
}

// LoadProfile reads a YAML profile over the defaults.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	b, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("parse profile: %w", err)
	}
	return p, p.Validate()
}

func (p Profile) Validate() error {
	if p.Trains <= 0 || p.Days <= 0 {
		return fmt.Errorf("trains and days must be positive")
	}
	if _, err := time.Parse(model.DateLayout, p.StartDate); err != nil {
		return fmt.Errorf("start_date: %w", err)
	}
	if p.DailyKmMin <= 0 || p.DailyKmMax < p.DailyKmMin {
		return fmt.Errorf("daily km range %d..%d is invalid", p.DailyKmMin, p.DailyKmMax)
	}
	if p.Bays.IBL <= 0 || p.Bays.SBL <= 0 || p.Bays.CBL <= 0 {
		return fmt.Errorf("every bay line needs at least one bay")
	}
	if len(p.Brands) == 0 {
		return fmt.Errorf("at least one brand is required")
	}
	return nil
}

type trainState struct {
	id              string
	totalKm         int
	kmSinceMaint    int
	lastCleaning    time.Time
	lastMaintenance time.Time
	brandingStart   time.Time
}

// Generate runs the simulation. The same profile always yields the same
// dataset.
func Generate(p Profile) (ingest.Dataset, error) {
	if err := p.Validate(); err != nil {
		return ingest.Dataset{}, err
	}
	rng := rand.New(rand.NewSource(p.Seed))
	start, _ := time.Parse(model.DateLayout, p.StartDate)
	interval := p.MaintenanceInterval
	avgKm := float64(p.DailyKmMin+p.DailyKmMax) / 2

	trains := make([]*trainState, p.Trains)
	for i := range trains {
		km := 1000 + rng.Intn(interval+5000-1000)
		trains[i] = &trainState{
			id:              fmt.Sprintf("%s%02d", p.TrainPrefix, i+1),
			totalKm:         100000 + i*2000 + rng.Intn(30000),
			kmSinceMaint:    km,
			lastCleaning:    start.AddDate(0, 0, -rng.Intn(10)),
			lastMaintenance: start.AddDate(0, 0, -int(float64(km)/avgKm)),
			brandingStart:   start.AddDate(0, 0, -(1 + rng.Intn(119))),
		}
	}

	ds := ingest.Dataset{Snapshots: make(map[string][]model.TrainRecord, p.Days)}
	for day := 0; day < p.Days; day++ {
		now := start.AddDate(0, 0, day)
		key := now.Format(model.DateLayout)
		recs := make([]model.TrainRecord, 0, len(trains))
		for _, t := range trains {
			r := p.record(rng, t, now)
			recs = append(recs, r)
			switch r.RecommendedAction {
			case model.ActionRevenueService:
				t.totalKm += p.dailyKm(rng)
				t.kmSinceMaint += p.dailyKm(rng)
			case model.ActionMaintenance:
				ds.Maintenance = append(ds.Maintenance, model.MaintenanceLog{
					ID:               uuid.NewSHA1(uuid.NameSpaceOID, []byte(t.id+key)).String(),
					TrainID:          t.id,
					Date:             key,
					Type:             r.MaintenanceType,
					Description:      "Inducted to IBL: " + r.JobCardStatus + " job card",
					MileageAtService: t.totalKm,
				})
				t.kmSinceMaint = 0
				t.lastMaintenance = now
			case model.ActionStandby:
				t.lastCleaning = now
			}
		}
		ds.Snapshots[key] = recs
		ds.Requirements = append(ds.Requirements, model.DailyRequirement{
			Date:                  key,
			ServiceTrainsRequired: p.ServiceRequired,
			StandbyTrainsRequired: p.StandbyRequired,
		})
	}
	return ds, nil
}

func (p Profile) dailyKm(rng *rand.Rand) int {
	return p.DailyKmMin + rng.Intn(p.DailyKmMax-p.DailyKmMin+1)
}

func (p Profile) record(rng *rand.Rand, t *trainState, now time.Time) model.TrainRecord {
	interval := p.MaintenanceInterval
	degradation := math.Min(1, float64(t.kmSinceMaint)/(float64(interval)*1.5))
	vibration := math.Max(0.1, 1-degradation-rng.Float64()*0.2)
	brakes := math.Max(0.1, 1-degradation-rng.Float64()*0.15)
	hvac := math.Max(0.1, 1-degradation-rng.Float64()*0.1)
	fitness := math.Min(vibration, math.Min(brakes, hvac))

	rsDays := max(1, 1+rng.Intn(89)-int(degradation*30))
	sigDays := 5 + rng.Intn(115)
	telDays := 5 + rng.Intn(175)

	jobCard, maintType := "Closed", "Routine"
	switch {
	case t.kmSinceMaint > interval:
		jobCard = "Open"
		maintType = []string{"Major Repair", "Critical Failure"}[rng.Intn(2)]
	case rng.Float64() < p.MinorDefectRate:
		jobCard, maintType = "Open", "Minor Defect"
	}
	due := t.kmSinceMaint > interval
	needsCleaning := int(now.Sub(t.lastCleaning).Hours()/24) > p.CleaningDays

	brandingEnd := t.brandingStart.AddDate(0, 0, p.ContractDays)
	var active bool
	var company string
	if now.After(brandingEnd) {
		t.brandingStart = now
		brandingEnd = now.AddDate(0, 0, p.ContractDays)
		active = true
	} else {
		active = !now.Before(t.brandingStart)
	}
	if active {
		company = p.Brands[rng.Intn(len(p.Brands))]
	}
	remaining := max(0, int(brandingEnd.Sub(now).Hours()/24))

	action := model.ActionRevenueService
	bay := fmt.Sprintf("SBL-%d", 1+rng.Intn(p.Bays.SBL))
	switch {
	case jobCard == "Open" || due:
		action = model.ActionMaintenance
		bay = fmt.Sprintf("IBL-%d", 1+rng.Intn(p.Bays.IBL))
	case needsCleaning:
		action = model.ActionStandby
		bay = fmt.Sprintf("CBL-%d", 1+rng.Intn(p.Bays.CBL))
	}

	return model.TrainRecord{
		Date:                    now.Format(model.DateLayout),
		TrainID:                 t.id,
		FitnessScore:            round3(fitness),
		LastMaintenanceDate:     t.lastMaintenance.Format(model.DateLayout),
		MaintenanceDue:          model.FlexBool(due),
		JobCardStatus:           jobCard,
		MaintenanceType:         maintType,
		MileageSinceMaintenance: t.kmSinceMaint,
		TotalMileage:            t.totalKm,
		LastCleaningDate:        t.lastCleaning.Format(model.DateLayout),
		NeedsCleaning:           model.FlexBool(needsCleaning),
		RSCertExpiry:            now.AddDate(0, 0, rsDays).Format(model.DateLayout),
		SigCertExpiry:           now.AddDate(0, 0, sigDays).Format(model.DateLayout),
		TelecomCertExpiry:       now.AddDate(0, 0, telDays).Format(model.DateLayout),
		BrandingActive:          model.FlexBool(active),
		BrandingStartDate:       t.brandingStart.Format(model.DateLayout),
		BrandingPriority:        round3(1 / (1 + float64(remaining))),
		BrandingCompany:         company,
		RecommendedAction:       action,
		StablingBayID:           bay,
	}
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
