package model

import (
	"encoding/json"
	"fmt"
)

// Core domain types shared by the optimizer, stores and HTTP API.

// Recommended actions written by the upstream data feed.
const (
	ActionRevenueService = "Revenue Service"
	ActionStandby        = "Standby (Cleaning)"
	ActionMaintenance    = "Maintenance (IBL)"
)

// Assignment is the induction decision for one train.
type Assignment string

const (
	AssignService Assignment = "Service"
	AssignStandby Assignment = "Standby"
	AssignIBL     Assignment = "IBL"
)

// Optimization types recorded in the audit log.
const (
	OptCurrentDate  = "current_date"
	OptDateSpecific = "date_specific"
	OptBatch        = "batch"
)

// DateLayout is the calendar date format used on the wire and in storage.
const DateLayout = "2006-01-02"

// TrainRecord is the state of one train on one date.
type TrainRecord struct {
	Date                    string   `json:"date,omitempty"`
	TrainID                 string   `json:"train_id"`
	FitnessScore            float64  `json:"fitness_score"`
	LastMaintenanceDate     string   `json:"last_maintenance_date,omitempty"`
	MaintenanceDue          FlexBool `json:"maintenance_due"`
	JobCardStatus           string   `json:"job_card_status,omitempty"`
	MaintenanceType         string   `json:"maintenance_type,omitempty"`
	MileageSinceMaintenance int      `json:"mileage_since_maintenance"`
	TotalMileage            int      `json:"total_mileage"`
	LastCleaningDate        string   `json:"last_cleaning_date,omitempty"`
	NeedsCleaning           FlexBool `json:"needs_cleaning"`
	RSCertExpiry            string   `json:"rs_cert_expiry,omitempty"`
	SigCertExpiry           string   `json:"sig_cert_expiry,omitempty"`
	TelecomCertExpiry       string   `json:"telecom_cert_expiry,omitempty"`
	BrandingActive          FlexBool `json:"branding_active"`
	BrandingStartDate       string   `json:"branding_start_date,omitempty"`
	BrandingPriority        float64  `json:"branding_priority"`
	BrandingCompany         string   `json:"branding_company,omitempty"`
	RecommendedAction       string   `json:"recommended_action,omitempty"`
	StablingBayID           string   `json:"stabling_bay_id,omitempty"`
}

// FlexBool decodes JSON booleans as well as 0/1 numbers.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	switch s := string(data); s {
	case "true", "1", "1.0", `"true"`, `"1"`:
		*b = true
		return nil
	case "false", "0", "0.0", "null", `"false"`, `"0"`, `""`:
		*b = false
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("invalid boolean %s", string(data))
	}
	*b = f != 0
	return nil
}

// Weights are the operator-tunable objective weights (0..100 each).
type Weights struct {
	Punctuality float64 `json:"punctuality"`
	Maintenance float64 `json:"maintenance"`
	Cleaning    float64 `json:"cleaning"`
	Branding    float64 `json:"branding"`
	Mileage     float64 `json:"mileage"`
	Telecom     float64 `json:"telecom"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Punctuality + w.Maintenance + w.Cleaning + w.Branding + w.Mileage + w.Telecom
}

// IsZero reports whether no weight was supplied.
func (w Weights) IsZero() bool { return w == Weights{} }

// DefaultWeights mirrors the dashboard slider defaults.
func DefaultWeights() Weights {
	return Weights{Punctuality: 80, Maintenance: 60, Cleaning: 50, Branding: 80, Mileage: 50}
}

// Requirements is the number of trains needed per induction role.
type Requirements struct {
	Service int `json:"service"`
	Standby int `json:"standby"`
}

type DailyRequirement struct {
	Date                  string `json:"date"`
	ServiceTrainsRequired int    `json:"service_trains_required"`
	StandbyTrainsRequired int    `json:"standby_trains_required"`
}

type MaintenanceLog struct {
	ID               string `json:"id"`
	TrainID          string `json:"train_id"`
	Date             string `json:"date"`
	Type             string `json:"type"`
	Description      string `json:"description,omitempty"`
	MileageAtService int    `json:"mileage_at_service"`
}

// Reason explains one input to a train's score. Either Metric/Value or Note is set.
type Reason struct {
	Metric string `json:"metric,omitempty"`
	Value  any    `json:"value,omitempty"`
	Note   string `json:"note,omitempty"`
}

type PlanEntry struct {
	TrainID       string     `json:"train_id"`
	Assignment    Assignment `json:"assignment"`
	Score         float64    `json:"score"`
	Reasons       []Reason   `json:"reasons"`
	StablingBayID string     `json:"stabling_bay_id,omitempty"`
}

const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

type Conflict struct {
	TrainID  string `json:"train_id,omitempty"`
	Issue    string `json:"issue"`
	Severity string `json:"severity"`
}

type PlanSummary struct {
	TotalTrains    int     `json:"total_trains"`
	Service        int     `json:"service"`
	Standby        int     `json:"standby"`
	IBL            int     `json:"ibl"`
	ConflictsFound int     `json:"conflicts_found"`
	AvgScore       float64 `json:"avg_score"`
}

type OptimizeResult struct {
	Date          string      `json:"date"`
	ServiceNeeded int         `json:"service_needed"`
	StandbyNeeded int         `json:"standby_needed"`
	Plan          []PlanEntry `json:"plan"`
	Conflicts     []Conflict  `json:"conflicts"`
	Summary       PlanSummary `json:"summary"`
	DraftID       string      `json:"draft_id,omitempty"`
}

// OptimizeRequest is the body of the optimize endpoints.
type OptimizeRequest struct {
	Date         string        `json:"date,omitempty"`
	Dates        []string      `json:"dates,omitempty"`
	Weights      *Weights      `json:"weights,omitempty"`
	Requirements *Requirements `json:"requirements,omitempty"`
}

type ResultSummary struct {
	ServiceNeeded  int `json:"service_needed"`
	StandbyNeeded  int `json:"standby_needed"`
	TotalTrains    int `json:"total_trains"`
	ConflictsFound int `json:"conflicts_found"`
}

type BatchSummary struct {
	TotalDates int `json:"total_dates"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// AuditEntry is one optimization run as persisted in the audit log.
// DateRequirements records what each batch date was optimized against.
type AuditEntry struct {
	ID               string                  `json:"id"`
	Timestamp        string                  `json:"timestamp"`
	OptimizationType string                  `json:"optimization_type"`
	Date             string                  `json:"date,omitempty"`
	Dates            []string                `json:"dates,omitempty"`
	Weights          Weights                 `json:"weights"`
	Requirements     *Requirements           `json:"requirements,omitempty"`
	DateRequirements map[string]Requirements `json:"date_requirements,omitempty"`
	ResultSummary    *ResultSummary          `json:"result_summary,omitempty"`
	ResultsSummary   *BatchSummary           `json:"results_summary,omitempty"`
	Plan             []PlanEntry             `json:"plan,omitempty"`
	Conflicts        []Conflict              `json:"conflicts,omitempty"`
}

// ConflictReport groups the conflicts of one audited run.
type ConflictReport struct {
	Timestamp string     `json:"timestamp"`
	Date      string     `json:"date,omitempty"`
	Conflicts []Conflict `json:"conflicts"`
}

type OptimizationTypeCounts struct {
	CurrentDate  int `json:"current_date"`
	DateSpecific int `json:"date_specific"`
	Batch        int `json:"batch"`
}

type Stats struct {
	TotalOptimizations int                    `json:"total_optimizations"`
	OptimizationTypes  OptimizationTypeCounts `json:"optimization_types"`
	TotalConflicts     int                    `json:"total_conflicts"`
	AvgConflictsPerOpt float64                `json:"avg_conflicts_per_optimization"`
	LastOptimization   *string                `json:"last_optimization"`
}

// Performance holds fleet KPIs for one date.
type Performance struct {
	Date            string  `json:"date"`
	TotalTrains     int     `json:"total_trains"`
	RevenueService  int     `json:"revenue_service"`
	Standby         int     `json:"standby"`
	Maintenance     int     `json:"maintenance"`
	AvailabilityPct float64 `json:"availability_pct"`
	AvgFitness      float64 `json:"avg_fitness"`
	BrandedActive   int     `json:"branded_active"`
	CleaningDue     int     `json:"cleaning_due"`
	CertsExpiring   int     `json:"certs_expiring_7d"`
	OpenJobCards    int     `json:"open_job_cards"`
}

// Draft statuses.
const (
	DraftPending  = "Pending"
	DraftApproved = "Approved"
	DraftRejected = "Rejected"
)

// Draft is an auto-drafted induction plan awaiting operator sign-off.
type Draft struct {
	ID        string      `json:"id"`
	Date      string      `json:"date"`
	AuditID   string      `json:"audit_id,omitempty"`
	Status    string      `json:"status"`
	CreatedAt string      `json:"created_at"`
	DecidedAt string      `json:"decided_at,omitempty"`
	DecidedBy string      `json:"decided_by,omitempty"`
	Note      string      `json:"note,omitempty"`
	Summary   PlanSummary `json:"summary"`
	Plan      []PlanEntry `json:"plan"`
	Conflicts []Conflict  `json:"conflicts,omitempty"`
}

type Subscription struct {
	ID        string   `json:"id"`
	URL       string   `json:"url"`
	Events    []string `json:"events"`
	Secret    string   `json:"secret,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
}

type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}

// BatchItem is one date's outcome in a batch run: a result or an error.
type BatchItem struct {
	*OptimizeResult
	Error string `json:"error,omitempty"`
}
