package planner

import (
	"fmt"
	"strings"

	"fleetops/internal/model"
)

// Status filters accepted by Filter, keyed to the feed's recommended actions.
var statusActions = map[string]string{
	"service":     model.ActionRevenueService,
	"standby":     model.ActionStandby,
	"maintenance": model.ActionMaintenance,
}

// Filter returns the records matching a free-text query and a status. The
// query matches train id, branding company or stabling bay, ignoring case.
// An empty status or "all" keeps every action.
func Filter(recs []model.TrainRecord, query, status string) ([]model.TrainRecord, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	action := ""
	if status != "" && status != "all" {
		var ok bool
		if action, ok = statusActions[status]; !ok {
			return nil, &ValidationError{Msg: fmt.Sprintf("unknown status %q (allowed: service, standby, maintenance, all)", status)}
		}
	}
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]model.TrainRecord, 0, len(recs))
	for _, r := range recs {
		if action != "" && r.RecommendedAction != action {
			continue
		}
		if q != "" && !matches(r, q) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func matches(r model.TrainRecord, q string) bool {
	return strings.Contains(strings.ToLower(r.TrainID), q) ||
		strings.Contains(strings.ToLower(r.BrandingCompany), q) ||
		strings.Contains(strings.ToLower(r.StablingBayID), q)
}
