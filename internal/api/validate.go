package api

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"fleetops/internal/model"
	"fleetops/internal/planner"
	"fleetops/internal/webhooks"
)

func validateSubscriptionRequest(req *model.SubscriptionRequest) error {
	u, err := url.Parse(req.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("url must be an absolute http(s) URL")
	}
	if len(req.Events) == 0 {
		return fmt.Errorf("events must name at least one event type")
	}
	for _, e := range req.Events {
		if e != "*" && !slices.Contains(webhooks.Events, e) {
			return fmt.Errorf("unknown event type: %s (allowed: %s, *)", e, strings.Join(webhooks.Events, ", "))
		}
	}
	return nil
}

// validateDates rejects oversized batches and repeated dates. Malformed or
// unknown dates are reported per date by the planner.
func validateDates(dates []string) error {
	if len(dates) == 0 {
		return &planner.ValidationError{Msg: "dates array is required"}
	}
	if len(dates) > 366 {
		return &planner.ValidationError{Msg: "at most 366 dates per batch"}
	}
	seen := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		if _, dup := seen[d]; dup {
			return &planner.ValidationError{Msg: "duplicate date: " + d}
		}
		seen[d] = struct{}{}
	}
	return nil
}
