// Package ingest loads fleet datasets from external sources into a store.
package ingest

import (
	"context"
	"sort"

	"fleetops/internal/model"
)

// Source is a fleet data feed. Implementations read a dataset from files,
// exports or upstream systems.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (Dataset, error)
}

// Dataset is everything a source can provide. Snapshots are keyed by date.
type Dataset struct {
	Snapshots    map[string][]model.TrainRecord `json:"snapshots"`
	Requirements []model.DailyRequirement       `json:"requirements,omitempty"`
	Maintenance  []model.MaintenanceLog         `json:"maintenance,omitempty"`
}

// Dates returns the snapshot dates in ascending order.
func (d Dataset) Dates() []string {
	out := make([]string, 0, len(d.Snapshots))
	for k := range d.Snapshots {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Records returns the number of train records across all dates.
func (d Dataset) Records() int {
	n := 0
	for _, recs := range d.Snapshots {
		n += len(recs)
	}
	return n
}

// StaticSource serves a dataset already in memory, such as simulator output.
type StaticSource struct {
	Label string
	Data  Dataset
}

func (s StaticSource) Name() string { return s.Label }

func (s StaticSource) Fetch(context.Context) (Dataset, error) { return s.Data, nil }
