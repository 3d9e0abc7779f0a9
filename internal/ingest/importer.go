package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fleetops/internal/model"
	"fleetops/internal/store"
)

// Report summarizes one import.
type Report struct {
	Source       string   `json:"source"`
	Dates        []string `json:"dates"`
	Records      int      `json:"records"`
	Requirements int      `json:"requirements"`
	Maintenance  int      `json:"maintenance"`
	Skipped      int      `json:"skipped"`
}

// Importer writes datasets into a store.
type Importer struct {
	Store  store.Store
	Logger *slog.Logger
}

// Import fetches src and upserts every snapshot. Records without a train id
// or with a malformed snapshot date are skipped.
func (im *Importer) Import(ctx context.Context, src Source) (Report, error) {
	log := im.Logger
	if log == nil {
		log = slog.Default()
	}
	ds, err := src.Fetch(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("fetch %s: %w", src.Name(), err)
	}
	rep := Report{Source: src.Name(), Dates: []string{}}
	for _, date := range ds.Dates() {
		if _, err := time.Parse(model.DateLayout, date); err != nil {
			log.Warn("skipping snapshot with bad date", "date", date)
			rep.Skipped += len(ds.Snapshots[date])
			continue
		}
		recs := make([]model.TrainRecord, 0, len(ds.Snapshots[date]))
		for _, r := range ds.Snapshots[date] {
			if r.TrainID == "" {
				rep.Skipped++
				continue
			}
			recs = append(recs, r)
		}
		n, err := im.Store.UpsertTrainRecords(ctx, date, recs)
		if err != nil {
			return rep, fmt.Errorf("upsert %s: %w", date, err)
		}
		rep.Records += n
		rep.Dates = append(rep.Dates, date)
	}
	for _, r := range ds.Requirements {
		if err := im.Store.UpsertRequirement(ctx, r); err != nil {
			return rep, fmt.Errorf("upsert requirement %s: %w", r.Date, err)
		}
		rep.Requirements++
	}
	if len(ds.Maintenance) > 0 {
		n, err := im.Store.InsertMaintenanceLogs(ctx, ds.Maintenance)
		if err != nil {
			return rep, fmt.Errorf("insert maintenance logs: %w", err)
		}
		rep.Maintenance = n
	}
	log.Info("import complete", "source", rep.Source, "dates", len(rep.Dates), "records", rep.Records, "skipped", rep.Skipped)
	return rep, nil
}
