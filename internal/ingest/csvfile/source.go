// Package csvfile reads fleet snapshots from CSV exports, one row per train
// per date. The header row names the columns using the JSON field names
// (date, train_id, fitness_score, ...); unknown columns are ignored.
package csvfile

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"fleetops/internal/ingest"
	"fleetops/internal/model"
)

// Source parses a CSV file or reader.
type Source struct {
	Path string
	R    io.Reader
	// Date is used for rows without a date column.
	Date string
}

func (s Source) Name() string {
	if s.Path != "" {
		return "csv:" + s.Path
	}
	return "csv"
}

func (s Source) Fetch(ctx context.Context) (ingest.Dataset, error) {
	r := s.R
	if r == nil {
		f, err := os.Open(s.Path)
		if err != nil {
			return ingest.Dataset{}, err
		}
		defer f.Close()
		r = f
	}
	csvr := csv.NewReader(bufio.NewReader(r))
	csvr.TrimLeadingSpace = true
	csvr.FieldsPerRecord = -1

	header, err := csvr.Read()
	if err != nil {
		return ingest.Dataset{}, fmt.Errorf("read header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols["train_id"]; !ok {
		return ingest.Dataset{}, errors.New("csv: missing train_id column")
	}
	if _, ok := cols["date"]; !ok && s.Date == "" {
		return ingest.Dataset{}, errors.New("csv: missing date column")
	}

	ds := ingest.Dataset{Snapshots: map[string][]model.TrainRecord{}}
	line := 1
	for {
		line++
		row, err := csvr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ingest.Dataset{}, fmt.Errorf("line %d: %w", line, err)
		}
		if err := ctx.Err(); err != nil {
			return ingest.Dataset{}, err
		}
		rec, err := parseRow(row, cols)
		if err != nil {
			return ingest.Dataset{}, fmt.Errorf("line %d: %w", line, err)
		}
		date := rec.Date
		if date == "" {
			date = s.Date
		}
		rec.Date = date
		ds.Snapshots[date] = append(ds.Snapshots[date], rec)
	}
	return ds, nil
}

func parseRow(row []string, cols map[string]int) (model.TrainRecord, error) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	var r model.TrainRecord
	var err error
	r.Date = get("date")
	r.TrainID = get("train_id")
	r.LastMaintenanceDate = get("last_maintenance_date")
	r.JobCardStatus = get("job_card_status")
	r.MaintenanceType = get("maintenance_type")
	r.LastCleaningDate = get("last_cleaning_date")
	r.RSCertExpiry = get("rs_cert_expiry")
	r.SigCertExpiry = get("sig_cert_expiry")
	r.TelecomCertExpiry = get("telecom_cert_expiry")
	r.BrandingStartDate = get("branding_start_date")
	r.BrandingCompany = get("branding_company")
	r.RecommendedAction = get("recommended_action")
	r.StablingBayID = get("stabling_bay_id")

	if r.FitnessScore, err = parseFloat(get("fitness_score")); err != nil {
		return r, fmt.Errorf("fitness_score: %w", err)
	}
	if r.BrandingPriority, err = parseFloat(get("branding_priority")); err != nil {
		return r, fmt.Errorf("branding_priority: %w", err)
	}
	if r.MileageSinceMaintenance, err = parseInt(get("mileage_since_maintenance")); err != nil {
		return r, fmt.Errorf("mileage_since_maintenance: %w", err)
	}
	if r.TotalMileage, err = parseInt(get("total_mileage")); err != nil {
		return r, fmt.Errorf("total_mileage: %w", err)
	}
	for name, dst := range map[string]*model.FlexBool{
		"maintenance_due": &r.MaintenanceDue,
		"needs_cleaning":  &r.NeedsCleaning,
		"branding_active": &r.BrandingActive,
	} {
		b, err := parseBool(get(name))
		if err != nil {
			return r, fmt.Errorf("%s: %w", name, err)
		}
		*dst = model.FlexBool(b)
	}
	return r, nil
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	return int(f), err
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "", "0", "false", "no", "n":
		return false, nil
	case "1", "true", "yes", "y":
		return true, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}
