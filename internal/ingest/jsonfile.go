package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Files in a dataset directory.
const (
	FullTrainDataFile     = "full_train_data.json"
	DailyRequirementsFile = "daily_requirements.json"
	MaintenanceLogFile    = "maintenance_log.json"
)

// DirSource reads a dataset directory as written by the generator:
// full_train_data.json (date -> records) plus optional requirement and
// maintenance files.
type DirSource struct {
	Dir string
}

func (s DirSource) Name() string { return "dir:" + s.Dir }

func (s DirSource) Fetch(ctx context.Context) (Dataset, error) {
	var ds Dataset
	if err := readJSON(filepath.Join(s.Dir, FullTrainDataFile), &ds.Snapshots); err != nil {
		return Dataset{}, err
	}
	if err := readOptionalJSON(filepath.Join(s.Dir, DailyRequirementsFile), &ds.Requirements); err != nil {
		return Dataset{}, err
	}
	if err := readOptionalJSON(filepath.Join(s.Dir, MaintenanceLogFile), &ds.Maintenance); err != nil {
		return Dataset{}, err
	}
	return ds, ctx.Err()
}

// JSONSource reads a single full_train_data.json document.
type JSONSource struct {
	R    io.Reader
	Path string
}

func (s JSONSource) Name() string {
	if s.Path != "" {
		return "json:" + s.Path
	}
	return "json"
}

func (s JSONSource) Fetch(ctx context.Context) (Dataset, error) {
	var ds Dataset
	if s.R == nil {
		return ds, readJSON(s.Path, &ds.Snapshots)
	}
	if err := json.NewDecoder(s.R).Decode(&ds.Snapshots); err != nil {
		return Dataset{}, fmt.Errorf("decode dataset: %w", err)
	}
	return ds, ctx.Err()
}

func readJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readOptionalJSON(path string, v any) error {
	err := readJSON(path, v)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// WriteDir writes ds in the layout DirSource reads.
func WriteDir(dir string, ds Dataset) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	files := map[string]any{FullTrainDataFile: ds.Snapshots}
	if len(ds.Requirements) > 0 {
		files[DailyRequirementsFile] = ds.Requirements
	}
	if len(ds.Maintenance) > 0 {
		files[MaintenanceLogFile] = ds.Maintenance
	}
	for name, v := range files {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, name), b, 0o644); err != nil {
			return err
		}
	}
	return nil
}
