package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"fleetops/internal/ingest"
	"fleetops/internal/ingest/csvfile"
	"fleetops/internal/store"
)

func importCmd() *cobra.Command {
	var (
		format string
		date   string
	)
	cmd := &cobra.Command{
		Use:   "import [path]",
		Short: "Load a dataset into the configured store",
		Long: "Load a dataset directory, a full_train_data.json file or a CSV export into the\n" +
			"store selected by store.driver (sqlite or postgres; memory is pointless here).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := sourceFor(args[0], format, date)
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close()
			im := &ingest.Importer{Store: st, Logger: logger}
			rep, err := im.Import(cmd.Context(), src)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "dir, json or csv (default: from the path)")
	cmd.Flags().StringVar(&date, "date", "", "snapshot date for CSV rows without a date column")
	return cmd
}

// sourceFor picks an ingest source for path. Without an explicit format a
// directory is a dataset dir and the file extension decides otherwise.
func sourceFor(path, format, date string) (ingest.Source, error) {
	if format == "" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		switch {
		case info.IsDir():
			format = "dir"
		case strings.EqualFold(filepath.Ext(path), ".csv"):
			format = "csv"
		default:
			format = "json"
		}
	}
	switch format {
	case "dir":
		return ingest.DirSource{Dir: path}, nil
	case "json":
		return ingest.JSONSource{Path: path}, nil
	case "csv":
		return csvfile.Source{Path: path, Date: date}, nil
	}
	return nil, fmt.Errorf("unknown format %q (want dir, json or csv)", format)
}
