package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fleetops/internal/model"
)

func optimizeCmd() *cobra.Command {
	var (
		date     string
		dates    []string
		weights  string
		service  int
		standby  int
		asJSON   bool
		showPlan bool
	)
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run an induction optimization",
		Example: "  fleetctl optimize\n" +
			"  fleetctl optimize --date 2025-09-20 --weights branding=90,mileage=40\n" +
			"  fleetctl optimize --dates 2025-09-18,2025-09-19 --service 14 --standby 4",
		RunE: func(cmd *cobra.Command, args []string) error {
			if date != "" && len(dates) > 0 {
				return fmt.Errorf("--date and --dates are mutually exclusive")
			}
			w, err := parseWeights(weights)
			if err != nil {
				return err
			}
			var req *model.Requirements
			if cmd.Flags().Changed("service") || cmd.Flags().Changed("standby") {
				req = &model.Requirements{Service: service, Standby: standby}
			}

			c := apiClient()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if len(dates) > 0 {
				items, err := c.OptimizeBatch(ctx, dates, w, req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, items)
				}
				printBatch(out, items)
				return nil
			}

			var res model.OptimizeResult
			if date != "" {
				res, err = c.OptimizeDate(ctx, date, w, req)
			} else {
				res, err = c.Optimize(ctx, w, req)
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, res)
			}
			printResult(out, res, showPlan)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&date, "date", "", "optimize a specific snapshot date")
	f.StringSliceVar(&dates, "dates", nil, "optimize several dates in one batch")
	f.StringVar(&weights, "weights", "", "weight overrides, e.g. punctuality=80,branding=60")
	f.IntVar(&service, "service", 0, "service trains required")
	f.IntVar(&standby, "standby", 0, "standby trains required")
	f.BoolVar(&asJSON, "json", false, "print the raw JSON response")
	f.BoolVar(&showPlan, "plan", false, "print every plan entry")
	return cmd
}

// parseWeights reads "name=value" pairs on top of the default weights. An
// empty string means the server defaults.
func parseWeights(s string) (*model.Weights, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	w := model.DefaultWeights()
	fields := map[string]*float64{
		"punctuality": &w.Punctuality,
		"maintenance": &w.Maintenance,
		"cleaning":    &w.Cleaning,
		"branding":    &w.Branding,
		"mileage":     &w.Mileage,
		"telecom":     &w.Telecom,
	}
	for _, pair := range strings.Split(s, ",") {
		name, val, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("weight %q: want name=value", pair)
		}
		dst, known := fields[strings.ToLower(strings.TrimSpace(name))]
		if !known {
			return nil, fmt.Errorf("unknown weight %q", name)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("weight %s: %w", name, err)
		}
		if v < 0 || v > 100 {
			return nil, fmt.Errorf("weight %s must be between 0 and 100", name)
		}
		*dst = v
	}
	return &w, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(w io.Writer, res model.OptimizeResult, plan bool) {
	s := res.Summary
	fmt.Fprintf(w, "%s  service %d/%d  standby %d/%d  IBL %d  avg score %.1f  conflicts %d\n",
		res.Date, s.Service, res.ServiceNeeded, s.Standby, res.StandbyNeeded, s.IBL, s.AvgScore, s.ConflictsFound)
	if res.DraftID != "" {
		fmt.Fprintf(w, "draft %s pending review\n", res.DraftID)
	}
	for _, c := range res.Conflicts {
		if c.TrainID != "" {
			fmt.Fprintf(w, "  [%s] %s: %s\n", c.Severity, c.TrainID, c.Issue)
		} else {
			fmt.Fprintf(w, "  [%s] %s\n", c.Severity, c.Issue)
		}
	}
	if !plan {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRAIN\tASSIGNMENT\tSCORE\tBAY\tREASONS")
	for _, e := range res.Plan {
		reasons := make([]string, 0, len(e.Reasons))
		for _, r := range e.Reasons {
			reasons = append(reasons, reasonText(r))
		}
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\t%s\n", e.TrainID, e.Assignment, e.Score, e.StablingBayID, strings.Join(reasons, "; "))
	}
	_ = tw.Flush()
}

func printBatch(w io.Writer, items map[string]model.BatchItem) {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		it := items[k]
		if it.Error != "" || it.OptimizeResult == nil {
			fmt.Fprintf(w, "%s  error: %s\n", k, it.Error)
			continue
		}
		printResult(w, *it.OptimizeResult, false)
	}
}

func reasonText(r model.Reason) string {
	if r.Note != "" {
		return r.Note
	}
	return fmt.Sprintf("%s=%v", r.Metric, r.Value)
}
