package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"fleetops/internal/ingest"
	"fleetops/internal/simulate"
)

func generateCmd() *cobra.Command {
	var (
		out     string
		profile string
		trains  int
		days    int
		start   string
		seed    int64
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic fleet dataset directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := simulate.DefaultProfile()
			if profile != "" {
				var err error
				if p, err = simulate.LoadProfile(profile); err != nil {
					return err
				}
			}
			flags := cmd.Flags()
			if flags.Changed("trains") {
				p.Trains = trains
			}
			if flags.Changed("days") {
				p.Days = days
			}
			if flags.Changed("start") {
				p.StartDate = start
			}
			if flags.Changed("seed") {
				p.Seed = seed
			}
			ds, err := simulate.Generate(p)
			if err != nil {
				return err
			}
			if err := ingest.WriteDir(out, ds); err != nil {
				return fmt.Errorf("write dataset: %w", err)
			}
			dates := ds.Dates()
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d records over %d dates (%s..%s) and %d maintenance logs to %s\n",
				ds.Records(), len(dates), dates[0], dates[len(dates)-1], len(ds.Maintenance), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "data", "output directory")
	cmd.Flags().StringVar(&profile, "profile", "", "YAML simulation profile")
	cmd.Flags().IntVar(&trains, "trains", 0, "number of trains")
	cmd.Flags().IntVar(&days, "days", 0, "number of days")
	cmd.Flags().StringVar(&start, "start", "", "first date (YYYY-MM-DD)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed")
	return cmd
}
