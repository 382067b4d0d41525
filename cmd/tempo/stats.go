package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/tempo/internal/stats"
)

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		period     string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show practice statistics for a period",
		Long: `Shows totals, per-exercise-type breakdown, the period's buckets, and the
practice streak for the day, week, month, or year containing now.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := stats.ParsePeriod(period)
			if err != nil {
				return err
			}
			return runStats(cmd, configPath, userID, p, asJSON)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&userID, "user", "", "user to report on (required)")
	cmd.Flags().StringVarP(&period, "period", "p", string(stats.PeriodWeek), "day, week, month, or year")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.MarkFlagRequired("user")
	return cmd
}

func runStats(cmd *cobra.Command, configPath, userID string, p stats.Period, asJSON bool) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	agg := stats.NewAggregator(gormDB, cfg.Location())

	report, err := agg.PeriodStatistics(cmd.Context(), userID, p)
	if err != nil {
		return err
	}
	streak, err := agg.PracticeStreak(cmd.Context(), userID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*stats.Report
			Streak *stats.Streak `json:"streak"`
		}{report, streak})
	}

	fmt.Fprintf(out, "Practice for %s, %s to %s\n", userID,
		report.From.Format("2006-01-02"), report.To.Format("2006-01-02"))
	fmt.Fprintf(out, "Total:  %s in %d sessions\n", formatMinutes(report.TotalMinutes), report.TotalSessions)
	fmt.Fprintf(out, "Streak: %d days (longest %d, %d practice days this year)\n",
		streak.Current, streak.Longest, streak.TotalPracticeDays)

	if len(report.ExerciseTypes) > 0 {
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tMINUTES\tBLOCKS")
		for _, ts := range report.ExerciseTypes {
			fmt.Fprintf(w, "%s\t%s\t%d\n", ts.Type, formatMinutes(ts.Minutes), ts.Blocks)
		}
		w.Flush()
	}

	buckets := report.Days
	switch {
	case len(report.Weeks) > 0:
		buckets = report.Weeks
	case len(report.Months) > 0:
		buckets = report.Months
	}
	if len(buckets) > 1 {
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "BUCKET\tMINUTES\tSESSIONS")
		for _, b := range buckets {
			fmt.Fprintf(w, "%s\t%s\t%d\n", b.Label, formatMinutes(b.Minutes), b.Sessions)
		}
		w.Flush()
	}
	return nil
}
