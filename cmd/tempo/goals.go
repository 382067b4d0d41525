package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/tempo/internal/goal"
	"github.com/zulandar/tempo/internal/models"
	"github.com/zulandar/tempo/internal/sweep"
)

func newGoalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goals",
		Short: "Manage goals and recompute their progress",
	}

	cmd.AddCommand(newGoalsCreateCmd())
	cmd.AddCommand(newGoalsListCmd())
	cmd.AddCommand(newGoalsDeleteCmd())
	cmd.AddCommand(newGoalsSetProgressCmd())
	cmd.AddCommand(newGoalsRecomputeCmd())
	return cmd
}

func newGoalsCreateCmd() *cobra.Command {
	var (
		configPath string
		opts       goal.CreateOpts
		goalType   string
		exercise   string
		start      string
		end        string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a goal",
		Long: `Creates an active goal.

Types: daily_minutes, weekly_sessions, streak_days, exercise_type_minutes,
monthly_minutes, yearly_sessions. exercise_type_minutes also needs
--exercise (warmup, technique, repertoire, improvisation, sight_reading,
theory, break, custom).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Type = models.GoalType(goalType)
			opts.ExerciseType = models.BlockType(exercise)
			return runGoalsCreate(cmd, configPath, opts, start, end)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&opts.UserID, "user", "", "owning user (required)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "goal title (required)")
	cmd.Flags().StringVar(&opts.Description, "description", "", "goal description")
	cmd.Flags().StringVar(&goalType, "type", "", "goal type (required)")
	cmd.Flags().IntVar(&opts.Value, "target", 0, "target value (minutes, sessions, or days)")
	cmd.Flags().StringVar(&exercise, "exercise", "", "exercise type for exercise_type_minutes")
	cmd.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&end, "end", "", "end date YYYY-MM-DD")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("title")
	cmd.MarkFlagRequired("type")
	return cmd
}

func runGoalsCreate(cmd *cobra.Command, configPath string, opts goal.CreateOpts, start, end string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	loc := cfg.Location()
	if start != "" {
		if opts.StartDate, err = sweep.ParseDate(start, loc); err != nil {
			return err
		}
	}
	if end != "" {
		d, err := sweep.ParseDate(end, loc)
		if err != nil {
			return err
		}
		d = goal.DayEnd(d)
		opts.EndDate = &d
	}

	g, err := goal.NewEngine(gormDB, loc).Create(cmd.Context(), opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created goal %s (%s, target %d)\n", g.ID, g.Type, g.Target.Data().Value)
	return nil
}

func newGoalsListCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		all        bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's goals with their progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGoalsList(cmd, configPath, userID, !all)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&userID, "user", "", "owning user (required)")
	cmd.Flags().BoolVar(&all, "all", false, "include inactive goals")
	cmd.MarkFlagRequired("user")
	return cmd
}

func runGoalsList(cmd *cobra.Command, configPath, userID string, activeOnly bool) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	goals, err := goal.NewEngine(gormDB, cfg.Location()).List(cmd.Context(), userID, activeOnly)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(goals) == 0 {
		fmt.Fprintln(out, "No goals found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tTYPE\tPROGRESS\t\tDONE")
	for _, g := range goals {
		progress := "-"
		pct := 0
		if g.Progress != nil {
			progress = fmt.Sprintf("%d/%d", g.Progress.Current, g.Progress.Total)
			pct = goal.Percentage(g.Progress)
		}
		done := "no"
		if g.IsCompleted {
			done = formatTime(g.CompletedAt, cfg.Location())
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s %d%%\t%s\n",
			g.ID, truncate(g.Title, 30), g.Type, progress, progressBar(pct, 10), pct, done)
	}
	w.Flush()
	return nil
}

func newGoalsDeleteCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "delete <goal-id>",
		Short: "Delete a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := goal.NewEngine(gormDB, cfg.Location()).Delete(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, goal.ErrNotFound) {
					return fmt.Errorf("goal %s not found", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted goal %s\n", args[0])
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newGoalsSetProgressCmd() *cobra.Command {
	var (
		configPath string
		current    int
	)

	cmd := &cobra.Command{
		Use:   "set-progress <goal-id>",
		Short: "Override a goal's current progress",
		Long: `Writes the goal's current progress by hand and completes it if that reaches
100%. The next recompute replaces the value with one derived from history.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			e := goal.NewEngine(gormDB, cfg.Location())
			g, err := e.SetProgress(cmd.Context(), args[0], current)
			if err != nil {
				if errors.Is(err, goal.ErrNotFound) {
					return fmt.Errorf("goal %s not found", args[0])
				}
				return err
			}
			completed, err := e.CheckAndComplete(cmd.Context(), g.UserID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Goal %s progress set to %d/%d (%d%%)\n",
				g.ID, g.Progress.Current, g.Progress.Total, goal.Percentage(g.Progress))
			for _, c := range completed {
				fmt.Fprintf(out, "Completed goal %s (%s)\n", c.ID, c.Title)
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVar(&current, "current", 0, "current progress value")
	cmd.MarkFlagRequired("current")
	return cmd
}

func newGoalsRecomputeCmd() *cobra.Command {
	var (
		configPath string
		date       string
		userID     string
		all        bool
	)

	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Recompute goal progress for one user or everyone",
		Long: `Recomputes every active goal over one calendar day and completes goals that
reached their target. Use --user for one user or --all for every user that
owns a goal. --date defaults to today in the configured timezone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (userID == "") == !all {
				return fmt.Errorf("exactly one of --user or --all is required")
			}
			return runGoalsRecompute(cmd, configPath, date, userID, all)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&date, "date", "", "day to recompute, YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&userID, "user", "", "recompute one user")
	cmd.Flags().BoolVar(&all, "all", false, "recompute every user that owns a goal")
	return cmd
}

func runGoalsRecompute(cmd *cobra.Command, configPath, date, userID string, all bool) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	loc := cfg.Location()

	opts := sweep.Options{UserID: userID, All: all, Workers: cfg.Scheduler.Workers}
	if date != "" {
		if opts.Date, err = sweep.ParseDate(date, loc); err != nil {
			return err
		}
	}

	start := time.Now()
	report, err := sweep.Run(cmd.Context(), gormDB, goal.NewEngine(gormDB, loc), opts)
	if report == nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Recomputed goals for %s\n", report.From.Format(sweep.DateLayout))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tUPDATED\tCOMPLETED\tERROR")
	for _, u := range report.Users {
		msg := "-"
		if u.Err != nil {
			msg = u.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", u.UserID, u.Updated, u.Completed, msg)
	}
	w.Flush()

	updated, completed := report.Totals()
	fmt.Fprintf(out, "\n%d users, %d goals updated, %d completed in %s\n",
		len(report.Users), updated, completed, time.Since(start).Round(time.Millisecond))
	if err != nil {
		return fmt.Errorf("recompute finished with errors")
	}
	return nil
}
