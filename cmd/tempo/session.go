package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/zulandar/tempo/internal/config"
	"github.com/zulandar/tempo/internal/models"
	"github.com/zulandar/tempo/internal/session"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Plan and run practice sessions",
	}

	cmd.AddCommand(newSessionCreateCmd())
	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionShowCmd())
	cmd.AddCommand(newSessionTransitionCmd("start", "Start or resume a session", (*session.Machine).Start))
	cmd.AddCommand(newSessionTransitionCmd("pause", "Pause an active session", (*session.Machine).Pause))
	cmd.AddCommand(newSessionTransitionCmd("complete", "Complete a session", (*session.Machine).Complete))
	cmd.AddCommand(newSessionDeleteCmd())
	cmd.AddCommand(newSessionBlockCmd())
	return cmd
}

// userError logs the detailed failure and returns the short message an end
// user should see.
func userError(err error, op string, fields logrus.Fields) error {
	logrus.WithError(err).WithFields(fields).Debug("session: " + op)
	return errors.New(session.UserMessage(err))
}

func openMachine(configPath string) (*config.Config, *session.Machine, error) {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, session.New(gormDB), nil
}

func newSessionCreateCmd() *cobra.Command {
	var (
		configPath string
		opts       session.CreateOpts
		blocks     []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Plan a new session",
		Long: `Plans a new session with its blocks in order.

Each --block is "title[:type[:minutes]]", for example:
  tempo session create --user ana --title "Evening" \
    --block "Long tones:warmup:10" --block "Etude 3:technique:20"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, spec := range blocks {
				bo, err := parseBlockSpec(spec)
				if err != nil {
					return err
				}
				opts.Blocks = append(opts.Blocks, bo)
			}
			return runSessionCreate(cmd, configPath, opts)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&opts.UserID, "user", "", "owning user (required)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "session title (required)")
	cmd.Flags().StringVar(&opts.Description, "description", "", "session description")
	cmd.Flags().StringVar(&opts.TemplateID, "template", "", "template the session was planned from")
	cmd.Flags().IntVar(&opts.PlannedDuration, "planned", 0, "planned minutes (default: sum of blocks)")
	cmd.Flags().StringArrayVar(&blocks, "block", nil, "block as title[:type[:minutes]] (repeatable)")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("title")
	return cmd
}

// parseBlockSpec parses "title[:type[:minutes]]".
func parseBlockSpec(spec string) (session.BlockOpts, error) {
	parts := strings.Split(spec, ":")
	if len(parts) > 3 || strings.TrimSpace(parts[0]) == "" {
		return session.BlockOpts{}, fmt.Errorf("invalid block %q: want title[:type[:minutes]]", spec)
	}
	bo := session.BlockOpts{Title: strings.TrimSpace(parts[0])}
	if len(parts) > 1 && parts[1] != "" {
		bt := models.BlockType(strings.TrimSpace(parts[1]))
		if !knownBlockType(bt) {
			return session.BlockOpts{}, fmt.Errorf("invalid block %q: unknown type %q", spec, bt)
		}
		bo.Type = bt
	}
	if len(parts) > 2 {
		m, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil || m < 0 {
			return session.BlockOpts{}, fmt.Errorf("invalid block %q: minutes must be a non-negative number", spec)
		}
		bo.PlannedDuration = m
	}
	return bo, nil
}

func knownBlockType(bt models.BlockType) bool {
	for _, t := range models.BlockTypes {
		if t == bt {
			return true
		}
	}
	return false
}

func knownBlockStatus(st models.BlockStatus) bool {
	for _, s := range models.BlockStatuses {
		if s == st {
			return true
		}
	}
	return false
}

func runSessionCreate(cmd *cobra.Command, configPath string, opts session.CreateOpts) error {
	_, m, err := openMachine(configPath)
	if err != nil {
		return err
	}
	s, err := m.Create(cmd.Context(), opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created session %s (%d blocks, %s planned)\n",
		s.ID, len(s.Blocks), formatMinutes(s.PlannedDuration))
	return nil
}

func newSessionListCmd() *cobra.Command {
	var (
		configPath string
		filters    session.ListFilters
		status     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			filters.Status = models.SessionStatus(status)
			return runSessionList(cmd, configPath, filters)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&filters.UserID, "user", "", "filter by user")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

func runSessionList(cmd *cobra.Command, configPath string, filters session.ListFilters) error {
	cfg, m, err := openMachine(configPath)
	if err != nil {
		return err
	}
	sessions, err := m.List(cmd.Context(), filters)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tTITLE\tSTATUS\tPLANNED\tCREATED")
	for _, s := range sessions {
		created := s.CreatedAt
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.UserID, truncate(s.Title, 40), s.Status,
			formatMinutes(s.PlannedDuration), formatTime(&created, cfg.Location()))
	}
	w.Flush()
	return nil
}

func newSessionShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session and its blocks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionShow(cmd, configPath, args[0])
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runSessionShow(cmd *cobra.Command, configPath, id string) error {
	cfg, m, err := openMachine(configPath)
	if err != nil {
		return err
	}
	s, err := m.Get(cmd.Context(), id)
	if err != nil {
		return userError(err, "show", logrus.Fields{"session_id": id})
	}

	out := cmd.OutOrStdout()
	loc := cfg.Location()
	fmt.Fprintf(out, "Session:   %s\n", s.ID)
	fmt.Fprintf(out, "Title:     %s\n", s.Title)
	fmt.Fprintf(out, "User:      %s\n", s.UserID)
	fmt.Fprintf(out, "Status:    %s\n", s.Status)
	fmt.Fprintf(out, "Progress:  %s %d%%\n", progressBar(session.ProgressPercentage(s), 20), session.ProgressPercentage(s))
	fmt.Fprintf(out, "Planned:   %s\n", formatMinutes(s.PlannedDuration))
	if s.ActualDuration != nil {
		fmt.Fprintf(out, "Actual:    %s\n", formatMinutes(*s.ActualDuration))
	}
	fmt.Fprintf(out, "Started:   %s\n", formatTime(s.StartedAt, loc))
	fmt.Fprintf(out, "Completed: %s\n", formatTime(s.CompletedAt, loc))
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tBLOCK\tTITLE\tTYPE\tSTATUS\tPLANNED\tACTUAL")
	for _, b := range s.Blocks {
		actual := "-"
		if b.ActualDuration != nil {
			actual = formatMinutes(*b.ActualDuration)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			b.SortOrder+1, b.ID, truncate(b.Title, 30), b.Type, b.Status,
			formatMinutes(b.PlannedDuration), actual)
	}
	w.Flush()
	return nil
}

type transitionFunc func(m *session.Machine, ctx context.Context, id string) (*models.Session, error)

func newSessionTransitionCmd(use, short string, fn transitionFunc) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   use + " <session-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, m, err := openMachine(configPath)
			if err != nil {
				return err
			}
			s, err := fn(m, cmd.Context(), args[0])
			if err != nil {
				return userError(err, use, logrus.Fields{"session_id": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session %s is now %s\n", s.ID, s.Status)
			if s.Status == models.SessionCompleted && s.ActualDuration != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Practiced %s\n", formatMinutes(*s.ActualDuration))
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newSessionDeleteCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its blocks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, m, err := openMachine(configPath)
			if err != nil {
				return err
			}
			if err := m.Delete(cmd.Context(), args[0]); err != nil {
				return userError(err, "delete", logrus.Fields{"session_id": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newSessionBlockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "block",
		Short: "Run the blocks of a session",
	}

	cmd.AddCommand(newBlockStartCmd())
	cmd.AddCommand(newBlockUpdateCmd())
	return cmd
}

func newBlockStartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start <session-id> <block-id>",
		Short: "Make a block the active one",
		Long:  "Starts a block. Any other active block of the session is paused first.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, m, err := openMachine(configPath)
			if err != nil {
				return err
			}
			b, err := m.StartBlock(cmd.Context(), args[0], args[1])
			if err != nil {
				return userError(err, "start block", logrus.Fields{"session_id": args[0], "block_id": args[1]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Block %s (%s) is now %s\n", b.ID, b.Title, b.Status)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newBlockUpdateCmd() *cobra.Command {
	var (
		configPath string
		status     string
		minutes    int
		notes      string
	)

	cmd := &cobra.Command{
		Use:   "update <session-id> <block-id>",
		Short: "Update a block's status, duration, or notes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch session.BlockPatch
			if cmd.Flags().Changed("status") {
				st := models.BlockStatus(status)
				patch.Status = &st
			}
			if cmd.Flags().Changed("minutes") {
				if minutes < 0 {
					return fmt.Errorf("--minutes must not be negative")
				}
				patch.ActualDuration = &minutes
			}
			if cmd.Flags().Changed("notes") {
				patch.Notes = &notes
			}
			return runBlockUpdate(cmd, configPath, args[0], args[1], patch)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&status, "status", "", "new status (planned, active, paused, completed, skipped)")
	cmd.Flags().IntVar(&minutes, "minutes", 0, "actual minutes practiced")
	cmd.Flags().StringVar(&notes, "notes", "", "practice notes")
	return cmd
}

func runBlockUpdate(cmd *cobra.Command, configPath, sessionID, blockID string, patch session.BlockPatch) error {
	_, m, err := openMachine(configPath)
	if err != nil {
		return err
	}
	fields := logrus.Fields{"session_id": sessionID, "block_id": blockID}
	if patch.Status != nil {
		if !knownBlockStatus(*patch.Status) {
			return fmt.Errorf("unknown block status %q", *patch.Status)
		}
		current, err := m.GetBlock(cmd.Context(), sessionID, blockID)
		if err != nil {
			return userError(err, "update block", fields)
		}
		if *patch.Status != models.BlockSkipped && !session.CanTransitionBlock(current.Status, *patch.Status) {
			err := fmt.Errorf("session: block %s %s -> %s: %w", blockID, current.Status, *patch.Status, session.ErrIllegalTransition)
			return userError(err, "update block", fields)
		}
	}
	b, err := m.UpdateBlock(cmd.Context(), sessionID, blockID, patch)
	if err != nil {
		return userError(err, "update block", fields)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Block %s (%s) is %s\n", b.ID, b.Title, b.Status)
	return nil
}
