package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/zulandar/tempo/internal/event"
	"github.com/zulandar/tempo/internal/goal"
	"github.com/zulandar/tempo/internal/metrics"
	"github.com/zulandar/tempo/internal/sweep"
	"golang.org/x/sync/errgroup"
)

func newWorkerCmd() *cobra.Command {
	var (
		configPath string
		noSchedule bool
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process completion events and run the scheduled goal sweep",
		Long: `Runs until interrupted. Session and block completions are picked up from
the event outbox and the owner's goals are recomputed for the completion
day. The daily sweep recomputes every goal owner on the configured cron
schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd, configPath, !noSchedule)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "process events only, without the scheduled sweep")
	return cmd
}

func runWorker(cmd *cobra.Command, configPath string, withSchedule bool) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	engine := goal.NewEngine(gormDB, cfg.Location())

	var (
		reg *prometheus.Registry
		m   *metrics.Manager
	)
	if cfg.Metrics.Port > 0 {
		reg = metrics.SetupPrometheus()
		m = metrics.NewManager("worker", reg)
	}

	w := event.NewWorker(gormDB, event.RecomputeHandler(engine), event.WorkerOpts{
		PollInterval: cfg.Events.PollInterval,
		BatchSize:    cfg.Events.BatchSize,
		MaxAttempts:  cfg.Events.MaxAttempts,
		Metrics:      m,
	})

	var sched *sweep.Scheduler
	if withSchedule {
		if sched, err = sweep.NewScheduler(gormDB, engine, cfg.Scheduler.Cron, cfg.Scheduler.Workers, m); err != nil {
			return err
		}
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Worker starting (poll every %s", cfg.Events.PollInterval)
	if withSchedule {
		fmt.Fprintf(out, ", sweep %q in %s", cfg.Scheduler.Cron, cfg.Location())
	}
	fmt.Fprintln(out, ")...")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(ctx) })
	if sched != nil {
		g.Go(func() error { return sched.Run(ctx) })
	}
	if reg != nil {
		fmt.Fprintf(out, "Metrics at http://localhost:%d/metrics\n", cfg.Metrics.Port)
		g.Go(func() error { return metrics.Serve(ctx, cfg.Metrics.Port, reg) })
	}
	err = g.Wait()
	logrus.Info("worker: stopped")
	fmt.Fprintln(out, "Worker stopped.")
	return err
}
