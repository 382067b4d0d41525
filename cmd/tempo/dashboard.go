package main

import (
	"github.com/spf13/cobra"
	"github.com/zulandar/tempo/internal/dashboard"
)

func newDashboardCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Start the read-only statistics API",
		Long:  "Serves practice statistics, streaks, and goal progress as JSON, plus a live goal progress stream.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd, configPath, port)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default: dashboard.port from config)")
	return cmd
}

func runDashboard(cmd *cobra.Command, configPath string, port int) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if port == 0 {
		port = cfg.Dashboard.Port
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	return dashboard.Start(ctx, dashboard.StartOpts{
		DB:       gormDB,
		Location: cfg.Location(),
		Port:     port,
		Out:      cmd.OutOrStdout(),
	})
}
