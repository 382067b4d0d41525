// Package dashboard serves a read-only JSON API over practice statistics,
// streaks, and goal progress.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zulandar/tempo/internal/goal"
	"github.com/zulandar/tempo/internal/metrics"
	"github.com/zulandar/tempo/internal/stats"
	"gorm.io/gorm"
)

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	DB       *gorm.DB
	Location *time.Location
	Port     int
	Out      io.Writer
}

// NewRouter builds the dashboard routes over db. Calendar days are taken in
// loc. With a non-nil reg, requests are instrumented and /metrics serves reg.
func NewRouter(db *gorm.DB, loc *time.Location, reg *prometheus.Registry) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if reg != nil {
		router.Use(metrics.NewManager("dashboard", reg).RequestMetrics())
		router.GET("/metrics", metrics.Handler(reg))
	}
	registerRoutes(router, &handlers{
		db:     db,
		stats:  stats.NewAggregator(db, loc),
		goals:  goal.NewEngine(db, loc),
		poll:   goalPollInterval,
		beat:   heartbeatInterval,
		nowUTC: func() time.Time { return time.Now().UTC() },
	})
	return router
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil {
		return fmt.Errorf("dashboard: db is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           NewRouter(opts.DB, opts.Location, metrics.SetupPrometheus()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
