package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/zulandar/tempo/internal/goal"
	"github.com/zulandar/tempo/internal/metrics"
	"gorm.io/gorm"
)

// DefaultSchedule runs the sweep shortly after midnight.
const DefaultSchedule = "5 0 * * *"

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule reports whether expr is a usable 5-field cron expression.
func ValidateSchedule(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("sweep: invalid schedule %q: %w", expr, err)
	}
	return nil
}

// Scheduler runs an all-users sweep on a cron schedule, evaluated in the
// engine's location. Each run covers the day before it fires, so a run just
// after midnight settles the day that just ended.
type Scheduler struct {
	db      *gorm.DB
	engine  *goal.Engine
	workers int
	metrics *metrics.Manager
	cron    *cron.Cron
	entry   cron.EntryID

	mu  sync.Mutex
	ctx context.Context
}

// NewScheduler builds a scheduler for expr. It does not start it. m may be
// nil.
func NewScheduler(db *gorm.DB, engine *goal.Engine, expr string, workers int, m *metrics.Manager) (*Scheduler, error) {
	if expr == "" {
		expr = DefaultSchedule
	}
	if err := ValidateSchedule(expr); err != nil {
		return nil, err
	}
	s := &Scheduler{
		db:      db,
		engine:  engine,
		workers: workers,
		metrics: m,
		ctx:     context.Background(),
	}
	s.cron = cron.New(cron.WithLocation(engine.Location()), cron.WithParser(cronParser))
	id, err := s.cron.AddFunc(expr, s.fire)
	if err != nil {
		return nil, fmt.Errorf("sweep: schedule %q: %w", expr, err)
	}
	s.entry = id
	return s, nil
}

// Next returns the next time the sweep will fire. It is zero until Run starts
// the scheduler.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Run starts the schedule and blocks until ctx is cancelled, then waits for
// an in-flight sweep to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	logrus.WithField("next", s.Next()).Info("sweep: scheduler started")
	<-ctx.Done()
	<-s.cron.Stop().Done()
	logrus.Info("sweep: scheduler stopped")
	return nil
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	s.RunOnce(ctx, s.engine.Now().AddDate(0, 0, -1))
}

// RunOnce sweeps every goal owner for the day containing date and logs the
// outcome.
func (s *Scheduler) RunOnce(ctx context.Context, date time.Time) *Report {
	start := time.Now()
	report, err := Run(ctx, s.db, s.engine, Options{Date: date, All: true, Workers: s.workers, Metrics: s.metrics})
	if report == nil {
		logrus.WithError(err).Error("sweep: scheduled run failed")
		return nil
	}
	updated, completed := report.Totals()
	entry := logrus.WithFields(logrus.Fields{
		"day":       report.From.Format(DateLayout),
		"users":     len(report.Users),
		"updated":   updated,
		"completed": completed,
		"elapsed":   time.Since(start).Round(time.Millisecond),
	})
	if err != nil {
		entry.WithError(err).Warn("sweep: scheduled run finished with errors")
	} else {
		entry.Info("sweep: scheduled run finished")
	}
	return report
}
