// Package sweep recomputes goals in batch: for one user or every user that
// owns a goal, on a given calendar day. It backs the administrative recompute
// command and the recurring schedule.
package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zulandar/tempo/internal/goal"
	"github.com/zulandar/tempo/internal/metrics"
	"github.com/zulandar/tempo/internal/models"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const defaultWorkers = 4

// DateLayout is the accepted format for a sweep date.
const DateLayout = "2006-01-02"

// Options selects what a sweep recomputes. Exactly one of UserID and All must
// be set. A zero Date means today in the engine's location.
type Options struct {
	Date    time.Time
	UserID  string
	All     bool
	Workers int
	Metrics *metrics.Manager
}

// UserResult reports the outcome for one user.
type UserResult struct {
	UserID    string `json:"user_id"`
	Updated   int    `json:"updated"`
	Completed int    `json:"completed"`
	Err       error  `json:"-"`
}

// Report is the outcome of one sweep, users in ID order.
type Report struct {
	From  time.Time    `json:"from"`
	To    time.Time    `json:"to"`
	Users []UserResult `json:"users"`
}

// Totals sums updated and completed goals across users.
func (r *Report) Totals() (updated, completed int) {
	for _, u := range r.Users {
		updated += u.Updated
		completed += u.Completed
	}
	return updated, completed
}

// ParseDate parses a YYYY-MM-DD day in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("sweep: invalid date %q (want %s)", s, DateLayout)
	}
	return d, nil
}

// Run recomputes and completion-checks the selected users' active goals over
// the selected day. Users are processed in parallel and independently: a
// failing user is recorded in its UserResult and the sweep continues. The
// returned error combines every per-user failure.
func Run(ctx context.Context, db *gorm.DB, engine *goal.Engine, opts Options) (*Report, error) {
	if db == nil {
		return nil, fmt.Errorf("sweep: db is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("sweep: engine is required")
	}
	if opts.UserID != "" && opts.All {
		return nil, fmt.Errorf("sweep: user and all are mutually exclusive")
	}
	if opts.UserID == "" && !opts.All {
		return nil, fmt.Errorf("sweep: a user or all is required")
	}

	start := time.Now()
	defer func() { opts.Metrics.SweepDone(time.Since(start)) }()

	date := opts.Date
	if date.IsZero() {
		date = engine.Now()
	}
	from, to := goal.DayWindow(date.In(engine.Location()))

	users := []string{opts.UserID}
	if opts.All {
		var err error
		if users, err = GoalOwners(ctx, db); err != nil {
			return nil, err
		}
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	if workers > len(users) {
		workers = len(users)
	}

	results := make([]UserResult, len(users))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				r := runUser(ctx, engine, users[i], from, to)
				opts.Metrics.SweepUser(r.Updated, r.Completed, r.Err != nil)
				results[i] = r
			}
		}()
	}
	for i := range users {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var errs error
	for _, r := range results {
		if r.Err != nil {
			errs = multierr.Append(errs, fmt.Errorf("sweep: user %s: %w", r.UserID, r.Err))
		}
	}
	return &Report{From: from, To: to, Users: results}, errs
}

// GoalOwners returns every user that owns at least one goal.
func GoalOwners(ctx context.Context, db *gorm.DB) ([]string, error) {
	var users []string
	if err := db.WithContext(ctx).Model(&models.Goal{}).
		Distinct("user_id").Order("user_id ASC").
		Pluck("user_id", &users).Error; err != nil {
		return nil, fmt.Errorf("sweep: list goal owners: %w", err)
	}
	return users, nil
}

func runUser(ctx context.Context, engine *goal.Engine, userID string, from, to time.Time) UserResult {
	res := UserResult{UserID: userID}
	log := logrus.WithField("user_id", userID)
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	before, err := engine.List(ctx, userID, true)
	if err != nil {
		res.Err = err
		log.WithError(err).Error("sweep: list goals")
		return res
	}
	wasCompleted := make(map[string]bool, len(before))
	for _, g := range before {
		wasCompleted[g.ID] = g.IsCompleted
	}

	// Per-goal failures leave the other goals recomputed; keep going to the
	// completion check either way.
	updated, recomputeErr := engine.RecomputeAllActive(ctx, userID, from, to)
	res.Updated = len(updated)
	for _, g := range updated {
		if g.IsCompleted && !wasCompleted[g.ID] {
			res.Completed++
		}
	}

	completed, checkErr := engine.CheckAndComplete(ctx, userID)
	res.Completed += len(completed)

	res.Err = multierr.Combine(recomputeErr, checkErr)
	entry := log.WithFields(logrus.Fields{"updated": res.Updated, "completed": res.Completed})
	if res.Err != nil {
		entry.WithError(res.Err).Warn("sweep: user finished with errors")
	} else {
		entry.Debug("sweep: user done")
	}
	return res
}
