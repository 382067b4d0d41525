// Package goal derives goal progress from completed practice history and
// detects goal completion.
package goal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/zulandar/tempo/internal/models"
	"go.uber.org/multierr"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a goal does not exist.
var ErrNotFound = errors.New("goal not found")

// CreateOpts holds parameters for creating a goal.
type CreateOpts struct {
	UserID       string
	Title        string
	Description  string
	Type         models.GoalType
	Value        int
	ExerciseType models.BlockType
	StartDate    time.Time
	EndDate      *time.Time
}

// Engine recomputes and completes goals. Calendar days are taken in loc.
type Engine struct {
	db  *gorm.DB
	loc *time.Location
	now func() time.Time
}

// NewEngine returns an Engine reading history from db.
func NewEngine(db *gorm.DB, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{db: db, loc: loc, now: time.Now}
}

// Now returns the current time in the engine's location.
func (e *Engine) Now() time.Time {
	return e.now().In(e.loc)
}

// Location returns the location used for calendar days.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Create inserts an active goal with no progress snapshot.
func (e *Engine) Create(ctx context.Context, opts CreateOpts) (*models.Goal, error) {
	if opts.UserID == "" {
		return nil, fmt.Errorf("goal: user is required")
	}
	if opts.Title == "" {
		return nil, fmt.Errorf("goal: title is required")
	}
	if !Supports(opts.Type) {
		return nil, fmt.Errorf("goal: unsupported type %q", opts.Type)
	}
	if opts.Value < 0 {
		return nil, fmt.Errorf("goal: target value must not be negative")
	}
	if opts.Type == models.GoalExerciseTypeMinutes && opts.ExerciseType == "" {
		return nil, fmt.Errorf("goal: %s requires an exercise type", opts.Type)
	}

	start := opts.StartDate
	if start.IsZero() {
		start = DayStart(e.Now())
	}
	g := models.Goal{
		ID:          uuid.NewString(),
		UserID:      opts.UserID,
		Title:       opts.Title,
		Description: opts.Description,
		Type:        opts.Type,
		Target:      datatypes.NewJSONType(models.GoalTarget{Value: opts.Value, ExerciseType: opts.ExerciseType}),
		StartDate:   start.UTC(),
		EndDate:     opts.EndDate,
		IsActive:    true,
	}
	if err := e.db.WithContext(ctx).Create(&g).Error; err != nil {
		return nil, fmt.Errorf("goal: create: %w", err)
	}
	return &g, nil
}

// Get retrieves a goal by ID.
func (e *Engine) Get(ctx context.Context, id string) (*models.Goal, error) {
	var g models.Goal
	if err := e.db.WithContext(ctx).Where("id = ?", id).First(&g).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("goal: get %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("goal: get %s: %w", id, err)
	}
	return &g, nil
}

// List returns a user's goals, oldest first. With activeOnly set, inactive
// goals are left out.
func (e *Engine) List(ctx context.Context, userID string, activeOnly bool) ([]models.Goal, error) {
	q := e.db.WithContext(ctx).Where("user_id = ?", userID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var goals []models.Goal
	if err := q.Order("created_at ASC, id ASC").Find(&goals).Error; err != nil {
		return nil, fmt.Errorf("goal: list for %s: %w", userID, err)
	}
	return goals, nil
}

// Delete soft-deletes a goal.
func (e *Engine) Delete(ctx context.Context, id string) error {
	result := e.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Goal{})
	if result.Error != nil {
		return fmt.Errorf("goal: delete %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("goal: delete %s: %w", id, ErrNotFound)
	}
	return nil
}

// Recompute derives g's progress over [from, to], stores the snapshot, and
// completes the goal when current reaches total. A completed goal is never
// reopened, and its completed_at is never moved.
func (e *Engine) Recompute(ctx context.Context, g *models.Goal, from, to time.Time) (*models.Goal, error) {
	current, total, err := Compute(ctx, e.db, g, from.In(e.loc), to.In(e.loc))
	if err != nil {
		return nil, err
	}

	g.Progress = &models.GoalProgress{Current: current, Total: total}
	reached := current >= total && !g.IsCompleted
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(g).Select("progress").Updates(g).Error; err != nil {
			return fmt.Errorf("goal: save progress %s: %w", g.ID, err)
		}
		if !reached {
			return nil
		}
		// Completion columns are only ever written on the false -> true edge.
		now := e.now().UTC()
		result := tx.Model(&models.Goal{}).
			Where("id = ? AND is_completed = ?", g.ID, false).
			Updates(map[string]interface{}{"is_completed": true, "completed_at": now})
		if result.Error != nil {
			return fmt.Errorf("goal: complete %s: %w", g.ID, result.Error)
		}
		if result.RowsAffected > 0 {
			g.IsCompleted = true
			g.CompletedAt = &now
			return nil
		}
		// Completed concurrently; keep the stored completion.
		var stored models.Goal
		if err := tx.Select("id", "is_completed", "completed_at").Where("id = ?", g.ID).First(&stored).Error; err != nil {
			return fmt.Errorf("goal: reload %s: %w", g.ID, err)
		}
		g.IsCompleted = stored.IsCompleted
		g.CompletedAt = stored.CompletedAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// RecomputeGoal loads a goal by ID and recomputes it.
func (e *Engine) RecomputeGoal(ctx context.Context, id string, from, to time.Time) (*models.Goal, error) {
	g, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.Recompute(ctx, g, from, to)
}

// RecomputeAllActive recomputes every active goal of the user over
// [from, to]. Every goal is processed even if its progress is unchanged. A
// failing goal is logged and skipped; the returned error combines all
// per-goal failures alongside the goals that were updated.
func (e *Engine) RecomputeAllActive(ctx context.Context, userID string, from, to time.Time) ([]models.Goal, error) {
	goals, err := e.List(ctx, userID, true)
	if err != nil {
		return nil, err
	}

	updated := make([]models.Goal, 0, len(goals))
	var errs error
	for i := range goals {
		g, err := e.Recompute(ctx, &goals[i], from, to)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"user_id": userID,
				"goal_id": goals[i].ID,
			}).Error("goal: recompute failed, skipping")
			errs = multierr.Append(errs, err)
			continue
		}
		updated = append(updated, *g)
	}
	return updated, errs
}

// CheckAndComplete completes every active, not yet completed goal of the
// user whose stored progress is at 100%, and returns the goals completed by
// this call. It reads the stored snapshot, so manual overrides count.
func (e *Engine) CheckAndComplete(ctx context.Context, userID string) ([]models.Goal, error) {
	var goals []models.Goal
	if err := e.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ? AND is_completed = ?", userID, true, false).
		Order("created_at ASC, id ASC").
		Find(&goals).Error; err != nil {
		return nil, fmt.Errorf("goal: check completion for %s: %w", userID, err)
	}

	var completed []models.Goal
	var errs error
	for _, g := range goals {
		if Percentage(g.Progress) < 100 {
			continue
		}
		now := e.now().UTC()
		result := e.db.WithContext(ctx).Model(&models.Goal{}).
			Where("id = ? AND is_completed = ?", g.ID, false).
			Updates(map[string]interface{}{"is_completed": true, "completed_at": now})
		if result.Error != nil {
			logrus.WithError(result.Error).WithFields(logrus.Fields{
				"user_id": userID,
				"goal_id": g.ID,
			}).Error("goal: complete failed, skipping")
			errs = multierr.Append(errs, fmt.Errorf("goal: complete %s: %w", g.ID, result.Error))
			continue
		}
		if result.RowsAffected == 0 {
			// Completed concurrently by a recompute.
			continue
		}
		g.IsCompleted = true
		g.CompletedAt = &now
		completed = append(completed, g)
	}
	return completed, errs
}

// SetProgress overwrites the goal's current progress by hand. The total is
// kept from the last snapshot, or taken from the target when there is none.
// The next recompute replaces the value.
func (e *Engine) SetProgress(ctx context.Context, id string, current int) (*models.Goal, error) {
	g, err := e.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	total := g.Target.Data().Value
	if g.Progress != nil {
		total = g.Progress.Total
	}
	g.Progress = &models.GoalProgress{Current: current, Total: total}
	if err := e.db.WithContext(ctx).Model(g).Select("progress").Updates(g).Error; err != nil {
		return nil, fmt.Errorf("goal: set progress %s: %w", id, err)
	}
	return g, nil
}

// Percentage is min(100, round(current/total*100)), or 0 without a positive
// total.
func Percentage(p *models.GoalProgress) int {
	if p == nil || p.Total <= 0 {
		return 0
	}
	pct := int(math.Round(float64(p.Current) / float64(p.Total) * 100))
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}
