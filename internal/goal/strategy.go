package goal

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/tempo/internal/models"
	"gorm.io/gorm"
)

// Types lists every goal type with a progress strategy.
var Types = []models.GoalType{
	models.GoalDailyMinutes,
	models.GoalWeeklySessions,
	models.GoalStreakDays,
	models.GoalExerciseTypeMinutes,
	models.GoalMonthlyMinutes,
	models.GoalYearlySessions,
}

// Supports reports whether a strategy claims goals of type t.
func Supports(t models.GoalType) bool {
	switch t {
	case models.GoalDailyMinutes,
		models.GoalWeeklySessions,
		models.GoalStreakDays,
		models.GoalExerciseTypeMinutes,
		models.GoalMonthlyMinutes,
		models.GoalYearlySessions:
		return true
	default:
		return false
	}
}

// Compute derives (current, total) for g over the inclusive window
// [from, to]. It only reads history, so repeated calls over unchanged data
// return the same pair. Goals of an unknown type yield (0, target).
func Compute(ctx context.Context, db *gorm.DB, g *models.Goal, from, to time.Time) (current, total int, err error) {
	db = db.WithContext(ctx)
	target := g.Target.Data()

	switch g.Type {
	case models.GoalDailyMinutes, models.GoalMonthlyMinutes:
		current, err = completedMinutes(db, g.UserID, from, to, "")
		total = target.Value
	case models.GoalExerciseTypeMinutes:
		if target.ExerciseType != "" {
			current, err = completedMinutes(db, g.UserID, from, to, target.ExerciseType)
		}
		total = target.Value
	case models.GoalWeeklySessions:
		current, err = completedSessions(db, g.UserID, from, to)
		total = target.Value
	case models.GoalYearlySessions:
		current, err = completedSessions(db, g.UserID, from, to)
		total = target.Value * ceilDiv(DaysSpanned(from, to), 7)
	case models.GoalStreakDays:
		current, err = Streak(ctx, db, g.UserID, to)
		total = target.Value
	default:
		return 0, target.Value, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("goal: compute %s (%s): %w", g.ID, g.Type, err)
	}
	return current, total, nil
}

// completedMinutes sums actual minutes of completed blocks in the user's
// completed sessions created inside the window, optionally limited to one
// block type.
func completedMinutes(db *gorm.DB, userID string, from, to time.Time, blockType models.BlockType) (int, error) {
	q := db.Model(&models.Block{}).
		Select("COALESCE(SUM(blocks.actual_duration), 0)").
		Joins("JOIN sessions ON sessions.id = blocks.session_id AND sessions.deleted_at IS NULL").
		Where("sessions.user_id = ? AND sessions.status = ?", userID, models.SessionCompleted).
		Where("sessions.created_at BETWEEN ? AND ?", from.UTC(), to.UTC()).
		Where("blocks.status = ?", models.BlockCompleted)
	if blockType != "" {
		q = q.Where("blocks.type = ?", blockType)
	}

	var minutes int64
	if err := q.Row().Scan(&minutes); err != nil {
		return 0, fmt.Errorf("sum completed minutes: %w", err)
	}
	return int(minutes), nil
}

// completedSessions counts the user's completed sessions created inside the
// window.
func completedSessions(db *gorm.DB, userID string, from, to time.Time) (int, error) {
	var count int64
	if err := db.Model(&models.Session{}).
		Where("user_id = ? AND status = ?", userID, models.SessionCompleted).
		Where("created_at BETWEEN ? AND ?", from.UTC(), to.UTC()).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count completed sessions: %w", err)
	}
	return int(count), nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
