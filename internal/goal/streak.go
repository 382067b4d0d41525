package goal

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/tempo/internal/models"
	"gorm.io/gorm"
)

// streakLookbackDays bounds how far back a goal streak is searched.
const streakLookbackDays = 30

// Streak counts consecutive practiced calendar days ending at to's day, in
// to's location. A day counts when at least one session was completed on it.
// The walk stops at the first missing day or at the floor day
// streakLookbackDays before to, which still counts, so the result is at most
// streakLookbackDays+1.
// This is deliberately separate from the dashboard practice streak, which
// looks back a full year and must include today.
func Streak(ctx context.Context, db *gorm.DB, userID string, to time.Time) (int, error) {
	loc := to.Location()
	toDay := DayStart(to)
	floor := toDay.AddDate(0, 0, -streakLookbackDays)

	var completed []time.Time
	if err := db.WithContext(ctx).Model(&models.Session{}).
		Where("user_id = ? AND status = ?", userID, models.SessionCompleted).
		Where("completed_at BETWEEN ? AND ?", floor.UTC(), DayEnd(to).UTC()).
		Pluck("completed_at", &completed).Error; err != nil {
		return 0, fmt.Errorf("goal streak for %s: %w", userID, err)
	}

	practiced := make(map[string]bool, len(completed))
	for _, c := range completed {
		practiced[DayKey(c.In(loc))] = true
	}

	streak := 0
	for d := toDay; !d.Before(floor); d = d.AddDate(0, 0, -1) {
		if !practiced[DayKey(d)] {
			break
		}
		streak++
	}
	return streak, nil
}
