package stats

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/zulandar/tempo/internal/goal"
	"github.com/zulandar/tempo/internal/models"
)

// Streak is the dashboard practice streak.
type Streak struct {
	Current           int `json:"current_streak"`
	Longest           int `json:"longest_streak"`
	TotalPracticeDays int `json:"total_practice_days"`
}

// PracticeStreak looks back one year over days with a completed session.
// The current streak must include today and runs backward until the first
// gap. The longest streak is the longest run of consecutive days anywhere in
// the year. It is independent of the 30-day goal streak.
func (a *Aggregator) PracticeStreak(ctx context.Context, userID string) (*Streak, error) {
	today := a.today()
	from := today.AddDate(-1, 0, 0)

	var completed []time.Time
	if err := a.db.WithContext(ctx).Model(&models.Session{}).
		Where("user_id = ? AND status = ?", userID, models.SessionCompleted).
		Where("completed_at BETWEEN ? AND ?", from.UTC(), goal.DayEnd(today).UTC()).
		Pluck("completed_at", &completed).Error; err != nil {
		return nil, fmt.Errorf("stats: practice streak for %s: %w", userID, err)
	}

	seen := make(map[string]bool, len(completed))
	var days []time.Time
	for _, c := range completed {
		d := goal.DayStart(c.In(a.loc))
		if key := goal.DayKey(d); !seen[key] {
			seen[key] = true
			days = append(days, d)
		}
	}

	// Newest first for the current streak.
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })
	return &Streak{
		Current:           currentStreak(days, today),
		Longest:           longestStreak(days),
		TotalPracticeDays: len(days),
	}, nil
}

// currentStreak expects distinct days sorted newest first.
func currentStreak(days []time.Time, today time.Time) int {
	if len(days) == 0 || !days[0].Equal(today) {
		return 0
	}
	streak := 1
	for i := 1; i < len(days); i++ {
		if !days[i].Equal(days[i-1].AddDate(0, 0, -1)) {
			break
		}
		streak++
	}
	return streak
}

// longestStreak expects distinct days sorted newest first and scans them
// oldest first.
func longestStreak(days []time.Time) int {
	longest, run := 0, 0
	for i := len(days) - 1; i >= 0; i-- {
		if i < len(days)-1 && days[i].Equal(days[i+1].AddDate(0, 0, 1)) {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}
