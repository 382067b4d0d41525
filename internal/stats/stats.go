// Package stats aggregates completed practice history into period reports,
// charts and streaks.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/tempo/internal/goal"
	"github.com/zulandar/tempo/internal/models"
	"gorm.io/gorm"
)

// Period is a reporting granularity.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

const (
	DefaultChartDays  = 30
	DefaultChartWeeks = 12
)

// ParsePeriod validates a period name.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return p, nil
	default:
		return "", fmt.Errorf("stats: unknown period %q", s)
	}
}

// Bucket is the practice total of one time slice.
type Bucket struct {
	Label    string    `json:"label"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Minutes  int       `json:"minutes"`
	Sessions int       `json:"sessions"`
}

// TypeStat is the practice total of one exercise type.
type TypeStat struct {
	Type    models.BlockType `json:"type"`
	Minutes int              `json:"minutes"`
	Blocks  int              `json:"blocks"`
}

// Report summarizes one period. Exactly one breakdown is filled, matching
// the period: exercise types for a day, days for a week, weeks for a month,
// months for a year.
type Report struct {
	Period        Period     `json:"period"`
	From          time.Time  `json:"from"`
	To            time.Time  `json:"to"`
	TotalMinutes  int        `json:"total_minutes"`
	TotalSessions int        `json:"total_sessions"`
	ExerciseTypes []TypeStat `json:"exercise_types,omitempty"`
	Days          []Bucket   `json:"days,omitempty"`
	Weeks         []Bucket   `json:"weeks,omitempty"`
	Months        []Bucket   `json:"months,omitempty"`
}

// Aggregator reads completed sessions and blocks. Sessions are placed on the
// calendar day of their completion, in loc.
type Aggregator struct {
	db  *gorm.DB
	loc *time.Location
	now func() time.Time
}

// NewAggregator returns an Aggregator reading from db.
func NewAggregator(db *gorm.DB, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{db: db, loc: loc, now: time.Now}
}

func (a *Aggregator) today() time.Time {
	return goal.DayStart(a.now().In(a.loc))
}

// Bounds returns the inclusive window of the period containing now. Weeks
// start on Monday.
func (a *Aggregator) Bounds(p Period) (from, to time.Time, err error) {
	day := a.today()
	switch p {
	case PeriodDay:
		return day, goal.DayEnd(day), nil
	case PeriodWeek:
		start := startOfWeek(day)
		return start, goal.DayEnd(start.AddDate(0, 0, 6)), nil
	case PeriodMonth:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, a.loc)
		return start, start.AddDate(0, 1, 0).Add(-time.Nanosecond), nil
	case PeriodYear:
		start := time.Date(day.Year(), time.January, 1, 0, 0, 0, 0, a.loc)
		return start, start.AddDate(1, 0, 0).Add(-time.Nanosecond), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("stats: unknown period %q", p)
	}
}

// PeriodStatistics reports totals and the period-specific breakdown for the
// period containing now.
func (a *Aggregator) PeriodStatistics(ctx context.Context, userID string, p Period) (*Report, error) {
	from, to, err := a.Bounds(p)
	if err != nil {
		return nil, err
	}
	sessions, err := a.completedSessions(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	r := &Report{Period: p, From: from, To: to}
	for _, s := range sessions {
		r.TotalMinutes += minutes(s)
		r.TotalSessions++
	}

	switch p {
	case PeriodDay:
		r.ExerciseTypes, err = a.typeBreakdown(ctx, userID, from, to)
		if err != nil {
			return nil, err
		}
	case PeriodWeek:
		r.Days = fill(daySlices(from, 7), sessions, a.loc)
	case PeriodMonth:
		r.Weeks = fill(weekSlicesInMonth(from, to), sessions, a.loc)
	case PeriodYear:
		r.Months = fill(monthSlices(from), sessions, a.loc)
	}
	return r, nil
}

// DailyChart returns one zero-filled bucket per day for the last days days,
// ending today. A non-positive count uses DefaultChartDays.
func (a *Aggregator) DailyChart(ctx context.Context, userID string, days int) ([]Bucket, error) {
	if days <= 0 {
		days = DefaultChartDays
	}
	from := a.today().AddDate(0, 0, -(days - 1))
	slices := daySlices(from, days)
	sessions, err := a.completedSessions(ctx, userID, from, slices[len(slices)-1].End)
	if err != nil {
		return nil, err
	}
	return fill(slices, sessions, a.loc), nil
}

// WeeklyChart returns one zero-filled bucket per Monday-start week for the
// last weeks weeks, ending with the current week. A non-positive count uses
// DefaultChartWeeks.
func (a *Aggregator) WeeklyChart(ctx context.Context, userID string, weeks int) ([]Bucket, error) {
	if weeks <= 0 {
		weeks = DefaultChartWeeks
	}
	from := startOfWeek(a.today()).AddDate(0, 0, -7*(weeks-1))
	slices := make([]Bucket, weeks)
	for i := range slices {
		start := from.AddDate(0, 0, 7*i)
		slices[i] = Bucket{
			Label: goal.DayKey(start),
			Start: start,
			End:   goal.DayEnd(start.AddDate(0, 0, 6)),
		}
	}
	sessions, err := a.completedSessions(ctx, userID, from, slices[len(slices)-1].End)
	if err != nil {
		return nil, err
	}
	return fill(slices, sessions, a.loc), nil
}

// ExerciseTypeBreakdown returns completed block minutes and counts per
// exercise type for the period containing now, largest first.
func (a *Aggregator) ExerciseTypeBreakdown(ctx context.Context, userID string, p Period) ([]TypeStat, error) {
	from, to, err := a.Bounds(p)
	if err != nil {
		return nil, err
	}
	return a.typeBreakdown(ctx, userID, from, to)
}

func (a *Aggregator) typeBreakdown(ctx context.Context, userID string, from, to time.Time) ([]TypeStat, error) {
	type row struct {
		Type    string
		Minutes int64
		Blocks  int64
	}
	var rows []row
	if err := a.db.WithContext(ctx).Model(&models.Block{}).
		Select("blocks.type AS type, COALESCE(SUM(blocks.actual_duration), 0) AS minutes, COUNT(*) AS blocks").
		Joins("JOIN sessions ON sessions.id = blocks.session_id AND sessions.deleted_at IS NULL").
		Where("sessions.user_id = ? AND sessions.status = ?", userID, models.SessionCompleted).
		Where("sessions.completed_at BETWEEN ? AND ?", from.UTC(), to.UTC()).
		Where("blocks.status = ?", models.BlockCompleted).
		Group("blocks.type").
		Order("minutes DESC, type ASC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("stats: exercise types for %s: %w", userID, err)
	}

	out := make([]TypeStat, len(rows))
	for i, r := range rows {
		out[i] = TypeStat{Type: models.BlockType(r.Type), Minutes: int(r.Minutes), Blocks: int(r.Blocks)}
	}
	return out, nil
}

func (a *Aggregator) completedSessions(ctx context.Context, userID string, from, to time.Time) ([]models.Session, error) {
	var sessions []models.Session
	if err := a.db.WithContext(ctx).
		Select("id", "actual_duration", "completed_at").
		Where("user_id = ? AND status = ?", userID, models.SessionCompleted).
		Where("completed_at BETWEEN ? AND ?", from.UTC(), to.UTC()).
		Order("completed_at ASC").
		Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("stats: completed sessions for %s: %w", userID, err)
	}
	return sessions, nil
}

func minutes(s models.Session) int {
	if s.ActualDuration == nil {
		return 0
	}
	return *s.ActualDuration
}

// fill adds each session to the slice whose window holds its completion time.
func fill(slices []Bucket, sessions []models.Session, loc *time.Location) []Bucket {
	for _, s := range sessions {
		if s.CompletedAt == nil {
			continue
		}
		at := s.CompletedAt.In(loc)
		for i := range slices {
			if !at.Before(slices[i].Start) && !at.After(slices[i].End) {
				slices[i].Minutes += minutes(s)
				slices[i].Sessions++
				break
			}
		}
	}
	return slices
}

func daySlices(from time.Time, n int) []Bucket {
	out := make([]Bucket, n)
	for i := range out {
		d := from.AddDate(0, 0, i)
		out[i] = Bucket{Label: goal.DayKey(d), Start: d, End: goal.DayEnd(d)}
	}
	return out
}

// weekSlicesInMonth splits [from, to] at Monday boundaries, so the first and
// last weeks are clipped to the month.
func weekSlicesInMonth(from, to time.Time) []Bucket {
	var out []Bucket
	for start := from; !start.After(to); {
		end := goal.DayEnd(startOfWeek(start).AddDate(0, 0, 6))
		if end.After(to) {
			end = to
		}
		out = append(out, Bucket{
			Label: fmt.Sprintf("week %d", len(out)+1),
			Start: start,
			End:   end,
		})
		start = goal.DayStart(end).AddDate(0, 0, 1)
	}
	return out
}

func monthSlices(yearStart time.Time) []Bucket {
	out := make([]Bucket, 12)
	for i := range out {
		start := yearStart.AddDate(0, i, 0)
		out[i] = Bucket{
			Label: start.Month().String(),
			Start: start,
			End:   start.AddDate(0, 1, 0).Add(-time.Nanosecond),
		}
	}
	return out
}

// startOfWeek returns the Monday on or before day.
func startOfWeek(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return goal.DayStart(day).AddDate(0, 0, -offset)
}
