package dashboard

import (
	"fmt"
	"time"

	"github.com/zulandar/tempo/internal/goal"
	"github.com/zulandar/tempo/internal/models"
	"gorm.io/gorm"
)

// QueueDepth counts outbox events by delivery state.
type QueueDepth struct {
	Pending int64 `json:"pending"`
	Dead    int64 `json:"dead"`
}

// OutboxDepth returns how many completion events are still waiting for the
// worker and how many were given up on.
func OutboxDepth(db *gorm.DB) (QueueDepth, error) {
	var d QueueDepth
	if err := db.Model(&models.Event{}).
		Where("acknowledged = ? AND dead = ?", false, false).
		Count(&d.Pending).Error; err != nil {
		return d, fmt.Errorf("count pending events: %w", err)
	}
	if err := db.Model(&models.Event{}).
		Where("acknowledged = ? AND dead = ?", false, true).
		Count(&d.Dead).Error; err != nil {
		return d, fmt.Errorf("count dead events: %w", err)
	}
	return d, nil
}

// GoalRow is the dashboard view of a goal and its progress snapshot.
type GoalRow struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Type         models.GoalType  `json:"type"`
	Target       int              `json:"target"`
	ExerciseType models.BlockType `json:"exercise_type,omitempty"`
	Current      int              `json:"current"`
	Total        int              `json:"total"`
	Percentage   int              `json:"percentage"`
	Active       bool             `json:"active"`
	Completed    bool             `json:"completed"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

// GoalRows converts goals to their dashboard view. A goal that has never
// been recomputed reports zero progress against its target.
func GoalRows(goals []models.Goal) []GoalRow {
	rows := make([]GoalRow, 0, len(goals))
	for _, g := range goals {
		target := g.Target.Data()
		row := GoalRow{
			ID:           g.ID,
			Title:        g.Title,
			Type:         g.Type,
			Target:       target.Value,
			ExerciseType: target.ExerciseType,
			Total:        target.Value,
			Active:       g.IsActive,
			Completed:    g.IsCompleted,
			CompletedAt:  g.CompletedAt,
		}
		if g.Progress != nil {
			row.Current = g.Progress.Current
			row.Total = g.Progress.Total
		}
		row.Percentage = goal.Percentage(&models.GoalProgress{Current: row.Current, Total: row.Total})
		rows = append(rows, row)
	}
	return rows
}
