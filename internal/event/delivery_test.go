package event_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zulandar/tempo/internal/db"
	"github.com/zulandar/tempo/internal/event"
	"github.com/zulandar/tempo/internal/goal"
	"github.com/zulandar/tempo/internal/models"
	"github.com/zulandar/tempo/internal/session"
)

// Completing a session flows through the outbox into goal recomputation, and
// delivering the same event twice leaves the goal unchanged.
func TestSessionCompletionRecomputesGoals(t *testing.T) {
	gormDB, err := db.ConnectSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gormDB))
	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
	})
	ctx := context.Background()

	engine := goal.NewEngine(gormDB, time.UTC)
	g, err := engine.Create(ctx, goal.CreateOpts{UserID: "u1", Title: "20 a day", Type: models.GoalDailyMinutes, Value: 20})
	require.NoError(t, err)

	m := session.New(gormDB)
	s, err := m.Create(ctx, session.CreateOpts{
		UserID: "u1",
		Title:  "Scales",
		Blocks: []session.BlockOpts{{Title: "C major", Type: models.BlockTechnique, PlannedDuration: 20}},
	})
	require.NoError(t, err)
	_, err = m.Start(ctx, s.ID)
	require.NoError(t, err)
	_, err = m.StartBlock(ctx, s.ID, s.Blocks[0].ID)
	require.NoError(t, err)
	completed, minutes := models.BlockCompleted, 25
	_, err = m.UpdateBlock(ctx, s.ID, s.Blocks[0].ID, session.BlockPatch{Status: &completed, ActualDuration: &minutes})
	require.NoError(t, err)
	_, err = m.Complete(ctx, s.ID)
	require.NoError(t, err)

	w := event.NewWorker(gormDB, event.RecomputeHandler(engine), event.WorkerOpts{})
	acked, err := w.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, acked, "block and session completion events")

	got, err := engine.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, &models.GoalProgress{Current: 25, Total: 20}, got.Progress)
	assert.True(t, got.IsCompleted)
	firstCompletedAt := *got.CompletedAt

	// Simulate a duplicate delivery.
	require.NoError(t, gormDB.Model(&models.Event{}).Where("1 = 1").Update("acknowledged", false).Error)
	_, err = w.ProcessBatch(ctx)
	require.NoError(t, err)

	again, err := engine.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Progress, again.Progress)
	assert.True(t, again.CompletedAt.Equal(firstCompletedAt))
}
