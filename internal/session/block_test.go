package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zulandar/tempo/internal/models"
)

func blockStatus(t *testing.T, m *Machine, sessionID, blockID string) models.BlockStatus {
	t.Helper()
	s, err := m.Get(context.Background(), sessionID)
	require.NoError(t, err)
	for _, b := range s.Blocks {
		if b.ID == blockID {
			return b.Status
		}
	}
	t.Fatalf("block %s not found in session %s", blockID, sessionID)
	return ""
}

func TestStartBlock_PausesActiveSibling(t *testing.T) {
	m, _ := testMachine(t)
	ctx := context.Background()
	s := createSession(t, m, 10, 20)
	b1, b2 := s.Blocks[0], s.Blocks[1]

	_, err := m.StartBlock(ctx, s.ID, b2.ID)
	require.NoError(t, err)

	started, err := m.StartBlock(ctx, s.ID, b1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BlockActive, started.Status)

	assert.Equal(t, models.BlockActive, blockStatus(t, m, s.ID, b1.ID))
	assert.Equal(t, models.BlockPaused, blockStatus(t, m, s.ID, b2.ID))
}

func TestStartBlock_KeepsFirstStartedAt(t *testing.T) {
	m, _ := testMachine(t)
	ctx := context.Background()
	s := createSession(t, m, 10, 20)
	b1, b2 := s.Blocks[0], s.Blocks[1]

	first, err := m.StartBlock(ctx, s.ID, b1.ID)
	require.NoError(t, err)
	require.NotNil(t, first.StartedAt)

	m.now = func() time.Time { return fixedNow.Add(time.Hour) }
	_, err = m.StartBlock(ctx, s.ID, b2.ID)
	require.NoError(t, err)
	resumed, err := m.StartBlock(ctx, s.ID, b1.ID)
	require.NoError(t, err)
	assert.True(t, resumed.StartedAt.Equal(fixedNow), "started_at must not move on resume")
}

func TestStartBlock_Legality(t *testing.T) {
	tests := []struct {
		from  models.BlockStatus
		legal bool
	}{
		{models.BlockPlanned, true},
		{models.BlockPaused, true},
		{models.BlockActive, false},
		{models.BlockCompleted, false},
		{models.BlockSkipped, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			m, gormDB := testMachine(t)
			s := createSession(t, m, 10)
			b := s.Blocks[0]
			require.NoError(t, gormDB.Model(&models.Block{}).Where("id = ?", b.ID).Update("status", tt.from).Error)

			_, err := m.StartBlock(context.Background(), s.ID, b.ID)
			if tt.legal {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrIllegalTransition)
			}
		})
	}
}

func TestStartBlock_Mismatch(t *testing.T) {
	m, _ := testMachine(t)
	s1 := createSession(t, m, 10)
	s2 := createSession(t, m, 10)

	_, err := m.StartBlock(context.Background(), s1.ID, s2.Blocks[0].ID)
	assert.ErrorIs(t, err, ErrBlockMismatch)
	assert.Equal(t, models.BlockPlanned, blockStatus(t, m, s2.ID, s2.Blocks[0].ID))
}

func TestUpdateBlock_CompleteStampsAndRecordsEvent(t *testing.T) {
	m, gormDB := testMachine(t)
	ctx := context.Background()
	s := createSession(t, m, 10)
	b := s.Blocks[0]

	completed := models.BlockCompleted
	minutes := 12
	got, err := m.UpdateBlock(ctx, s.ID, b.ID, BlockPatch{Status: &completed, ActualDuration: &minutes})
	require.NoError(t, err)
	assert.Equal(t, models.BlockCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(fixedNow))
	assert.Equal(t, 12, *got.ActualDuration)

	var evs []models.Event
	require.NoError(t, gormDB.Find(&evs).Error)
	require.Len(t, evs, 1)
	assert.Equal(t, models.EventBlockCompleted, evs[0].Kind)
	assert.Equal(t, b.ID, evs[0].BlockID)
	assert.Equal(t, "user-1", evs[0].UserID)
}

func TestUpdateBlock_ExplicitCompletedAt(t *testing.T) {
	m, _ := testMachine(t)
	s := createSession(t, m, 10)

	completed := models.BlockCompleted
	at := fixedNow.Add(-2 * time.Hour)
	got, err := m.UpdateBlock(context.Background(), s.ID, s.Blocks[0].ID, BlockPatch{Status: &completed, CompletedAt: &at})
	require.NoError(t, err)
	assert.True(t, got.CompletedAt.Equal(at))
}

func TestUpdateBlock_PartialPatchLeavesOtherFields(t *testing.T) {
	m, gormDB := testMachine(t)
	ctx := context.Background()
	s := createSession(t, m, 10)
	b := s.Blocks[0]

	notes := "left hand lagging"
	_, err := m.UpdateBlock(ctx, s.ID, b.ID, BlockPatch{Notes: &notes})
	require.NoError(t, err)

	var stored models.Block
	require.NoError(t, gormDB.Where("id = ?", b.ID).First(&stored).Error)
	assert.Equal(t, notes, stored.Notes)
	assert.Equal(t, models.BlockPlanned, stored.Status)
	assert.Equal(t, 10, stored.PlannedDuration)
	assert.Nil(t, stored.CompletedAt)

	var count int64
	require.NoError(t, gormDB.Model(&models.Event{}).Count(&count).Error)
	assert.Zero(t, count, "non-completing updates record no event")
}

func TestUpdateBlock_SkippedIsSettable(t *testing.T) {
	m, _ := testMachine(t)
	s := createSession(t, m, 10)

	skipped := models.BlockSkipped
	got, err := m.UpdateBlock(context.Background(), s.ID, s.Blocks[0].ID, BlockPatch{Status: &skipped})
	require.NoError(t, err)
	assert.Equal(t, models.BlockSkipped, got.Status)
}

func TestUpdateBlock_ActivatePausesSibling(t *testing.T) {
	m, _ := testMachine(t)
	ctx := context.Background()
	s := createSession(t, m, 10, 20)

	_, err := m.StartBlock(ctx, s.ID, s.Blocks[0].ID)
	require.NoError(t, err)

	active := models.BlockActive
	_, err = m.UpdateBlock(ctx, s.ID, s.Blocks[1].ID, BlockPatch{Status: &active})
	require.NoError(t, err)

	assert.Equal(t, models.BlockPaused, blockStatus(t, m, s.ID, s.Blocks[0].ID))
	assert.Equal(t, models.BlockActive, blockStatus(t, m, s.ID, s.Blocks[1].ID))
}

func TestUpdateBlock_Mismatch(t *testing.T) {
	m, _ := testMachine(t)
	s1 := createSession(t, m, 10)
	s2 := createSession(t, m, 10)

	notes := "x"
	_, err := m.UpdateBlock(context.Background(), s1.ID, s2.Blocks[0].ID, BlockPatch{Notes: &notes})
	assert.ErrorIs(t, err, ErrBlockMismatch)
}

func TestCanTransitionBlock(t *testing.T) {
	tests := []struct {
		from, to models.BlockStatus
		want     bool
	}{
		{models.BlockPlanned, models.BlockActive, true},
		{models.BlockActive, models.BlockPaused, true},
		{models.BlockActive, models.BlockCompleted, true},
		{models.BlockPaused, models.BlockActive, true},
		{models.BlockPaused, models.BlockCompleted, true},
		{models.BlockPlanned, models.BlockCompleted, false},
		{models.BlockPlanned, models.BlockSkipped, false},
		{models.BlockCompleted, models.BlockActive, false},
		{models.BlockSkipped, models.BlockActive, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransitionBlock(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}
