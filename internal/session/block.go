package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zulandar/tempo/internal/event"
	"github.com/zulandar/tempo/internal/models"
	"gorm.io/gorm"
)

// BlockPatch is a partial block update. Only non-nil fields are applied.
type BlockPatch struct {
	Status          *models.BlockStatus
	ActualDuration  *int
	StartedAt       *time.Time
	CompletedAt     *time.Time
	Notes           *string
	PlannedDuration *int
}

// StartBlock makes a planned or paused block the session's active block. Any
// sibling that is active at the time is paused in the same transaction, so a
// session never has more than one active block.
func (m *Machine) StartBlock(ctx context.Context, sessionID, blockID string) (*models.Block, error) {
	var out *models.Block
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, b, err := loadBlock(tx, sessionID, blockID)
		if err != nil {
			return err
		}
		if !CanTransitionBlock(b.Status, models.BlockActive) {
			return fmt.Errorf("session: start block %s from %q: %w", blockID, b.Status, ErrIllegalTransition)
		}

		paused, err := pauseActiveSiblings(tx, sessionID, blockID)
		if err != nil {
			return err
		}
		if paused > 0 {
			logrus.WithFields(logrus.Fields{
				"session_id": sessionID,
				"block_id":   blockID,
				"paused":     paused,
			}).Debug("session: paused active sibling block")
		}

		updates := map[string]interface{}{"status": models.BlockActive}
		if b.StartedAt == nil {
			now := m.now().UTC()
			updates["started_at"] = now
			b.StartedAt = &now
		}
		if err := tx.Model(&models.Block{}).Where("id = ?", blockID).Updates(updates).Error; err != nil {
			return fmt.Errorf("session: start block %s: %w", blockID, err)
		}
		b.Status = models.BlockActive

		if err := checkSingleActive(tx, sessionID); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		logFailure(err, "start block", logrus.Fields{"session_id": sessionID, "block_id": blockID})
		return nil, err
	}
	return out, nil
}

// UpdateBlock merges patch into the block. It does not check status
// legality: callers validate the requested status with CanTransitionBlock
// first. Completing without an explicit completed_at stamps it with the
// current time, and any update that leaves the block completed records a
// BlockCompleted event. Activating a block through a patch pauses any active
// sibling, as StartBlock does.
func (m *Machine) UpdateBlock(ctx context.Context, sessionID, blockID string, patch BlockPatch) (*models.Block, error) {
	var out *models.Block
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, b, err := loadBlock(tx, sessionID, blockID)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if patch.Status != nil {
			updates["status"] = *patch.Status
			b.Status = *patch.Status
		}
		if patch.ActualDuration != nil {
			updates["actual_duration"] = *patch.ActualDuration
			b.ActualDuration = patch.ActualDuration
		}
		if patch.StartedAt != nil {
			t := patch.StartedAt.UTC()
			updates["started_at"] = t
			b.StartedAt = &t
		}
		if patch.CompletedAt != nil {
			t := patch.CompletedAt.UTC()
			updates["completed_at"] = t
			b.CompletedAt = &t
		} else if patch.Status != nil && *patch.Status == models.BlockCompleted {
			now := m.now().UTC()
			updates["completed_at"] = now
			b.CompletedAt = &now
		}
		if patch.Notes != nil {
			updates["notes"] = *patch.Notes
			b.Notes = *patch.Notes
		}
		if patch.PlannedDuration != nil {
			updates["planned_duration"] = *patch.PlannedDuration
			b.PlannedDuration = *patch.PlannedDuration
		}

		if b.Status == models.BlockActive {
			if _, err := pauseActiveSiblings(tx, sessionID, blockID); err != nil {
				return err
			}
		}
		if len(updates) > 0 {
			if err := tx.Model(&models.Block{}).Where("id = ?", blockID).Updates(updates).Error; err != nil {
				return fmt.Errorf("session: update block %s: %w", blockID, err)
			}
		}
		if b.Status == models.BlockActive {
			if err := checkSingleActive(tx, sessionID); err != nil {
				return err
			}
		}

		if b.Status == models.BlockCompleted {
			if b.CompletedAt == nil {
				// Completed earlier without a timestamp; stamp it now.
				now := m.now().UTC()
				if err := tx.Model(&models.Block{}).Where("id = ?", blockID).Update("completed_at", now).Error; err != nil {
					return fmt.Errorf("session: update block %s: %w", blockID, err)
				}
				b.CompletedAt = &now
			}
			if err := event.BlockCompleted(tx, s.UserID, b); err != nil {
				return err
			}
		}
		out = b
		return nil
	})
	if err != nil {
		logFailure(err, "update block", logrus.Fields{"session_id": sessionID, "block_id": blockID})
		return nil, err
	}
	return out, nil
}

// GetBlock returns a block addressed through its session.
func (m *Machine) GetBlock(ctx context.Context, sessionID, blockID string) (*models.Block, error) {
	_, b, err := loadBlock(m.db.WithContext(ctx), sessionID, blockID)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// loadBlock fetches the session and block and checks that they belong
// together.
func loadBlock(tx *gorm.DB, sessionID, blockID string) (*models.Session, *models.Block, error) {
	var s models.Session
	if err := tx.Where("id = ?", sessionID).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("session: get %s: %w", sessionID, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("session: get %s: %w", sessionID, err)
	}
	var b models.Block
	if err := tx.Where("id = ?", blockID).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("session: get block %s: %w", blockID, ErrNotFound)
		}
		return nil, nil, fmt.Errorf("session: get block %s: %w", blockID, err)
	}
	if b.SessionID != s.ID {
		return nil, nil, fmt.Errorf("session: block %s in session %s: %w", blockID, sessionID, ErrBlockMismatch)
	}
	return &s, &b, nil
}

// pauseActiveSiblings pauses every active block of the session other than
// blockID and returns how many were paused.
func pauseActiveSiblings(tx *gorm.DB, sessionID, blockID string) (int64, error) {
	result := tx.Model(&models.Block{}).
		Where("session_id = ? AND id <> ? AND status = ?", sessionID, blockID, models.BlockActive).
		Update("status", models.BlockPaused)
	if result.Error != nil {
		return 0, fmt.Errorf("session: pause siblings of %s: %w", blockID, result.Error)
	}
	return result.RowsAffected, nil
}

// checkSingleActive fails the transaction if the session ends up with more
// than one active block.
func checkSingleActive(tx *gorm.DB, sessionID string) error {
	var active int64
	if err := tx.Model(&models.Block{}).
		Where("session_id = ? AND status = ?", sessionID, models.BlockActive).
		Count(&active).Error; err != nil {
		return fmt.Errorf("session: count active blocks of %s: %w", sessionID, err)
	}
	if active > 1 {
		return fmt.Errorf("session: %s has %d active blocks", sessionID, active)
	}
	return nil
}
