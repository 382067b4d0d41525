// Package event carries session and block completion notifications from the
// state machine to goal recomputation. Events are outbox rows written in the
// same transaction as the completion and delivered at-least-once.
package event

import (
	"fmt"
	"time"

	"github.com/zulandar/tempo/internal/models"
	"gorm.io/gorm"
)

// SessionCompleted records a completion notification for s. tx should be the
// transaction that completes the session.
func SessionCompleted(tx *gorm.DB, s *models.Session) error {
	if s.CompletedAt == nil {
		return fmt.Errorf("event: session %s has no completed_at", s.ID)
	}
	return publish(tx, &models.Event{
		Kind:        models.EventSessionCompleted,
		UserID:      s.UserID,
		SessionID:   s.ID,
		CompletedAt: *s.CompletedAt,
	})
}

// BlockCompleted records a completion notification for b, owned by userID.
func BlockCompleted(tx *gorm.DB, userID string, b *models.Block) error {
	if b.CompletedAt == nil {
		return fmt.Errorf("event: block %s has no completed_at", b.ID)
	}
	return publish(tx, &models.Event{
		Kind:        models.EventBlockCompleted,
		UserID:      userID,
		SessionID:   b.SessionID,
		BlockID:     b.ID,
		CompletedAt: *b.CompletedAt,
	})
}

func publish(tx *gorm.DB, ev *models.Event) error {
	ev.CreatedAt = time.Now().UTC()
	if err := tx.Create(ev).Error; err != nil {
		return fmt.Errorf("event: publish %s: %w", ev.Kind, err)
	}
	return nil
}

// Pending returns up to limit undelivered events, oldest first.
func Pending(db *gorm.DB, limit int) ([]models.Event, error) {
	var evs []models.Event
	if err := db.Where("acknowledged = ? AND dead = ?", false, false).
		Order("id ASC").Limit(limit).Find(&evs).Error; err != nil {
		return nil, fmt.Errorf("event: pending: %w", err)
	}
	return evs, nil
}

// Acknowledge marks an event as delivered.
func Acknowledge(db *gorm.DB, id uint) error {
	result := db.Model(&models.Event{}).Where("id = ?", id).Update("acknowledged", true)
	if result.Error != nil {
		return fmt.Errorf("event: acknowledge %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("event: not found: %d", id)
	}
	return nil
}

// Fail records a failed delivery attempt. Once maxAttempts is reached the
// event is marked dead and no longer returned by Pending. It reports whether
// the event went dead.
func Fail(db *gorm.DB, ev *models.Event, cause error, maxAttempts int) (bool, error) {
	attempts := ev.Attempts + 1
	dead := attempts >= maxAttempts
	if err := db.Model(&models.Event{}).Where("id = ?", ev.ID).Updates(map[string]interface{}{
		"attempts":   attempts,
		"last_error": cause.Error(),
		"dead":       dead,
	}).Error; err != nil {
		return false, fmt.Errorf("event: record failure %d: %w", ev.ID, err)
	}
	ev.Attempts = attempts
	ev.Dead = dead
	ev.LastError = cause.Error()
	return dead, nil
}
