package models

import "time"

// EventKind names a completion notification.
type EventKind string

const (
	EventSessionCompleted EventKind = "session_completed"
	EventBlockCompleted   EventKind = "block_completed"
)

// Event is an outbox row for a completion notification. It is written in the
// same transaction as the completion and consumed at-least-once.
type Event struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	Kind         EventKind `gorm:"size:32;not null"`
	UserID       string    `gorm:"size:64;not null"`
	SessionID    string    `gorm:"size:36"`
	BlockID      string    `gorm:"size:36"`
	CompletedAt  time.Time
	Acknowledged bool   `gorm:"default:false;index"`
	Dead         bool   `gorm:"default:false;index"`
	Attempts     int    `gorm:"default:0"`
	LastError    string `gorm:"type:text"`
	CreatedAt    time.Time
}
