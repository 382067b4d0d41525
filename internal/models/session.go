package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SessionStatus is the lifecycle state of a practice session.
type SessionStatus string

const (
	SessionPlanned   SessionStatus = "planned"
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	// SessionCancelled is never produced by the engine; it can only be set
	// directly on the row.
	SessionCancelled SessionStatus = "cancelled"
)

// Session is a planned unit of practice made of ordered blocks.
type Session struct {
	ID              string        `gorm:"primaryKey;size:36"`
	UserID          string        `gorm:"size:64;not null;index"`
	TemplateID      *string       `gorm:"size:36"`
	Title           string        `gorm:"size:256;not null"`
	Description     string        `gorm:"type:text"`
	PlannedDuration int           `gorm:"default:0"`
	ActualDuration  *int
	Status          SessionStatus `gorm:"size:16;default:planned;index"`
	ScheduledAt     *time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time `gorm:"index"`
	Metadata        datatypes.JSONMap
	CreatedAt       time.Time `gorm:"index"`
	UpdatedAt       time.Time
	DeletedAt       gorm.DeletedAt `gorm:"index"`

	Blocks []Block `gorm:"foreignKey:SessionID"`
}
