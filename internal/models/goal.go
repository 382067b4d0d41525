package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GoalType selects the progress computation for a goal.
type GoalType string

const (
	GoalDailyMinutes        GoalType = "daily_minutes"
	GoalWeeklySessions      GoalType = "weekly_sessions"
	GoalStreakDays          GoalType = "streak_days"
	GoalExerciseTypeMinutes GoalType = "exercise_type_minutes"
	GoalMonthlyMinutes      GoalType = "monthly_minutes"
	GoalYearlySessions      GoalType = "yearly_sessions"
)

// GoalTarget is the user's target specification for a goal.
type GoalTarget struct {
	Value        int       `json:"value"`
	ExerciseType BlockType `json:"exercise_type,omitempty"`
}

// GoalProgress is the persisted {current, total} snapshot.
type GoalProgress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Goal is a user-defined target measured against practice history.
type Goal struct {
	ID          string                         `gorm:"primaryKey;size:36"`
	UserID      string                         `gorm:"size:64;not null;index"`
	Title       string                         `gorm:"size:256;not null"`
	Description string                         `gorm:"type:text"`
	Type        GoalType                       `gorm:"size:32;not null"`
	Target      datatypes.JSONType[GoalTarget] `gorm:"not null"`
	Progress    *GoalProgress                  `gorm:"serializer:json"`
	StartDate   time.Time
	EndDate     *time.Time
	IsActive    bool `gorm:"default:true;index"`
	IsCompleted bool `gorm:"default:false"`
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}
