// Package session provides the practice session and block lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/zulandar/tempo/internal/event"
	"github.com/zulandar/tempo/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreateOpts holds parameters for creating a new session.
type CreateOpts struct {
	UserID          string
	TemplateID      string
	Title           string
	Description     string
	PlannedDuration int // minutes; derived from blocks when zero
	ScheduledAt     *time.Time
	Metadata        map[string]interface{}
	Blocks          []BlockOpts
}

// BlockOpts describes one block of a session being created. Blocks receive
// sort orders in the order given.
type BlockOpts struct {
	TemplateBlockID string
	Title           string
	Description     string
	Type            models.BlockType
	PlannedDuration int
	Settings        map[string]interface{}
}

// ListFilters holds optional filters for listing sessions.
type ListFilters struct {
	UserID string
	Status models.SessionStatus
	Since  *time.Time
	Until  *time.Time
}

// Machine applies lifecycle transitions to sessions and their blocks. Every
// operation runs in a single transaction.
type Machine struct {
	db  *gorm.DB
	now func() time.Time
}

// New returns a Machine backed by db.
func New(db *gorm.DB) *Machine {
	return &Machine{db: db, now: time.Now}
}

// Create inserts a planned session and all of its blocks atomically.
func (m *Machine) Create(ctx context.Context, opts CreateOpts) (*models.Session, error) {
	if opts.UserID == "" {
		return nil, fmt.Errorf("session: user is required")
	}
	if opts.Title == "" {
		return nil, fmt.Errorf("session: title is required")
	}
	if len(opts.Blocks) == 0 {
		return nil, fmt.Errorf("session: at least one block is required")
	}

	now := m.now().UTC()
	s := models.Session{
		ID:              uuid.NewString(),
		UserID:          opts.UserID,
		Title:           opts.Title,
		Description:     opts.Description,
		PlannedDuration: opts.PlannedDuration,
		Status:          models.SessionPlanned,
		ScheduledAt:     opts.ScheduledAt,
		Metadata:        datatypes.JSONMap(opts.Metadata),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if opts.TemplateID != "" {
		s.TemplateID = &opts.TemplateID
	}

	plannedSum := 0
	for i, bo := range opts.Blocks {
		if bo.Title == "" {
			return nil, fmt.Errorf("session: blocks[%d]: title is required", i)
		}
		bt := bo.Type
		if bt == "" {
			bt = models.BlockCustom
		}
		b := models.Block{
			ID:              uuid.NewString(),
			SessionID:       s.ID,
			Title:           bo.Title,
			Description:     bo.Description,
			Type:            bt,
			PlannedDuration: bo.PlannedDuration,
			Status:          models.BlockPlanned,
			SortOrder:       i,
			Settings:        datatypes.JSONMap(bo.Settings),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if bo.TemplateBlockID != "" {
			b.TemplateBlockID = &bo.TemplateBlockID
		}
		plannedSum += bo.PlannedDuration
		s.Blocks = append(s.Blocks, b)
	}
	if s.PlannedDuration == 0 {
		s.PlannedDuration = plannedSum
	}

	if err := m.db.WithContext(ctx).Create(&s).Error; err != nil {
		logrus.WithError(err).WithField("user_id", opts.UserID).Error("session: create failed")
		return nil, fmt.Errorf("session: create: %w", err)
	}
	return &s, nil
}

// Get retrieves a session by ID with its blocks in sort order.
func (m *Machine) Get(ctx context.Context, id string) (*models.Session, error) {
	return get(m.db.WithContext(ctx), id)
}

func get(db *gorm.DB, id string) (*models.Session, error) {
	var s models.Session
	err := db.Preload("Blocks", func(q *gorm.DB) *gorm.DB {
		return q.Order("sort_order ASC")
	}).Where("id = ?", id).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("session: get %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("session: get %s: %w", id, err)
	}
	return &s, nil
}

// List returns sessions matching the given filters, newest first.
func (m *Machine) List(ctx context.Context, filters ListFilters) ([]models.Session, error) {
	q := m.db.WithContext(ctx).Model(&models.Session{})
	if filters.UserID != "" {
		q = q.Where("user_id = ?", filters.UserID)
	}
	if filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}
	if filters.Since != nil {
		q = q.Where("created_at >= ?", filters.Since.UTC())
	}
	if filters.Until != nil {
		q = q.Where("created_at <= ?", filters.Until.UTC())
	}

	var sessions []models.Session
	if err := q.Order("created_at DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	return sessions, nil
}

// Start moves a planned or paused session to active and stamps started_at.
// started_at is overwritten on every start, including a resume after pause.
func (m *Machine) Start(ctx context.Context, id string) (*models.Session, error) {
	var out *models.Session
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := get(tx, id)
		if err != nil {
			return err
		}
		if !isValidTransition(s.Status, models.SessionActive) {
			return fmt.Errorf("session: start %s from %q: %w", id, s.Status, ErrIllegalTransition)
		}
		now := m.now().UTC()
		if err := casUpdate(tx, s, map[string]interface{}{
			"status":     models.SessionActive,
			"started_at": now,
		}); err != nil {
			return err
		}
		s.Status = models.SessionActive
		s.StartedAt = &now
		out = s
		return nil
	})
	if err != nil {
		logFailure(err, "start", logrus.Fields{"session_id": id})
		return nil, err
	}
	return out, nil
}

// Pause moves an active session to paused.
func (m *Machine) Pause(ctx context.Context, id string) (*models.Session, error) {
	var out *models.Session
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := get(tx, id)
		if err != nil {
			return err
		}
		if !isValidTransition(s.Status, models.SessionPaused) {
			return fmt.Errorf("session: pause %s from %q: %w", id, s.Status, ErrIllegalTransition)
		}
		if err := casUpdate(tx, s, map[string]interface{}{"status": models.SessionPaused}); err != nil {
			return err
		}
		s.Status = models.SessionPaused
		out = s
		return nil
	})
	if err != nil {
		logFailure(err, "pause", logrus.Fields{"session_id": id})
		return nil, err
	}
	return out, nil
}

// Complete finishes an active or paused session. actual_duration becomes the
// sum of the blocks' actual durations, with unset durations counted as zero,
// and a SessionCompleted event is recorded in the same transaction.
func (m *Machine) Complete(ctx context.Context, id string) (*models.Session, error) {
	var out *models.Session
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := get(tx, id)
		if err != nil {
			return err
		}
		if !isValidTransition(s.Status, models.SessionCompleted) {
			return fmt.Errorf("session: complete %s from %q: %w", id, s.Status, ErrIllegalTransition)
		}

		actual := 0
		for _, b := range s.Blocks {
			if b.ActualDuration != nil {
				actual += *b.ActualDuration
			}
		}
		now := m.now().UTC()
		if err := casUpdate(tx, s, map[string]interface{}{
			"status":          models.SessionCompleted,
			"actual_duration": actual,
			"completed_at":    now,
		}); err != nil {
			return err
		}
		s.Status = models.SessionCompleted
		s.ActualDuration = &actual
		s.CompletedAt = &now

		if err := event.SessionCompleted(tx, s); err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		logFailure(err, "complete", logrus.Fields{"session_id": id})
		return nil, err
	}
	return out, nil
}

// Delete soft-deletes a session's blocks and then the session itself.
func (m *Machine) Delete(ctx context.Context, id string) error {
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Session{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("session: delete %s: %w", id, err)
		}
		if count == 0 {
			return fmt.Errorf("session: delete %s: %w", id, ErrNotFound)
		}
		if err := tx.Where("session_id = ?", id).Delete(&models.Block{}).Error; err != nil {
			return fmt.Errorf("session: delete blocks of %s: %w", id, err)
		}
		if err := tx.Where("id = ?", id).Delete(&models.Session{}).Error; err != nil {
			return fmt.Errorf("session: delete %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		logFailure(err, "delete", logrus.Fields{"session_id": id})
	}
	return err
}

// ProgressPercentage is the share of the session's planned minutes whose
// blocks are completed, rounded to a whole percent. Sessions without planned
// block time report 0.
func ProgressPercentage(s *models.Session) int {
	planned, done := 0, 0
	for _, b := range s.Blocks {
		planned += b.PlannedDuration
		if b.Status == models.BlockCompleted {
			done += b.PlannedDuration
		}
	}
	if planned <= 0 {
		return 0
	}
	return int(math.Round(float64(done) / float64(planned) * 100))
}

// casUpdate writes updates only if the row still holds the status s was read
// with, so two racing transitions cannot both succeed.
func casUpdate(tx *gorm.DB, s *models.Session, updates map[string]interface{}) error {
	result := tx.Model(&models.Session{}).
		Where("id = ? AND status = ?", s.ID, s.Status).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("session: update %s: %w", s.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("session: update %s: status changed concurrently: %w", s.ID, ErrIllegalTransition)
	}
	return nil
}

// logFailure logs persistence failures. Illegal transitions, mismatches and
// missing rows are ordinary results and are not logged.
func logFailure(err error, op string, fields logrus.Fields) {
	if errors.Is(err, ErrIllegalTransition) || errors.Is(err, ErrBlockMismatch) || errors.Is(err, ErrNotFound) {
		return
	}
	logrus.WithError(err).WithFields(fields).Errorf("session: %s failed, rolled back", op)
}
