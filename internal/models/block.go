package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BlockStatus is the lifecycle state of a block within a session.
type BlockStatus string

const (
	BlockPlanned   BlockStatus = "planned"
	BlockActive    BlockStatus = "active"
	BlockPaused    BlockStatus = "paused"
	BlockCompleted BlockStatus = "completed"
	// BlockSkipped is a legal terminal value that no engine operation produces.
	BlockSkipped BlockStatus = "skipped"
)

// BlockStatuses lists every block status a row may hold.
var BlockStatuses = []BlockStatus{
	BlockPlanned, BlockActive, BlockPaused, BlockCompleted, BlockSkipped,
}

// BlockType categorizes the exercise a block covers.
type BlockType string

const (
	BlockWarmup        BlockType = "warmup"
	BlockTechnique     BlockType = "technique"
	BlockRepertoire    BlockType = "repertoire"
	BlockImprovisation BlockType = "improvisation"
	BlockSightReading  BlockType = "sight_reading"
	BlockTheory        BlockType = "theory"
	BlockBreak         BlockType = "break"
	BlockCustom        BlockType = "custom"
)

// BlockTypes lists every known block type in display order.
var BlockTypes = []BlockType{
	BlockWarmup, BlockTechnique, BlockRepertoire, BlockImprovisation,
	BlockSightReading, BlockTheory, BlockBreak, BlockCustom,
}

// Block is one ordered step of a session.
type Block struct {
	ID              string      `gorm:"primaryKey;size:36"`
	SessionID       string      `gorm:"size:36;not null;index;uniqueIndex:idx_block_order"`
	TemplateBlockID *string     `gorm:"size:36"`
	Title           string      `gorm:"size:256;not null"`
	Description     string      `gorm:"type:text"`
	Type            BlockType   `gorm:"size:32;default:custom;index"`
	PlannedDuration int         `gorm:"default:0"`
	ActualDuration  *int
	Status          BlockStatus `gorm:"size:16;default:planned;index"`
	SortOrder       int         `gorm:"uniqueIndex:idx_block_order"`
	Notes           string      `gorm:"type:text"`
	StartedAt       *time.Time
	CompletedAt     *time.Time
	Settings        datatypes.JSONMap
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       gorm.DeletedAt `gorm:"index"`
}
