package models

import (
	"time"

	"donusum/blocks"
)

type Operator struct {
	ID           int    `gorm:"primary_key;autoIncrement" json:"id"`
	Email        string `gorm:"unique;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
}

type StageStatus string

const (
	StageLocked    StageStatus = "LOCKED"
	StageActive    StageStatus = "ACTIVE"
	StageCompleted StageStatus = "COMPLETED"
)

type Stage struct {
	ID            int         `gorm:"primary_key;autoIncrement" json:"id"`
	Slug          string      `gorm:"unique;not null;index" json:"slug"`
	Title         string      `gorm:"not null" json:"title"`
	Description   string      `gorm:"type:text" json:"description"` // markdown
	Status        StageStatus `gorm:"not null;default:'LOCKED';index" json:"status"`
	SequenceOrder float64     `gorm:"not null;uniqueIndex" json:"sequenceOrder"`
	IsVisible     bool        `gorm:"not null" json:"isVisible"`
	Progress      int         `gorm:"not null;default:0" json:"progress"`
	AutoPostTitle *string     `json:"autoPostTitle,omitempty"`
	Icon          string      `json:"icon,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// PageContent is the block document stored for one slug. Blocks are always
// replaced as a whole.
type PageContent struct {
	ID         uint           `gorm:"primary_key" json:"-"`
	Slug       string         `gorm:"unique;not null;index" json:"slug"`
	Blocks     []blocks.Block `gorm:"type:text;serializer:json;not null" json:"blocks"`
	IsTemplate bool           `gorm:"not null;default:false;index" json:"isTemplate"`
	StageOrder *float64       `gorm:"-" json:"stageOrder,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}
