package domain

import (
	"time"

	"gorm.io/gorm"
)

// Category priority bounds. Higher priority wins when the AI finds several
// plausible matches for an email.
const (
	PriorityMin = 1
	PriorityMax = 10
)

// Category is a user-defined classification bucket. The description doubles as
// the AI classification hint. When ArchiveAfterProcessing is set (and the global
// auto-archive flag is on) emails assigned to this category are archived in
// Gmail after enrichment.
type Category struct {
	ID                     string         `json:"id" gorm:"primaryKey"`
	UserID                 string         `json:"user_id" gorm:"uniqueIndex:idx_user_category_name;not null"`
	Name                   string         `json:"name" gorm:"uniqueIndex:idx_user_category_name;not null"`
	Priority               int            `json:"priority" gorm:"default:5"`
	Description            string         `json:"description"`
	ArchiveAfterProcessing bool           `json:"archive_after_processing" gorm:"default:false"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
	DeletedAt              gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Category) TableName() string {
	return "categories"
}
