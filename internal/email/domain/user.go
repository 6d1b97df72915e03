package domain

import (
	"time"

	"gorm.io/gorm"
)

// User owns Gmail accounts, ingested emails and categories. Authentication is
// handled upstream; this service only needs the owner reference for data
// partitioning.
type User struct {
	ID        string         `json:"id" gorm:"primaryKey"`
	Email     string         `json:"email" gorm:"uniqueIndex;not null"`
	Name      string         `json:"name"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	GoogleAccounts []GoogleAccount `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Categories     []Category      `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

func (User) TableName() string {
	return "users"
}
