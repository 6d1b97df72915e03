package domain

import "time"

// GoogleAccount is one connected Gmail mailbox. Tokens are written by the OAuth
// callback (external to this service) and refreshed by the Gmail client before
// every use. LastSyncedAt is the since-cursor for incremental sync and is only
// advanced when a sync cycle completes.
type GoogleAccount struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	UserID       string     `json:"user_id" gorm:"index;not null"`
	GoogleID     string     `json:"google_id" gorm:"uniqueIndex;not null"`
	Email        string     `json:"email" gorm:"not null"`
	Name         string     `json:"name"`
	AccessToken  string     `json:"-" gorm:"column:google_token"`
	RefreshToken string     `json:"-" gorm:"column:google_refresh_token"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	IsPrimary    bool       `json:"is_primary" gorm:"default:false"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	Emails []Email `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

func (GoogleAccount) TableName() string {
	return "google_accounts"
}

// SyncCursor returns the point in time new messages should be listed from:
// the last completed sync, or account creation for a first sync.
func (a *GoogleAccount) SyncCursor() time.Time {
	if a.LastSyncedAt != nil {
		return *a.LastSyncedAt
	}
	return a.CreatedAt
}
