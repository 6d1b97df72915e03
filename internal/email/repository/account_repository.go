package repository

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/RoxasZohbi/inboxPilot/internal/email/domain"
)

// GoogleAccountRepository defines persistence for connected Gmail accounts.
type GoogleAccountRepository interface {
	Create(account *domain.GoogleAccount) error
	GetByID(id string) (*domain.GoogleAccount, error)
	ListByUser(userID string) ([]domain.GoogleAccount, error)
	UpdateAccessToken(id, accessToken string) error
	// StampLastSynced records the completion of a sync cycle, advancing the
	// since-cursor for the next one.
	StampLastSynced(id string, at time.Time) error
	// MakePrimary marks one account primary and clears the flag on the user's
	// other accounts.
	MakePrimary(userID, id string) error
}

type googleAccountRepository struct {
	db *gorm.DB
}

// NewGoogleAccountRepository creates a gorm-backed GoogleAccountRepository.
func NewGoogleAccountRepository(db *gorm.DB) GoogleAccountRepository {
	return &googleAccountRepository{db: db}
}

func (r *googleAccountRepository) Create(account *domain.GoogleAccount) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	return r.db.Create(account).Error
}

func (r *googleAccountRepository) GetByID(id string) (*domain.GoogleAccount, error) {
	var account domain.GoogleAccount
	err := r.db.Where("id = ?", id).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *googleAccountRepository) ListByUser(userID string) ([]domain.GoogleAccount, error) {
	var accounts []domain.GoogleAccount
	err := r.db.Where("user_id = ?", userID).Order("is_primary DESC, created_at ASC").Find(&accounts).Error
	return accounts, err
}

func (r *googleAccountRepository) UpdateAccessToken(id, accessToken string) error {
	return r.db.Model(&domain.GoogleAccount{}).Where("id = ?", id).
		Update("google_token", accessToken).Error
}

func (r *googleAccountRepository) StampLastSynced(id string, at time.Time) error {
	return r.db.Model(&domain.GoogleAccount{}).Where("id = ?", id).
		Update("last_synced_at", at).Error
}

func (r *googleAccountRepository) MakePrimary(userID, id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var account domain.GoogleAccount
		err := tx.Where("user_id = ? AND id = ?", userID, id).First(&account).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := tx.Model(&domain.GoogleAccount{}).
			Where("user_id = ? AND id <> ?", userID, id).
			Update("is_primary", false).Error; err != nil {
			return err
		}
		return tx.Model(&account).Update("is_primary", true).Error
	})
}
