package repository

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/RoxasZohbi/inboxPilot/internal/email/domain"
)

// EmailFilter narrows List queries.
type EmailFilter struct {
	CategoryID      string
	Unread          bool
	Starred         bool
	WithAttachments bool
	UnsubscribeOnly bool
	Status          string
	Limit           int
	Offset          int
}

// EnrichmentResult carries the fields the AI pipeline writes back to an email.
type EnrichmentResult struct {
	CategoryID             *string
	AISummary              *string
	IsUnsubscribeAvailable *bool
	UnsubscribeURL         *string
	Status                 string
	FailedReason           *string
	ProcessedAt            *time.Time
}

// EmailRepository defines persistence for ingested emails.
type EmailRepository interface {
	// UpsertByGmailID inserts or updates an email keyed on
	// (google_account_id, gmail_id). Only ingestion fields are written;
	// enrichment fields on an existing row are left untouched.
	UpsertByGmailID(email *domain.Email) (*domain.Email, error)
	GetByID(userID, id string) (*domain.Email, error)
	List(userID string, filter EmailFilter) ([]domain.Email, error)
	CountByAccount(accountID string) (int64, error)
	// FindPendingEnrichment returns emails whose status is unset or pending and
	// that have never been stamped processed.
	FindPendingEnrichment(accountID string) ([]domain.Email, error)
	FindPendingEnrichmentByUser(userID string) ([]domain.Email, error)
	SetStatus(id, status string, failedReason *string) error
	ApplyEnrichment(id string, result EnrichmentResult) error
	SetArchived(id string, archived bool) error
	SoftDelete(userID, id string) error
}

type emailRepository struct {
	db *gorm.DB
}

// NewEmailRepository creates a gorm-backed EmailRepository.
func NewEmailRepository(db *gorm.DB) EmailRepository {
	return &emailRepository{db: db}
}

func (r *emailRepository) UpsertByGmailID(email *domain.Email) (*domain.Email, error) {
	var existing domain.Email
	err := r.db.Where("google_account_id = ? AND gmail_id = ?", email.GoogleAccountID, email.GmailID).
		First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		if email.ID == "" {
			email.ID = uuid.New().String()
		}
		if err := r.db.Create(email).Error; err != nil {
			return nil, err
		}
		return email, nil
	}
	if err != nil {
		return nil, err
	}

	// Re-ingestion: refresh provider-sourced fields only. Enrichment columns
	// (category_id, ai_summary, unsubscribe info, status, processed_at) must
	// survive a second sync of the same message.
	updates := map[string]interface{}{
		"thread_id":       email.ThreadID,
		"subject":         email.Subject,
		"from_name":       email.FromName,
		"from_email":      email.FromEmail,
		"to":              email.To,
		"date":            email.Date,
		"body":            email.Body,
		"snippet":         email.Snippet,
		"labels":          email.Labels,
		"is_unread":       email.IsUnread,
		"is_starred":      email.IsStarred,
		"has_attachments": email.HasAttachments,
		"internal_date":   email.InternalDate,
	}
	if err := r.db.Model(&existing).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

func (r *emailRepository) GetByID(userID, id string) (*domain.Email, error) {
	var email domain.Email
	err := r.db.Preload("Category").Where("user_id = ? AND id = ?", userID, id).First(&email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &email, nil
}

func (r *emailRepository) List(userID string, filter EmailFilter) ([]domain.Email, error) {
	q := r.db.Preload("Category").Where("user_id = ?", userID)

	if filter.CategoryID != "" {
		q = q.Where("category_id = ?", filter.CategoryID)
	}
	if filter.Unread {
		q = q.Where("is_unread = ?", true)
	}
	if filter.Starred {
		q = q.Where("is_starred = ?", true)
	}
	if filter.WithAttachments {
		q = q.Where("has_attachments = ?", true)
	}
	if filter.UnsubscribeOnly {
		q = q.Where("is_unsubscribe_available = ?", true)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var emails []domain.Email
	err := q.Order("date DESC").Limit(limit).Offset(filter.Offset).Find(&emails).Error
	return emails, err
}

func (r *emailRepository) CountByAccount(accountID string) (int64, error) {
	var count int64
	err := r.db.Model(&domain.Email{}).Where("google_account_id = ?", accountID).Count(&count).Error
	return count, err
}

func (r *emailRepository) FindPendingEnrichment(accountID string) ([]domain.Email, error) {
	var emails []domain.Email
	err := r.db.Where("google_account_id = ?", accountID).
		Where("status IS NULL OR status = ? OR status = ?", "", domain.StatusPending).
		Where("processed_at IS NULL").
		Find(&emails).Error
	return emails, err
}

func (r *emailRepository) FindPendingEnrichmentByUser(userID string) ([]domain.Email, error) {
	var emails []domain.Email
	err := r.db.Where("user_id = ?", userID).
		Where("status IS NULL OR status = ? OR status = ?", "", domain.StatusPending).
		Where("processed_at IS NULL").
		Find(&emails).Error
	return emails, err
}

func (r *emailRepository) SetStatus(id, status string, failedReason *string) error {
	return r.db.Model(&domain.Email{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":        status,
		"failed_reason": failedReason,
	}).Error
}

func (r *emailRepository) ApplyEnrichment(id string, result EnrichmentResult) error {
	updates := map[string]interface{}{
		"status":        result.Status,
		"failed_reason": result.FailedReason,
	}
	if result.CategoryID != nil {
		updates["category_id"] = *result.CategoryID
	}
	if result.AISummary != nil {
		updates["ai_summary"] = *result.AISummary
	}
	if result.IsUnsubscribeAvailable != nil {
		updates["is_unsubscribe_available"] = *result.IsUnsubscribeAvailable
	}
	if result.UnsubscribeURL != nil {
		updates["unsubscribe_url"] = *result.UnsubscribeURL
	}
	if result.ProcessedAt != nil {
		updates["processed_at"] = *result.ProcessedAt
	}
	return r.db.Model(&domain.Email{}).Where("id = ?", id).Updates(updates).Error
}

func (r *emailRepository) SetArchived(id string, archived bool) error {
	return r.db.Model(&domain.Email{}).Where("id = ?", id).
		Update("is_archived", archived).Error
}

func (r *emailRepository) SoftDelete(userID, id string) error {
	res := r.db.Where("user_id = ? AND id = ?", userID, id).Delete(&domain.Email{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
