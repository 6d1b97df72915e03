package repository

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/RoxasZohbi/inboxPilot/internal/email/domain"
)

// CategoryRepository defines persistence for user-defined categories.
type CategoryRepository interface {
	Create(category *domain.Category) error
	Update(category *domain.Category) error
	// Delete removes the category and clears category_id on referencing emails
	// instead of cascading.
	Delete(userID, id string) error
	GetByID(userID, id string) (*domain.Category, error)
	ListByUser(userID string) ([]domain.Category, error)
}

type categoryRepository struct {
	db *gorm.DB
}

// NewCategoryRepository creates a gorm-backed CategoryRepository.
func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

func (r *categoryRepository) Create(category *domain.Category) error {
	if category.ID == "" {
		category.ID = uuid.New().String()
	}

	var count int64
	r.db.Model(&domain.Category{}).
		Where("user_id = ? AND name = ?", category.UserID, category.Name).
		Count(&count)
	if count > 0 {
		return domain.ErrDuplicateName
	}

	return r.db.Create(category).Error
}

func (r *categoryRepository) Update(category *domain.Category) error {
	var count int64
	r.db.Model(&domain.Category{}).
		Where("user_id = ? AND name = ? AND id <> ?", category.UserID, category.Name, category.ID).
		Count(&count)
	if count > 0 {
		return domain.ErrDuplicateName
	}

	res := r.db.Model(&domain.Category{}).
		Where("user_id = ? AND id = ?", category.UserID, category.ID).
		Updates(map[string]interface{}{
			"name":                     category.Name,
			"priority":                 category.Priority,
			"description":              category.Description,
			"archive_after_processing": category.ArchiveAfterProcessing,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *categoryRepository) Delete(userID, id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND id = ?", userID, id).Delete(&domain.Category{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		// Categories soft-delete, so the FK will not null referencing rows for us.
		return tx.Model(&domain.Email{}).
			Where("category_id = ?", id).
			Update("category_id", nil).Error
	})
}

func (r *categoryRepository) GetByID(userID, id string) (*domain.Category, error) {
	var category domain.Category
	err := r.db.Where("user_id = ? AND id = ?", userID, id).First(&category).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *categoryRepository) ListByUser(userID string) ([]domain.Category, error) {
	var categories []domain.Category
	err := r.db.Where("user_id = ?", userID).Order("priority DESC, name ASC").Find(&categories).Error
	return categories, err
}
