package usecase

import (
	"github.com/RoxasZohbi/inboxPilot/internal/email/domain"
	"github.com/RoxasZohbi/inboxPilot/internal/email/repository"
)

// Read-side and CRUD operations for the HTTP layer. Kept on the same service
// so handlers have a single dependency.

func (s *Service) ListEmails(userID string, filter repository.EmailFilter) ([]domain.Email, error) {
	return s.emails.List(userID, filter)
}

func (s *Service) GetEmail(userID, id string) (*domain.Email, error) {
	return s.emails.GetByID(userID, id)
}

func (s *Service) DeleteEmail(userID, id string) error {
	return s.emails.SoftDelete(userID, id)
}

func (s *Service) ListAccounts(userID string) ([]domain.GoogleAccount, error) {
	return s.accounts.ListByUser(userID)
}

func (s *Service) MakePrimaryAccount(userID, id string) error {
	return s.accounts.MakePrimary(userID, id)
}

func (s *Service) ListCategories(userID string) ([]domain.Category, error) {
	return s.categories.ListByUser(userID)
}

// CreateCategory validates the priority range and persists a new category.
func (s *Service) CreateCategory(category *domain.Category) error {
	if err := validatePriority(category.Priority); err != nil {
		return err
	}
	return s.categories.Create(category)
}

func (s *Service) UpdateCategory(category *domain.Category) error {
	if err := validatePriority(category.Priority); err != nil {
		return err
	}
	return s.categories.Update(category)
}

func (s *Service) DeleteCategory(userID, id string) error {
	return s.categories.Delete(userID, id)
}

func validatePriority(priority int) error {
	if priority < domain.PriorityMin || priority > domain.PriorityMax {
		return domain.ErrInvalidPriority
	}
	return nil
}
