package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/RoxasZohbi/inboxPilot/internal/email/domain"
	"github.com/RoxasZohbi/inboxPilot/internal/email/repository"
	"github.com/RoxasZohbi/inboxPilot/pkg/jobs"
	"github.com/RoxasZohbi/inboxPilot/pkg/openai"
)

func (s *Service) enrichTask(userID, emailID string) *jobs.Task {
	return &jobs.Task{
		Name:        "enrich:" + emailID,
		Timeout:     enrichTimeout,
		MaxAttempts: maxAttempts,
		Backoff:     enrichBackoff,
		Run: func(ctx context.Context) error {
			return s.enrichEmail(ctx, userID, emailID)
		},
		OnGiveUp: func(err error) {
			reason := fmt.Sprintf("Permanently failed after %d attempts: %v", maxAttempts, err)
			if serr := s.emails.SetStatus(emailID, domain.StatusFailed, &reason); serr != nil {
				s.log.Error("failed to record terminal enrichment failure",
					zap.String("email_id", emailID), zap.Error(serr))
			}
		},
	}
}

// enrichEmail runs the AI state machine for one message. Only missing fields
// trigger AI calls, so a retry of a partially-enriched message is cheap and
// never overwrites prior results. One usable field is enough to count the
// message as completed; a fully failed pass re-queues it as pending.
func (s *Service) enrichEmail(ctx context.Context, userID, emailID string) error {
	email, err := s.emails.GetByID(userID, emailID)
	if err != nil {
		return err
	}

	if email.FullyEnriched() {
		now := time.Now()
		return s.emails.ApplyEnrichment(emailID, repository.EnrichmentResult{
			Status:      domain.StatusCompleted,
			ProcessedAt: &now,
		})
	}

	if err := s.emails.SetStatus(emailID, domain.StatusProcessing, nil); err != nil {
		return err
	}

	content := email.EnrichmentContent()
	result := repository.EnrichmentResult{}
	var aiErrors []string
	usable := false

	if !email.HasCategory() {
		categoryID, err := s.categorize(ctx, userID, email.Subject, content)
		switch {
		case err != nil:
			aiErrors = append(aiErrors, fmt.Sprintf("categorize: %v", err))
		case categoryID != "":
			result.CategoryID = &categoryID
			usable = true
		}
	}

	if !email.HasSummary() && content != "" {
		summary, err := s.ai.Summarize(ctx, email.Subject, content)
		if err != nil {
			aiErrors = append(aiErrors, fmt.Sprintf("summarize: %v", err))
		} else {
			result.AISummary = &summary
			usable = true
		}
	}

	if !email.HasUnsubscribeCheck() {
		detection, err := s.ai.DetectUnsubscribe(ctx, email.Subject, content)
		if err != nil {
			aiErrors = append(aiErrors, fmt.Sprintf("unsubscribe: %v", err))
		} else {
			result.IsUnsubscribeAvailable = &detection.Available
			if detection.URL != "" {
				result.UnsubscribeURL = &detection.URL
			}
			usable = true
		}
	}

	if !usable && len(aiErrors) > 0 {
		// Every attempted field failed: park the message as pending with the
		// combined reason and let the job runner retry.
		reason := strings.Join(aiErrors, "; ")
		if err := s.emails.ApplyEnrichment(emailID, repository.EnrichmentResult{
			Status:       domain.StatusPending,
			FailedReason: &reason,
		}); err != nil {
			s.log.Error("failed to persist enrichment failure",
				zap.String("email_id", emailID), zap.Error(err))
		}
		return errors.New(reason)
	}

	now := time.Now()
	result.Status = domain.StatusCompleted
	result.ProcessedAt = &now
	if len(aiErrors) > 0 {
		// Partial success: keep what failed visible but do not re-queue.
		reason := strings.Join(aiErrors, "; ")
		result.FailedReason = &reason
	}

	if err := s.emails.ApplyEnrichment(emailID, result); err != nil {
		return err
	}

	// Archive only after the enrichment is durably persisted; a crash here
	// leaves an enriched row that simply did not get archived yet.
	if s.maybeArchive(ctx, userID, email, result.CategoryID) {
		if err := s.emails.SetArchived(emailID, true); err != nil {
			s.log.Error("failed to record archived flag",
				zap.String("email_id", emailID), zap.Error(err))
		}
	}

	s.log.Debug("message enriched",
		zap.String("email_id", emailID),
		zap.Bool("categorized", result.CategoryID != nil),
		zap.Bool("summarized", result.AISummary != nil),
		zap.Int("errors", len(aiErrors)))
	return nil
}

// categorize builds the candidate list from the user's categories and asks the
// AI to pick one. No categories means no call and no category.
func (s *Service) categorize(ctx context.Context, userID, subject, content string) (string, error) {
	categories, err := s.categories.ListByUser(userID)
	if err != nil {
		return "", err
	}
	if len(categories) == 0 {
		return "", nil
	}

	candidates := make([]openai.Candidate, len(categories))
	for i, cat := range categories {
		candidates[i] = openai.Candidate{ID: cat.ID, Name: cat.Name, Description: cat.Description}
	}
	return s.ai.Categorize(ctx, subject, content, candidates)
}

// maybeArchive archives the message in Gmail when the global flag is on, the
// message ended up with a category, and that category opts in. Failures are
// logged only; archiving never fails the enrichment job.
func (s *Service) maybeArchive(ctx context.Context, userID string, email *domain.Email, newCategoryID *string) bool {
	if !s.cfg.AutoArchive || email.IsArchived {
		return false
	}

	categoryID := email.CategoryID
	if categoryID == nil {
		categoryID = newCategoryID
	}
	if categoryID == nil {
		return false
	}

	category, err := s.categories.GetByID(userID, *categoryID)
	if err != nil {
		s.log.Warn("failed to load category for archive decision",
			zap.String("email_id", email.ID), zap.Error(err))
		return false
	}
	if !category.ArchiveAfterProcessing {
		return false
	}

	account, err := s.accounts.GetByID(email.GoogleAccountID)
	if err != nil {
		s.log.Warn("failed to load account for archiving",
			zap.String("email_id", email.ID), zap.Error(err))
		return false
	}
	session, err := s.session(ctx, account)
	if err != nil {
		s.log.Warn("failed to open session for archiving",
			zap.String("email_id", email.ID), zap.Error(err))
		return false
	}
	return session.Archive(ctx, email.GmailID)
}
