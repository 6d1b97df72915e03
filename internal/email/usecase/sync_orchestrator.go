package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/RoxasZohbi/inboxPilot/internal/email/domain"
	"github.com/RoxasZohbi/inboxPilot/pkg/jobs"
)

// AccountSyncResult is the per-account outcome of a sync-all request.
type AccountSyncResult struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Started   bool   `json:"started"`
	Error     string `json:"error,omitempty"`
}

// StartSync begins a sync cycle for one account. It claims the progress record
// synchronously so a concurrent request gets domain.ErrSyncAlreadyRunning
// before any work is queued, then hands the cycle to the job queue.
func (s *Service) StartSync(ctx context.Context, userID, accountID string) error {
	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		return err
	}
	if account.UserID != userID {
		return domain.ErrNotFound
	}

	if err := s.tracker.Begin(ctx, userID, accountID); err != nil {
		return err
	}

	task := &jobs.Task{
		Name:        "sync:" + accountID,
		Timeout:     syncTimeout,
		MaxAttempts: maxAttempts,
		Backoff:     syncBackoff,
		Run: func(ctx context.Context) error {
			return s.runSyncCycle(ctx, userID, accountID)
		},
		OnGiveUp: func(err error) {
			if merr := s.tracker.MarkFailed(context.Background(), userID, accountID, err); merr != nil {
				s.log.Error("failed to record terminal sync failure",
					zap.String("account_id", accountID), zap.Error(merr))
			}
		},
	}
	if err := s.queue.Submit(task); err != nil {
		// Nothing will drive this cycle; release the guard.
		_ = s.tracker.Clear(ctx, userID, accountID)
		return fmt.Errorf("enqueue sync: %w", err)
	}

	s.log.Info("sync started",
		zap.String("user_id", userID), zap.String("account_id", accountID))
	return nil
}

// StartSyncAll begins a sync cycle for every account of the user. Accounts
// already syncing are reported as conflicts, not failures.
func (s *Service) StartSyncAll(ctx context.Context, userID string) ([]AccountSyncResult, error) {
	accounts, err := s.accounts.ListByUser(userID)
	if err != nil {
		return nil, err
	}

	results := make([]AccountSyncResult, len(accounts))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for i, account := range accounts {
		i, account := i, account
		g.Go(func() error {
			res := AccountSyncResult{AccountID: account.ID, Email: account.Email}
			if err := s.StartSync(gctx, userID, account.ID); err != nil {
				res.Error = err.Error()
			} else {
				res.Started = true
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// SyncStatus returns the progress record for an account, or the idle shape.
func (s *Service) SyncStatus(ctx context.Context, userID, accountID string) (*domain.SyncProgress, error) {
	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		return nil, err
	}
	if account.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return s.tracker.Get(ctx, userID, accountID)
}

// runSyncCycle is one attempt of the orchestration job:
// capacity check, incremental listing, then staggered ingestion fan-out.
// Completion is implicit: the last ingestion worker to report flips the
// tracker to completed.
func (s *Service) runSyncCycle(ctx context.Context, userID, accountID string) error {
	// Re-arm the progress record. The first attempt holds it in processing
	// state already (conflict ignored); a retry after a marked failure resets
	// it to processing.
	if err := s.tracker.Begin(ctx, userID, accountID); err != nil && !errors.Is(err, domain.ErrSyncAlreadyRunning) {
		return err
	}

	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		return s.failCycle(ctx, userID, accountID, err)
	}

	stored, err := s.emails.CountByAccount(accountID)
	if err != nil {
		return s.failCycle(ctx, userID, accountID, err)
	}

	remaining := 0
	if s.cfg.MaxEmails > 0 {
		remaining = s.cfg.MaxEmails - int(stored)
		if remaining <= 0 {
			// Steady state once a mailbox is ingested up to the cap, not an
			// error. Finish the cycle and still fan out enrichment for any
			// backlog.
			s.log.Info("mailbox at capacity, skipping sync",
				zap.String("account_id", accountID), zap.Int("cap", s.cfg.MaxEmails))
			if err := s.tracker.CompleteEmpty(ctx, userID, accountID, "mailbox at capacity"); err != nil {
				s.log.Warn("failed to complete progress record", zap.Error(err))
			}
			s.finishCycle(ctx, userID, account)
			return nil
		}
	}

	session, err := s.session(ctx, account)
	if err != nil {
		if errors.Is(err, domain.ErrNoRefreshToken) || errors.Is(err, domain.ErrReauthRequired) {
			// Retrying cannot fix a bad refresh token; surface the failure and
			// stop. The user has to reconnect the account.
			s.log.Warn("sync aborted, re-authentication required",
				zap.String("account_id", accountID), zap.Error(err))
			_ = s.tracker.MarkFailed(ctx, userID, accountID, err)
			return nil
		}
		return s.failCycle(ctx, userID, accountID, err)
	}

	refs, err := session.ListMessagesSince(ctx, account.SyncCursor(), remaining)
	if err != nil {
		return s.failCycle(ctx, userID, accountID, err)
	}

	if len(refs) == 0 {
		s.log.Info("no new messages", zap.String("account_id", accountID))
		if err := s.tracker.Clear(ctx, userID, accountID); err != nil {
			s.log.Warn("failed to clear progress record", zap.Error(err))
		}
		s.finishCycle(ctx, userID, account)
		return nil
	}

	// Never dispatch past the cap, even if the listing returned more. Dropped
	// messages are re-listed next cycle: the provider lists newest-first and
	// last_synced_at only advances on cycle completion.
	if remaining > 0 && len(refs) > remaining {
		s.log.Info("clamping dispatch to remaining capacity",
			zap.String("account_id", accountID),
			zap.Int("fetched", len(refs)), zap.Int("remaining", remaining))
		refs = refs[:remaining]
	}

	if err := s.tracker.SetTotal(ctx, userID, accountID, int64(len(refs))); err != nil {
		return s.failCycle(ctx, userID, accountID, err)
	}

	// Stagger dispatch so N workers do not hit the provider at once.
	limiter := rate.NewLimiter(rate.Every(s.cfg.DispatchInterval), 1)
	for _, ref := range refs {
		if err := limiter.Wait(ctx); err != nil {
			return s.failCycle(ctx, userID, accountID, err)
		}
		if err := s.queue.Submit(s.ingestTask(userID, accountID, ref.ID)); err != nil {
			return s.failCycle(ctx, userID, accountID, err)
		}
	}

	s.log.Info("sync cycle dispatched",
		zap.String("account_id", accountID), zap.Int("messages", len(refs)))
	return nil
}

func (s *Service) failCycle(ctx context.Context, userID, accountID string, cause error) error {
	if err := s.tracker.MarkFailed(ctx, userID, accountID, cause); err != nil {
		s.log.Error("failed to mark sync failed",
			zap.String("account_id", accountID), zap.Error(err))
	}
	return cause
}

// finishCycle ends a cycle that dispatched no ingestion work: advance the
// since-cursor and fan out enrichment for any messages still pending.
func (s *Service) finishCycle(ctx context.Context, userID string, account *domain.GoogleAccount) {
	if err := s.accounts.StampLastSynced(account.ID, time.Now()); err != nil {
		s.log.Error("failed to stamp last_synced_at",
			zap.String("account_id", account.ID), zap.Error(err))
	}
	s.fanOutPending(ctx, userID, account.ID)
}

// fanOutPending enqueues one enrichment task per message of the account that
// still needs AI work.
func (s *Service) fanOutPending(ctx context.Context, userID, accountID string) {
	pending, err := s.emails.FindPendingEnrichment(accountID)
	if err != nil {
		s.log.Error("failed to load pending emails",
			zap.String("account_id", accountID), zap.Error(err))
		return
	}
	for _, email := range pending {
		if err := s.queue.Submit(s.enrichTask(userID, email.ID)); err != nil {
			s.log.Warn("failed to enqueue enrichment",
				zap.String("email_id", email.ID), zap.Error(err))
		}
	}
	if len(pending) > 0 {
		s.log.Info("enrichment fan-out",
			zap.String("account_id", accountID), zap.Int("count", len(pending)))
	}
}

// ProcessPending enqueues enrichment for every pending message of the user,
// across all accounts, and returns how many were queued.
func (s *Service) ProcessPending(ctx context.Context, userID string) (int, error) {
	pending, err := s.emails.FindPendingEnrichmentByUser(userID)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, email := range pending {
		if err := s.queue.Submit(s.enrichTask(userID, email.ID)); err != nil {
			s.log.Warn("failed to enqueue enrichment",
				zap.String("email_id", email.ID), zap.Error(err))
			continue
		}
		queued++
	}
	return queued, nil
}
