// Package usecase holds the sync pipeline: the orchestrator that drives one
// sync cycle per account, the ingestion worker that persists one message, and
// the enrichment worker that runs the AI state machine for one message.
package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/RoxasZohbi/inboxPilot/internal/email/domain"
	"github.com/RoxasZohbi/inboxPilot/internal/email/repository"
	"github.com/RoxasZohbi/inboxPilot/pkg/config"
	"github.com/RoxasZohbi/inboxPilot/pkg/gmail"
	"github.com/RoxasZohbi/inboxPilot/pkg/jobs"
	"github.com/RoxasZohbi/inboxPilot/pkg/openai"
)

// Job tuning. Each job type carries its own timeout and retry schedule.
const (
	syncTimeout   = 10 * time.Minute
	ingestTimeout = 2 * time.Minute
	enrichTimeout = 3 * time.Minute

	maxAttempts = 3
)

var (
	syncBackoff   = []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second}
	ingestBackoff = []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second}
	enrichBackoff = []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second}
)

// MailSession is an authenticated connection to the mail provider for one
// account. Satisfied by *gmail.Session.
type MailSession interface {
	ListMessagesSince(ctx context.Context, since time.Time, max int) ([]gmail.Ref, error)
	GetMessage(ctx context.Context, gmailID string) (*gmail.Message, error)
	Archive(ctx context.Context, gmailID string) bool
}

// SessionFactory opens a MailSession from an account's stored token pair,
// refreshing the access token first. onRefresh persists the new token.
type SessionFactory func(ctx context.Context, accessToken, refreshToken string, onRefresh gmail.TokenUpdateFunc) (MailSession, error)

// AIClient is the enrichment service. Satisfied by *openai.Client.
type AIClient interface {
	Categorize(ctx context.Context, subject, content string, candidates []openai.Candidate) (string, error)
	Summarize(ctx context.Context, subject, content string) (string, error)
	DetectUnsubscribe(ctx context.Context, subject, content string) (*openai.UnsubscribeResult, error)
}

// ProgressTracker is the shared sync progress record. Satisfied by
// *tracker.Tracker.
type ProgressTracker interface {
	Begin(ctx context.Context, userID, accountID string) error
	SetTotal(ctx context.Context, userID, accountID string, total int64) error
	MarkOneProcessed(ctx context.Context, userID, accountID string) (bool, error)
	MarkOneFailed(ctx context.Context, userID, accountID string) error
	MarkFailed(ctx context.Context, userID, accountID string, cause error) error
	CompleteEmpty(ctx context.Context, userID, accountID, message string) error
	Clear(ctx context.Context, userID, accountID string) error
	Get(ctx context.Context, userID, accountID string) (*domain.SyncProgress, error)
}

// TaskQueue runs background tasks. Satisfied by *jobs.Queue.
type TaskQueue interface {
	Submit(task *jobs.Task) error
	SubmitAfter(task *jobs.Task, delay time.Duration) error
}

// Service wires the three pipeline jobs to their collaborators.
type Service struct {
	accounts   repository.GoogleAccountRepository
	emails     repository.EmailRepository
	categories repository.CategoryRepository
	tracker    ProgressTracker
	sessions   SessionFactory
	ai         AIClient
	queue      TaskQueue
	cfg        config.SyncConfig
	log        *zap.Logger
}

// NewService creates the pipeline service. The sync config is passed explicitly
// so tests can vary the cap and archive flag per instance.
func NewService(
	accounts repository.GoogleAccountRepository,
	emails repository.EmailRepository,
	categories repository.CategoryRepository,
	tracker ProgressTracker,
	sessions SessionFactory,
	ai AIClient,
	queue TaskQueue,
	cfg config.SyncConfig,
	log *zap.Logger,
) *Service {
	return &Service{
		accounts:   accounts,
		emails:     emails,
		categories: categories,
		tracker:    tracker,
		sessions:   sessions,
		ai:         ai,
		queue:      queue,
		cfg:        cfg,
		log:        log,
	}
}

// session opens a provider session for the account, persisting any refreshed
// access token back onto the account row.
func (s *Service) session(ctx context.Context, account *domain.GoogleAccount) (MailSession, error) {
	return s.sessions(ctx, account.AccessToken, account.RefreshToken, func(token *oauth2.Token) error {
		return s.accounts.UpdateAccessToken(account.ID, token.AccessToken)
	})
}
