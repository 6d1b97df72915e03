package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RoxasZohbi/inboxPilot/internal/email/domain"
	"github.com/RoxasZohbi/inboxPilot/pkg/config"
	"github.com/RoxasZohbi/inboxPilot/pkg/gmail"
)

type fixture struct {
	accounts   *mockAccounts
	emails     *mockEmails
	categories *mockCategories
	tracker    *mockTracker
	session    *mockSession
	ai         *mockAI
	queue      *fakeQueue
	svc        *Service
}

func newFixture(t *testing.T, cfg config.SyncConfig) *fixture {
	t.Helper()
	if cfg.DispatchInterval <= 0 {
		cfg.DispatchInterval = time.Millisecond
	}

	f := &fixture{
		accounts:   &mockAccounts{},
		emails:     &mockEmails{},
		categories: &mockCategories{},
		tracker:    &mockTracker{},
		session:    &mockSession{},
		ai:         &mockAI{},
		queue:      &fakeQueue{},
	}
	factory := func(ctx context.Context, accessToken, refreshToken string, onRefresh gmail.TokenUpdateFunc) (MailSession, error) {
		return f.session, nil
	}
	f.svc = NewService(f.accounts, f.emails, f.categories, f.tracker, factory,
		f.ai, f.queue, cfg, zap.NewNop())
	return f
}

func testAccount() *domain.GoogleAccount {
	return &domain.GoogleAccount{
		ID:           "acc-1",
		UserID:       "user-1",
		Email:        "me@example.com",
		AccessToken:  "access",
		RefreshToken: "refresh",
		CreatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestStartSyncConflict(t *testing.T) {
	f := newFixture(t, config.SyncConfig{MaxEmails: 500})
	f.accounts.On("GetByID", "acc-1").Return(testAccount(), nil)
	f.tracker.On("Begin", mock.Anything, "user-1", "acc-1").Return(domain.ErrSyncAlreadyRunning)

	err := f.svc.StartSync(context.Background(), "user-1", "acc-1")
	assert.ErrorIs(t, err, domain.ErrSyncAlreadyRunning)
	assert.Zero(t, f.queue.len(), "no job may be queued on conflict")
}

func TestStartSyncForeignAccount(t *testing.T) {
	f := newFixture(t, config.SyncConfig{})
	account := testAccount()
	account.UserID = "someone-else"
	f.accounts.On("GetByID", "acc-1").Return(account, nil)

	err := f.svc.StartSync(context.Background(), "user-1", "acc-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	f.tracker.AssertNotCalled(t, "Begin", mock.Anything, mock.Anything, mock.Anything)
}

func TestCapacityEnforcement(t *testing.T) {
	// Cap 2, one message already stored, provider returns 3: exactly one
	// ingestion task is dispatched and the tracker total is 1.
	f := newFixture(t, config.SyncConfig{MaxEmails: 2})
	f.accounts.On("GetByID", "acc-1").Return(testAccount(), nil)
	f.tracker.On("Begin", mock.Anything, "user-1", "acc-1").Return(nil)
	f.emails.On("CountByAccount", "acc-1").Return(int64(1), nil)
	f.session.On("ListMessagesSince", mock.Anything, mock.Anything, 1).
		Return([]gmail.Ref{{ID: "m1"}, {ID: "m2"}, {ID: "m3"}}, nil)
	f.tracker.On("SetTotal", mock.Anything, "user-1", "acc-1", int64(1)).Return(nil)

	require.NoError(t, f.svc.StartSync(context.Background(), "user-1", "acc-1"))

	syncTask := f.queue.pop()
	require.NotNil(t, syncTask)
	require.NoError(t, syncTask.Run(context.Background()))

	assert.Equal(t, []string{"ingest:m1"}, f.queue.names())
	f.tracker.AssertCalled(t, "SetTotal", mock.Anything, "user-1", "acc-1", int64(1))
}

func TestCapacityShortCircuit(t *testing.T) {
	// Mailbox already at the cap: the cycle finishes without listing, the
	// cursor advances, and pending messages still get enrichment.
	f := newFixture(t, config.SyncConfig{MaxEmails: 2})
	f.accounts.On("GetByID", "acc-1").Return(testAccount(), nil)
	f.tracker.On("Begin", mock.Anything, "user-1", "acc-1").Return(nil)
	f.emails.On("CountByAccount", "acc-1").Return(int64(2), nil)
	f.tracker.On("CompleteEmpty", mock.Anything, "user-1", "acc-1", mock.Anything).Return(nil)
	f.accounts.On("StampLastSynced", "acc-1", mock.Anything).Return(nil)
	f.emails.On("FindPendingEnrichment", "acc-1").
		Return([]domain.Email{{ID: "e1"}}, nil)

	require.NoError(t, f.svc.StartSync(context.Background(), "user-1", "acc-1"))
	require.NoError(t, f.queue.pop().Run(context.Background()))

	f.session.AssertNotCalled(t, "ListMessagesSince", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []string{"enrich:e1"}, f.queue.names())
	f.accounts.AssertCalled(t, "StampLastSynced", "acc-1", mock.Anything)
}

func TestEmptyListing(t *testing.T) {
	// Provider has nothing new: no ingestion tasks, tracker cleared rather
	// than left dangling, cursor advanced, enrichment fan-out still attempted.
	f := newFixture(t, config.SyncConfig{MaxEmails: 500})
	f.accounts.On("GetByID", "acc-1").Return(testAccount(), nil)
	f.tracker.On("Begin", mock.Anything, "user-1", "acc-1").Return(nil)
	f.emails.On("CountByAccount", "acc-1").Return(int64(10), nil)
	f.session.On("ListMessagesSince", mock.Anything, mock.Anything, 490).
		Return([]gmail.Ref{}, nil)
	f.tracker.On("Clear", mock.Anything, "user-1", "acc-1").Return(nil)
	f.accounts.On("StampLastSynced", "acc-1", mock.Anything).Return(nil)
	f.emails.On("FindPendingEnrichment", "acc-1").
		Return([]domain.Email{{ID: "e9"}}, nil)

	require.NoError(t, f.svc.StartSync(context.Background(), "user-1", "acc-1"))
	require.NoError(t, f.queue.pop().Run(context.Background()))

	assert.Equal(t, []string{"enrich:e9"}, f.queue.names())
	f.tracker.AssertCalled(t, "Clear", mock.Anything, "user-1", "acc-1")
	f.accounts.AssertCalled(t, "StampLastSynced", "acc-1", mock.Anything)
}

func TestEndToEndTwoMessages(t *testing.T) {
	f := newFixture(t, config.SyncConfig{MaxEmails: 500})
	account := testAccount()
	f.accounts.On("GetByID", "acc-1").Return(account, nil)
	f.tracker.On("Begin", mock.Anything, "user-1", "acc-1").Return(nil)
	f.emails.On("CountByAccount", "acc-1").Return(int64(0), nil)
	f.session.On("ListMessagesSince", mock.Anything, account.CreatedAt, 500).
		Return([]gmail.Ref{{ID: "m1"}, {ID: "m2"}}, nil)
	f.tracker.On("SetTotal", mock.Anything, "user-1", "acc-1", int64(2)).Return(nil)

	now := time.Now()
	for _, id := range []string{"m1", "m2"} {
		f.session.On("GetMessage", mock.Anything, id).Return(&gmail.Message{
			GmailID:      id,
			Subject:      "hello " + id,
			From:         "Alice Johnson <alice@example.com>",
			Date:         now,
			InternalDate: now,
		}, nil)
	}

	var upserted []*domain.Email
	f.emails.On("UpsertByGmailID", mock.Anything).
		Run(func(args mock.Arguments) {
			upserted = append(upserted, args.Get(0).(*domain.Email))
		}).
		Return(&domain.Email{}, nil)

	// Second worker to report completes the cycle.
	f.tracker.On("MarkOneProcessed", mock.Anything, "user-1", "acc-1").Return(false, nil).Once()
	f.tracker.On("MarkOneProcessed", mock.Anything, "user-1", "acc-1").Return(true, nil).Once()
	f.accounts.On("StampLastSynced", "acc-1", mock.Anything).Return(nil)
	f.emails.On("FindPendingEnrichment", "acc-1").
		Return([]domain.Email{{ID: "e1"}, {ID: "e2"}}, nil)

	require.NoError(t, f.svc.StartSync(context.Background(), "user-1", "acc-1"))
	require.NoError(t, f.queue.pop().Run(context.Background())) // sync cycle
	require.NoError(t, f.queue.pop().Run(context.Background())) // ingest m1
	require.NoError(t, f.queue.pop().Run(context.Background())) // ingest m2

	require.Len(t, upserted, 2)
	require.NotNil(t, upserted[0].FromName)
	assert.Equal(t, "Alice Johnson", *upserted[0].FromName)
	require.NotNil(t, upserted[0].FromEmail)
	assert.Equal(t, "alice@example.com", *upserted[0].FromEmail)

	assert.Equal(t, []string{"enrich:e1", "enrich:e2"}, f.queue.names())
	f.accounts.AssertCalled(t, "StampLastSynced", "acc-1", mock.Anything)
	f.tracker.AssertNumberOfCalls(t, "MarkOneProcessed", 2)
}

func TestListingFailureMarksTrackerFailed(t *testing.T) {
	f := newFixture(t, config.SyncConfig{MaxEmails: 500})
	boom := errors.New("gmail: 503")
	f.accounts.On("GetByID", "acc-1").Return(testAccount(), nil)
	f.tracker.On("Begin", mock.Anything, "user-1", "acc-1").Return(nil)
	f.emails.On("CountByAccount", "acc-1").Return(int64(0), nil)
	f.session.On("ListMessagesSince", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, boom)
	f.tracker.On("MarkFailed", mock.Anything, "user-1", "acc-1", boom).Return(nil)

	require.NoError(t, f.svc.StartSync(context.Background(), "user-1", "acc-1"))
	err := f.queue.pop().Run(context.Background())
	assert.ErrorIs(t, err, boom)
	f.tracker.AssertCalled(t, "MarkFailed", mock.Anything, "user-1", "acc-1", boom)
}

func TestAuthFailureIsNotRetried(t *testing.T) {
	cfg := config.SyncConfig{MaxEmails: 500, DispatchInterval: time.Millisecond}
	f := &fixture{
		accounts:   &mockAccounts{},
		emails:     &mockEmails{},
		categories: &mockCategories{},
		tracker:    &mockTracker{},
		ai:         &mockAI{},
		queue:      &fakeQueue{},
	}
	factory := func(ctx context.Context, accessToken, refreshToken string, onRefresh gmail.TokenUpdateFunc) (MailSession, error) {
		return nil, domain.ErrReauthRequired
	}
	f.svc = NewService(f.accounts, f.emails, f.categories, f.tracker, factory,
		f.ai, f.queue, cfg, zap.NewNop())

	f.accounts.On("GetByID", "acc-1").Return(testAccount(), nil)
	f.tracker.On("Begin", mock.Anything, "user-1", "acc-1").Return(nil)
	f.emails.On("CountByAccount", "acc-1").Return(int64(0), nil)
	f.tracker.On("MarkFailed", mock.Anything, "user-1", "acc-1", domain.ErrReauthRequired).Return(nil)

	require.NoError(t, f.svc.StartSync(context.Background(), "user-1", "acc-1"))

	// The job returns nil so the runner does not retry a hopeless refresh.
	assert.NoError(t, f.queue.pop().Run(context.Background()))
	f.tracker.AssertCalled(t, "MarkFailed", mock.Anything, "user-1", "acc-1", domain.ErrReauthRequired)
}

func TestStartSyncAll(t *testing.T) {
	f := newFixture(t, config.SyncConfig{MaxEmails: 500})
	f.accounts.On("ListByUser", "user-1").Return([]domain.GoogleAccount{
		{ID: "acc-1", UserID: "user-1", Email: "a@example.com"},
		{ID: "acc-2", UserID: "user-1", Email: "b@example.com"},
	}, nil)
	f.accounts.On("GetByID", "acc-1").Return(&domain.GoogleAccount{ID: "acc-1", UserID: "user-1"}, nil)
	f.accounts.On("GetByID", "acc-2").Return(&domain.GoogleAccount{ID: "acc-2", UserID: "user-1"}, nil)
	f.tracker.On("Begin", mock.Anything, "user-1", "acc-1").Return(nil)
	f.tracker.On("Begin", mock.Anything, "user-1", "acc-2").Return(domain.ErrSyncAlreadyRunning)

	results, err := f.svc.StartSyncAll(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Started)
	assert.False(t, results[1].Started)
	assert.Contains(t, results[1].Error, "already in progress")
	assert.Equal(t, 1, f.queue.len())
}

func TestProcessPending(t *testing.T) {
	f := newFixture(t, config.SyncConfig{})
	f.emails.On("FindPendingEnrichmentByUser", "user-1").
		Return([]domain.Email{{ID: "e1"}, {ID: "e2"}, {ID: "e3"}}, nil)

	count, err := f.svc.ProcessPending(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, []string{"enrich:e1", "enrich:e2", "enrich:e3"}, f.queue.names())
}

func TestSyncStatus(t *testing.T) {
	f := newFixture(t, config.SyncConfig{})
	f.accounts.On("GetByID", "acc-1").Return(testAccount(), nil)
	f.tracker.On("Get", mock.Anything, "user-1", "acc-1").
		Return(&domain.SyncProgress{Status: domain.SyncStatusProcessing, TotalEmails: 5, Processed: 2}, nil)

	progress, err := f.svc.SyncStatus(context.Background(), "user-1", "acc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusProcessing, progress.Status)
	assert.Equal(t, int64(5), progress.TotalEmails)
}
