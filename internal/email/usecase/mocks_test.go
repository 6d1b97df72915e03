package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/RoxasZohbi/inboxPilot/internal/email/domain"
	"github.com/RoxasZohbi/inboxPilot/internal/email/repository"
	"github.com/RoxasZohbi/inboxPilot/pkg/gmail"
	"github.com/RoxasZohbi/inboxPilot/pkg/jobs"
	"github.com/RoxasZohbi/inboxPilot/pkg/openai"
)

type mockAccounts struct{ mock.Mock }

func (m *mockAccounts) Create(account *domain.GoogleAccount) error {
	return m.Called(account).Error(0)
}

func (m *mockAccounts) GetByID(id string) (*domain.GoogleAccount, error) {
	args := m.Called(id)
	if account := args.Get(0); account != nil {
		return account.(*domain.GoogleAccount), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAccounts) ListByUser(userID string) ([]domain.GoogleAccount, error) {
	args := m.Called(userID)
	if accounts := args.Get(0); accounts != nil {
		return accounts.([]domain.GoogleAccount), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAccounts) UpdateAccessToken(id, accessToken string) error {
	return m.Called(id, accessToken).Error(0)
}

func (m *mockAccounts) StampLastSynced(id string, at time.Time) error {
	return m.Called(id, at).Error(0)
}

func (m *mockAccounts) MakePrimary(userID, id string) error {
	return m.Called(userID, id).Error(0)
}

type mockEmails struct{ mock.Mock }

func (m *mockEmails) UpsertByGmailID(email *domain.Email) (*domain.Email, error) {
	args := m.Called(email)
	if e := args.Get(0); e != nil {
		return e.(*domain.Email), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEmails) GetByID(userID, id string) (*domain.Email, error) {
	args := m.Called(userID, id)
	if e := args.Get(0); e != nil {
		return e.(*domain.Email), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEmails) List(userID string, filter repository.EmailFilter) ([]domain.Email, error) {
	args := m.Called(userID, filter)
	if emails := args.Get(0); emails != nil {
		return emails.([]domain.Email), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEmails) CountByAccount(accountID string) (int64, error) {
	args := m.Called(accountID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockEmails) FindPendingEnrichment(accountID string) ([]domain.Email, error) {
	args := m.Called(accountID)
	if emails := args.Get(0); emails != nil {
		return emails.([]domain.Email), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEmails) FindPendingEnrichmentByUser(userID string) ([]domain.Email, error) {
	args := m.Called(userID)
	if emails := args.Get(0); emails != nil {
		return emails.([]domain.Email), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEmails) SetStatus(id, status string, failedReason *string) error {
	return m.Called(id, status, failedReason).Error(0)
}

func (m *mockEmails) ApplyEnrichment(id string, result repository.EnrichmentResult) error {
	return m.Called(id, result).Error(0)
}

func (m *mockEmails) SetArchived(id string, archived bool) error {
	return m.Called(id, archived).Error(0)
}

func (m *mockEmails) SoftDelete(userID, id string) error {
	return m.Called(userID, id).Error(0)
}

type mockCategories struct{ mock.Mock }

func (m *mockCategories) Create(category *domain.Category) error {
	return m.Called(category).Error(0)
}

func (m *mockCategories) Update(category *domain.Category) error {
	return m.Called(category).Error(0)
}

func (m *mockCategories) Delete(userID, id string) error {
	return m.Called(userID, id).Error(0)
}

func (m *mockCategories) GetByID(userID, id string) (*domain.Category, error) {
	args := m.Called(userID, id)
	if c := args.Get(0); c != nil {
		return c.(*domain.Category), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCategories) ListByUser(userID string) ([]domain.Category, error) {
	args := m.Called(userID)
	if cats := args.Get(0); cats != nil {
		return cats.([]domain.Category), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockTracker struct{ mock.Mock }

func (m *mockTracker) Begin(ctx context.Context, userID, accountID string) error {
	return m.Called(ctx, userID, accountID).Error(0)
}

func (m *mockTracker) SetTotal(ctx context.Context, userID, accountID string, total int64) error {
	return m.Called(ctx, userID, accountID, total).Error(0)
}

func (m *mockTracker) MarkOneProcessed(ctx context.Context, userID, accountID string) (bool, error) {
	args := m.Called(ctx, userID, accountID)
	return args.Bool(0), args.Error(1)
}

func (m *mockTracker) MarkOneFailed(ctx context.Context, userID, accountID string) error {
	return m.Called(ctx, userID, accountID).Error(0)
}

func (m *mockTracker) MarkFailed(ctx context.Context, userID, accountID string, cause error) error {
	return m.Called(ctx, userID, accountID, cause).Error(0)
}

func (m *mockTracker) CompleteEmpty(ctx context.Context, userID, accountID, message string) error {
	return m.Called(ctx, userID, accountID, message).Error(0)
}

func (m *mockTracker) Clear(ctx context.Context, userID, accountID string) error {
	return m.Called(ctx, userID, accountID).Error(0)
}

func (m *mockTracker) Get(ctx context.Context, userID, accountID string) (*domain.SyncProgress, error) {
	args := m.Called(ctx, userID, accountID)
	if p := args.Get(0); p != nil {
		return p.(*domain.SyncProgress), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSession struct{ mock.Mock }

func (m *mockSession) ListMessagesSince(ctx context.Context, since time.Time, max int) ([]gmail.Ref, error) {
	args := m.Called(ctx, since, max)
	if refs := args.Get(0); refs != nil {
		return refs.([]gmail.Ref), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSession) GetMessage(ctx context.Context, gmailID string) (*gmail.Message, error) {
	args := m.Called(ctx, gmailID)
	if msg := args.Get(0); msg != nil {
		return msg.(*gmail.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSession) Archive(ctx context.Context, gmailID string) bool {
	return m.Called(ctx, gmailID).Bool(0)
}

type mockAI struct{ mock.Mock }

func (m *mockAI) Categorize(ctx context.Context, subject, content string, candidates []openai.Candidate) (string, error) {
	args := m.Called(ctx, subject, content, candidates)
	return args.String(0), args.Error(1)
}

func (m *mockAI) Summarize(ctx context.Context, subject, content string) (string, error) {
	args := m.Called(ctx, subject, content)
	return args.String(0), args.Error(1)
}

func (m *mockAI) DetectUnsubscribe(ctx context.Context, subject, content string) (*openai.UnsubscribeResult, error) {
	args := m.Called(ctx, subject, content)
	if r := args.Get(0); r != nil {
		return r.(*openai.UnsubscribeResult), args.Error(1)
	}
	return nil, args.Error(1)
}

// fakeQueue records submitted tasks so tests can step through the pipeline
// deterministically. Delays are ignored.
type fakeQueue struct {
	mu    sync.Mutex
	tasks []*jobs.Task
}

func (q *fakeQueue) Submit(task *jobs.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *fakeQueue) SubmitAfter(task *jobs.Task, delay time.Duration) error {
	return q.Submit(task)
}

func (q *fakeQueue) pop() *jobs.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil
	}
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return task
}

func (q *fakeQueue) names() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	names := make([]string, len(q.tasks))
	for i, task := range q.tasks {
		names[i] = task.Name
	}
	return names
}

func (q *fakeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
