package usecase

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/RoxasZohbi/inboxPilot/internal/email/domain"
	"github.com/RoxasZohbi/inboxPilot/pkg/jobs"
)

var senderRe = regexp.MustCompile(`^(.+?)\s*<([^>]+)>$`)

// parseSender splits a From header into display name and address.
// "Name <addr>" gives both; a bare valid address gives only the address;
// anything else is kept whole as the name. Malformed input never errors.
func parseSender(from string) (name, address *string) {
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, nil
	}

	if m := senderRe.FindStringSubmatch(from); m != nil {
		n := strings.Trim(strings.TrimSpace(m[1]), `"`)
		a := strings.TrimSpace(m[2])
		if n == "" {
			return nil, &a
		}
		return &n, &a
	}

	if parsed, err := mail.ParseAddress(from); err == nil {
		addr := parsed.Address
		return nil, &addr
	}
	return &from, nil
}

func (s *Service) ingestTask(userID, accountID, gmailID string) *jobs.Task {
	return &jobs.Task{
		Name:        "ingest:" + gmailID,
		Timeout:     ingestTimeout,
		MaxAttempts: maxAttempts,
		Backoff:     ingestBackoff,
		Run: func(ctx context.Context) error {
			return s.ingestMessage(ctx, userID, accountID, gmailID)
		},
		OnGiveUp: func(err error) {
			// Progress counters are best-effort telemetry; the in-line failure
			// path has usually counted this message already and double counting
			// is accepted.
			if merr := s.tracker.MarkOneFailed(context.Background(), userID, accountID); merr != nil {
				s.log.Error("failed to record ingest failure",
					zap.String("gmail_id", gmailID), zap.Error(merr))
			}
			// A permanently failed message still counts toward the total:
			// without this the processed count never reaches it and the cycle
			// stays in processing until the TTL.
			s.reportProcessed(context.Background(), userID, accountID)
		},
	}
}

// ingestMessage persists one provider message and reports progress. The worker
// that pushes the processed count past the total closes out the cycle:
// it advances the since-cursor and triggers enrichment fan-out.
func (s *Service) ingestMessage(ctx context.Context, userID, accountID, gmailID string) error {
	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		return s.failIngest(ctx, userID, accountID, gmailID, err)
	}

	// Capacity can be exceeded between dispatch and execution when cycles
	// overlap with manual imports. Skip persistence but still count progress,
	// otherwise the cycle never completes.
	if s.cfg.MaxEmails > 0 {
		stored, err := s.emails.CountByAccount(accountID)
		if err != nil {
			return s.failIngest(ctx, userID, accountID, gmailID, err)
		}
		if int(stored) >= s.cfg.MaxEmails {
			s.log.Info("capacity reached mid-cycle, skipping message",
				zap.String("gmail_id", gmailID))
			s.reportProcessed(ctx, userID, accountID)
			return nil
		}
	}

	session, err := s.session(ctx, account)
	if err != nil {
		return s.failIngest(ctx, userID, accountID, gmailID, err)
	}

	msg, err := session.GetMessage(ctx, gmailID)
	if err != nil {
		if errors.Is(err, domain.ErrMessageGone) {
			// Deleted between listing and fetching. Retrying cannot bring it
			// back; count it so the cycle can still complete.
			s.log.Info("message gone at provider, skipping",
				zap.String("gmail_id", gmailID))
			if merr := s.tracker.MarkOneFailed(ctx, userID, accountID); merr != nil {
				s.log.Error("failed to record ingest failure", zap.Error(merr))
			}
			s.reportProcessed(ctx, userID, accountID)
			return nil
		}
		return s.failIngest(ctx, userID, accountID, gmailID, err)
	}

	fromName, fromEmail := parseSender(msg.From)
	email := &domain.Email{
		UserID:          userID,
		GoogleAccountID: accountID,
		GmailID:         msg.GmailID,
		ThreadID:        msg.ThreadID,
		Subject:         msg.Subject,
		FromName:        fromName,
		FromEmail:       fromEmail,
		To:              msg.To,
		Date:            &msg.Date,
		Body:            msg.Body,
		Snippet:         msg.Snippet,
		Labels:          domain.Labels(msg.Labels),
		IsUnread:        msg.IsUnread,
		IsStarred:       msg.IsStarred,
		HasAttachments:  msg.HasAttachments,
		InternalDate:    &msg.InternalDate,
	}

	if _, err := s.emails.UpsertByGmailID(email); err != nil {
		return s.failIngest(ctx, userID, accountID, gmailID, err)
	}

	s.log.Debug("message ingested",
		zap.String("gmail_id", gmailID), zap.String("account_id", accountID))
	s.reportProcessed(ctx, userID, accountID)
	return nil
}

// reportProcessed increments the processed counter and, when this worker was
// the last one out, closes the cycle.
func (s *Service) reportProcessed(ctx context.Context, userID, accountID string) {
	done, err := s.tracker.MarkOneProcessed(ctx, userID, accountID)
	if err != nil {
		s.log.Error("failed to mark message processed",
			zap.String("account_id", accountID), zap.Error(err))
		return
	}
	if !done {
		return
	}

	s.log.Info("sync cycle completed", zap.String("account_id", accountID))
	if err := s.accounts.StampLastSynced(accountID, time.Now()); err != nil {
		s.log.Error("failed to stamp last_synced_at",
			zap.String("account_id", accountID), zap.Error(err))
	}
	s.fanOutPending(ctx, userID, accountID)
}

func (s *Service) failIngest(ctx context.Context, userID, accountID, gmailID string, cause error) error {
	s.log.Warn("message ingestion failed",
		zap.String("gmail_id", gmailID), zap.Error(cause))
	if err := s.tracker.MarkOneFailed(ctx, userID, accountID); err != nil {
		s.log.Error("failed to record ingest failure", zap.Error(err))
	}
	return cause
}
