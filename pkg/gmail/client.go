// Package gmail wraps the Gmail API for the sync pipeline: OAuth token
// refresh, incremental message listing, full message fetch, and archiving.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/RoxasZohbi/inboxPilot/internal/email/domain"
)

// listPageSize is the page size for incremental listing. Kept well under the
// API maximum so a huge backlog is chunked.
const listPageSize = 100

// TokenUpdateFunc persists a refreshed access token.
type TokenUpdateFunc func(token *oauth2.Token) error

// Ref identifies a message from a list call, before the full fetch.
type Ref struct {
	ID       string
	ThreadID string
}

// Message is a fully fetched Gmail message, flattened for ingestion.
type Message struct {
	GmailID        string
	ThreadID       string
	Subject        string
	From           string
	To             string
	Date           time.Time
	Snippet        string
	Body           string
	Labels         []string
	IsUnread       bool
	IsStarred      bool
	HasAttachments bool
	InternalDate   time.Time
}

// Client creates per-account Gmail sessions from stored OAuth tokens.
type Client struct {
	clientID     string
	clientSecret string
	log          *zap.Logger
}

// NewClient creates a Gmail client with the app's OAuth credentials.
func NewClient(clientID, clientSecret string, log *zap.Logger) *Client {
	return &Client{clientID: clientID, clientSecret: clientSecret, log: log}
}

// notifyTokenSource wraps an oauth2.TokenSource and invokes the callback when
// the access token changes, so the refreshed token gets persisted.
type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
	log      *zap.Logger
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			s.log.Warn("failed to persist refreshed token", zap.Error(err))
		}
	}
	return t, nil
}

// Session creates a Gmail service for one account. The stored access token is
// marked expired so the first call goes through a refresh, guaranteeing a
// valid token for the whole sync cycle. A rejected refresh token surfaces as
// domain.ErrReauthRequired.
func (c *Client) Session(ctx context.Context, accessToken, refreshToken string, onTokenRefresh TokenUpdateFunc) (*Session, error) {
	if refreshToken == "" {
		return nil, domain.ErrNoRefreshToken
	}

	token := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		Expiry:       time.Now(),
	}

	config := &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Endpoint:     google.Endpoint,
	}

	source := &notifyTokenSource{
		src:      config.TokenSource(ctx, token),
		current:  token,
		callback: onTokenRefresh,
		log:      c.log,
	}

	// Refresh eagerly so auth failures surface here, not mid-sync.
	if _, err := source.Token(); err != nil {
		if isInvalidGrant(err) {
			return nil, domain.ErrReauthRequired
		}
		return nil, fmt.Errorf("refresh access token: %w", err)
	}

	srv, err := gmailapi.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, source)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &Session{srv: srv, log: c.log}, nil
}

func isInvalidGrant(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return retrieveErr.ErrorCode == "invalid_grant"
	}
	return strings.Contains(err.Error(), "invalid_grant")
}

// Session is an authenticated Gmail connection for one account.
type Session struct {
	srv *gmailapi.Service
	log *zap.Logger
}

// ListMessagesSince lists message refs received after the given time, newest
// first, paging until exhausted or max refs are collected. max <= 0 means
// unlimited.
func (s *Session) ListMessagesSince(ctx context.Context, since time.Time, max int) ([]Ref, error) {
	query := fmt.Sprintf("after:%d", since.Unix())

	var refs []Ref
	pageToken := ""
	for {
		call := s.srv.Users.Messages.List("me").Q(query).MaxResults(listPageSize).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}

		for _, m := range resp.Messages {
			refs = append(refs, Ref{ID: m.Id, ThreadID: m.ThreadId})
			if max > 0 && len(refs) >= max {
				return refs, nil
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			return refs, nil
		}
	}
}

// GetMessage fetches the full message and flattens it for ingestion. A message
// deleted between listing and fetching surfaces as domain.ErrMessageGone so the
// caller can skip it instead of retrying.
func (s *Session) GetMessage(ctx context.Context, gmailID string) (*Message, error) {
	msg, err := s.srv.Users.Messages.Get("me", gmailID).Format("full").Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("get message %s: %w", gmailID, domain.ErrMessageGone)
		}
		return nil, fmt.Errorf("get message %s: %w", gmailID, err)
	}
	return flattenMessage(msg), nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// Archive removes the INBOX label. Archiving is best effort: a failure is
// logged and reported as false, never as an error, so it cannot fail a
// message that was otherwise processed.
func (s *Session) Archive(ctx context.Context, gmailID string) bool {
	req := &gmailapi.ModifyMessageRequest{RemoveLabelIds: []string{"INBOX"}}
	if _, err := s.srv.Users.Messages.Modify("me", gmailID, req).Context(ctx).Do(); err != nil {
		s.log.Warn("failed to archive message", zap.String("gmail_id", gmailID), zap.Error(err))
		return false
	}
	return true
}

func flattenMessage(msg *gmailapi.Message) *Message {
	internal := time.Unix(msg.InternalDate/1000, 0)

	date := internal
	if raw := headerValue(msg.Payload, "Date"); raw != "" {
		if parsed, err := mail.ParseDate(raw); err == nil {
			date = parsed
		}
	}

	return &Message{
		GmailID:        msg.Id,
		ThreadID:       msg.ThreadId,
		Subject:        headerValue(msg.Payload, "Subject"),
		From:           headerValue(msg.Payload, "From"),
		To:             headerValue(msg.Payload, "To"),
		Date:           date,
		Snippet:        msg.Snippet,
		Body:           extractBody(msg.Payload),
		Labels:         msg.LabelIds,
		IsUnread:       hasLabel(msg.LabelIds, "UNREAD"),
		IsStarred:      hasLabel(msg.LabelIds, "STARRED"),
		HasAttachments: hasAttachments(msg.Payload),
		InternalDate:   internal,
	}
}

func headerValue(payload *gmailapi.MessagePart, name string) string {
	if payload == nil {
		return ""
	}
	for _, header := range payload.Headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

// extractBody returns the message text. Preference order: the top-level body,
// then a text/plain part, then a text/html part, then any nested part carrying
// data, searching nested multiparts recursively. An undecodable or absent body
// comes back empty; ingestion falls back to the snippet.
func extractBody(payload *gmailapi.MessagePart) string {
	if payload == nil {
		return ""
	}

	if payload.Body != nil && payload.Body.Data != "" {
		if data, err := base64.URLEncoding.DecodeString(payload.Body.Data); err == nil {
			return string(data)
		}
	}

	var plain, html, other string
	var walk func(parts []*gmailapi.MessagePart)
	walk = func(parts []*gmailapi.MessagePart) {
		for _, part := range parts {
			if part.Body != nil && part.Body.Data != "" {
				if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
					switch part.MimeType {
					case "text/plain":
						if plain == "" {
							plain = string(data)
						}
					case "text/html":
						if html == "" {
							html = string(data)
						}
					default:
						if other == "" {
							other = string(data)
						}
					}
				}
			}
			if len(part.Parts) > 0 {
				walk(part.Parts)
			}
		}
	}
	walk(payload.Parts)

	if plain != "" {
		return plain
	}
	if html != "" {
		return html
	}
	return other
}

func hasAttachments(payload *gmailapi.MessagePart) bool {
	if payload == nil {
		return false
	}
	for _, part := range payload.Parts {
		if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
			return true
		}
		if hasAttachments(part) {
			return true
		}
	}
	return false
}

func hasLabel(labels []string, labelID string) bool {
	for _, label := range labels {
		if label == labelID {
			return true
		}
	}
	return false
}
