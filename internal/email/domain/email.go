package domain

import (
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
)

// Enrichment statuses for an email. An empty string means the email has never
// been handed to the AI pipeline.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Labels is stored as a JSON-serialized string array.
type Labels []string

// Email is one ingested Gmail message. The pair (google_account_id, gmail_id)
// is the idempotency key for ingestion: re-syncing the same message updates the
// existing row and never touches enrichment fields.
type Email struct {
	ID              string `json:"id" gorm:"primaryKey"`
	UserID          string `json:"user_id" gorm:"index;not null"`
	GoogleAccountID string `json:"google_account_id" gorm:"uniqueIndex:idx_account_gmail;not null"`
	GmailID         string `json:"gmail_id" gorm:"uniqueIndex:idx_account_gmail;not null"`
	ThreadID        string `json:"thread_id"`

	Subject        string     `json:"subject"`
	FromName       *string    `json:"from_name"`
	FromEmail      *string    `json:"from_email"`
	To             string     `json:"to"`
	Date           *time.Time `json:"date"`
	Body           string     `json:"body" gorm:"type:text"`
	Snippet        string     `json:"snippet"`
	Labels         Labels     `json:"labels" gorm:"serializer:json"`
	IsUnread       bool       `json:"is_unread"`
	IsStarred      bool       `json:"is_starred"`
	HasAttachments bool       `json:"has_attachments"`
	IsArchived     bool       `json:"is_archived"`
	InternalDate   *time.Time `json:"internal_date"`

	// AI enrichment results. Each field is independently nullable so a retry
	// only has to fill in what is still missing.
	CategoryID             *string `json:"category_id" gorm:"index"`
	AISummary              *string `json:"ai_summary" gorm:"type:text"`
	IsUnsubscribeAvailable *bool   `json:"is_unsubscribe_available"`
	UnsubscribeURL         *string `json:"unsubscribe_url"`

	// Enrichment workflow state.
	Status       string     `json:"status" gorm:"index"`
	FailedReason *string    `json:"failed_reason"`
	ProcessedAt  *time.Time `json:"processed_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Category *Category `json:"category,omitempty" gorm:"constraint:OnDelete:SET NULL"`
}

func (Email) TableName() string {
	return "emails"
}

// HasCategory reports whether AI categorization already ran and assigned one.
func (e *Email) HasCategory() bool {
	return e.CategoryID != nil
}

// HasSummary reports whether an AI summary is present.
func (e *Email) HasSummary() bool {
	return e.AISummary != nil && *e.AISummary != ""
}

// HasUnsubscribeCheck reports whether unsubscribe detection already ran.
// The field is tri-state: nil means never checked, false means checked and absent.
func (e *Email) HasUnsubscribeCheck() bool {
	return e.IsUnsubscribeAvailable != nil
}

// FullyEnriched reports whether every AI field has been filled in.
func (e *Email) FullyEnriched() bool {
	return e.HasCategory() && e.HasSummary() && e.HasUnsubscribeCheck()
}

// EnrichmentContent returns the text submitted to the AI service, body first
// with the snippet as fallback, truncated to stay inside model token limits.
// The cut lands on a rune boundary so the payload stays valid UTF-8.
func (e *Email) EnrichmentContent() string {
	content := e.Body
	if content == "" {
		content = e.Snippet
	}
	const maxContentLength = 4000
	if len(content) > maxContentLength {
		cut := maxContentLength
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut] + "..."
	}
	return content
}
