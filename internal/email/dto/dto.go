package dto

import (
	"github.com/RoxasZohbi/inboxPilot/internal/email/domain"
	"github.com/RoxasZohbi/inboxPilot/internal/email/usecase"
)

type EmailsResponse struct {
	Emails []domain.Email `json:"emails"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type EmailListQuery struct {
	CategoryID      string `form:"category_id"`
	Unread          bool   `form:"unread"`
	Starred         bool   `form:"starred"`
	WithAttachments bool   `form:"with_attachments"`
	UnsubscribeOnly bool   `form:"unsubscribe_only"`
	Status          string `form:"status"`
	Limit           int    `form:"limit"`
	Offset          int    `form:"offset"`
}

type CategoryRequest struct {
	Name                   string `json:"name" binding:"required"`
	Priority               int    `json:"priority"`
	Description            string `json:"description"`
	ArchiveAfterProcessing bool   `json:"archive_after_processing"`
}

type CategoriesResponse struct {
	Categories []domain.Category `json:"categories"`
}

type AccountsResponse struct {
	Accounts []domain.GoogleAccount `json:"accounts"`
}

type SyncStartedResponse struct {
	Message   string `json:"message"`
	AccountID string `json:"account_id"`
}

type SyncAllResponse struct {
	Results []usecase.AccountSyncResult `json:"results"`
}

type ProcessPendingResponse struct {
	Queued int `json:"queued"`
}
