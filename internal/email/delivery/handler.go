package delivery

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/RoxasZohbi/inboxPilot/internal/email/domain"
	"github.com/RoxasZohbi/inboxPilot/internal/email/dto"
	"github.com/RoxasZohbi/inboxPilot/internal/email/repository"
	"github.com/RoxasZohbi/inboxPilot/internal/email/usecase"
)

// Handler exposes the sync pipeline and its surrounding CRUD over HTTP.
type Handler struct {
	svc *usecase.Service
	log *zap.Logger
}

func NewHandler(svc *usecase.Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func userID(c *gin.Context) string {
	return c.GetString("userID")
}

// writeError maps domain errors onto HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrSyncAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrDuplicateName), errors.Is(err, domain.ErrInvalidPriority):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNoRefreshToken), errors.Is(err, domain.ErrReauthRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// StartAccountSync begins a sync cycle for one account.
// POST /api/accounts/:id/sync
func (h *Handler) StartAccountSync(c *gin.Context) {
	accountID := c.Param("id")
	if err := h.svc.StartSync(c.Request.Context(), userID(c), accountID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.SyncStartedResponse{
		Message:   "sync started",
		AccountID: accountID,
	})
}

// StartSyncAll begins a sync cycle for every connected account.
// POST /api/sync
func (h *Handler) StartSyncAll(c *gin.Context) {
	results, err := h.svc.StartSyncAll(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.SyncAllResponse{Results: results})
}

// SyncStatus returns the progress record for one account, idle if none.
// GET /api/accounts/:id/sync/status
func (h *Handler) SyncStatus(c *gin.Context) {
	progress, err := h.svc.SyncStatus(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// ProcessPending enqueues enrichment for every pending email of the caller.
// POST /api/emails/process-pending
func (h *Handler) ProcessPending(c *gin.Context) {
	queued, err := h.svc.ProcessPending(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.ProcessPendingResponse{Queued: queued})
}

// ListEmails lists the caller's emails with optional filters.
// GET /api/emails
func (h *Handler) ListEmails(c *gin.Context) {
	var query dto.EmailListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	emails, err := h.svc.ListEmails(userID(c), repository.EmailFilter{
		CategoryID:      query.CategoryID,
		Unread:          query.Unread,
		Starred:         query.Starred,
		WithAttachments: query.WithAttachments,
		UnsubscribeOnly: query.UnsubscribeOnly,
		Status:          query.Status,
		Limit:           query.Limit,
		Offset:          query.Offset,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.EmailsResponse{
		Emails: emails,
		Limit:  query.Limit,
		Offset: query.Offset,
	})
}

// GetEmail returns one email with its category preloaded.
// GET /api/emails/:id
func (h *Handler) GetEmail(c *gin.Context) {
	email, err := h.svc.GetEmail(userID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, email)
}

// DeleteEmail soft-deletes one email.
// DELETE /api/emails/:id
func (h *Handler) DeleteEmail(c *gin.Context) {
	if err := h.svc.DeleteEmail(userID(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "email deleted"})
}

// ListCategories lists the caller's categories, highest priority first.
// GET /api/categories
func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.svc.ListCategories(userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CategoriesResponse{Categories: categories})
}

// CreateCategory creates a category.
// POST /api/categories
func (h *Handler) CreateCategory(c *gin.Context) {
	var req dto.CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	category := &domain.Category{
		UserID:                 userID(c),
		Name:                   req.Name,
		Priority:               req.Priority,
		Description:            req.Description,
		ArchiveAfterProcessing: req.ArchiveAfterProcessing,
	}
	if err := h.svc.CreateCategory(category); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

// UpdateCategory updates a category.
// PUT /api/categories/:id
func (h *Handler) UpdateCategory(c *gin.Context) {
	var req dto.CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	category := &domain.Category{
		ID:                     c.Param("id"),
		UserID:                 userID(c),
		Name:                   req.Name,
		Priority:               req.Priority,
		Description:            req.Description,
		ArchiveAfterProcessing: req.ArchiveAfterProcessing,
	}
	if err := h.svc.UpdateCategory(category); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

// DeleteCategory deletes a category and detaches its emails.
// DELETE /api/categories/:id
func (h *Handler) DeleteCategory(c *gin.Context) {
	if err := h.svc.DeleteCategory(userID(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "category deleted"})
}

// ListAccounts lists the caller's connected accounts, primary first.
// GET /api/accounts
func (h *Handler) ListAccounts(c *gin.Context) {
	accounts, err := h.svc.ListAccounts(userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.AccountsResponse{Accounts: accounts})
}

// MakePrimary marks one account as the caller's primary account.
// POST /api/accounts/:id/primary
func (h *Handler) MakePrimary(c *gin.Context) {
	if err := h.svc.MakePrimaryAccount(userID(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "primary account updated"})
}
