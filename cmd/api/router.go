// Package api composes the HTTP surface: router, middleware, and handlers.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/RoxasZohbi/inboxPilot/internal/email/delivery"
	"github.com/RoxasZohbi/inboxPilot/internal/email/usecase"
)

// NewRouter builds the gin engine with all routes registered.
func NewRouter(svc *usecase.Service, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(delivery.CORSMiddleware())

	handler := delivery.NewHandler(svc, log)

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		authed := api.Group("")
		authed.Use(delivery.IdentityMiddleware())
		{
			authed.POST("/sync", handler.StartSyncAll)

			accounts := authed.Group("/accounts")
			{
				accounts.GET("", handler.ListAccounts)
				accounts.POST("/:id/sync", handler.StartAccountSync)
				accounts.GET("/:id/sync/status", handler.SyncStatus)
				accounts.POST("/:id/primary", handler.MakePrimary)
			}

			emails := authed.Group("/emails")
			{
				emails.GET("", handler.ListEmails)
				emails.POST("/process-pending", handler.ProcessPending)
				emails.GET("/:id", handler.GetEmail)
				emails.DELETE("/:id", handler.DeleteEmail)
			}

			categories := authed.Group("/categories")
			{
				categories.GET("", handler.ListCategories)
				categories.POST("", handler.CreateCategory)
				categories.PUT("/:id", handler.UpdateCategory)
				categories.DELETE("/:id", handler.DeleteCategory)
			}
		}
	}

	return r
}
