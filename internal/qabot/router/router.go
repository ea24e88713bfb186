// Package router provides qabot service routing.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/qabot/internal/qabot/handler"
)

// Register registers the qabot service routes.
func Register(engine *gin.Engine, h *handler.QABotHandler) {
	api := engine.Group("/api")
	{
		api.POST("/chat", h.Chat)
		api.GET("/health", h.Health)
		api.GET("/stats", h.Stats)

		api.POST("/webhooks/sheets-update", h.SyncWebhook)

		admin := api.Group("/admin")
		{
			admin.POST("/reindex", h.Reindex)
		}
	}

	logger.Info("HTTP routes registered")
}
