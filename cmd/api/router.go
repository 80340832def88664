package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	chatChannel "taskpilot-backend/internal/channel/chat"
	emailChannel "taskpilot-backend/internal/channel/email"
	taskDelivery "taskpilot-backend/internal/task/delivery"
	"taskpilot-backend/pkg/config"
)

func SetupRoutes(r *gin.Engine, cfg *config.Config, emailHandler *emailChannel.Handler, chatHandler *chatChannel.Handler, taskHandler *taskDelivery.TaskHandler) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Inbound channel webhooks
		webhooks := api.Group("/webhooks")
		{
			webhooks.POST("/email", emailHandler.HandleInbound)

			chat := webhooks.Group("")
			chat.Use(chatChannel.RelayAuthMiddleware(cfg.ChatRelaySecret, cfg.ChatBotUserID))
			{
				chat.POST("/chat", chatHandler.HandleMention)
			}
		}

		// Task read/update surface
		api.GET("/organizations/:orgId/tasks", taskHandler.GetTasks)
		tasks := api.Group("/tasks")
		{
			tasks.GET("/:id", taskHandler.GetTaskByID)
			tasks.GET("/:id/activity", taskHandler.GetTaskActivity)
			tasks.PATCH("/:id", taskHandler.UpdateTask)
		}
	}
}
