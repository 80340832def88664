package api

import (
	"github.com/gin-gonic/gin"

	chatChannel "taskpilot-backend/internal/channel/chat"
	emailChannel "taskpilot-backend/internal/channel/email"
	taskDelivery "taskpilot-backend/internal/task/delivery"
	"taskpilot-backend/pkg/config"
)

// Handler owns the HTTP surface: channel webhooks plus the task API.
type Handler struct {
	config       *config.Config
	emailHandler *emailChannel.Handler
	chatHandler  *chatChannel.Handler
	taskHandler  *taskDelivery.TaskHandler
}

func NewHandler(cfg *config.Config, emailHandler *emailChannel.Handler, chatHandler *chatChannel.Handler, taskHandler *taskDelivery.TaskHandler) *Handler {
	return &Handler{
		config:       cfg,
		emailHandler: emailHandler,
		chatHandler:  chatHandler,
		taskHandler:  taskHandler,
	}
}

func (h *Handler) Start(addr string) error {
	r := gin.Default()
	gin.SetMode(gin.ReleaseMode)

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.config, h.emailHandler, h.chatHandler, h.taskHandler)

	return r.Run(addr)
}
