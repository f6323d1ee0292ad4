package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/talkform/talkform-backend/internal/http/handlers"
	httpMW "github.com/talkform/talkform-backend/internal/http/middleware"
)

type RouterConfig struct {
	ChatHandler   *httpH.ChatHandler
	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		if cfg.ChatHandler != nil {
			api.POST("/forms/:formId/chat", cfg.ChatHandler.Chat)
			api.POST("/forms/:formId/chat/restore", cfg.ChatHandler.Restore)
		}
	}

	return r
}
