package http

import (
	"github.com/gin-gonic/gin"

	"github.com/forgechat/backend/internal/http/handlers"
	"github.com/forgechat/backend/internal/http/middleware"
)

type RouterConfig struct {
	CORSAllowOrigins string

	AuthMiddleware *middleware.AuthMiddleware

	HealthHandler *handlers.HealthHandler
	MemoryHandler *handlers.MemoryHandler
	ChatHandler   *handlers.ChatHandler
	AppsHandler   *handlers.AppsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(middleware.CORS(cfg.CORSAllowOrigins))
	if cfg.AuthMiddleware != nil {
		router.Use(cfg.AuthMiddleware.AttachIdentity())
	}

	router.GET("/healthcheck", cfg.HealthHandler.Health)

	api := router.Group("/api")
	{
		api.POST("/memory", cfg.MemoryHandler.Handle)

		api.GET("/chats", cfg.ChatHandler.ListSessions)
		api.POST("/chats", cfg.ChatHandler.CreateSession)
		api.GET("/chats/:id", cfg.ChatHandler.GetSession)
		api.POST("/chats/:id", cfg.ChatHandler.UpdateSession)
		api.POST("/chats/:id/messages", cfg.ChatHandler.AppendMessage)

		api.GET("/apps", cfg.AppsHandler.List)
		api.POST("/apps", cfg.AppsHandler.Create)
		api.DELETE("/apps/:id", cfg.AppsHandler.Delete)
	}

	return router
}
