package main

import (
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/forgechat/backend/internal/config"
	"github.com/forgechat/backend/internal/data/db"
	appRepo "github.com/forgechat/backend/internal/data/repos/app"
	chatRepo "github.com/forgechat/backend/internal/data/repos/chat"
	memoryRepo "github.com/forgechat/backend/internal/data/repos/memory"
	userRepo "github.com/forgechat/backend/internal/data/repos/user"
	httpserver "github.com/forgechat/backend/internal/http"
	"github.com/forgechat/backend/internal/http/handlers"
	"github.com/forgechat/backend/internal/http/middleware"
	"github.com/forgechat/backend/internal/platform/envutil"
	"github.com/forgechat/backend/internal/platform/logger"
	"github.com/forgechat/backend/internal/platform/openai"
	"github.com/forgechat/backend/internal/platform/rediscache"
	"github.com/forgechat/backend/internal/services"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	cfg := config.Load(log)
	driver := envutil.GetEnv("DB_DRIVER", "postgres", log)
	jwtSecret := envutil.GetEnv("AUTH_JWT_SECRET", "", log)
	corsOrigins := envutil.GetEnv("CORS_ALLOW_ORIGINS", "", log)

	// Store. A failed connection disables personalization instead of
	// stopping the process: the chat surface still works without memory.
	var store *gorm.DB
	switch driver {
	case "sqlite":
		sqliteService, err := db.NewSQLiteService(log)
		if err != nil {
			log.Warn("SQLite init failed, personalization disabled", "error", err)
			break
		}
		if err := sqliteService.AutoMigrateAll(); err != nil {
			log.Warn("SQLite auto migration failed, personalization disabled", "error", err)
			break
		}
		store = sqliteService.DB()
	default:
		postgresService, err := db.NewPostgresService(log)
		if err != nil {
			log.Warn("Postgres init failed, personalization disabled", "error", err)
			break
		}
		if err := postgresService.AutoMigrateAll(); err != nil {
			log.Warn("Postgres auto migration failed, personalization disabled", "error", err)
			break
		}
		store = postgresService.DB()
	}

	// Repos
	log.Info("Setting up Repos from main...")
	users := userRepo.NewUserRepo(store, log)
	apps := appRepo.NewAppRepo(store, log)
	embeddings := memoryRepo.NewEmbeddingRepo(store, log)
	toolExecs := memoryRepo.NewToolExecutionRepo(store, log)
	persistent := memoryRepo.NewPersistentRepo(store, log)
	sessions := chatRepo.NewSessionRepo(store, log)
	messages := chatRepo.NewMessageRepo(store, log)

	// Embedding client
	embedder, err := openai.NewClient(log)
	if err != nil {
		log.Warn("Embedding client init failed", "error", err)
	}

	// Optional embedding cache
	var cache services.EmbeddingCache
	if redisCache, err := rediscache.New(log); err != nil {
		log.Warn("Redis cache unavailable, embedding without cache", "error", err)
	} else if redisCache != nil {
		defer redisCache.Close()
		cache = redisCache
	}

	// Services
	log.Info("Setting up Services from main...")
	personalization := services.NewPersonalizationService(
		store, log, cfg,
		users, apps, embeddings, toolExecs, persistent, sessions, messages,
		embedder, cache,
	)

	// Handlers
	log.Info("Setting up Handlers from main...")
	healthHandler := handlers.NewHealthHandler(personalization, embedder)
	memoryHandler := handlers.NewMemoryHandler(log, personalization)
	chatHandler := handlers.NewChatHandler(log, personalization)
	appsHandler := handlers.NewAppsHandler(log, personalization)

	var authMiddleware *middleware.AuthMiddleware
	if jwtSecret != "" {
		authMiddleware = middleware.NewAuthMiddleware(log, jwtSecret)
	}

	// Server
	srv := httpserver.NewServer(httpserver.RouterConfig{
		CORSAllowOrigins: corsOrigins,
		AuthMiddleware:   authMiddleware,
		HealthHandler:    healthHandler,
		MemoryHandler:    memoryHandler,
		ChatHandler:      chatHandler,
		AppsHandler:      appsHandler,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Info("Starting server", "addr", addr, "personalization", personalization.IsEnabled())
	if err := srv.Run(addr); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
