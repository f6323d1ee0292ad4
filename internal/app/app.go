package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	redisclient "github.com/talkform/talkform-backend/internal/clients/redis"
	"github.com/talkform/talkform-backend/internal/data/repos"
	"github.com/talkform/talkform-backend/internal/db"
	httpapi "github.com/talkform/talkform-backend/internal/http"
	httpH "github.com/talkform/talkform-backend/internal/http/handlers"
	"github.com/talkform/talkform-backend/internal/jobs"
	"github.com/talkform/talkform-backend/internal/pkg/logger"
	"github.com/talkform/talkform-backend/internal/pkg/turnlock"
	"github.com/talkform/talkform-backend/internal/platform/grok"
	"github.com/talkform/talkform-backend/internal/platform/openai"
	"github.com/talkform/talkform-backend/internal/services"
	"github.com/talkform/talkform-backend/internal/session"
)

type Services struct {
	Conversations services.ConversationService
	Forms         services.FormService
	Tools         services.ToolExecutor
	Chat          services.ChatService
	Scheduler     *services.SummaryScheduler
}

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    repos.Set
	Services Services
	Reaper   *jobs.Reaper
	cache    redisclient.FormCache
	cancel   context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg := LoadConfig(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	cache, err := redisclient.NewFormCache(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	toolModel, err := openai.NewClient(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init tool model client: %w", err)
	}
	streamModel, err := grok.NewClient(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init stream model client: %w", err)
	}

	sessions, err := session.NewCodec(cfg.JWTSecretKey, cfg.SessionTTL)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init session codec: %w", err)
	}

	reposet := repos.NewSet(theDB, log)

	conversationService := services.NewConversationService(
		theDB, reposet.Conversations, reposet.Messages, reposet.FormResponses, toolModel, log)
	formService := services.NewFormService(
		reposet.Forms, reposet.Conversations, reposet.FormResponses, cache, toolModel, log)
	scheduler := services.NewSummaryScheduler(conversationService, formService, log)
	toolExecutor := services.NewToolExecutor(
		theDB, conversationService, reposet.Conversations, reposet.FormResponses,
		reposet.QuestionResponses, reposet.Users, scheduler, log)
	chatService := services.NewChatService(
		formService, conversationService, reposet.Users, toolExecutor,
		toolModel, streamModel, sessions, turnlock.NewRegistry(),
		cfg.StreamTimeout, cfg.ToolPassTimeout, log)

	reaper := jobs.NewReaper(conversationService, scheduler, cfg.ReaperInterval, cfg.StaleAfter, log)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		ChatHandler:   httpH.NewChatHandler(chatService),
		HealthHandler: httpH.NewHealthHandler(),
	})

	return &App{
		Log:    log,
		DB:     theDB,
		Router: router,
		Cfg:    cfg,
		Repos:  reposet,
		Services: Services{
			Conversations: conversationService,
			Forms:         formService,
			Tools:         toolExecutor,
			Chat:          chatService,
			Scheduler:     scheduler,
		},
		Reaper: reaper,
		cache:  cache,
	}, nil
}

func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Reaper != nil {
		a.Reaper.Start(ctx)
	}
}

func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services.Chat != nil {
		a.Services.Chat.WaitIdle()
	}
	if a.Services.Scheduler != nil {
		a.Services.Scheduler.WaitIdle()
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.Log.Warn("Closing redis failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
