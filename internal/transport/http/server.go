package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"swissknife-chat/internal/ai"
	appsvc "swissknife-chat/internal/app"
	"swissknife-chat/internal/bootstrap"
	"swissknife-chat/internal/cache"
	"swissknife-chat/internal/pkg/chunker"
	"swissknife-chat/internal/platform/rabbitmq"
	"swissknife-chat/internal/repository"
	"swissknife-chat/internal/transport/http/handler"
	"swissknife-chat/internal/transport/http/middleware"
	"swissknife-chat/internal/vectorstore"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestID(), gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	cfg := app.Config
	userRepo := repository.NewUserRepository(app.MySQL)
	conversationRepo := repository.NewConversationRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)
	passageRepo := repository.NewPassageRepository(app.MySQL)

	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	publisher := rabbitmq.NewMessagePublisher(app.MQConn, cfg.RabbitMQ.MessagePersistQueue)

	aiClient := ai.NewOpenAICompatibleClient()
	chatCfg := ai.ChatConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	}
	embeddingCfg := ai.EmbeddingConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.EmbeddingModel,
	}

	store := vectorstore.New(passageRepo)
	splitter := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)

	authService := appsvc.NewAuthService(
		userRepo,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)
	conversationService := appsvc.NewConversationService(conversationRepo, messageRepo, passageRepo, historyCache)
	searchService := appsvc.NewSearchService(
		aiClient,
		store,
		embeddingCfg,
		cfg.RAG.TopK,
		float32(cfg.RAG.SimilarityThreshold),
	)
	chatService := appsvc.NewChatService(
		conversationRepo,
		messageRepo,
		publisher,
		historyCache,
		aiClient,
		searchService,
		chatCfg,
		cfg.LLM.MaxContextMessage,
		cfg.RAG.MaxToolSteps,
	)
	ingestService := appsvc.NewIngestService(
		aiClient,
		store,
		splitter,
		embeddingCfg,
		cfg.RAG.EmbeddingBatchSize,
		cfg.RAG.MaxUploadBytes,
	)
	memoryService := appsvc.NewMemoryService(
		conversationRepo,
		messageRepo,
		aiClient,
		aiClient,
		store,
		chatCfg,
		embeddingCfg,
		cfg.LLM.MaxContextMessage,
	)

	authHandler := handler.NewAuthHandler(authService)
	conversationHandler := handler.NewConversationHandler(conversationService)
	chatHandler := handler.NewChatHandler(chatService)
	ingestHandler := handler.NewIngestHandler(ingestService, cfg.RAG.MaxUploadBytes)
	memoryHandler := handler.NewMemoryHandler(memoryService)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(cfg.Auth.JWTSecret), authHandler.Me)

	authed := v1.Group("")
	authed.Use(middleware.AuthJWT(cfg.Auth.JWTSecret))

	chatGroup := authed.Group("/chat")
	chatGroup.POST("/conversations", conversationHandler.Create)
	chatGroup.GET("/conversations", conversationHandler.List)
	chatGroup.PATCH("/conversations/:id", conversationHandler.Rename)
	chatGroup.DELETE("/conversations/:id", conversationHandler.Delete)
	chatGroup.GET("/history", chatHandler.GetHistory)
	chatGroup.POST("/messages", chatHandler.SendMessage)
	chatGroup.POST("/stream", chatHandler.StreamMessage)
	chatGroup.POST("/pin", memoryHandler.Pin)

	documents := authed.Group("/documents")
	documents.POST("/upload", ingestHandler.Upload)

	return router
}
