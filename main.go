package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/adaptive-ed/assessment-engine/internal/cache"
	"github.com/adaptive-ed/assessment-engine/internal/config"
	"github.com/adaptive-ed/assessment-engine/internal/events"
	"github.com/adaptive-ed/assessment-engine/internal/handlers"
	"github.com/adaptive-ed/assessment-engine/internal/llm"
	"github.com/adaptive-ed/assessment-engine/internal/models"
	"github.com/adaptive-ed/assessment-engine/internal/repositories/postgres"
	"github.com/adaptive-ed/assessment-engine/internal/services"
	"github.com/adaptive-ed/assessment-engine/internal/utils"
	"github.com/adaptive-ed/assessment-engine/internal/validator"
	"github.com/adaptive-ed/assessment-engine/pkg"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	slogLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(slogLogger)
	logger := utils.NewSlogLogger(slogLogger)

	// Initialize database
	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize Redis (if configured)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = pkg.NewRedisClient(cfg)
		if err != nil {
			log.Printf("Warning: Failed to initialize Redis: %v", err)
		}
	}

	// Initialize repositories
	repo, err := postgres.NewRepositoryManager(postgres.RepositoryConfig{
		DB:          db,
		RedisClient: redisClient,
	})
	if err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}

	// Initialize LLM client (semantic grading and generation run on
	// fallbacks when no key is configured)
	var llmClient llm.Client
	if cfg.LLM.APIKey != "" {
		llmClient = llm.New(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model)
	} else {
		slogLogger.Warn("No LLM API key configured; semantic grading and generation disabled")
	}

	// Initialize event publisher
	var publisher events.EventPublisher
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		publisher, err = events.NewKafkaEventPublisher(strings.Split(brokers, ","), slogLogger)
		if err != nil {
			log.Fatalf("Failed to initialize Kafka publisher: %v", err)
		}
	} else {
		publisher = events.NewGoChannelEventPublisher(slogLogger)
	}

	// Initialize validator and services
	v := validator.NewBusinessValidator()
	serviceManager := services.NewServiceManager(repo, slogLogger, v, services.ServiceManagerConfig{
		LLMClient:         llmClient,
		CacheManager:      cache.NewCacheManager(redisClient),
		Publisher:         publisher,
		ProctorDefaults:   proctorDefaults(cfg),
		GradingTimeout:    cfg.GradingTimeout,
		GenerationTimeout: cfg.GenerationTimeout,
		NotesTimeout:      cfg.NotesTimeout,
		DedupWindow:       cfg.DedupWindow,
	})

	// Initialize handlers
	handlerManager := handlers.NewHandlerManager(serviceManager, logger)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handlers.SetupMiddleware(router, logger)
	handlerManager.SetupRoutes(router)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if err := serviceManager.Shutdown(ctx); err != nil {
		log.Printf("Failed to shutdown services: %v", err)
	}

	if redisClient != nil {
		redisClient.Close()
	}

	logger.Info("Server exited")
}

// proctorDefaults folds the environment overrides into the built-in defaults.
func proctorDefaults(cfg *config.Config) models.ProctorConfig {
	defaults := models.DefaultProctorConfig()
	defaults.AllowTabSwitchCount = cfg.Proctor.AllowTabSwitchCount
	defaults.RiskThreshold = cfg.Proctor.RiskThreshold
	return defaults
}
