package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"founder-llm-backend/internal/config"
	"founder-llm-backend/internal/database"
	"founder-llm-backend/internal/handlers"
	"founder-llm-backend/internal/llm"
	"founder-llm-backend/internal/logger"
	"founder-llm-backend/internal/middleware"
	"founder-llm-backend/internal/repository"
	"founder-llm-backend/internal/router"
	"founder-llm-backend/internal/services"
	"founder-llm-backend/internal/storage"
	"founder-llm-backend/internal/websocket"
	"founder-llm-backend/internal/worker"
)

func main() {
	log, err := logger.New(os.Getenv("ENV"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting founder-llm-backend")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ──── Step 1: Load Environment Variables ────
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", "error", err)
	}
	log.Info("✓ configuration loaded", "env", cfg.Env, "provider", cfg.LLMProvider, "storage", cfg.StorageType)

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("PostgreSQL connection failed", "error", err)
	}
	defer pool.Close()
	log.Info("✓ PostgreSQL connected")

	// ──── Step 3: Run Database Migrations ────
	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database migration failed", "error", err)
	}
	log.Info("✓ database migrations applied", "version", version)

	// ──── Step 4: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatal("Redis connection failed", "error", err)
	}
	defer redisClients.Close()
	log.Info("✓ Redis connected")

	// ──── Initialize Repositories ────
	chatRepo := repository.NewChatRepo(pool)
	messageRepo := repository.NewMessageRepo(pool)
	fileRepo := repository.NewFileRepo(pool)
	chunkRepo := repository.NewChunkRepo(pool)
	adminRepo := repository.NewAdminRepo(pool)

	// ──── Step 5: Initialize Object Storage ────
	store, closeStore, err := newObjectStore(ctx, cfg)
	if err != nil {
		log.Fatal("object storage initialization failed", "error", err)
	}
	defer closeStore()
	log.Info("✓ object storage ready", "type", cfg.StorageType)

	// ──── Step 6: Initialize Model Provider ────
	provider, closeProvider, err := newProvider(ctx, cfg)
	if err != nil {
		log.Fatal("model provider initialization failed", "error", err)
	}
	defer closeProvider()
	log.Info("✓ model provider initialized", "provider", provider.Name())

	// ──── Initialize Services ────
	relay := services.NewChatRelay(chatRepo, messageRepo, fileRepo, chunkRepo, provider, services.RelayConfig{
		HistoryMaxTurns: cfg.HistoryMaxTurns,
		ContextMaxChars: cfg.ContextMaxChars,
		StreamTimeout:   cfg.LLMStreamTimeout,
	}, log)
	ingestion := services.NewIngestionService(
		fileRepo,
		chunkRepo,
		store,
		services.NewFileExtractService(),
		services.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		log,
	)
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret, cfg.JWTAudience)

	// ──── Step 7: Start Ingestion Worker Pool ────
	queue := worker.NewQueue(redisClients.Queue)
	workerPool := worker.NewPool(redisClients.Queue, queue, ingestion, cfg.WorkerCount, log)
	workerPool.Start(ctx)
	log.Info("✓ worker pool started", "workers", cfg.WorkerCount)

	// ──── Step 8: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth, cfg.AllowedOrigins, log)
	log.Info("✓ WebSocket hub started")

	// ──── Step 9: Start HTTP Server ────
	if cfg.AdminKeyHash == "" {
		log.Warn("ADMIN_KEY_HASH is empty; admin routes are disabled")
	}

	r := router.New(router.Deps{
		JWTAuth:        jwtAuth,
		MessageLimiter: middleware.NewRateLimiter(ctx, cfg.MessageRateLimit, time.Minute),
		AdminKeyHash:   cfg.AdminKeyHash,
		AllowedOrigins: cfg.AllowedOrigins,
		Health:         handlers.NewHealthHandler(pool, redisClients, provider.Name()),
		Chat:           handlers.NewChatHandler(chatRepo, messageRepo, fileRepo, store, relay, log),
		File:           handlers.NewFileHandler(fileRepo, chunkRepo, chatRepo, store, queue, cfg.MaxUploadBytes, log),
		Admin:          handlers.NewAdminHandler(adminRepo, chatRepo, fileRepo, messageRepo, log),
		WSHub:          wsHub,
	})

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 60 * time.Second,
		// Streams may run for the full model timeout.
		WriteTimeout: cfg.LLMStreamTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
		wsHub.Close()
		workerPool.Stop()
	}()

	log.Info("✓ founder-llm-backend ready",
		"api", fmt.Sprintf("http://localhost:%s/v1", cfg.Port),
		"ws", fmt.Sprintf("ws://localhost:%s/v1/ws", cfg.Port),
	)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", "error", err)
	}
	<-shutdownDone
	log.Info("shutdown complete")
}

func newObjectStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, func(), error) {
	switch cfg.StorageType {
	case "gcs":
		gcs, err := storage.NewGCSStore(ctx, cfg.StorageBucket)
		if err != nil {
			return nil, nil, err
		}
		return gcs, func() { gcs.Close() }, nil
	default:
		local, err := storage.NewLocalStore(cfg.StoragePath)
		if err != nil {
			return nil, nil, err
		}
		return local, func() {}, nil
	}
}

func newProvider(ctx context.Context, cfg *config.Config) (llm.Provider, func(), error) {
	switch cfg.LLMProvider {
	case "openai":
		p := llm.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, llm.Options{
			Model:       cfg.ModelID,
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
		})
		return p, func() {}, nil
	default:
		p, err := llm.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiConcurrentReqs, llm.Options{
			Model:       cfg.GeminiModel,
			Temperature: cfg.LLMTemperature,
			MaxTokens:   cfg.LLMMaxTokens,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, func() { p.Close() }, nil
	}
}
