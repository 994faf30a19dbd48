package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/powerfulqa/aszune-ai-bot-sub000/cache"
	"github.com/powerfulqa/aszune-ai-bot-sub000/chat"
	"github.com/powerfulqa/aszune-ai-bot-sub000/config"
	"github.com/powerfulqa/aszune-ai-bot-sub000/database"
	"github.com/powerfulqa/aszune-ai-bot-sub000/llmclient"
	"github.com/powerfulqa/aszune-ai-bot-sub000/web"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	// Initialize logger with default level to load config
	tempLogger, err := config.InitLogger("info")
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Load config (which includes log level setting)
	cfg := config.Load(tempLogger)

	// Re-initialize logger with configured level
	logger, err := config.InitLogger(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to re-initialize logger with configured level: %v\n", err)
		os.Exit(1)
	}
	defer config.Cleanup()

	// Conversation log is optional; the bot runs cache-only without it.
	var db *database.PostgresStore
	if cfg.DatabaseURL != "" {
		db, err = database.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to ensure database schema", zap.Error(err))
		}
	} else {
		logger.Warn("DATABASE_URL not set, conversation logging disabled")
	}

	store := cache.NewStore(cache.Config{
		MaxSize:             cfg.CacheMaxSize,
		HighWater:           cfg.CacheHighWater,
		TargetSize:          cfg.CacheTargetSize,
		SimilarityThreshold: cfg.CacheSimilarityThreshold,
		StalenessAge:        cfg.CacheStalenessAge,
		FastPathSize:        cfg.CacheFastPathSize,
		MaxQuestionLength:   cfg.CacheMaxQuestionLength,
		DuplicateWindow:     cfg.CacheDuplicateWindow,
	}, logger)

	persister := cache.NewPersister(store, cfg.CacheFile, logger)
	if err := persister.Load(); err != nil {
		logger.Warn("Cache load failed, starting with empty cache", zap.Error(err))
	}

	maintainer := cache.NewMaintainer(store, persister, cfg.MaintenanceInterval, cfg.FlushMinInterval, logger)

	llm := llmclient.New(cfg, logger)
	chatService := chat.NewService(cfg, store, llm, db, maintainer, logger)

	// Create context that listens for interrupt signals
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go maintainer.Run(ctx)

	if db != nil {
		go chat.RunReminderLoop(ctx, db, cfg.ReminderPollInterval, func(ctx context.Context, reminder database.Reminder) error {
			// Message transport delivery hook; log-only until the bot
			// frontend is wired in.
			logger.Info("Reminder due",
				zap.String("user_id", reminder.UserID),
				zap.String("message", reminder.Message))
			return nil
		}, logger)
	}

	webServer := web.NewServer(cfg, store, persister, maintainer, chatService, db, logger)

	port := fmt.Sprintf(":%d", cfg.WebPort)
	logger.Info("Starting Aszune AI admin server", zap.String("port", port))
	if err := webServer.Start(ctx, port); err != nil {
		logger.Error("Web server error", zap.Error(err))
	}

	// The maintainer also flushes on shutdown, but it may not get scheduled
	// before the process exits; flush-if-dirty is idempotent.
	if err := persister.Flush(); err != nil {
		logger.Error("Shutdown cache flush failed", zap.Error(err))
	}
}
