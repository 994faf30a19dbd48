package web

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/powerfulqa/aszune-ai-bot-sub000/cache"
	"github.com/powerfulqa/aszune-ai-bot-sub000/chat"
	"github.com/powerfulqa/aszune-ai-bot-sub000/config"
	"github.com/powerfulqa/aszune-ai-bot-sub000/database"
	"github.com/powerfulqa/aszune-ai-bot-sub000/web/handlers"
	"go.uber.org/zap"
)

// Server hosts the admin API consumed by the dashboard.
type Server struct {
	router *gin.Engine
	logger *zap.Logger
	config *config.Config
}

func NewServer(cfg *config.Config, store *cache.Store, persister *cache.Persister, maintainer *cache.Maintainer, chatSvc *chat.Service, db *database.PostgresStore, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	server := &Server{
		router: router,
		logger: logger,
		config: cfg,
	}

	admin := handlers.NewAdminHandler(store, persister, maintainer, chatSvc, db, logger)

	api := router.Group("/api")
	{
		api.GET("/stats", admin.Stats)
		api.GET("/cache/records", admin.Records)
		api.POST("/cache/flush", admin.Flush)
		api.POST("/cache/maintain", admin.MaintainNow)
		api.POST("/ask", admin.Ask)
		api.GET("/conversations", admin.Conversations)
	}

	return server
}

func (s *Server) Start(ctx context.Context, addr string) error {
	s.logger.Info("Starting admin server", zap.String("address", addr))

	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Admin server failed to start", zap.Error(err))
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()

	s.logger.Info("Shutting down admin server")
	return srv.Shutdown(context.Background())
}
