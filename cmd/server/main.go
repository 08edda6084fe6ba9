package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/treshel/botboard/internal/classifier"
	"github.com/treshel/botboard/internal/pipeline"
	"github.com/treshel/botboard/internal/server"
	"github.com/treshel/botboard/internal/storage"
	"github.com/treshel/botboard/internal/voiceflow"
	"github.com/treshel/botboard/pkg/config"
	"github.com/treshel/botboard/pkg/retry"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage with an explicit lifecycle: opened here,
	// closed on shutdown.
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		store, err = storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// One retry policy shared by the Voiceflow client and the classifier
	policy := retry.DefaultPolicy()

	vfClient := voiceflow.NewClient(cfg.Voiceflow.BaseURL, policy, logger)

	clf := classifier.NewGPTClassifier(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.Model,
		cfg.OpenAI.MaxTokens,
		cfg.OpenAI.Temperature,
		policy,
		logger,
	)

	reconciler := pipeline.NewReconciler(vfClient, clf, store, pipeline.Options{
		BatchSize:   cfg.Pipeline.BatchSize,
		ItemDelay:   cfg.Pipeline.ItemDelay,
		BatchDelay:  cfg.Pipeline.BatchDelay,
		HistoryDays: cfg.Voiceflow.HistoryDays,
	}, logger)

	srv := server.New(store, reconciler, vfClient, cfg.Server.WebhookTimeout, logger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Handler(),
	}

	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
}
