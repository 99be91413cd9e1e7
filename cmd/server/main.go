package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"vidanalyzer/analyzer"
	"vidanalyzer/api"
	"vidanalyzer/config"
	"vidanalyzer/queue"
	"vidanalyzer/script"
	"vidanalyzer/scriptgen"
	"vidanalyzer/task"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	taskStore := task.NewStore(rdb, cfg.TaskTTL)
	queueClient := queue.NewClient(cfg)
	defer queueClient.Close()

	gemini := analyzer.New(analyzer.Config{
		APIKey:       cfg.GeminiAPIKey,
		Model:        cfg.GeminiModel,
		BaseURL:      cfg.GeminiBaseURL,
		Timeout:      cfg.AnalysisTimeout,
		MaxVideoSize: cfg.MaxVideoSize,
	}, logger)

	scriptStore := script.NewStore(rdb, cfg.ScriptTTL)
	scriptService := script.NewService(scriptStore, taskStore,
		scriptgen.NewGenerator(gemini, logger), logger)

	h := api.NewHandler(taskStore, queueClient, scriptService, logger)
	router := api.SetupRouter(h, cfg)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}
