package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"vidanalyzer/analyzer"
	"vidanalyzer/config"
	"vidanalyzer/datasync"
	"vidanalyzer/downloader"
	"vidanalyzer/pipeline"
	"vidanalyzer/queue"
	"vidanalyzer/storage"
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

	videoStorage := storage.NewService(cfg.VideoDir, cfg.FileRetention, cfg.ThrottleFreeDisk, logger)
	if err := videoStorage.EnsureDir(); err != nil {
		logger.Fatal("create video directory failed", zap.Error(err))
	}

	dl := downloader.New(downloader.Options{
		Dir:     cfg.VideoDir,
		MaxSize: cfg.MaxVideoSize,
		Timeout: cfg.DownloadTimeout,
	}, videoStorage, logger)

	gemini := analyzer.New(analyzer.Config{
		APIKey:       cfg.GeminiAPIKey,
		Model:        cfg.GeminiModel,
		BaseURL:      cfg.GeminiBaseURL,
		Timeout:      cfg.AnalysisTimeout,
		MaxVideoSize: cfg.MaxVideoSize,
	}, logger)

	feishu := datasync.NewFeishuSyncer(datasync.FeishuConfig{
		AppID:     cfg.FeishuAppID,
		AppSecret: cfg.FeishuAppSecret,
		AppToken:  cfg.FeishuBitableToken,
		TableID:   cfg.FeishuBitableTable,
		Timeout:   cfg.SyncTimeout,
	}, logger)

	notion := datasync.NewNotionSyncer(datasync.NotionConfig{
		APIKey:     cfg.NotionAPIKey,
		DatabaseID: cfg.NotionDatabaseID,
		Timeout:    cfg.SyncTimeout,
	}, logger)

	orch := pipeline.NewOrchestrator(pipeline.Options{
		Store:      taskStore,
		Downloader: dl,
		Analyzer:   gemini,
		Feishu:     feishu,
		Notion:     notion,
		Notifier:   pipeline.NewCallbackNotifier(cfg.CallbackTimeout, logger),
		Timeouts: pipeline.Timeouts{
			Download: cfg.DownloadTimeout,
			Analysis: cfg.AnalysisTimeout,
			Sync:     cfg.SyncTimeout,
		},
		Logger: logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go videoStorage.SweepLoop(ctx, cfg.SweepInterval)

	srv := queue.NewServer(cfg, logger)
	mux := queue.NewMux(orch, logger)

	logger.Info("worker starting",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.String("redis", cfg.RedisAddr))
	if err := srv.Start(mux); err != nil {
		logger.Fatal("worker server failed", zap.Error(err))
	}

	<-ctx.Done()
	stop()
	logger.Info("shutting down worker")
	srv.Shutdown()
	logger.Info("worker exiting")
}
