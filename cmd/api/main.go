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

	"price-discovery/internal/api"
	"price-discovery/internal/core/ai/service"
	"price-discovery/internal/core/cache"
	"price-discovery/internal/core/fetch"
	"price-discovery/internal/core/market"
	"price-discovery/internal/core/matching"
	"price-discovery/internal/infrastructure/config"
	"price-discovery/internal/infrastructure/events"
	"price-discovery/internal/pkg/common"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// 載入 .env
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化 logger（需在載入 config 後）
	if err := common.InitLogger(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	common.LogInfo("載入設定",
		zap.String("search_url", cfg.Scraper.SearchURL),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.Bool("render_enabled", cfg.Render.Enabled),
		zap.String("openrouter_model", cfg.OpenRouter.Model),
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 初始化快取；停用時為 nil，各層皆可接受
	cacheManager, err := cache.NewFromConfig(ctx, cfg)
	if err != nil {
		common.LogFatal("Failed to initialize cache manager", zap.Error(err))
	}
	defer cacheManager.Close()
	cacheManager.StartCleanup(ctx, cfg.Cache.CleanupInterval)

	fetcher := fetch.NewFromConfig(cfg)
	catalog := market.NewClientFromConfig(cfg, fetcher, cacheManager)

	aiService := service.NewFromConfig(cfg, cacheManager)
	defer aiService.Close()

	pipeline := matching.NewFromConfig(cfg, catalog, aiService, cacheManager)
	batcher := matching.NewBatcherFromConfig(cfg, pipeline)

	publisher, err := events.NewFromConfig(ctx, cfg, cacheManager.RedisClient())
	if err != nil {
		common.LogWarn("Match events fall back to log output", zap.Error(err))
		publisher = events.LogPublisher{}
	}
	defer publisher.Close()

	router, err := api.SetupRouter(cfg, api.Dependencies{
		Cache:     cacheManager,
		Catalog:   catalog,
		Matcher:   pipeline,
		Batch:     batcher,
		AI:        aiService,
		Publisher: publisher,
	})
	if err != nil {
		common.LogError("Failed to setup router", zap.Error(err))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		common.LogInfo("啟動應用",
			zap.String("version", cfg.App.Version),
			zap.String("env", cfg.App.Env),
			zap.Int("port", cfg.Server.Port),
			zap.Bool("debug", cfg.App.Debug),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			common.LogFatal("Failed to start server", zap.Error(err))
		}
	}()

	// 等待中斷信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	common.LogInfo("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		common.LogError("Server forced to shutdown", zap.Error(err))
	}

	common.LogInfo("Server exited")
}
