package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"

	"github.com/playletworks/drama-api/billing"
	"github.com/playletworks/drama-api/common"
	"github.com/playletworks/drama-api/common/config"
	"github.com/playletworks/drama-api/common/graceful"
	"github.com/playletworks/drama-api/common/logger"
	"github.com/playletworks/drama-api/controller"
	"github.com/playletworks/drama-api/model"
	"github.com/playletworks/drama-api/pipeline"
	"github.com/playletworks/drama-api/policy"
	"github.com/playletworks/drama-api/router"
	"github.com/playletworks/drama-api/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	common.Init()
	logger.SetupLogger()
	logger.Logger.Info("drama-api started", zap.String("version", common.Version))

	if config.GinMode != "" {
		gin.SetMode(config.GinMode)
	} else if os.Getenv("GIN_MODE") != gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	model.InitDB()
	defer func() {
		if err := model.CloseDB(); err != nil {
			logger.Logger.Error("failed to close database", zap.Error(err))
		}
	}()
	if err := model.CreateRootAccountIfNeed(); err != nil {
		logger.Logger.Fatal("database init error", zap.Error(err))
	}

	if err := common.InitRedisClient(); err != nil {
		logger.Logger.Fatal("failed to initialize Redis", zap.Error(err))
	}

	if err := billing.LoadTierOverrides(); err != nil {
		logger.Logger.Fatal("failed to load tier overrides", zap.Error(err))
	}

	store, err := storage.NewFromConfig(ctx)
	if err != nil {
		logger.Logger.Fatal("failed to initialize artifact store", zap.Error(err))
	}

	// Wire the domain services.
	gate := policy.NewGate()
	quota := billing.NewEngine()
	registry := pipeline.NewRegistry(pipeline.NewBuiltinWorkers(store))
	engine := pipeline.NewEngine(registry, quota)
	coordinator := pipeline.NewCoordinator(gate, quota, engine)
	reporter := pipeline.NewReporter(registry)
	server := controller.NewServer(gate, quota, engine, coordinator, reporter, store)

	model.StartSnapshotPurger(ctx)
	logger.StartLogRetentionCleaner(ctx, 30, *common.LogDir)

	web := gin.New()
	web.RedirectTrailingSlash = false
	web.Use(gin.Recovery())
	router.SetRouter(web, server)

	port := config.ServerPort
	if port == "" {
		port = strconv.Itoa(*common.Port)
	}
	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           web,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Logger.Info("server started", zap.String("address", "http://localhost:"+port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error("http shutdown failed", zap.Error(err))
	}
	if err := graceful.Drain(shutdownCtx); err != nil {
		logger.Logger.Warn("drain incomplete", zap.Error(err))
	}
}
