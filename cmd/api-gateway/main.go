package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/pulse-metrics-api/api/swagger"
	"github.com/noah-isme/pulse-metrics-api/internal/handler"
	"github.com/noah-isme/pulse-metrics-api/internal/middleware"
	"github.com/noah-isme/pulse-metrics-api/internal/repository"
	"github.com/noah-isme/pulse-metrics-api/internal/service"
	"github.com/noah-isme/pulse-metrics-api/pkg/cache"
	"github.com/noah-isme/pulse-metrics-api/pkg/config"
	"github.com/noah-isme/pulse-metrics-api/pkg/database"
	"github.com/noah-isme/pulse-metrics-api/pkg/jobs"
	"github.com/noah-isme/pulse-metrics-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/pulse-metrics-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/pulse-metrics-api/pkg/middleware/requestid"
)

// @title Pulse Metrics API
// @version 0.1.0
// @description Analytics aggregation and compliance engine
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	instr := service.NewInstrumentationService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheService := service.NewCacheService(cacheRepo, instr, cfg.Analytics.CacheTTL, logr, cfg.Analytics.CacheEnabled && redisClient != nil)

	directoryRepo := repository.NewDirectoryRepository(db)
	eventRepo := repository.NewEventRepository(db)
	aggregateRepo := repository.NewAggregateRepository(db)

	scopeService := service.NewScopeService(directoryRepo, logr)
	aggregator := service.NewAggregatorService(service.AggregatorServiceParams{
		Events:     eventRepo,
		Aggregates: aggregateRepo,
		Scopes:     scopeService,
		Compliance: service.NewComplianceCalculator(cfg.Analytics.ComplianceGraceDays),
		Cache:      cacheService,
		Instr:      instr,
		Logger:     logr,
		Strategy:   cfg.Analytics.ReadStrategy,
	})
	exportService := service.NewExportService(aggregator, logr)
	backfillService := service.NewBackfillService(service.BackfillServiceParams{
		Aggregator:   aggregator,
		Teams:        directoryRepo,
		Cache:        cacheService,
		Instr:        instr,
		Logger:       logr,
		MaxRangeDays: cfg.Backfill.MaxRangeDays,
		QueueConfig: jobs.QueueConfig{
			Workers:    cfg.Backfill.Workers,
			BufferSize: cfg.Backfill.QueueSize,
			MaxRetries: cfg.Backfill.MaxRetries,
			RetryDelay: cfg.Backfill.RetryDelay,
			Logger:     logr,
		},
	})
	backfillService.Start(ctx)
	defer backfillService.Stop()

	analyticsHandler := handler.NewAnalyticsHandler(aggregator, exportService, instr, logr, cfg.Exports.Enabled)
	backfillHandler := handler.NewBackfillHandler(backfillService, logr)
	healthHandler := handler.NewHealthHandler(db, redisClient)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(instr))

	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)
	r.GET("/metrics", gin.WrapH(instr.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWTAuth(cfg.Auth.JWTSecret))
	{
		analytics := api.Group("/analytics")
		analytics.GET("/pulse", analyticsHandler.Pulse)
		analytics.GET("/shoutouts", analyticsHandler.Shoutouts)
		analytics.GET("/compliance", analyticsHandler.Compliance)
		analytics.GET("/leaderboard", analyticsHandler.Leaderboard)
		analytics.GET("/overview", analyticsHandler.Overview)
		analytics.GET("/export", analyticsHandler.Export)
		analytics.GET("/system", analyticsHandler.System)

		api.POST("/backfill", middleware.OpsToken(cfg.Auth.OpsTokenHash), backfillHandler.Trigger)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "read_strategy", cfg.Analytics.ReadStrategy)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
