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

	_ "github.com/noah-isme/uni-timetable-api/api/swagger"
	"github.com/noah-isme/uni-timetable-api/internal/handler"
	"github.com/noah-isme/uni-timetable-api/internal/middleware"
	"github.com/noah-isme/uni-timetable-api/internal/repository"
	"github.com/noah-isme/uni-timetable-api/internal/runner"
	"github.com/noah-isme/uni-timetable-api/internal/service"
	"github.com/noah-isme/uni-timetable-api/pkg/cache"
	"github.com/noah-isme/uni-timetable-api/pkg/config"
	"github.com/noah-isme/uni-timetable-api/pkg/database"
	"github.com/noah-isme/uni-timetable-api/pkg/export"
	"github.com/noah-isme/uni-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/uni-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/uni-timetable-api/pkg/middleware/requestid"
)

// @title University Timetable API
// @version 1.0.0
// @description Timetable optimization service: runs, leaderboard, publication
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSvc := service.NewMetricsService()

	orch := runner.New(ctx, runner.Config{
		MaxConcurrent: cfg.Optimizer.Workers,
		QueueSize:     cfg.Optimizer.QueueSize,
		EventBuffer:   cfg.Optimizer.EventBuffer,
		Logger:        logr,
	})
	defer orch.Stop()

	userRepo := repository.NewUserRepository(db)
	datasetRepo := repository.NewDatasetRepository(db)
	runRepo := repository.NewRunRepository(db)
	publishedRepo := repository.NewPublishedScheduleRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "uni-timetable-api",
	})
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Scorer.LeaderboardTTL, logr, true)
	optimizerSvc := service.NewOptimizerService(datasetRepo, runRepo, orch, metricsSvc, nil, logr, cfg.Optimizer.DefaultWallClock)
	scorerSvc := service.NewScorerService(runRepo, publishedRepo, cacheSvc, nil, logr, cfg.Scorer.LeaderboardTTL)
	publishSvc := service.NewPublishService(publishedRepo, runRepo, datasetRepo, export.NewCSVExporter(), nil, logr)

	optimizerSvc.RecoverInterrupted(ctx)

	authHandler := handler.NewAuthHandler(authSvc)
	optimizerHandler := handler.NewOptimizerHandler(optimizerSvc)
	scorerHandler := handler.NewScorerHandler(scorerSvc)
	publishHandler := handler.NewPublishHandler(publishSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/metrics/summary", metricsHandler.Snapshot)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)

		authed := auth.Group("")
		authed.Use(middleware.JWT(authSvc))
		authed.POST("/logout", authHandler.Logout)
		authed.POST("/change-password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	optimizer := api.Group("/optimizer")
	optimizer.Use(middleware.JWT(authSvc))
	{
		runs := optimizer.Group("/runs")
		runs.POST("", middleware.RBAC("ADMIN"), optimizerHandler.StartRun)
		runs.GET("", optimizerHandler.ListRuns)
		runs.GET("/:id", optimizerHandler.GetRun)
		runs.GET("/:id/events", optimizerHandler.StreamEvents)
		runs.GET("/:id/result", optimizerHandler.GetResult)
		runs.POST("/:id/cancel", middleware.RBAC("ADMIN"), optimizerHandler.CancelRun)

		optimizer.GET("/leaderboard", scorerHandler.Leaderboard)

		semesters := optimizer.Group("/semesters/:semester")
		semesters.GET("/selection", scorerHandler.GetSelection)
		semesters.POST("/selection", middleware.RBAC("ADMIN"), scorerHandler.SelectAlgorithm)
		semesters.POST("/publish", middleware.RBAC("ADMIN"), publishHandler.Publish)
		semesters.GET("/published", publishHandler.GetPublished)
		semesters.GET("/published/export.csv", publishHandler.ExportCSV)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
	orch.Stop()
}
