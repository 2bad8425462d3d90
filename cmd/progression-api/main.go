package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/formacore/progression-api/api/swagger"
	"github.com/formacore/progression-api/internal/handler"
	internalmiddleware "github.com/formacore/progression-api/internal/middleware"
	"github.com/formacore/progression-api/internal/repository"
	"github.com/formacore/progression-api/internal/service"
	"github.com/formacore/progression-api/pkg/cache"
	"github.com/formacore/progression-api/pkg/config"
	"github.com/formacore/progression-api/pkg/database"
	"github.com/formacore/progression-api/pkg/logger"
	corsmiddleware "github.com/formacore/progression-api/pkg/middleware/cors"
	reqidmiddleware "github.com/formacore/progression-api/pkg/middleware/requestid"
)

// @title FormaCore Progression API
// @version 0.1.0
// @description Progress aggregation, attendance, dropout-risk scoring and alternance scheduling
// @BasePath /
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.ProgressTTL, logr, cfg.Cache.Enabled && redisClient != nil)

	contentRepo := repository.NewContentNodeRepository(db)
	completionRepo := repository.NewCompletionEventRepository(db)
	progressRepo := repository.NewProgressStateRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	coordinationRepo := repository.NewCoordinationEventRepository(db)
	contractRepo := repository.NewContractRepository(db)
	calendarRepo := repository.NewCalendarRepository(db)

	trees := service.NewContentTreeService(contentRepo, logr)
	progressSvc := service.NewProgressService(trees, completionRepo, progressRepo, cacheSvc, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, cfg.Attendance.LateWeight, logr)
	coordinationSvc := service.NewCoordinationService(coordinationRepo, logr)
	alternanceSvc := service.NewAlternanceService(contractRepo, calendarRepo, cfg.Alternance, logr)
	riskSvc := service.NewRiskService(cfg.Risk, progressRepo, trees, progressSvc, attendanceSvc, coordinationSvc, alternanceSvc, cacheSvc, logr, cfg.Alternance)
	ingestSvc := service.NewIngestService(cfg.Ingest, progressSvc, coordinationSvc, riskSvc, metrics, logr)

	ingestSvc.Start(ctx)
	defer ingestSvc.Stop()
	riskSvc.StartNightly(ctx)

	validate := validator.New()

	ingestHandler := handler.NewIngestHandler(ingestSvc, validate)
	progressHandler := handler.NewProgressHandler(progressSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, validate)
	riskHandler := handler.NewRiskHandler(riskSvc)
	alternanceHandler := handler.NewAlternanceHandler(alternanceSvc, validate)
	contentHandler := handler.NewContentHandler(trees)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/events/completions", ingestHandler.SubmitCompletion)
		api.POST("/events/coordination", ingestHandler.SubmitCoordination)

		api.GET("/students/:studentId/formations/:formationId/progress", progressHandler.Get)
		api.POST("/students/:studentId/formations/:formationId/progress/rebuild", progressHandler.Rebuild)

		api.POST("/attendance", attendanceHandler.Record)
		api.GET("/students/:studentId/attendance", attendanceHandler.Summary)

		api.GET("/risk/alerts", riskHandler.Alerts)
		api.POST("/risk/batch", riskHandler.RunBatch)
		api.GET("/students/:studentId/formations/:formationId/risk", riskHandler.Evaluate)
		api.POST("/students/:studentId/formations/:formationId/risk/recompute", riskHandler.Recompute)

		api.POST("/contracts", alternanceHandler.CreateContract)
		api.POST("/contracts/:id/validate", alternanceHandler.ValidateContract)
		api.POST("/contracts/:id/transition", alternanceHandler.TransitionContract)
		api.POST("/contracts/:id/amend", alternanceHandler.AmendContract)
		api.GET("/students/:studentId/calendar", alternanceHandler.Calendar)
		api.POST("/calendar/entries/:id/confirm", alternanceHandler.ConfirmEntry)

		api.POST("/formations/:formationId/structure-changed", contentHandler.StructureChanged)
		api.GET("/formations/:formationId/summary", contentHandler.Summary)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
