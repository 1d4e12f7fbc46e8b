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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/whenwemeet/whenwemeet-api/api/swagger"
	"github.com/whenwemeet/whenwemeet-api/internal/handler"
	"github.com/whenwemeet/whenwemeet-api/internal/middleware"
	"github.com/whenwemeet/whenwemeet-api/internal/repository"
	"github.com/whenwemeet/whenwemeet-api/internal/service"
	"github.com/whenwemeet/whenwemeet-api/pkg/cache"
	"github.com/whenwemeet/whenwemeet-api/pkg/config"
	"github.com/whenwemeet/whenwemeet-api/pkg/database"
	"github.com/whenwemeet/whenwemeet-api/pkg/jobs"
	"github.com/whenwemeet/whenwemeet-api/pkg/logger"
	corsmiddleware "github.com/whenwemeet/whenwemeet-api/pkg/middleware/cors"
	reqidmiddleware "github.com/whenwemeet/whenwemeet-api/pkg/middleware/requestid"
	"github.com/whenwemeet/whenwemeet-api/pkg/storage"
)

// @title WhenWeMeet API
// @version 1.0.0
// @description Availability aggregation and meeting slot recommendation service
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	validate := validator.New()
	metricsService := service.NewMetricsService()

	cacheService := service.NewCacheService(nil, metricsService, logr, false, cfg.Recommendation.CacheTTL)
	if cfg.Recommendation.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, availability cache disabled", "error", err)
		} else {
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			defer cacheRepo.Close() //nolint:errcheck
			cacheService = service.NewCacheService(cacheRepo, metricsService, logr, true, cfg.Recommendation.CacheTTL)
		}
	}

	userRepo := repository.NewUserRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	unavailabilityRepo := repository.NewUnavailabilityRepository(db)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	roomService := service.NewRoomService(roomRepo, cacheService, validate, logr, service.RoomConfig{
		ShareCodeMaxJoins: cfg.Recommendation.ShareCodeMaxJoins,
	})
	scheduleService := service.NewScheduleService(unavailabilityRepo, roomRepo, cacheService, validate, logr)
	availabilityService := service.NewAvailabilityService(roomRepo, unavailabilityRepo, cacheService, metricsService, logr, service.AvailabilityConfig{
		HorizonDays: cfg.Recommendation.HorizonDays,
		MaxResults:  cfg.Recommendation.MaxResults,
	})

	authHandler := handler.NewAuthHandler(authService)
	roomHandler := handler.NewRoomHandler(roomService)
	scheduleHandler := handler.NewScheduleHandler(scheduleService)
	availabilityHandler := handler.NewAvailabilityHandler(availabilityService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	var reportHandler *handler.ReportHandler
	var reportQueue *jobs.Queue
	if cfg.Reports.Enabled {
		reportRepo := repository.NewReportRepository(db)
		reportStorage, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		worker := service.NewReportWorker(reportRepo, availabilityService, reportStorage, cfg.Reports.WorkerRetries, logr)
		reportQueue = jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportQueue.Start(ctx)
		defer reportQueue.Stop()

		reportService := service.NewReportService(reportRepo, roomRepo, reportQueue, reportStorage, signer, validate, logr)
		reportHandler = handler.NewReportHandler(reportService)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
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
		api.POST("/auth/login", authHandler.Login)
		api.POST("/auth/refresh", authHandler.Refresh)
		api.POST("/auth/logout", authHandler.Logout)
		api.GET("/share-codes/:code", roomHandler.Preview)
	}

	authed := api.Group("", middleware.JWT(authService))
	{
		authed.GET("/auth/me", authHandler.Me)

		authed.POST("/rooms", roomHandler.Create)
		authed.GET("/rooms", roomHandler.List)
		authed.POST("/share-codes/join", roomHandler.Join)
		authed.GET("/rooms/:id", roomHandler.Get)
		authed.PUT("/rooms/:id", roomHandler.Update)
		authed.DELETE("/rooms/:id", roomHandler.Delete)
		authed.POST("/rooms/:id/leave", roomHandler.Leave)
		authed.GET("/rooms/:id/members", roomHandler.Members)

		authed.PUT("/rooms/:id/unavailability", scheduleHandler.Submit)
		authed.GET("/rooms/:id/unavailability", scheduleHandler.Mine)
		authed.GET("/rooms/:id/members/:userId/unavailability", scheduleHandler.Member)

		authed.GET("/rooms/:id/availability", availabilityHandler.Grid)
		authed.GET("/rooms/:id/recommendations", availabilityHandler.Recommendations)

		if reportHandler != nil {
			authed.POST("/rooms/:id/reports", reportHandler.Request)
			authed.GET("/reports/:id", reportHandler.Status)
		}
	}
	if reportHandler != nil {
		// Download authenticates through the signed token, not a JWT.
		api.GET("/report-downloads", reportHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown failed", "error", err)
	}
}
