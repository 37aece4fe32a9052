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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/citywatch/dispatch-api/api/swagger"
	"github.com/citywatch/dispatch-api/internal/handler"
	"github.com/citywatch/dispatch-api/internal/middleware"
	"github.com/citywatch/dispatch-api/internal/models"
	"github.com/citywatch/dispatch-api/internal/realtime"
	"github.com/citywatch/dispatch-api/internal/repository"
	"github.com/citywatch/dispatch-api/internal/service"
	"github.com/citywatch/dispatch-api/pkg/cache"
	"github.com/citywatch/dispatch-api/pkg/config"
	"github.com/citywatch/dispatch-api/pkg/database"
	"github.com/citywatch/dispatch-api/pkg/logger"
	corsmiddleware "github.com/citywatch/dispatch-api/pkg/middleware/cors"
	reqidmiddleware "github.com/citywatch/dispatch-api/pkg/middleware/requestid"
)

// @title CityWatch Dispatch API
// @version 1.0.0
// @description Case assignment and backup dispatch for the CityWatch crime reporting platform
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
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	// repositories
	userRepo := repository.NewUserRepository(db)
	reportRepo := repository.NewReportRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	backupRepo := repository.NewBackupRepository(db)
	presenceRepo := repository.NewPresenceRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// services
	metricsSvc := service.NewMetricsService()
	broadcastSvc := service.NewBroadcastService(redisClient, logr)
	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	notificationSvc := service.NewNotificationService(
		notificationRepo, userRepo, cacheRepo,
		service.NewLogMailer(logr), service.NewLogSMSSender(logr),
		broadcastSvc, cfg.Notify, metricsSvc, nil, logr)
	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	presenceSvc := service.NewPresenceService(presenceRepo, broadcastSvc, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, reportRepo, userRepo, notificationSvc, broadcastSvc, metricsSvc, nil, logr)
	backupSvc := service.NewBackupService(backupRepo, presenceRepo, notificationSvc, broadcastSvc, metricsSvc, cfg.Dispatch, logr)
	exportSvc := service.NewExportService(assignmentRepo, cfg.Exports, logr, nil, nil)

	// realtime hub
	var hub *realtime.Hub
	if cfg.Realtime.Enabled {
		hub = realtime.NewHub(cfg.Realtime, logr)
		topics := cfg.Realtime.DispatchTopics
		if len(topics) == 0 {
			topics = []string{
				service.TopicDispatchAssignments,
				service.TopicDispatchBackup,
				service.TopicDispatchPresence,
			}
		}
		sub := broadcastSvc.Subscribe(ctx, topics...)
		if sub != nil {
			if err := sub.PSubscribe(ctx, "officer.*"); err != nil {
				logr.Warn("officer channel subscription failed")
			}
			go hub.Run(ctx, sub)
		}
	}

	// handlers
	authHandler := handler.NewAuthHandler(authSvc)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc, exportSvc)
	backupHandler := handler.NewBackupHandler(backupSvc)
	presenceHandler := handler.NewPresenceHandler(presenceSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
			auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
			auth.POST("/officers", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin), authHandler.RegisterOfficer)
		}

		secured := api.Group("", middleware.JWT(authSvc))
		{
			assignments := secured.Group("/assignments")
			{
				assignments.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleDispatcher), assignmentHandler.Assign)
				assignments.GET("", assignmentHandler.List)
				assignments.GET("/export", middleware.RequireRoles(models.RoleAdmin, models.RoleDispatcher), assignmentHandler.Export)
				assignments.PATCH("/:id/status", assignmentHandler.UpdateStatus)
			}
			secured.DELETE("/reports/:reportId/assignment", middleware.RequireRoles(models.RoleAdmin, models.RoleDispatcher), assignmentHandler.Unassign)

			backup := secured.Group("/backup/requests", middleware.RequireRoles(models.RoleAdmin, models.RoleOfficer))
			{
				backup.POST("", backupHandler.Request)
				backup.DELETE("", backupHandler.Cancel)
				backup.POST("/:id/ack", backupHandler.Acknowledge)
				backup.POST("/:id/resolve", backupHandler.Resolve)
			}

			presence := secured.Group("/presence")
			{
				presence.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleDispatcher), presenceHandler.ListOnDuty)
				presence.PUT("/location", middleware.RequireRoles(models.RoleOfficer), presenceHandler.UpdateLocation)
				presence.PUT("/duty", middleware.RequireRoles(models.RoleOfficer), presenceHandler.UpdateDutyStatus)
				presence.GET("/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleDispatcher), presenceHandler.Get)
			}

			notifications := secured.Group("/notifications")
			{
				notifications.GET("", notificationHandler.ListUnread)
				notifications.GET("/unread-count", notificationHandler.CountUnread)
				notifications.POST("/read", notificationHandler.MarkManyRead)
				notifications.POST("/:id/read", notificationHandler.MarkRead)
			}
		}

		if hub != nil {
			wsHandler := handler.NewWSHandler(hub, logr)
			api.GET("/ws", middleware.TokenFromQuery(authSvc), wsHandler.Stream)
		}
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
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown failed", "error", err)
	}
}
