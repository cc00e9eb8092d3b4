// Package main runs the Convene HTTP server: tenant, entity and chat-room
// membership APIs plus the appservice callbacks the homeserver queries.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/convene-hq/backend/config"
	"github.com/convene-hq/backend/internal/auth"
	"github.com/convene-hq/backend/internal/chat"
	"github.com/convene-hq/backend/internal/entities"
	"github.com/convene-hq/backend/internal/members"
	"github.com/convene-hq/backend/internal/middleware"
	"github.com/convene-hq/backend/internal/tenants"
	"github.com/convene-hq/backend/internal/worker"
	"github.com/convene-hq/backend/pkg/database"
	"github.com/convene-hq/backend/pkg/matrix"
	"github.com/convene-hq/backend/pkg/queue"
	"github.com/convene-hq/backend/pkg/redis"
	"github.com/convene-hq/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	matrixClient := matrix.NewClient(matrix.Config{
		HomeserverURL:  cfg.Matrix.HomeserverURL,
		AccessToken:    cfg.Matrix.AccessToken,
		BotUserID:      cfg.Matrix.BotUserID,
		RequestTimeout: time.Duration(cfg.Matrix.RequestTimeoutSec) * time.Second,
	}, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Tenants
	tenantRepo := tenants.NewRepository(pool)
	tenantHandler := tenants.NewHandler(tenantRepo)

	// Entities and membership records
	entityRepo := entities.NewRepository(pool)
	memberRepo := members.NewRepository(pool)

	// Chat core
	identity := chat.NewIdentity(cfg.Matrix.ServerDomain)
	recordStore := chat.NewStore(pool)
	lifecycle := chat.NewLifecycleManager(identity, recordStore, entityRepo, matrixClient, cfg.Matrix.BotUserID, cfg.Matrix.AdminPowerLevel, logger)
	permSvc := chat.NewPermissionService(matrixClient, identity, cfg.Matrix.BotUserID, cfg.Matrix.AdminPowerLevel, cfg.Matrix.ModeratorLevel, logger)
	synchronizer := chat.NewSynchronizer(lifecycle, permSvc, matrixClient, identity, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	chatHandler := chat.NewHandler(synchronizer, lifecycle, permSvc, identity, entityRepo, memberRepo, authRepo, jobQueue, logger)
	appserviceHandler := chat.NewAppserviceHandler(identity, lifecycle, logger)

	entityHandler := entities.NewHandler(entityRepo, memberRepo, lifecycle, logger)

	// Retry worker, in-process alongside the server. cmd/worker runs the
	// same loop standalone for deployments that separate the two.
	syncProcessor := worker.NewSyncProcessor(synchronizer, entityRepo, memberRepo, jobQueue, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Appservice callbacks (homeserver only; guarded by the hs token)
	appsvc := router.Group("/_matrix/app/v1")
	appsvc.Use(middleware.HomeserverToken(cfg.Appservice.HomeserverToken))
	{
		appsvc.GET("/rooms/:alias", appserviceHandler.QueryRoom)
		appsvc.GET("/users/:userID", appserviceHandler.QueryUser)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/users", middleware.RequireRole("admin"), authHandler.List)

		api.GET("/tenants", tenantHandler.ListMine)
		api.POST("/tenants", tenantHandler.Create)
		api.POST("/tenants/join", tenantHandler.Join)

		tenant := api.Group("/tenants/:tenantID")
		tenant.Use(tenants.RequireTenantAccess(tenantRepo))
		{
			tenant.GET("/members", tenantHandler.ListMembers)

			tenant.GET("/:entityType", entityHandler.List)
			tenant.POST("/:entityType", entityHandler.Create)
			tenant.GET("/:entityType/:slug", entityHandler.Get)
			tenant.POST("/:entityType/:slug/rename", entityHandler.Rename)
			tenant.DELETE("/:entityType/:slug", entityHandler.Delete)

			tenant.GET("/:entityType/:slug/room", chatHandler.GetRoom)
			tenant.GET("/:entityType/:slug/room/permissions", chatHandler.GetRoomPermissions)

			tenant.GET("/:entityType/:slug/members", entityHandler.ListMembers)
			tenant.POST("/:entityType/:slug/members", chatHandler.AddMember)
			tenant.PATCH("/:entityType/:slug/members/:userID", chatHandler.ChangeRole)
			tenant.DELETE("/:entityType/:slug/members/:userID", chatHandler.RemoveMember)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go syncProcessor.Run(workerCtx)
	logger.Info("membership sync worker started")

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
