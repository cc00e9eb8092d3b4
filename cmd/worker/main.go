// Package main runs the standalone membership sync worker: it replays
// queued membership intents against the chat network until they land.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/convene-hq/backend/config"
	"github.com/convene-hq/backend/internal/chat"
	"github.com/convene-hq/backend/internal/entities"
	"github.com/convene-hq/backend/internal/members"
	"github.com/convene-hq/backend/internal/worker"
	"github.com/convene-hq/backend/pkg/database"
	"github.com/convene-hq/backend/pkg/matrix"
	"github.com/convene-hq/backend/pkg/queue"
	"github.com/convene-hq/backend/pkg/redis"
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

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	matrixClient := matrix.NewClient(matrix.Config{
		HomeserverURL:  cfg.Matrix.HomeserverURL,
		AccessToken:    cfg.Matrix.AccessToken,
		BotUserID:      cfg.Matrix.BotUserID,
		RequestTimeout: time.Duration(cfg.Matrix.RequestTimeoutSec) * time.Second,
	}, logger)

	entityRepo := entities.NewRepository(pool)
	memberRepo := members.NewRepository(pool)

	identity := chat.NewIdentity(cfg.Matrix.ServerDomain)
	recordStore := chat.NewStore(pool)
	lifecycle := chat.NewLifecycleManager(identity, recordStore, entityRepo, matrixClient, cfg.Matrix.BotUserID, cfg.Matrix.AdminPowerLevel, logger)
	permSvc := chat.NewPermissionService(matrixClient, identity, cfg.Matrix.BotUserID, cfg.Matrix.AdminPowerLevel, cfg.Matrix.ModeratorLevel, logger)
	synchronizer := chat.NewSynchronizer(lifecycle, permSvc, matrixClient, identity, logger)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewSyncProcessor(synchronizer, entityRepo, memberRepo, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
