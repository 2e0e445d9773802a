// Package main runs the notification worker: it drains the Redis job queue, sends emails and
// Discord webhooks, and records every attempt in the notification log.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Pmjarvis/felicity-ems/config"
	"github.com/Pmjarvis/felicity-ems/internal/notify"
	"github.com/Pmjarvis/felicity-ems/internal/store/postgres"
	"github.com/Pmjarvis/felicity-ems/internal/worker"
	"github.com/Pmjarvis/felicity-ems/pkg/database"
	"github.com/Pmjarvis/felicity-ems/pkg/queue"
	"github.com/Pmjarvis/felicity-ems/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.Redis.Addr == "" {
		logger.Fatal("REDIS_ADDR is required by the worker")
	}
	if cfg.Database.Driver != "postgres" {
		logger.Fatal("the worker needs the postgres store for the notification log", zap.String("driver", cfg.Database.Driver))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{MaxConns: 4}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	mailer := notify.NewMailer(notify.SMTPConfig{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		User:     cfg.Email.SMTPUser,
		Password: cfg.Email.SMTPPass,
		From:     cfg.Email.FromAddress,
		FromName: cfg.Email.FromName,
	})
	if !mailer.Configured() {
		logger.Warn("SMTP not configured; email jobs will fail and be retried")
	}

	st := postgres.New(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewNotificationProcessor(jobQueue, notify.NewDeliverer(mailer, notify.NewDiscord(nil)), st.NotificationLogs, logger)

	if depth, err := jobQueue.Depth(ctx); err == nil {
		logger.Info("queue depth", zap.Any("lists", depth))
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		processor.Run(workerCtx)
		close(done)
	}()
	logger.Info("notification worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("worker did not stop in time")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	zcfg := zap.NewProductionConfig()
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := zcfg.Build()
	return logger
}
