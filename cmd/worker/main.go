package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/gigboard/gigboard/internal/app"
	"github.com/gigboard/gigboard/internal/audit"
	"github.com/gigboard/gigboard/internal/invitations"
	"github.com/gigboard/gigboard/internal/observability"
	"github.com/gigboard/gigboard/internal/platform/db"
	"github.com/gigboard/gigboard/internal/sessions"
	"github.com/gigboard/gigboard/internal/users"
	"github.com/gigboard/gigboard/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()
	recorder := audit.NewRecorder(pool)
	userStore := users.NewPGStore(pool, recorder)
	inviteStore := invitations.NewPGStore(pool, recorder)
	sessionStore := sessions.NewPGStore(pool, recorder)

	inviteService := invitations.NewService(inviteStore, nil, logger, cfg.InviteTTL)
	sessionService := sessions.NewService(sessionStore, userStore, logger, cfg.SessionTTL)

	mailer := jobs.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskInviteEmail, Handler: jobs.NewInviteEmailHandler(mailer, cfg.BaseURL, logger, metrics)},
			{Type: jobs.TaskInviteCleanup, Handler: jobs.NewInviteCleanupHandler(inviteService, logger, metrics)},
			{Type: jobs.TaskSessionCleanup, Handler: jobs.NewSessionCleanupHandler(sessionService, cfg.SessionRetention, logger, metrics)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/30 * * * *", Task: jobs.NewInviteCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "15 * * * *", Task: jobs.NewSessionCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
