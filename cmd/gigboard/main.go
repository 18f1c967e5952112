package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/gigboard/gigboard/internal/app"
	"github.com/gigboard/gigboard/internal/audit"
	"github.com/gigboard/gigboard/internal/auth"
	"github.com/gigboard/gigboard/internal/invitations"
	"github.com/gigboard/gigboard/internal/observability"
	"github.com/gigboard/gigboard/internal/platform/db"
	"github.com/gigboard/gigboard/internal/rbac"
	"github.com/gigboard/gigboard/internal/sessions"
	"github.com/gigboard/gigboard/internal/shared"
	"github.com/gigboard/gigboard/internal/users"
	"github.com/gigboard/gigboard/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	bootstrapEmail := flag.String("bootstrap-owner", "", "create the first owner account with this email, then exit")
	bootstrapUsername := flag.String("bootstrap-username", "owner", "username for the bootstrap owner")
	flag.Parse()

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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	recorder := audit.NewRecorder(pool)
	userStore := users.NewPGStore(pool, recorder)

	if *bootstrapEmail != "" {
		if err := bootstrapOwner(ctx, userStore, *bootstrapEmail, *bootstrapUsername); err != nil {
			logger.Error("bootstrap owner", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("owner account created", slog.String("email", *bootstrapEmail))
		return
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "gigboard_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	inviteStore := invitations.NewPGStore(pool, recorder)
	sessionStore := sessions.NewPGStore(pool, recorder)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	sessionService := sessions.NewService(sessionStore, userStore, logger, cfg.SessionTTL)
	inviteService := invitations.NewService(inviteStore, jobClient, logger, cfg.InviteTTL)
	usersService := users.NewService(userStore, logger)
	auditService := audit.NewService(audit.NewRepository(pool))
	authService := auth.NewService(userStore)

	guard := rbac.Middleware{Logger: logger, Metrics: metrics}
	authMiddleware := auth.NewMiddleware(logger, sessionService, sessionManager, userStore)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,

		AuthHandler:        auth.NewHandler(logger, authService, sessionService, sessionManager, csrfManager),
		AuthMiddleware:     authMiddleware,
		UsersHandler:       users.NewHandler(logger, usersService, guard),
		InvitationsHandler: invitations.NewHandler(logger, inviteService, guard),
		SessionsHandler:    sessions.NewHandler(logger, sessionService, guard),
		AuditHandler:       audit.NewHandler(logger, auditService, guard),
		JobsHandler:        jobs.NewHandler(inspector, logger),

		Metrics: metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}

// bootstrapOwner seeds the first OWNER account. The password comes from
// BOOTSTRAP_PASSWORD so it never lands in shell history via argv.
func bootstrapOwner(ctx context.Context, store *users.PGStore, email, username string) error {
	password := os.Getenv("BOOTSTRAP_PASSWORD")
	if len(password) < 8 {
		return errors.New("BOOTSTRAP_PASSWORD must be set to at least 8 characters")
	}
	existing, err := store.ListUsers(ctx, 0, 1)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return errors.New("users already exist, refusing to bootstrap")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = store.CreateUser(ctx, users.NewUser{
		Username:     username,
		Email:        email,
		FullName:     "Board Owner",
		Role:         rbac.RoleOwner,
		PasswordHash: string(hash),
	}, audit.Entry{
		Action:   audit.ActionUserCreated,
		Resource: audit.ResourceUser,
		Meta:     map[string]any{"bootstrap": true, "email": email},
	})
	return err
}
