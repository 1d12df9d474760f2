package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/brodesk/brodesk/internal/accounts"
	"github.com/brodesk/brodesk/internal/audit"
	"github.com/brodesk/brodesk/internal/app"
	"github.com/brodesk/brodesk/internal/categories"
	"github.com/brodesk/brodesk/internal/complaints"
	"github.com/brodesk/brodesk/internal/identity"
	"github.com/brodesk/brodesk/internal/notifications"
	"github.com/brodesk/brodesk/internal/observability"
	"github.com/brodesk/brodesk/internal/platform/cache"
	"github.com/brodesk/brodesk/internal/platform/db"
	"github.com/brodesk/brodesk/internal/rbac"
	"github.com/brodesk/brodesk/internal/shared"
	"github.com/brodesk/brodesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	if cfg.AutoMigrate {
		if err := app.Migrate(cfg.PGDSN, logger); err != nil {
			logger.Error("migrate database", slog.Any("error", err))
			os.Exit(1)
		}
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MaxConnLifetime: time.Hour})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	identityService := identity.NewService(identity.NewRepository(dbpool), logger, cfg.SessionTTL)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	accountsRepo := accounts.NewRepository(dbpool)
	complaintsRepo := complaints.NewRepository(dbpool)
	auditLogger := shared.NewAuditLogger(dbpool)

	notificationService := notifications.NewService(notifications.NewRepository(dbpool), accountsRepo, jobClient, logger)

	accountsService := accounts.NewService(accounts.Deps{
		Repo:      accountsRepo,
		Identity:  identityService,
		Notifier:  notificationService,
		Approvals: shared.NewApprovalRecorder(dbpool, logger),
		Counter:   complaintsRepo,
		Metrics:   metrics,
		Logger:    logger,
	})

	principals := rbac.NewPrincipalStore(redisClient, accountsService, logger)
	unsubscribe := principals.Subscribe(identityService)
	defer unsubscribe()
	rbacMiddleware := rbac.Middleware{Principals: principals, Logger: logger}

	categoryService := categories.NewService(categories.NewRepository(dbpool), auditLogger, logger)

	complaintService := complaints.NewService(complaints.Deps{
		Repo:        complaintsRepo,
		Profiles:    accountsRepo,
		Staff:       accountsRepo,
		Categories:  categoryService,
		Accounts:    accountsService,
		Notifier:    notificationService,
		Audit:       auditLogger,
		Idempotency: shared.NewIdempotencyStore(dbpool),
		Metrics:     metrics,
		Logger:      logger,
	})

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		SessionManager:       sessionManager,
		CSRFManager:          csrfManager,
		RBACMiddleware:       rbacMiddleware,
		AuthHandler:          accounts.NewAuthHandler(logger, accountsService, identityService, sessionManager, csrfManager, rbacMiddleware),
		AdminHandler:         accounts.NewAdminHandler(logger, accountsService),
		AuditHandler:         audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool))),
		CategoriesHandler:    categories.NewHandler(logger, categoryService),
		ComplaintsHandler:    complaints.NewHandler(logger, complaintService),
		NotificationsHandler: notifications.NewHandler(logger, notificationService),
		JobHandler:           jobs.NewHandler(inspector, logger),
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
