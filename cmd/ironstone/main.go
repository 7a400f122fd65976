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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/ironstone-erp/ironstone-erp/internal/app"
	"github.com/ironstone-erp/ironstone-erp/internal/auth"
	"github.com/ironstone-erp/ironstone-erp/internal/authz"
	"github.com/ironstone-erp/ironstone-erp/internal/billing"
	"github.com/ironstone-erp/ironstone-erp/internal/customers"
	"github.com/ironstone-erp/ironstone-erp/internal/observability"
	"github.com/ironstone-erp/ironstone-erp/internal/orders"
	"github.com/ironstone-erp/ironstone-erp/internal/platform/db"
	"github.com/ironstone-erp/ironstone-erp/internal/quotes"
	"github.com/ironstone-erp/ironstone-erp/internal/shared"
	"github.com/ironstone-erp/ironstone-erp/internal/statements"
	"github.com/ironstone-erp/ironstone-erp/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "ironstone_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()
	metrics.Registerer().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

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

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo, redisClient, jobClient)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	authzMiddleware := authz.Middleware{
		Resolver: authz.NewResolver(pool),
		Users:    authRepo,
		Logger:   logger,
	}

	auditLogger := shared.NewAuditLogger(pool)

	customersRepo := customers.NewRepository(pool)
	customersService := customers.NewService(customersRepo, logger)
	customersHandler := customers.NewHandler(logger, customersService)

	quotesRepo := quotes.NewRepository(pool)
	quotesService := quotes.NewService(quotesRepo, logger, auditLogger)
	quotesHandler := quotes.NewHandler(logger, quotesService)

	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, logger, auditLogger)
	billingHandler := billing.NewHandler(logger, billingService, metrics)

	ordersRepo := orders.NewRepository(pool)
	ordersService := orders.NewService(ordersRepo, quotesService, jobClient, logger, auditLogger)
	ordersHandler := orders.NewHandler(logger, ordersService, metrics)

	statementsRepo := statements.NewRepository(pool)
	statementsService := statements.NewService(statementsRepo, logger)
	statementsHandler := statements.NewHandler(logger, statementsService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionManager:    sessionManager,
		CSRFManager:       csrfManager,
		AuthHandler:       authHandler,
		AuthzMiddleware:   authzMiddleware,
		CustomersHandler:  customersHandler,
		QuotesHandler:     quotesHandler,
		OrdersHandler:     ordersHandler,
		BillingHandler:    billingHandler,
		StatementsHandler: statementsHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
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
