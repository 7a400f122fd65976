package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/ironstone-erp/ironstone-erp/internal/app"
	"github.com/ironstone-erp/ironstone-erp/internal/billing"
	"github.com/ironstone-erp/ironstone-erp/internal/observability"
	"github.com/ironstone-erp/ironstone-erp/internal/platform/db"
	"github.com/ironstone-erp/ironstone-erp/internal/shared"
	"github.com/ironstone-erp/ironstone-erp/jobs"
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(billingRepo, logger, shared.NewAuditLogger(pool))

	tasks := jobs.BillingTasks{
		Issuer:  billingService,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeInvoiceCreate, Handler: tasks.HandleInvoiceCreate},
			{Type: jobs.TaskTypeBillingReconcile, Handler: tasks.HandleBillingReconcile},
		},
		Cron: []jobs.CronRegistration{
			{
				Spec:    cfg.ReconcileSpec,
				Task:    jobs.NewBillingReconcileTask(),
				Options: []asynq.Option{asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3)},
			},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("reconcile_spec", cfg.ReconcileSpec))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
