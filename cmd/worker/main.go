package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/andino-erp/andino/internal/app"
	"github.com/andino-erp/andino/internal/coa"
	jobmetrics "github.com/andino-erp/andino/internal/jobs"
	"github.com/andino-erp/andino/internal/ledger"
	ledgercfg "github.com/andino-erp/andino/internal/ledger/config"
	"github.com/andino-erp/andino/internal/platform/cache"
	"github.com/andino-erp/andino/internal/platform/db"
	"github.com/andino-erp/andino/internal/posting"
	"github.com/andino-erp/andino/internal/shared"
	"github.com/andino-erp/andino/jobs"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)
	auditLogger := shared.NewAuditLogger(pool)

	coaRepo := coa.NewRepository(pool)
	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, nil)

	configRepo := ledgercfg.NewRepository(pool)
	configService := ledgercfg.NewService(configRepo, coaRepo, redisClient, logger)

	documents := posting.NewRepository(pool)
	hooks := posting.NewHooks(ledgerService, configService, documents, documents, documents, documents, logger)
	postingJob := jobs.NewPostingJob(hooks, metrics, logger)

	integrity := jobs.NewIntegrityChecker(jobs.NewPGIntegrityScanner(pool), nil, metrics, logger)

	integrityTask, err := jobs.NewLedgerIntegrityTask(jobs.LedgerIntegrityPayload{})
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}

	handlers := append(postingJob.Handlers(), jobs.TaskHandler{
		Type:    jobs.TaskLedgerIntegrity,
		Handler: integrity.Handler(),
	})

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers:  handlers,
		Cron: []jobs.CronRegistration{
			{Spec: "17 2 * * *", Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
