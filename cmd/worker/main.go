package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/invix-erp/invix/internal/app"
	"github.com/invix-erp/invix/internal/platform/cache"
	"github.com/invix-erp/invix/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	if cfg.RedisAddr == "" {
		logger.Error("worker requires REDIS_ADDR")
		os.Exit(1)
	}
	if cfg.StorageDriver != app.StoragePostgres {
		logger.Warn("worker running on the memory store; archives only see data written by this process")
	}

	services, err := app.NewServices(ctx, cfg, logger)
	if err != nil {
		logger.Error("init services", slog.Any("error", err))
		os.Exit(1)
	}
	defer services.Close()

	redisOpts := cache.Options{Addr: cfg.RedisAddr}.AsynqOptions()
	jobMetrics := services.Metrics.Jobs()

	// the sweep always enqueues so that archives stay deduplicated by task id
	enqueuer := services.Enqueuer
	if enqueuer == nil {
		enqueuer = jobs.NewClient(redisOpts, jobMetrics, logger)
		defer func() { _ = enqueuer.Close() }()
	}
	archiveJob := jobs.NewArchiveYearJob(services.Archive, logger, jobMetrics)
	sweepJob := jobs.NewArchiveSweepJob(services.Tenants, services.Store, enqueuer, logger, jobMetrics)

	var cron []jobs.CronRegistration
	if cfg.ArchiveSweepCron != "" {
		cron = append(cron, jobs.CronRegistration{Spec: cfg.ArchiveSweepCron, Task: jobs.NewArchiveSweepTask()})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskArchiveYear, Handler: archiveJob.Handle},
			{Type: jobs.TaskArchiveSweep, Handler: sweepJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()
	router := app.NewRouter(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		JobHandler: jobs.NewHandler(inspector, logger),
		Metrics:    services.Metrics,
		Checks:     services.Checks(),
	})
	server := &http.Server{Addr: cfg.AppAddr, Handler: router, ReadTimeout: cfg.AppReadTimeout}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker http server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
