package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/leadforge/backoffice/internal/app"
	"github.com/leadforge/backoffice/internal/export"
	"github.com/leadforge/backoffice/internal/observability"
	"github.com/leadforge/backoffice/internal/platform/db"
	"github.com/leadforge/backoffice/internal/search"
	"github.com/leadforge/backoffice/jobs"
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

	metrics := observability.NewMetrics()
	exportCfg := export.Config{
		Source:  search.NewRepository(pool),
		Cleaner: export.NewCleaner(cfg.ExportLocale, cfg.ExportLocation()),
		Logger:  logger.With(slog.String("component", "export")),
		Metrics: export.NewMetrics(metrics.Registerer()),
	}
	exportJob := jobs.NewExportTableJob(exportCfg, export.DirSink{Dir: cfg.ExportDir}, logger, metrics.Jobs())
	pruneJob := jobs.NewExportPruneJob(cfg.ExportDir, logger, metrics.Jobs())

	pruneTask, err := jobs.NewExportPruneTask(cfg.ExportRetention)
	if err != nil {
		logger.Error("build prune task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskExportTable, Handler: exportJob.Handle},
			{Type: jobs.TaskExportPrune, Handler: pruneJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: pruneTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("worker started", slog.String("export_dir", cfg.ExportDir), slog.String("redis", cfg.RedisAddr))
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("worker: %w", err)
		}
		return nil
	})
	if cfg.WorkerMetricsAddr != "" {
		server := metrics.Server(cfg.WorkerMetricsAddr)
		g.Go(func() error {
			logger.Info("metrics listening", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
