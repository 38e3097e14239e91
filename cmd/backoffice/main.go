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
	"golang.org/x/sync/errgroup"

	"github.com/leadforge/backoffice/internal/app"
	"github.com/leadforge/backoffice/internal/export"
	exporthttp "github.com/leadforge/backoffice/internal/export/http"
	"github.com/leadforge/backoffice/internal/observability"
	"github.com/leadforge/backoffice/internal/platform/cache"
	"github.com/leadforge/backoffice/internal/platform/db"
	"github.com/leadforge/backoffice/internal/search"
	searchhttp "github.com/leadforge/backoffice/internal/search/http"
	"github.com/leadforge/backoffice/internal/timeline"
	timelinehttp "github.com/leadforge/backoffice/internal/timeline/http"
	"github.com/leadforge/backoffice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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

	var store search.FilterStore = search.NewMemoryStore()
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, filter state kept in memory", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		store = search.NewRedisStore(redisClient, "backoffice", cfg.FilterTTL)
	}

	metrics := observability.NewMetrics()

	repo := search.NewRepository(pool)
	searchService := search.NewService(repo)
	views := search.NewViewRegistry(ctx, repo, search.ViewConfig{
		PageSize: cfg.SearchPageSize,
		Debounce: cfg.SearchDebounce,
		Persist:  cfg.FilterPersist,
		Store:    store,
		IdleTTL:  cfg.ViewIdleTTL,
		Logger:   logger.With(slog.String("component", "views")),
	})
	metrics.TrackOpenViews(views.Len)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts, metrics.Jobs())
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	exportHandler := exporthttp.NewHandler(
		logger.With(slog.String("component", "export")),
		repo,
		export.NewCleaner(cfg.ExportLocale, cfg.ExportLocation()),
		export.NewMetrics(metrics.Registerer()),
		jobClient,
	)

	readiness := map[string]app.ReadinessCheck{
		"postgres": pool.Ping,
	}
	if redisClient != nil {
		readiness["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SearchHandler:   searchhttp.NewHandler(logger.With(slog.String("component", "search")), searchService, views),
		ExportHandler:   exportHandler,
		TimelineHandler: timelinehttp.NewHandler(logger, timeline.NewService(timeline.NewRepository(pool))),
		JobHandler:      jobs.NewHandler(inspector, logger),
		Metrics:         metrics,
		Readiness:       readiness,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return views.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
