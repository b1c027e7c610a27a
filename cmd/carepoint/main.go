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
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/carepoint-hms/carepoint/cmd/carepoint/cli"
	"github.com/carepoint-hms/carepoint/internal/app"
	"github.com/carepoint-hms/carepoint/internal/inventory"
	"github.com/carepoint-hms/carepoint/internal/observability"
	"github.com/carepoint-hms/carepoint/internal/platform/cache"
	"github.com/carepoint-hms/carepoint/internal/shared"
	"github.com/carepoint-hms/carepoint/jobs"
	"github.com/carepoint-hms/carepoint/report"
)

func main() {
	if app.SkipStartup(nil, "carepoint") {
		return
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		if err := runJobs(ctx, cfg, os.Args[2:]); err != nil {
			logger.Error("jobs command", slog.Any("error", err))
			os.Exit(2)
		}
		return
	}

	if err := serve(ctx, stop, cfg, logger); err != nil {
		logger.Error("server", slog.Any("error", err))
		os.Exit(1)
	}
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) error {
	redisOpts := cfg.AsynqRedis()
	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()
	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()

	c := &cli.JobsCLI{
		Enqueuer:  client,
		Inspector: inspector,
		Out:       os.Stdout,
		OpenScanner: func(ctx context.Context) (jobs.StockScanner, func() error, error) {
			store, err := app.OpenStore(ctx, cfg, prometheus.NewRegistry())
			if err != nil {
				return nil, nil, err
			}
			scanner := inventory.NewService(store, inventory.ServiceConfig{DefaultMarginPct: cfg.DefaultMarginPct})
			return scanner, store.Close, nil
		},
	}
	return c.Run(ctx, args)
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()

	store, err := app.OpenStore(ctx, cfg, metrics.Registerer())
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("store close", slog.Any("error", err))
		}
	}()

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	services := app.BuildServices(app.ServiceDeps{
		Config: cfg,
		Store:  store,
		Redis:  redisClient,
		Logger: logger,
		Alerts: jobs.AlertLogger{Logger: logger},
	})

	inspector := asynq.NewInspector(cfg.AsynqRedis())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:    logger,
		Config:    cfg,
		Services:  services,
		Sessions:  shared.NewSessionResolver(redisClient, logger),
		Reports:   report.NewClient(cfg.GotenbergURL, 30*time.Second),
		Inspector: inspector,
		Metrics:   metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
