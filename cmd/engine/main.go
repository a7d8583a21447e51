package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/collectionpulse/engine/internal/alert"
	"github.com/collectionpulse/engine/internal/config"
	"github.com/collectionpulse/engine/internal/database"
	"github.com/collectionpulse/engine/internal/engine"
	"github.com/collectionpulse/engine/internal/ingest"
	"github.com/collectionpulse/engine/internal/metrics"
	"github.com/collectionpulse/engine/internal/notify"
	"github.com/collectionpulse/engine/internal/server"
	"github.com/collectionpulse/engine/internal/store"
	"github.com/collectionpulse/engine/internal/sweeper"
	"github.com/collectionpulse/engine/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/engine.local.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting engine",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"server_port", cfg.Server.Port,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Select the store: postgres when configured, memory otherwise
	var st store.Store
	if cfg.Database.Postgres.Host != "" {
		logger.Info("connecting to database",
			"host", cfg.Database.Postgres.Host,
			"port", cfg.Database.Postgres.Port,
			"database", cfg.Database.Postgres.Name,
		)

		pool, err := database.Connect(ctx, cfg.Database.Postgres)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		pg := store.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		st = pg
		logger.Info("database connected")
	} else {
		st = store.NewMemory()
		logger.Warn("no database configured, using in-memory store")
	}

	// Notification channels
	var channels []notify.Channel
	if cfg.Notify.Webhook.URL != "" {
		channels = append(channels, notify.NewWebhook(
			cfg.Notify.Webhook.URL,
			notify.WithLogger(logger),
			notify.WithRetries(cfg.Notify.Webhook.MaxRetries, cfg.Notify.Webhook.Backoff),
			notify.WithTimeout(cfg.Notify.Webhook.Timeout),
		))
	}
	if cfg.Notify.Email.Enabled {
		channels = append(channels, notify.NewEmail(
			cfg.Notify.Email.SMTPAddr,
			cfg.Notify.Email.From,
			cfg.Notify.Email.To,
		))
	}

	dispatcher := notify.NewDispatcher(notify.Config{Workers: cfg.Notify.Workers}, channels, logger)
	if err := dispatcher.Start(ctx); err != nil {
		logger.Error("failed to start dispatcher", "error", err)
		os.Exit(1)
	}
	defer stopWithTimeout(dispatcher.Stop, logger, "dispatcher")

	// Pipeline components
	dirty := ingest.NewDirtySet()
	eng := engine.New(
		st,
		dirty,
		ingest.New(st, dirty, logger),
		metrics.NewRefresher(metrics.DefaultConfig(), st, st, logger),
		alert.NewEvaluator(alert.Config{
			PriceDropPct:        cfg.Thresholds.PriceDropPct,
			VolumeSpikePct:      cfg.Thresholds.VolumeSpikePct,
			ListingDepletionPct: cfg.Thresholds.ListingDepletionPct,
			Cooldown:            cfg.Thresholds.Cooldown(),
		}, alert.NewMemoryCooldowns(), logger),
		dispatcher,
		logger,
	)

	retention := time.Duration(cfg.Retention.Hours) * time.Hour
	swp := sweeper.New(sweeper.Config{
		Retention:     retention,
		BatchSize:     cfg.Retention.BatchSize,
		WarnThreshold: cfg.Retention.WarnThreshold,
	}, st, logger)

	// Scheduled jobs
	scheduler := engine.NewScheduler(engine.SchedulerConfig{
		RefreshEnabled:   cfg.Jobs.RefreshEnabled,
		CleanupEnabled:   cfg.Jobs.CleanupEnabled,
		RefreshInterval:  cfg.Jobs.RefreshInterval,
		CleanupOffset:    cfg.Jobs.CleanupOffset,
		Retention:        retention,
		CleanupBatchSize: cfg.Retention.BatchSize,
	}, eng, swp, logger)
	if err := scheduler.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer stopWithTimeout(scheduler.Stop, logger, "scheduler")

	// HTTP API
	srv := server.New(cfg.Server, st, eng, swp, retention, cfg.Retention.BatchSize, logger)
	if err := srv.Start(ctx); err != nil {
		logger.Error("failed to start http server", "error", err)
		os.Exit(1)
	}
	defer stopWithTimeout(srv.Stop, logger, "http server")

	logger.Info("engine running",
		"store", storeKind(cfg),
		"channels", len(channels),
		"refresh_job", cfg.Jobs.RefreshEnabled,
		"cleanup_job", cfg.Jobs.CleanupEnabled,
	)

	<-ctx.Done()
	logger.Info("shutting down")
}

func storeKind(cfg *config.EngineConfig) string {
	if cfg.Database.Postgres.Host != "" {
		return "postgres"
	}
	return "memory"
}

func stopWithTimeout(stop func(context.Context) error, logger *slog.Logger, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Error("failed to stop "+name, "error", err)
	}
}
