package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"finboard/internal/amqp"
	"finboard/internal/archive"
	"finboard/internal/backend"
	"finboard/internal/cli"
	apphttp "finboard/internal/http"
	applog "finboard/internal/log"
	"finboard/internal/services"
	"finboard/internal/statements"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	startCtx := context.Background()

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(startCtx, backendConfig)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	arch, closeArchive, err := archive.New(startCtx, archive.Config{
		Type:   cfg.ArchiveBackend,
		Dir:    cfg.ArchiveDir,
		Bucket: cfg.GCSBucket,
	})
	if err != nil {
		logger.Error("Failed to initialize statement archive", applog.FieldError, err, "archive", cfg.ArchiveBackend)
		_ = res.Close()
		os.Exit(1)
	}

	// Without a broker, preferences go straight to the store and imports are
	// marked by the importer itself.
	var (
		sink       services.PreferenceSink = res.Backend
		notifier   statements.Notifier
		amqpClient *amqp.Client
	)
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			_ = closeArchive()
			_ = res.Close()
			os.Exit(1)
		}
		sink = services.PublishingSink(amqpClient)
		notifier = amqpClient
		logger.Info("AMQP publishing enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Store:       res.Backend,
		KV:          res.KV,
		Budgets:     services.NewBudgetService(res.Backend, res.KV),
		Preferences: services.NewPreferenceBatcher(sink, cfg.PreferenceFlushDelay),
		Importer:    statements.NewImporter(res.Backend, res.Ledger, notifier),
		Archive:     arch,
		Logger:      logger,
	}, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		MaxUploadBytes:     cfg.MaxUploadBytes,
		CacheSize:          cfg.CacheSize,
		CacheTTL:           cfg.CacheTTL,
		PreferenceDelay:    cfg.PreferenceFlushDelay,
	})
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", applog.FieldError, err)
			}
		}
		if err := closeArchive(); err != nil {
			logger.Warn("Archive close error", applog.FieldError, err)
		}
		if err := res.Close(); err != nil {
			logger.Warn("Backend close error", applog.FieldError, err)
		}
	})

	go func() {
		logger.Info("Starting finboard server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"kv", cfg.KVBackend,
			"archive", cfg.ArchiveBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
