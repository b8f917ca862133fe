package main

import (
	"context"
	"errors"
	"os"
	"time"

	"finboard/internal/amqp"
	"finboard/internal/cli"
	applog "finboard/internal/log"
	"finboard/internal/sheets"
	gsheet "finboard/internal/sheets/google"
	"finboard/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting finboard-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	// The worker always records into SQLite, whatever backend the server
	// reads from.
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	var mirror sheets.TransactionWriter
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(context.Background(), gsheet.Config{
			SpreadsheetID:     cfg.GoogleSpreadsheetID,
			TransactionsSheet: cfg.GoogleSheetName,
			BudgetsSheet:      cfg.GoogleBudgetsSheetName,
			PreferencesSheet:  cfg.GooglePreferencesSheetName,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
			_ = repo.Close()
			os.Exit(1)
		}
		mirror = client
		logger.Info("Mirroring imported statements to Google Sheets", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets mirror disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		_ = repo.Close()
		os.Exit(1)
	}

	handler := worker.New(repo, repo, mirror)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := amqpClient.Close(); err != nil {
			logger.Warn("AMQP close error", applog.FieldError, err)
		}
		if err := repo.Close(); err != nil {
			logger.Warn("SQLite close error", applog.FieldError, err)
		}
	})
	go func() {
		err := amqpClient.ConsumeMessages(ctx, handler)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", applog.FieldError, err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
