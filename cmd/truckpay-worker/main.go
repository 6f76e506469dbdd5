package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"truckpay/internal/amqp"
	"truckpay/internal/config"
	"truckpay/internal/log"
	"truckpay/internal/sheets"
	gsheet "truckpay/internal/sheets/google"
	"truckpay/internal/sheets/memory"
	"truckpay/internal/storage"
	"truckpay/internal/worker"
)

func main() {
	cfg := config.Load()

	logger := log.New(log.Config{
		Level:     slog.LevelInfo,
		Component: log.ComponentWorker,
	})
	slog.SetDefault(logger.Logger)

	logger.Info("Starting truckpay worker")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	store, err := storage.Open(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open database", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var loadMirror sheets.LoadMirror
	switch cfg.SheetsBackend {
	case "google":
		client, err := gsheet.NewFromEnv(ctx)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		loadMirror = client
		logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	case "memory":
		loadMirror = memory.New()
		logger.Info("In-memory mirror backend selected")
	case "off":
		logger.Info("Spreadsheet mirror disabled, nothing to do")
		return
	}

	syncWorker := worker.NewSyncWorker(store, loadMirror)

	// The queue scanner is the backup path: it re-mirrors any row whose
	// AMQP message was lost, and retries failures with an attempt cap.
	processorCfg := worker.DefaultProcessorConfig()
	processorCfg.PollInterval = cfg.SyncInterval
	processorCfg.BatchSize = cfg.SyncBatchSize
	processor := worker.NewProcessor(syncWorker, store, processorCfg)
	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start sync processor", log.FieldError, err)
		os.Exit(1)
	}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, relying on queue scan only", log.FieldError, err)
		} else {
			defer client.Close()
			go func() {
				err := client.ConsumeLoadSync(ctx, func(msg *amqp.LoadSyncMessage) error {
					return syncWorker.HandleMessage(ctx, msg)
				})
				if err != nil && err != context.Canceled {
					logger.Error("Message consumption failed", log.FieldError, err)
					cancel()
				}
			}()
		}
	} else {
		logger.Info("AMQP disabled, relying on queue scan only")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()
	if err := processor.Stop(shutdownCtx); err != nil {
		logger.Warn("Sync processor stop timed out", log.FieldError, err)
	}
	logger.Info("Worker shutdown complete")
}
