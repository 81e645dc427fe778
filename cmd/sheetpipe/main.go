package main

import (
	"context"
	"errors"
	"os"
	"time"

	"sheetpipe/internal/amqp"
	"sheetpipe/internal/cli"
	"sheetpipe/internal/services"
	gsheet "sheetpipe/internal/sheets/google"
	"sheetpipe/internal/storage"
	"sheetpipe/internal/table"
)

func main() {
	cli.LoadEnvFile()

	// Log to stderr: stdout carries the echoed dataset.
	logger := cli.SetupLogger(os.Stderr)

	logger.Info("Starting sheetpipe")

	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()

	// Read the dataset before touching any backend so an empty feed
	// finishes without needing credentials.
	ds, err := table.Read(os.Stdin)
	if err != nil {
		logger.Error("Failed to read input dataset", "error", err)
		os.Exit(1)
	}
	logger.Info("Dataset read from stdin",
		"columns", len(ds.Columns),
		"rows", len(ds.Rows))

	if ds.Empty() {
		logger.Info("No data rows on stdin, nothing to publish")
		return
	}

	backend, err := gsheet.New(ctx, gsheet.Config{
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google client", "error", err)
		os.Exit(1)
	}

	// Run ledger (optional)
	var ledger *storage.Ledger
	if cfg.LedgerDBPath != "" {
		ledger = cli.InitLedger(logger, cfg.LedgerDBPath)
		defer ledger.Close()
	} else {
		logger.Info("Run ledger disabled - no LEDGER_DB_PATH provided")
	}

	// AMQP notifier (optional)
	var notifier services.RunNotifier
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		notifier = amqpClient
	} else {
		logger.Info("Run notifications disabled - no AMQP_URL provided")
	}

	publisher := services.NewPublisher(backend, ledger, notifier, services.PublisherConfig{
		BaseName:  cfg.SpreadsheetBaseName,
		TabName:   cfg.SheetTabName,
		SheetRows: int64(cfg.SheetDefaultRows),
		SheetCols: int64(cfg.SheetDefaultCols),
		LockTTL:   cfg.LedgerLockTTL,
	})

	result, err := publisher.Publish(ctx, ds, time.Now())
	if err != nil {
		if errors.Is(err, services.ErrRunInProgress) {
			logger.Error("Another run is already publishing this spreadsheet", "error", err)
		} else {
			logger.Error("Publish failed", "error", err)
		}
		os.Exit(1)
	}

	logger.Info("Publish complete",
		"spreadsheet_title", result.SpreadsheetTitle,
		"spreadsheet_id", result.SpreadsheetID,
		"worksheet_title", result.WorksheetTitle,
		"rows_appended", result.RowsAppended,
		"header_written", result.HeaderWritten,
		"created_spreadsheet", result.CreatedSpreadsheet,
		"created_worksheet", result.CreatedWorksheet,
		"duration", result.Duration)

	// Echo the dataset downstream.
	if err := ds.Write(os.Stdout); err != nil {
		logger.Error("Failed to echo dataset to stdout", "error", err)
		os.Exit(1)
	}
}
