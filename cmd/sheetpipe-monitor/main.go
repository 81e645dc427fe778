package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"sheetpipe/internal/amqp"
	"sheetpipe/internal/cli"
	"sheetpipe/internal/config"
	"sheetpipe/internal/storage"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Stdout)

	logger.Info("Starting sheetpipe-monitor")

	// The monitor only needs the messaging settings, so it skips the
	// full pipeline validation (no Google credentials required here).
	cfg := config.Load()
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the monitor")
		os.Exit(1)
	}

	if cfg.LedgerDBPath != "" {
		logRecentRuns(logger, cfg.LedgerDBPath)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	logger.Info("Monitor started successfully",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	err = amqpClient.ConsumeRunCompleted(ctx, func(msg *amqp.RunCompletedMessage) error {
		logger.Info("Run completed",
			"spreadsheet_title", msg.SpreadsheetTitle,
			"spreadsheet_id", msg.SpreadsheetID,
			"worksheet_title", msg.WorksheetTitle,
			"rows_appended", msg.RowsAppended,
			"header_written", msg.HeaderWritten,
			"created_spreadsheet", msg.CreatedSpreadsheet,
			"created_worksheet", msg.CreatedWorksheet,
			"timestamp", msg.Timestamp)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}

// logRecentRuns prints the tail of the run ledger so an operator starting
// the monitor sees what the pipeline did most recently.
func logRecentRuns(logger *slog.Logger, dbPath string) {
	ledger, err := storage.NewLedger(dbPath)
	if err != nil {
		logger.Warn("Could not open run ledger", "error", err, "path", dbPath)
		return
	}
	defer ledger.Close()

	runs, err := ledger.RecentRuns(context.Background(), 5)
	if err != nil {
		logger.Warn("Could not read recent runs", "error", err)
		return
	}
	for _, run := range runs {
		logger.Info("Recent run",
			"id", run.ID,
			"spreadsheet_title", run.SpreadsheetTitle,
			"worksheet_title", run.WorksheetTitle,
			"rows_appended", run.RowsAppended,
			"completed_at", run.CompletedAt)
	}
}
