package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// maxSheetCols is the widest grid the backend can address (column ZZZ).
const maxSheetCols = 18278

type Config struct {
	// Spreadsheet naming and shape
	SpreadsheetBaseName string
	SheetTabName        string
	SheetDefaultRows    int
	SheetDefaultCols    int

	// Google auth
	GoogleServiceAccountFile string

	// Run ledger (empty path disables it)
	LedgerDBPath  string
	LedgerLockTTL time.Duration

	// AMQP (empty URL disables it)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

func Load() *Config {
	cfg := &Config{
		SpreadsheetBaseName: getEnv("SPREADSHEET_BASE_NAME", "Monthly_Data_Report"),
		SheetTabName:        getEnv("SHEET_TAB_NAME", "Data"),
		SheetDefaultRows:    getEnvInt("SHEET_DEFAULT_ROWS", 1000),
		SheetDefaultCols:    getEnvInt("SHEET_DEFAULT_COLS", 26),

		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),

		LedgerDBPath:  getEnv("LEDGER_DB_PATH", "./data/sheetpipe.db"),
		LedgerLockTTL: getEnvDuration("LEDGER_LOCK_TTL", 2*time.Minute),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "sheetpipe"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "run_events"),
	}

	return cfg
}

// Validate checks configuration shape and returns an error listing every
// problem found. Credential file contents are not touched here; the
// Google client reports missing or bad keys when it opens the file.
func (c *Config) Validate() error {
	var errors []string

	if c.SpreadsheetBaseName == "" {
		errors = append(errors, "spreadsheet base name cannot be empty")
	}
	if c.SheetTabName == "" {
		errors = append(errors, "sheet tab name cannot be empty")
	}

	if c.SheetDefaultRows < 1 {
		errors = append(errors, fmt.Sprintf("invalid sheet rows %d: must be at least 1", c.SheetDefaultRows))
	}
	if c.SheetDefaultCols < 1 {
		errors = append(errors, fmt.Sprintf("invalid sheet columns %d: must be at least 1", c.SheetDefaultCols))
	} else if c.SheetDefaultCols > maxSheetCols {
		errors = append(errors, fmt.Sprintf("invalid sheet columns %d: must be at most %d", c.SheetDefaultCols, maxSheetCols))
	}

	if c.GoogleServiceAccountFile == "" {
		errors = append(errors, "GOOGLE_SERVICE_ACCOUNT_FILE must be set")
	}

	if c.LedgerDBPath != "" {
		// Check if directory exists or can be created
		dir := filepath.Dir(c.LedgerDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create ledger database directory '%s': %v", dir, err))
				}
			}
		}

		if c.LedgerLockTTL < time.Second {
			errors = append(errors, fmt.Sprintf("invalid lock TTL %v: must be at least 1 second", c.LedgerLockTTL))
		} else if c.LedgerLockTTL > 24*time.Hour {
			errors = append(errors, fmt.Sprintf("invalid lock TTL %v: must be at most 24 hours", c.LedgerLockTTL))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}

		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
