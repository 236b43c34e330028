package synth

import (
	"fmt"
	"os"

	"github.com/okian/trendpipe/pkg/logger"
)

// SetupLogging initializes the logger for a generation run.
func SetupLogging(verbose bool) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		if err := logger.SetLevelString("debug"); err != nil {
			return fmt.Errorf("failed to set log level: %w", err)
		}
	}
	return nil
}

// ShowHelp prints usage information for the record generation tool.
func ShowHelp() {
	os.Stdout.WriteString(`Trendpipe Record Generator
==========================

Generates synthetic cross-source record batches (JSONL) for exercising the
preprocessing pipeline, including a controlled fraction of malformed and
duplicate records.

Usage:
  go run cmd/gen-records/main.go [options]

Options:
  -entities int
        Number of distinct canonical entities (default 100)
  -records int
        Records to generate per source (default 1000)
  -sources string
        Comma-separated source names (default "spotify,youtube,sales")
  -malformed float
        Fraction of records with a broken timestamp or id (default 0.02)
  -duplicates float
        Fraction of records duplicated with perturbed metrics (default 0.05)
  -span duration
        Spread observation timestamps over this window (default 72h)
  -seed int
        RNG seed for reproducible runs (default: derived from clock)
  -out string
        Output directory for the per-source JSONL files (default: records_TIMESTAMP)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Generate with defaults
  go run cmd/gen-records/main.go

  # Reproducible large run
  go run cmd/gen-records/main.go -records 50000 -seed 42 -out testdata/records

  # Clean input with no planted defects
  go run cmd/gen-records/main.go -malformed 0 -duplicates 0
`)
}
