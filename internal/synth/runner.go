package synth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/trendpipe/internal/domain/record"
	"github.com/okian/trendpipe/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// Run executes a full generation run: build batches, write one JSONL file
// per source, verify the output, report statistics.
func Run(ctx context.Context, cfg *Config) error {
	log := logger.Get().Named("synth")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting record generation",
		logger.Int("entities", cfg.NumEntities),
		logger.Int("records_per_source", cfg.RecordsPerSource),
		logger.Any("sources", cfg.Sources),
		logger.Float64("malformed_fraction", cfg.MalformedFraction),
		logger.Float64("duplicate_fraction", cfg.DuplicateFraction),
		logger.String("output_dir", cfg.OutputDir),
	)

	gen := NewGenerator(cfg, log)
	batches, err := gen.Generate(ctx, stats)
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	if err := writeBatches(ctx, cfg, batches, stats, log); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	if err := Verify(ctx, cfg, batches, log); err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	log.Info(ctx, "generation completed",
		logger.Int("records", stats.RecordsGenerated),
		logger.Int("malformed", stats.Malformed),
		logger.Int("duplicates", stats.Duplicates),
		logger.Int("files", stats.FilesWritten),
		logger.Int64("seed", gen.Seed()),
		logger.Duration("duration", stats.Duration),
	)
	return nil
}

// writeBatches writes one <source>.jsonl file per batch under OutputDir.
func writeBatches(ctx context.Context, cfg *Config, batches []record.Batch, stats *Stats, log logger.Logger) error {
	dir := cfg.OutputDir
	if dir == "" {
		dir = "records_" + time.Now().Format("20060102_150405")
	}
	if err := os.MkdirAll(dir, directoryPermission); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}

		path := filepath.Join(dir, b.Source+".jsonl")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermission)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		if err := record.EncodeJSONL(f, b.Records); err != nil {
			_ = f.Close()
			return fmt.Errorf("encode %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", path, err)
		}

		stats.FilesWritten++
		log.Info(ctx, "batch written",
			logger.String("path", path),
			logger.Int("records", b.Len()),
		)
	}
	return nil
}
