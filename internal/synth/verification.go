package synth

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/okian/trendpipe/internal/domain/clean"
	"github.com/okian/trendpipe/internal/domain/merge"
	"github.com/okian/trendpipe/internal/domain/normalize"
	"github.com/okian/trendpipe/internal/domain/record"
	"github.com/okian/trendpipe/pkg/logger"
)

const engagementTolerance = 1e-9

// Verify sanity-checks generated batches: sources match the configuration,
// well-formed records carry timestamps inside the configured span, and at
// least one pair of sources shares an entity so merging produces
// cross-source rows. The malformed records planted by the generator are
// expected and skipped.
func Verify(ctx context.Context, cfg *Config, batches []record.Batch, log logger.Logger) error {
	if len(batches) != len(cfg.Sources) {
		return fmt.Errorf("expected %d batches, got %d", len(cfg.Sources), len(batches))
	}

	now := time.Now().UTC()
	earliest := now.Add(-cfg.Span - time.Minute)

	entitiesBySource := make([]map[string]bool, len(batches))
	for i, b := range batches {
		if b.Source != cfg.Sources[i] {
			return fmt.Errorf("batch %d has source %q, expected %q", i, b.Source, cfg.Sources[i])
		}
		if b.Len() == 0 {
			return fmt.Errorf("batch for %q is empty", b.Source)
		}

		seen := map[string]bool{}
		for j := range b.Records {
			rec := &b.Records[j]
			if rec.Timestamp.IsZero() || rec.EntityID == "" {
				continue // planted malformed record
			}
			if rec.Source != b.Source {
				return fmt.Errorf("record %d in %q carries source %q", j, b.Source, rec.Source)
			}
			if rec.Timestamp.Before(earliest) || rec.Timestamp.After(now.Add(time.Minute)) {
				return fmt.Errorf("record %d in %q has timestamp %s outside span", j, b.Source, rec.Timestamp)
			}
			if len(rec.Metrics) == 0 {
				return fmt.Errorf("record %d in %q has no metrics", j, b.Source)
			}
			seen[rec.EntityID] = true
		}
		entitiesBySource[i] = seen
	}

	if len(batches) > 1 && !anyOverlap(entitiesBySource) {
		return fmt.Errorf("no entity appears in more than one source; merge output would never join")
	}

	if err := verifyPipeline(ctx, batches); err != nil {
		return err
	}

	log.Info(ctx, "batches verified", logger.Int("sources", len(batches)))
	return nil
}

// verifyPipeline runs the generated batches through the real stages and
// checks the output invariants: the cleaner leaves no duplicate keys, the
// merged table holds one row per (bucket, entity), and engagement rates are
// consistent with the raw likes/views they derive from.
func verifyPipeline(ctx context.Context, batches []record.Batch) error {
	all := make([]record.Record, 0)
	for _, b := range batches {
		all = append(all, b.Records...)
	}

	cleaned, report := clean.New().Clean(ctx, all)
	if report.Kept == 0 {
		return fmt.Errorf("cleaner kept nothing from %d records", report.Input)
	}
	seen := make(map[record.Key]bool, len(cleaned))
	for i := range cleaned {
		key := cleaned[i].Key()
		if seen[key] {
			return fmt.Errorf("cleaner output contains duplicate key %s", key)
		}
		seen[key] = true
	}

	normalized := normalize.New().Normalize(ctx, cleaned)
	for i := range normalized {
		views, okV := normalized[i].Metric(record.MetricViews)
		likes, okL := normalized[i].Metric(record.MetricLikes)
		er, okE := normalized[i].Metric(record.MetricEngagementRate)
		if okV && okL && views > 0 {
			if !okE {
				return fmt.Errorf("engagement rate missing for %s", normalized[i].Key())
			}
			if math.Abs(er-likes/views*100) > engagementTolerance {
				return fmt.Errorf("engagement rate %f inconsistent with likes/views for %s", er, normalized[i].Key())
			}
		} else if okE {
			return fmt.Errorf("engagement rate present without its inputs for %s", normalized[i].Key())
		}
	}

	table := merge.New().Merge(ctx, normalized)
	rowKeys := make(map[string]bool, table.Len())
	for _, row := range table.Rows() {
		key := row.Bucket.Format(time.RFC3339) + "|" + row.EntityID
		if rowKeys[key] {
			return fmt.Errorf("merged table holds two rows for %s", key)
		}
		rowKeys[key] = true
		if len(row.Sources) == 0 {
			return fmt.Errorf("merged row %s lists no sources", key)
		}
	}
	return nil
}

// anyOverlap reports whether any entity appears in at least two source sets.
func anyOverlap(sets []map[string]bool) bool {
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			for e := range sets[i] {
				if sets[j][e] {
					return true
				}
			}
		}
	}
	return false
}
