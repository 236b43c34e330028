// Package worker drives the pipeline: it drains record batches off the
// queue and periodically rebuilds the unified-table snapshot.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/okian/trendpipe/internal/domain/clean"
	"github.com/okian/trendpipe/internal/domain/merge"
	"github.com/okian/trendpipe/internal/domain/record"
	"github.com/okian/trendpipe/pkg/logger"
	"github.com/okian/trendpipe/pkg/metrics"
)

// Default refresher configuration constants.
const (
	defaultInterval  = 5 * time.Minute
	defaultRetention = 7 * 24 * time.Hour
)

// Cleaner validates and deduplicates staged records.
type Cleaner interface {
	Clean(ctx context.Context, in []record.Record) ([]record.Record, clean.Report)
}

// Normalizer annotates cleaned records with derived and rescaled metrics.
type Normalizer interface {
	Normalize(ctx context.Context, in []record.Record) []record.Record
}

// Merger joins normalized records into a table.
type Merger interface {
	Merge(ctx context.Context, in []record.Record) *merge.Table
}

// Snapshot receives the rebuilt table.
type Snapshot interface {
	Replace(ctx context.Context, table *merge.Table)
}

// Dequeuer defines how the refresher receives batches.
type Dequeuer interface {
	Dequeue(ctx context.Context) <-chan record.Batch
}

// Refresher accumulates batches into a staging area and, on every interval
// tick or explicit Refresh call, runs Clean -> Normalize -> Merge as one
// unit and swaps the snapshot. A cancelled run abandons its result and
// leaves the previous snapshot in place; it never leaves a half-built table
// visible.
type Refresher struct {
	queue      Dequeuer
	cleaner    Cleaner
	normalizer Normalizer
	merger     Merger
	snapshot   Snapshot

	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	log       logger.Logger

	// staged holds the rolling window of records awaiting the next rebuild,
	// keyed by record identity so a re-fetch of the same observation
	// supersedes the earlier one instead of accumulating.
	mu     sync.Mutex
	staged map[record.Key]record.Record

	rebuildMu sync.Mutex

	shutdown chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewRefresher creates a Refresher wiring the queue to the pipeline stages.
func NewRefresher(q Dequeuer, c Cleaner, n Normalizer, m Merger, s Snapshot, opts ...Option) *Refresher {
	r := &Refresher{
		queue:      q,
		cleaner:    c,
		normalizer: n,
		merger:     m,
		snapshot:   s,
		interval:   defaultInterval,
		retention:  defaultRetention,
		now:        time.Now,
		log:        logger.Nop(),
		staged:     make(map[record.Key]record.Record),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts the drain-and-rebuild loop until ctx is cancelled or Stop is
// called. It is meant to run in its own goroutine.
func (r *Refresher) Run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	ch := r.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.shutdown:
			// Fold in whatever already arrived before going away.
			if err := r.Rebuild(context.Background()); err != nil {
				r.log.Warn(ctx, "final rebuild failed", logger.Error(err))
			}
			return
		case b, ok := <-ch:
			if !ok {
				ch = nil
				continue
			}
			r.stage(ctx, b)
		case <-ticker.C:
			if err := r.Rebuild(ctx); err != nil {
				r.log.Warn(ctx, "scheduled rebuild abandoned", logger.Error(err))
			}
		}
	}
}

// Stop signals the loop to exit after a final rebuild and waits for it.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() { close(r.shutdown) })
	<-r.done
}

// stage folds a batch into the staging window.
func (r *Refresher) stage(ctx context.Context, b record.Batch) {
	r.mu.Lock()
	for i := range b.Records {
		r.staged[b.Records[i].Key()] = b.Records[i]
	}
	size := len(r.staged)
	r.mu.Unlock()

	metrics.UpdateStagedRecords(size)
	r.log.Debug(ctx, "batch staged",
		logger.String("source", b.Source),
		logger.Int("records", b.Len()),
		logger.Int("staged", size),
	)
}

// Rebuild runs the full pipeline over the staged window and swaps the
// snapshot. Safe to call concurrently with the loop; rebuilds serialize.
func (r *Refresher) Rebuild(ctx context.Context) error {
	r.rebuildMu.Lock()
	defer r.rebuildMu.Unlock()

	start := r.now()
	staged := r.collect()

	if err := ctx.Err(); err != nil {
		return err
	}

	cleaned, report := r.cleaner.Clean(ctx, staged)
	normalized := r.normalizer.Normalize(ctx, cleaned)
	table := r.merger.Merge(ctx, normalized)

	// Abandon the result of a cancelled run rather than publishing a table
	// built from a possibly torn-down context.
	if err := ctx.Err(); err != nil {
		return err
	}

	r.snapshot.Replace(ctx, table)
	metrics.ObserveRebuild(r.now().Sub(start))
	r.log.Info(ctx, "snapshot rebuilt",
		logger.Int("staged", len(staged)),
		logger.Int("kept", report.Kept),
		logger.Int("rejected", report.TotalRejected()),
		logger.Int("duplicates", report.Duplicates),
		logger.Int("rows", table.Len()),
	)
	return nil
}

// collect prunes records that aged out of the retention window and returns
// a copy of the remaining staged records.
func (r *Refresher) collect() []record.Record {
	cutoff := time.Time{}
	if r.retention > 0 {
		cutoff = r.now().Add(-r.retention)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]record.Record, 0, len(r.staged))
	for key, rec := range r.staged {
		if !cutoff.IsZero() && rec.Timestamp.Before(cutoff) {
			delete(r.staged, key)
			continue
		}
		out = append(out, rec)
	}
	metrics.UpdateStagedRecords(len(r.staged))
	return out
}

// StagedCount returns the number of records awaiting the next rebuild.
func (r *Refresher) StagedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.staged)
}
