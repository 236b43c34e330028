// Package service assembles the preprocessing pipeline: queue, refresher,
// snapshot store, and the filter engine behind one facade.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/okian/trendpipe/internal/adapters/mq/queue"
	"github.com/okian/trendpipe/internal/adapters/mq/worker"
	"github.com/okian/trendpipe/internal/adapters/repository"
	"github.com/okian/trendpipe/internal/domain/clean"
	"github.com/okian/trendpipe/internal/domain/filter"
	"github.com/okian/trendpipe/internal/domain/merge"
	"github.com/okian/trendpipe/internal/domain/normalize"
	"github.com/okian/trendpipe/internal/domain/record"
	"github.com/okian/trendpipe/pkg/logger"
)

// Default service configuration constants.
const (
	defaultQueueSize       = 1024
	defaultRefreshInterval = 5 * time.Minute
	defaultRetention       = 7 * 24 * time.Hour
)

// Service implements the preprocessing core's public surface: ingest record
// batches, rebuild the unified table, query it.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     *repository.SnapshotStore
	queue     *queue.InMemoryQueue
	refresher *worker.Refresher
	engine    *filter.Engine

	// Configuration
	granularity     merge.Granularity
	policy          clean.Policy
	scaling         normalize.Scaling
	linkage         map[string]string
	dimensions      []string
	refreshInterval time.Duration
	retention       time.Duration
	queueSize       int

	// State
	started bool
	cancel  context.CancelFunc

	// Logging
	log logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		granularity:     merge.Daily,
		policy:          clean.PolicyKeepLatest,
		scaling:         normalize.ScalingMinMax,
		linkage:         map[string]string{},
		dimensions:      []string{record.TagGenre, record.TagRegion, record.TagCategory},
		refreshInterval: defaultRefreshInterval,
		retention:       defaultRetention,
		queueSize:       defaultQueueSize,
		log:             nil, // Replaced at Start if unset.
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the components and launches the refresh loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.log == nil {
		s.log = logger.Get()
	}

	s.engine = filter.New(
		filter.WithDimensions(s.dimensions...),
		filter.WithLogger(s.log.Named("filter")),
	)
	s.store = repository.NewSnapshotStore(s.engine,
		repository.WithGranularity(s.granularity),
		repository.WithLogger(s.log.Named("store")),
	)
	s.queue = queue.NewInMemoryQueue(
		queue.WithCapacity(s.queueSize),
	)

	cleaner := clean.New(
		clean.WithPolicy(s.policy),
		clean.WithLogger(s.log.Named("cleaner")),
	)
	normalizer := normalize.New(
		normalize.WithScaling(s.scaling),
		normalize.WithLogger(s.log.Named("normalizer")),
	)
	merger := merge.New(
		merge.WithGranularity(s.granularity),
		merge.WithLinkage(s.linkage),
		merge.WithPolicy(s.policy),
		merge.WithLogger(s.log.Named("merger")),
	)

	s.refresher = worker.NewRefresher(s.queue, cleaner, normalizer, merger, s.store,
		worker.WithInterval(s.refreshInterval),
		worker.WithRetention(s.retention),
		worker.WithLogger(s.log.Named("refresher")),
	)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	go s.refresher.Run(runCtx)

	s.started = true
	s.log.Info(ctx, "pipeline service started",
		logger.String("granularity", string(s.granularity)),
		logger.String("policy", string(s.policy)),
		logger.String("scaling", string(s.scaling)),
		logger.Duration("refresh_interval", s.refreshInterval),
		logger.Int("queue_size", s.queueSize),
	)
	return nil
}

// Stop shuts down the refresh loop after a final rebuild.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.log.Info(ctx, "stopping pipeline service...")

	_ = s.queue.Close()
	s.refresher.Stop()
	if s.cancel != nil {
		s.cancel()
	}

	s.started = false
	s.log.Info(ctx, "pipeline service stopped")
}

// Ingest submits a batch from a collaborator fetcher for the next rebuild.
// Returns false if the queue rejected the batch.
func (s *Service) Ingest(ctx context.Context, b record.Batch) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return false
	}
	accepted := s.queue.Enqueue(ctx, b)
	if !accepted {
		s.log.Warn(ctx, "batch rejected by queue",
			logger.String("source", b.Source),
			logger.Int("records", b.Len()),
		)
	}
	return accepted
}

// Refresh synchronously rebuilds the snapshot from everything staged so far.
// Note the queue drains asynchronously; a batch ingested immediately before
// Refresh may land in the following rebuild instead. Callers that need
// everything folded in should allow the drain loop to settle first.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.RLock()
	r := s.refresher
	started := s.started
	s.mu.RUnlock()

	if !started {
		return nil
	}
	return r.Rebuild(ctx)
}

// Table returns the current unified-table snapshot. It stays readable after
// Stop so callers can still see the final rebuild.
func (s *Service) Table(ctx context.Context) *merge.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.store == nil {
		return merge.EmptyTable(s.granularity)
	}
	return s.store.Table(ctx)
}

// Query returns the rows of the current snapshot satisfying spec.
func (s *Service) Query(ctx context.Context, spec filter.Spec) ([]merge.UnifiedRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.store == nil {
		return nil, nil
	}
	return s.store.Query(ctx, spec)
}

// StagedCount returns the number of records awaiting the next rebuild.
func (s *Service) StagedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return 0
	}
	return s.refresher.StagedCount()
}

// Stats returns service statistics for monitoring.
func (s *Service) Stats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":          s.started,
		"granularity":      string(s.granularity),
		"duplicate_policy": string(s.policy),
		"scaling":          string(s.scaling),
		"queue_size":       s.queueSize,
	}
	if s.started {
		ctx := context.Background()
		stats["queue_length"] = s.queue.Len(ctx)
		stats["staged_records"] = s.refresher.StagedCount()
		stats["snapshot_rows"] = s.store.Count(ctx)
		stats["snapshot_built_at"] = s.store.LastBuilt(ctx)
	}
	return stats
}
