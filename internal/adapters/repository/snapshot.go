package repository

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/okian/trendpipe/internal/domain/filter"
	"github.com/okian/trendpipe/internal/domain/merge"
	"github.com/okian/trendpipe/pkg/logger"
	"github.com/okian/trendpipe/pkg/metrics"
)

// SnapshotStore implements Store with an atomically swapped table pointer.
// Tables are immutable, so no locking is needed: a reader holding the old
// snapshot is unaffected by a concurrent Replace.
type SnapshotStore struct {
	current atomic.Pointer[merge.Table]
	engine  *filter.Engine
	log     logger.Logger
}

// Option applies a configuration option to the SnapshotStore.
type Option func(*SnapshotStore)

// WithGranularity sets the granularity of the pre-first-replace empty table.
func WithGranularity(g merge.Granularity) Option {
	return func(s *SnapshotStore) {
		s.current.Store(merge.EmptyTable(g))
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(s *SnapshotStore) {
		if log != nil {
			s.log = log
		}
	}
}

// NewSnapshotStore creates a store serving queries through engine.
func NewSnapshotStore(engine *filter.Engine, opts ...Option) *SnapshotStore {
	s := &SnapshotStore{
		engine: engine,
		log:    logger.Nop(),
	}
	s.current.Store(merge.EmptyTable(merge.Daily))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Replace installs table as the current snapshot. Nil tables are ignored; a
// run that produced nothing valid still replaces with an empty table, which
// is a different thing.
func (s *SnapshotStore) Replace(ctx context.Context, table *merge.Table) {
	if table == nil {
		return
	}
	s.current.Store(table)
	metrics.UpdateSnapshot(table.Len(), table.BuiltAt())
	s.log.Debug(ctx, "snapshot replaced",
		logger.Int("rows", table.Len()),
		logger.Time("built_at", table.BuiltAt()),
	)
}

// Table returns the current snapshot.
func (s *SnapshotStore) Table(_ context.Context) *merge.Table {
	return s.current.Load()
}

// Query evaluates spec against the current snapshot.
func (s *SnapshotStore) Query(ctx context.Context, spec filter.Spec) ([]merge.UnifiedRow, error) {
	return s.engine.Apply(ctx, s.current.Load(), spec)
}

// Count returns the number of rows in the current snapshot.
func (s *SnapshotStore) Count(_ context.Context) int {
	return s.current.Load().Len()
}

// LastBuilt returns when the current snapshot was assembled.
func (s *SnapshotStore) LastBuilt(_ context.Context) time.Time {
	return s.current.Load().BuiltAt()
}
