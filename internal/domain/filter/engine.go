package filter

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/trendpipe/internal/domain/merge"
	"github.com/okian/trendpipe/pkg/logger"
	"github.com/okian/trendpipe/pkg/metrics"
)

// Engine evaluates Specs against a table. It is constructed once with the
// set of recognized tag dimensions; filtering on anything else is a
// configuration error, never silently ignored.
type Engine struct {
	dimensions map[string]bool
	log        logger.Logger
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithDimensions sets the recognized tag dimensions.
func WithDimensions(dims ...string) Option {
	return func(e *Engine) {
		for _, dim := range dims {
			e.dimensions[dim] = true
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// New creates an Engine with configuration options.
func New(opts ...Option) *Engine {
	e := &Engine{
		dimensions: map[string]bool{},
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply returns the rows of table satisfying every predicate of spec, as a
// fresh slice. The table is never mutated. An empty spec returns the full
// table.
func (e *Engine) Apply(ctx context.Context, table *merge.Table, spec Spec) ([]merge.UnifiedRow, error) {
	start := time.Now()
	defer func() { metrics.RecordFilterQuery(time.Since(start)) }()

	for _, dim := range spec.TagDimensions() {
		if !e.dimensions[dim] {
			metrics.RecordUnknownDimension()
			e.log.Warn(ctx, "filter query names unknown dimension", logger.String("dimension", dim))
			return nil, fmt.Errorf("%w: %q", ErrUnknownDimension, dim)
		}
	}

	rows := table.Rows()
	if spec.IsEmpty() {
		return rows, nil
	}

	out := rows[:0]
	for _, row := range rows {
		if e.matches(row, spec) {
			out = append(out, row)
		}
	}
	return out, nil
}

// matches evaluates all predicates; each is independently evaluable, the
// ordering here is only about bailing out early.
func (e *Engine) matches(row merge.UnifiedRow, spec Spec) bool {
	if spec.hasRange {
		if !spec.from.IsZero() && row.Bucket.Before(spec.from) {
			return false
		}
		if !spec.to.IsZero() && !row.Bucket.Before(spec.to) {
			return false
		}
	}
	if len(spec.entities) > 0 && !spec.entities[row.EntityID] {
		return false
	}
	for _, source := range spec.sources {
		if !row.HasSource(source) {
			return false
		}
	}
	for dim, allowed := range spec.tags {
		value, ok := row.Tag(dim)
		if !ok {
			return false
		}
		found := false
		for _, v := range allowed {
			if v == value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
