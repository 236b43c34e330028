// Package merge joins normalized records into unified rows.
package merge

import (
	"time"

	"github.com/okian/trendpipe/internal/domain/clean"
	"github.com/okian/trendpipe/pkg/logger"
)

// Option applies a configuration option to the rowMerger.
type Option func(*rowMerger)

// WithGranularity sets the time-bucket width.
func WithGranularity(g Granularity) Option {
	return func(m *rowMerger) {
		if g == Hourly || g == Daily {
			m.granularity = g
		}
	}
}

// WithLinkage sets the explicit entity linkage mapping from source-native
// ids to canonical ids. The map is copied.
func WithLinkage(linkage map[string]string) Option {
	return func(m *rowMerger) {
		m.linkage = make(map[string]string, len(linkage))
		for from, to := range linkage {
			m.linkage[from] = to
		}
	}
}

// WithPolicy sets how records of one source collapsing into the same bucket
// are resolved. Mirrors the cleaner's duplicate policy.
func WithPolicy(p clean.Policy) Option {
	return func(m *rowMerger) {
		if p == clean.PolicyKeepLatest || p == clean.PolicySumMetrics {
			m.policy = p
		}
	}
}

// WithDerived declares metric names that are derived rather than
// source-reported. Derived metrics are promoted un-namespaced into unified
// rows.
func WithDerived(names ...string) Option {
	return func(m *rowMerger) {
		m.derived = make(map[string]bool, len(names))
		for _, name := range names {
			m.derived[name] = true
		}
	}
}

// WithClock overrides the time source used for Table.BuiltAt. Intended for
// tests.
func WithClock(now func() time.Time) Option {
	return func(m *rowMerger) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(m *rowMerger) {
		if log != nil {
			m.log = log
		}
	}
}
