// Package clean validates and repairs raw records before normalization.
package clean

import (
	"time"

	"github.com/okian/trendpipe/pkg/logger"
)

// Option applies a configuration option to the recordCleaner.
type Option func(*recordCleaner)

// WithPolicy sets the duplicate resolution policy.
func WithPolicy(p Policy) Option {
	return func(c *recordCleaner) {
		if p == PolicyKeepLatest || p == PolicySumMetrics {
			c.policy = p
		}
	}
}

// WithMaxFuture sets how far in the future a timestamp may lie before the
// record counts as malformed.
func WithMaxFuture(d time.Duration) Option {
	return func(c *recordCleaner) {
		if d > 0 {
			c.maxFuture = d
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *recordCleaner) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger used for data-quality reporting.
func WithLogger(log logger.Logger) Option {
	return func(c *recordCleaner) {
		if log != nil {
			c.log = log
		}
	}
}
