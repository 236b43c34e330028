// Package worker drives the pipeline rebuild loop.
package worker

import (
	"time"

	"github.com/okian/trendpipe/pkg/logger"
)

// Option applies a configuration option to the Refresher.
type Option func(*Refresher)

// WithInterval sets how often the snapshot is rebuilt.
func WithInterval(d time.Duration) Option {
	return func(r *Refresher) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithRetention sets how long staged records stay eligible for rebuilds,
// measured against their own timestamps. Zero keeps everything.
func WithRetention(d time.Duration) Option {
	return func(r *Refresher) {
		if d >= 0 {
			r.retention = d
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Refresher) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(r *Refresher) {
		if log != nil {
			r.log = log
		}
	}
}
