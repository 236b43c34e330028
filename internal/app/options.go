package service

import (
	"time"

	"github.com/okian/trendpipe/internal/domain/clean"
	"github.com/okian/trendpipe/internal/domain/merge"
	"github.com/okian/trendpipe/internal/domain/normalize"
	"github.com/okian/trendpipe/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithGranularity sets the merge time-bucket width.
func WithGranularity(g merge.Granularity) Option {
	return func(s *Service) {
		s.granularity = g
	}
}

// WithPolicy sets the duplicate resolution policy.
func WithPolicy(p clean.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithScaling sets the metric rescaling method.
func WithScaling(sc normalize.Scaling) Option {
	return func(s *Service) {
		s.scaling = sc
	}
}

// WithLinkage sets the source-native to canonical entity id mapping.
func WithLinkage(linkage map[string]string) Option {
	return func(s *Service) {
		if linkage != nil {
			s.linkage = linkage
		}
	}
}

// WithDimensions sets the tag dimensions the filter engine recognizes.
func WithDimensions(dims ...string) Option {
	return func(s *Service) {
		if len(dims) > 0 {
			s.dimensions = dims
		}
	}
}

// WithRefreshInterval sets the snapshot rebuild cadence.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.refreshInterval = d
		}
	}
}

// WithRetention bounds how old a staged record may be. Zero keeps everything.
func WithRetention(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.retention = d
		}
	}
}

// WithQueueSize bounds the in-memory batch queue.
func WithQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}
