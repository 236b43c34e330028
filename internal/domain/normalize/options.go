// Package normalize computes derived metrics and rescales raw ones.
package normalize

import (
	"github.com/okian/trendpipe/pkg/logger"
)

// Option applies a configuration option to the metricNormalizer.
type Option func(*metricNormalizer)

// WithScaling sets the rescaling mode.
func WithScaling(s Scaling) Option {
	return func(n *metricNormalizer) {
		if s == ScalingMinMax || s == ScalingZScore || s == ScalingNone {
			n.scaling = s
		}
	}
}

// WithDerivation registers a derived metric. Derived names never feed the
// scaling statistics and are recomputed on every pass.
func WithDerivation(name string, fn Derivation) Option {
	return func(n *metricNormalizer) {
		if name != "" && fn != nil {
			n.derivations[name] = fn
		}
	}
}

// WithoutDerivations removes all registered derivations, including the
// default engagement rate.
func WithoutDerivations() Option {
	return func(n *metricNormalizer) {
		n.derivations = map[string]Derivation{}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(n *metricNormalizer) {
		if log != nil {
			n.log = log
		}
	}
}
