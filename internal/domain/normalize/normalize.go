// Package normalize computes derived metrics and rescales raw ones into
// comparable units across heterogeneous sources.
package normalize

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/okian/trendpipe/internal/domain/record"
	"github.com/okian/trendpipe/pkg/logger"
	"github.com/okian/trendpipe/pkg/metrics"
)

// Scaling selects how raw metrics are rescaled.
type Scaling string

const (
	// ScalingMinMax rescales each (source, metric) to [0, 1] per batch.
	ScalingMinMax Scaling = "minmax"
	// ScalingZScore rescales each (source, metric) to zero mean and unit
	// variance per batch.
	ScalingZScore Scaling = "zscore"
	// ScalingNone computes derived metrics only.
	ScalingNone Scaling = "none"
)

// ErrUnknownScaling is returned for unrecognized scaling configuration.
var ErrUnknownScaling = errors.New("unknown scaling mode")

// ParseScaling converts a configuration string into a Scaling.
func ParseScaling(s string) (Scaling, error) {
	switch Scaling(s) {
	case ScalingMinMax, ScalingZScore, ScalingNone:
		return Scaling(s), nil
	case "":
		return ScalingMinMax, nil
	}
	return "", ErrUnknownScaling
}

// Derivation computes a derived metric from one record. Returning false
// means the inputs are missing and the metric stays absent.
type Derivation func(record.Record) (float64, bool)

// EngagementRate is likes / views * 100, defined only when both metrics are
// present and views is positive.
func EngagementRate(r record.Record) (float64, bool) {
	views, okV := r.Metric(record.MetricViews)
	likes, okL := r.Metric(record.MetricLikes)
	if !okV || !okL || views <= 0 {
		return 0, false
	}
	return likes / views * 100, true
}

// Normalizer annotates cleaned records with derived and rescaled metrics.
//
// Scaling parameters are computed per source per batch over raw metric names
// only, and results land under separate "<metric>_norm" keys. Raw values are
// never overwritten, so Normalize(Normalize(x)) == Normalize(x).
type Normalizer interface {
	Normalize(ctx context.Context, in []record.Record) []record.Record
}

type metricNormalizer struct {
	scaling     Scaling
	derivations map[string]Derivation
	log         logger.Logger
}

// New creates a Normalizer with configuration options. The engagement-rate
// derivation is installed by default.
func New(opts ...Option) Normalizer {
	n := &metricNormalizer{
		scaling: ScalingMinMax,
		derivations: map[string]Derivation{
			record.MetricEngagementRate: EngagementRate,
		},
		log: logger.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// span accumulates per-(source, metric) statistics for one batch.
type span struct {
	min, max float64
	sum      float64
	sumSq    float64
	count    int
}

func (s *span) add(v float64) {
	if s.count == 0 || v < s.min {
		s.min = v
	}
	if s.count == 0 || v > s.max {
		s.max = v
	}
	s.sum += v
	s.sumSq += v * v
	s.count++
}

func (s *span) mean() float64 { return s.sum / float64(s.count) }

func (s *span) stddev() float64 {
	m := s.mean()
	return math.Sqrt(s.sumSq/float64(s.count) - m*m)
}

type spanKey struct {
	source string
	metric string
}

// Normalize returns annotated deep copies; the input is never mutated.
func (n *metricNormalizer) Normalize(ctx context.Context, in []record.Record) []record.Record {
	out := make([]record.Record, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}

	// Derived metrics first: they are recomputed from raw inputs on every
	// pass, which keeps re-entry a no-op.
	for i := range out {
		for name, derive := range n.derivations {
			v, ok := derive(out[i])
			if !ok {
				delete(out[i].Metrics, name)
				continue
			}
			if _, had := out[i].Metrics[name]; !had {
				metrics.RecordDerivedComputed()
			}
			out[i].SetMetric(name, v)
		}
	}

	if n.scaling == ScalingNone {
		return out
	}

	spans := make(map[spanKey]*span)
	for i := range out {
		for name, v := range out[i].Metrics {
			if !n.isRaw(name) {
				continue
			}
			key := spanKey{source: out[i].Source, metric: name}
			s, ok := spans[key]
			if !ok {
				s = &span{}
				spans[key] = s
			}
			s.add(v)
		}
	}

	skipped := 0
	for i := range out {
		for name, v := range out[i].Metrics {
			if !n.isRaw(name) {
				continue
			}
			s := spans[spanKey{source: out[i].Source, metric: name}]
			scaled, ok := n.scale(s, v)
			if !ok {
				// Degenerate span: leave the metric unscaled rather than
				// inventing a value.
				delete(out[i].Metrics, name+record.NormSuffix)
				skipped++
				metrics.RecordScalingSkip()
				continue
			}
			out[i].SetMetric(name+record.NormSuffix, scaled)
		}
	}
	if skipped > 0 {
		n.log.Debug(ctx, "scaling skipped for degenerate spans", logger.Int("values", skipped))
	}

	return out
}

// isRaw reports whether name is a source-reported metric, as opposed to a
// derived metric or a previously written _norm annotation.
func (n *metricNormalizer) isRaw(name string) bool {
	if strings.HasSuffix(name, record.NormSuffix) {
		return false
	}
	_, derived := n.derivations[name]
	return !derived
}

func (n *metricNormalizer) scale(s *span, v float64) (float64, bool) {
	switch n.scaling {
	case ScalingZScore:
		sd := s.stddev()
		if sd == 0 {
			return 0, false
		}
		return (v - s.mean()) / sd, true
	default: // ScalingMinMax
		if s.max == s.min {
			return 0, false
		}
		return (v - s.min) / (s.max - s.min), true
	}
}
