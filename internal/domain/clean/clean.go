// Package clean validates and repairs raw records before normalization.
package clean

import (
	"context"
	"sort"
	"time"

	"github.com/okian/trendpipe/internal/domain/record"
	"github.com/okian/trendpipe/pkg/logger"
	"github.com/okian/trendpipe/pkg/metrics"
)

// Default cleaner configuration constants.
const (
	// defaultMaxFuture is how far in the future a timestamp may sit before
	// it counts as malformed clock data.
	defaultMaxFuture = 24 * time.Hour
)

// Policy selects how duplicate (timestamp, entity_id, source) keys are
// resolved.
type Policy string

const (
	// PolicyKeepLatest keeps the record ingested last for a duplicate key.
	PolicyKeepLatest Policy = "keep_latest"
	// PolicySumMetrics sums metric values across duplicates. Absent stays
	// absent: a metric appears in the result only if at least one duplicate
	// carried it.
	PolicySumMetrics Policy = "sum_metrics"
)

// ParsePolicy converts a configuration string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyKeepLatest, PolicySumMetrics:
		return Policy(s), nil
	case "":
		return PolicyKeepLatest, nil
	}
	return "", ErrUnknownPolicy
}

// Cleaner turns a sequence of raw records into a valid, deduplicated
// sequence. Per-record malformation never propagates as an error; it lands
// in the Report instead.
type Cleaner interface {
	Clean(ctx context.Context, in []record.Record) ([]record.Record, Report)
}

// recordCleaner implements Cleaner.
type recordCleaner struct {
	policy    Policy
	maxFuture time.Duration
	now       func() time.Time
	log       logger.Logger
}

// New creates a Cleaner with configuration options.
func New(opts ...Option) Cleaner {
	c := &recordCleaner{
		policy:    PolicyKeepLatest,
		maxFuture: defaultMaxFuture,
		now:       time.Now,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Clean validates, repairs, and deduplicates records. The input slice is
// never mutated; kept records are deep copies in canonical order
// (timestamp, entity, source).
func (c *recordCleaner) Clean(ctx context.Context, in []record.Record) ([]record.Record, Report) {
	report := NewReport()
	report.Input = len(in)
	metrics.RecordIngested(len(in))

	horizon := c.now().Add(c.maxFuture)

	byKey := make(map[record.Key]record.Record, len(in))
	order := make([]record.Key, 0, len(in))

	for i := range in {
		rec, reason := c.repair(in[i], horizon)
		if reason != "" {
			report.Reject(reason)
			metrics.RecordRejected(reason)
			c.log.Debug(ctx, "record rejected",
				logger.String("reason", reason),
				logger.String("entity", in[i].EntityID),
				logger.String("source", in[i].Source),
			)
			continue
		}
		report.DroppedMetrics += countDropped(in[i], rec)

		key := rec.Key()
		prev, dup := byKey[key]
		if !dup {
			byKey[key] = rec
			order = append(order, key)
			continue
		}
		report.Duplicates++
		metrics.RecordDuplicateResolved(string(c.policy))
		byKey[key] = c.resolve(prev, rec)
	}

	out := make([]record.Record, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		if out[i].EntityID != out[j].EntityID {
			return out[i].EntityID < out[j].EntityID
		}
		return out[i].Source < out[j].Source
	})

	report.Kept = len(out)
	if report.Duplicates > 0 || report.TotalRejected() > 0 {
		c.log.Info(ctx, "batch cleaned",
			logger.Int("input", report.Input),
			logger.Int("kept", report.Kept),
			logger.Int("rejected", report.TotalRejected()),
			logger.Int("duplicates", report.Duplicates),
		)
	}
	return out, report
}

// repair validates one record and returns a cleaned copy, or a rejection
// reason. Negative metric values are dropped (left absent), not fatal.
func (c *recordCleaner) repair(in record.Record, horizon time.Time) (record.Record, string) {
	switch {
	case in.Timestamp.IsZero():
		return record.Record{}, ReasonZeroTimestamp
	case in.Timestamp.After(horizon):
		return record.Record{}, ReasonFutureTimestamp
	case in.EntityID == "":
		return record.Record{}, ReasonEmptyEntity
	case in.Source == "":
		return record.Record{}, ReasonEmptySource
	}

	out := in.Clone()
	for name, v := range out.Metrics {
		if v < 0 {
			delete(out.Metrics, name)
			metrics.RecordMetricDropped()
		}
	}
	return out, ""
}

// resolve merges two records sharing a key according to the policy.
func (c *recordCleaner) resolve(prev, next record.Record) record.Record {
	if c.policy == PolicyKeepLatest {
		return next
	}

	out := prev.Clone()
	for name, v := range next.Metrics {
		if existing, ok := out.Metrics[name]; ok {
			out.SetMetric(name, existing+v)
		} else {
			out.SetMetric(name, v)
		}
	}
	// Tags are descriptive, not additive: first seen wins.
	for dim, v := range next.Tags {
		if _, ok := out.Tags[dim]; !ok {
			if out.Tags == nil {
				out.Tags = make(map[string]string, 1)
			}
			out.Tags[dim] = v
		}
	}
	return out
}

func countDropped(before, after record.Record) int {
	return len(before.Metrics) - len(after.Metrics)
}
