// Package merge joins normalized records from multiple sources into unified
// rows keyed by (time bucket, entity).
package merge

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/okian/trendpipe/internal/domain/clean"
	"github.com/okian/trendpipe/internal/domain/record"
	"github.com/okian/trendpipe/pkg/logger"
	"github.com/okian/trendpipe/pkg/metrics"
)

// Granularity is the fixed bucket width timestamps are floored to before
// grouping.
type Granularity string

const (
	Hourly Granularity = "hourly"
	Daily  Granularity = "daily"
)

// ErrUnknownGranularity is returned for unrecognized granularity
// configuration.
var ErrUnknownGranularity = errors.New("unknown bucket granularity")

// ParseGranularity converts a configuration string into a Granularity.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case Hourly, Daily:
		return Granularity(s), nil
	case "":
		return Daily, nil
	}
	return "", ErrUnknownGranularity
}

// Bucket floors t to the bucket boundary in UTC.
func (g Granularity) Bucket(t time.Time) time.Time {
	u := t.UTC()
	if g == Hourly {
		return u.Truncate(time.Hour)
	}
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Merger joins records into a Table. Entity matching across sources uses the
// explicit linkage mapping only; there is no fuzzy matching.
type Merger interface {
	Merge(ctx context.Context, in []record.Record) *Table
}

type rowMerger struct {
	granularity Granularity
	linkage     map[string]string
	policy      clean.Policy
	derived     map[string]bool
	now         func() time.Time
	log         logger.Logger
}

// New creates a Merger with configuration options.
func New(opts ...Option) Merger {
	m := &rowMerger{
		granularity: Daily,
		linkage:     map[string]string{},
		policy:      clean.PolicyKeepLatest,
		derived:     map[string]bool{record.MetricEngagementRate: true},
		now:         time.Now,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type groupKey struct {
	bucket time.Time
	entity string
}

// Merge builds the unified table. Output is deterministic regardless of
// input order: records are canonically sorted before grouping and every
// cross-source choice is resolved by source-name order.
func (m *rowMerger) Merge(ctx context.Context, in []record.Record) *Table {
	sorted := make([]record.Record, len(in))
	copy(sorted, in)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		if sorted[i].EntityID != sorted[j].EntityID {
			return sorted[i].EntityID < sorted[j].EntityID
		}
		return sorted[i].Source < sorted[j].Source
	})

	// Group by (bucket, canonical entity), keeping one record per source
	// inside each group.
	groups := make(map[groupKey]map[string]record.Record)
	for _, rec := range sorted {
		key := groupKey{
			bucket: m.granularity.Bucket(rec.Timestamp),
			entity: m.canonical(rec.EntityID),
		}
		bySource, ok := groups[key]
		if !ok {
			bySource = make(map[string]record.Record, 2)
			groups[key] = bySource
		}
		if prev, dup := bySource[rec.Source]; dup {
			bySource[rec.Source] = m.collapse(prev, rec)
			metrics.RecordDuplicateResolved(string(m.policy))
		} else {
			bySource[rec.Source] = rec
		}
	}

	rows := make([]UnifiedRow, 0, len(groups))
	sourceSet := map[string]bool{}
	for key, bySource := range groups {
		rows = append(rows, m.buildRow(key, bySource))
		for source := range bySource {
			sourceSet[source] = true
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Bucket.Equal(rows[j].Bucket) {
			return rows[i].Bucket.Before(rows[j].Bucket)
		}
		return rows[i].EntityID < rows[j].EntityID
	})

	table := NewTable(rows, m.granularity, m.now())

	absent := 0
	for i := range rows {
		absent += len(sourceSet) - len(rows[i].Sources)
	}
	metrics.UpdateMergeRows(len(rows))
	metrics.UpdateAbsentCells(absent)
	if len(rows) == 0 {
		// Not fatal: downstream consumers must handle empty tables.
		metrics.RecordEmptyMerge()
		metrics.RecordErrorByComponent("merger", "empty_result")
		m.log.Warn(ctx, "merge produced an empty table", logger.Int("input", len(in)))
	}
	return table
}

// canonical maps a source-native entity id through the linkage table.
// Unmapped ids pass through unchanged, so unlinked single-platform content
// stays visible under its own id.
func (m *rowMerger) canonical(entityID string) string {
	if mapped, ok := m.linkage[entityID]; ok && mapped != "" {
		return mapped
	}
	return entityID
}

// collapse resolves two records of the same source landing in one bucket.
// keep_latest keeps the later timestamp; sum_metrics sums raw metrics but
// keeps annotations (_norm, derived) from the later record, since those are
// not additive.
func (m *rowMerger) collapse(prev, next record.Record) record.Record {
	// Input is sorted, so next is the later (or equal) timestamp.
	if m.policy == clean.PolicyKeepLatest {
		return next
	}
	out := next.Clone()
	for name, v := range prev.Metrics {
		if !m.additive(name) {
			continue
		}
		if existing, ok := out.Metrics[name]; ok {
			out.SetMetric(name, existing+v)
		} else {
			out.SetMetric(name, v)
		}
	}
	for dim, v := range prev.Tags {
		if _, ok := out.Tags[dim]; !ok {
			if out.Tags == nil {
				out.Tags = make(map[string]string, 1)
			}
			out.Tags[dim] = v
		}
	}
	return out
}

func (m *rowMerger) additive(name string) bool {
	return !strings.HasSuffix(name, record.NormSuffix) && !m.derived[name]
}

// buildRow assembles one UnifiedRow from the per-source records of a group.
func (m *rowMerger) buildRow(key groupKey, bySource map[string]record.Record) UnifiedRow {
	sources := make([]string, 0, len(bySource))
	for source := range bySource {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	row := UnifiedRow{
		Bucket:   key.bucket,
		EntityID: key.entity,
		Metrics:  make(map[string]float64),
		Tags:     make(map[string]string),
		Sources:  sources,
	}

	// Iterate sources in sorted order so tag and derived-metric conflicts
	// resolve the same way every run: the lexicographically smallest source
	// wins.
	for _, source := range sources {
		rec := bySource[source]
		for name, v := range rec.Metrics {
			if m.derived[name] {
				if _, taken := row.Metrics[name]; !taken {
					row.Metrics[name] = v
				}
				continue
			}
			row.Metrics[source+"."+name] = v
		}
		for dim, v := range rec.Tags {
			if _, taken := row.Tags[dim]; !taken {
				row.Tags[dim] = v
			}
		}
	}
	return row
}
