package merge

import (
	"sort"
	"time"
)

// UnifiedRow is the merged, cross-source representation of one entity at one
// time bucket. Source metrics are namespaced "<source>.<metric>"; derived
// metrics (e.g. engagement_rate) keep their plain name. A source that did
// not report is simply absent from Metrics and Sources — never zero-filled.
type UnifiedRow struct {
	Bucket   time.Time
	EntityID string
	Metrics  map[string]float64
	Tags     map[string]string
	Sources  []string
}

// Metric reports a metric value and whether it is present.
func (r UnifiedRow) Metric(name string) (float64, bool) {
	v, ok := r.Metrics[name]
	return v, ok
}

// Tag reports a tag value and whether it is present.
func (r UnifiedRow) Tag(dimension string) (string, bool) {
	v, ok := r.Tags[dimension]
	return v, ok
}

// HasSource reports whether the named source contributed to this row.
func (r UnifiedRow) HasSource(source string) bool {
	for _, s := range r.Sources {
		if s == source {
			return true
		}
	}
	return false
}

// Table is an immutable snapshot of unified rows for one processing batch.
// Rows are sorted by bucket, then entity. Consumers share the underlying
// rows but never receive a handle they could use to change the table a
// concurrent reader is iterating.
type Table struct {
	rows        []UnifiedRow
	granularity Granularity
	builtAt     time.Time
}

// NewTable builds a table from rows. The slice is owned by the table after
// the call.
func NewTable(rows []UnifiedRow, g Granularity, builtAt time.Time) *Table {
	return &Table{rows: rows, granularity: g, builtAt: builtAt}
}

// EmptyTable returns a valid zero-row table, used before the first rebuild
// and whenever a batch yields no valid records.
func EmptyTable(g Granularity) *Table {
	return &Table{rows: nil, granularity: g}
}

// Rows returns a fresh slice header over the table's rows. Appending to or
// reordering the returned slice never affects the table.
func (t *Table) Rows() []UnifiedRow {
	out := make([]UnifiedRow, len(t.rows))
	copy(out, t.rows)
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Granularity returns the bucket width the table was built with.
func (t *Table) Granularity() Granularity { return t.granularity }

// BuiltAt returns when the table was assembled.
func (t *Table) BuiltAt() time.Time { return t.builtAt }

// MetricColumns returns the sorted union of metric names across all rows.
// Exporters use it to lay out stable headers.
func (t *Table) MetricColumns() []string {
	seen := map[string]bool{}
	for i := range t.rows {
		for name := range t.rows[i].Metrics {
			seen[name] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// TagColumns returns the sorted union of tag dimensions across all rows.
func (t *Table) TagColumns() []string {
	seen := map[string]bool{}
	for i := range t.rows {
		for dim := range t.rows[i].Tags {
			seen[dim] = true
		}
	}
	out := make([]string, 0, len(seen))
	for dim := range seen {
		out = append(out, dim)
	}
	sort.Strings(out)
	return out
}
