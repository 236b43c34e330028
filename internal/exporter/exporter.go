// Package exporter writes unified-table snapshots to tabular files for
// downstream analytics and recommendation jobs.
//
// Layout is identical across formats: one header row, then one line per
// unified row. Fixed columns (bucket, entity_id, sources) come first,
// followed by the table's metric columns and tag columns in sorted order.
// An absent metric renders as an empty cell, never as zero.
package exporter

import (
	"strconv"
	"strings"
	"time"

	"github.com/okian/trendpipe/internal/domain/merge"
)

// Fixed leading columns shared by all export formats.
const (
	colBucket   = "bucket"
	colEntityID = "entity_id"
	colSources  = "sources"
)

const sourceSeparator = ";"

// layout is the flattened view of a table that each format serializes.
type layout struct {
	metricCols []string
	tagCols    []string
}

func newLayout(t *merge.Table) layout {
	return layout{
		metricCols: t.MetricColumns(),
		tagCols:    t.TagColumns(),
	}
}

func (l layout) header() []string {
	out := make([]string, 0, 3+len(l.metricCols)+len(l.tagCols))
	out = append(out, colBucket, colEntityID, colSources)
	out = append(out, l.metricCols...)
	out = append(out, l.tagCols...)
	return out
}

func (l layout) row(r merge.UnifiedRow) []string {
	out := make([]string, 0, 3+len(l.metricCols)+len(l.tagCols))
	out = append(out,
		r.Bucket.UTC().Format(time.RFC3339),
		r.EntityID,
		strings.Join(r.Sources, sourceSeparator),
	)
	for _, name := range l.metricCols {
		if v, ok := r.Metric(name); ok {
			out = append(out, strconv.FormatFloat(v, 'f', -1, 64))
		} else {
			out = append(out, "")
		}
	}
	for _, dim := range l.tagCols {
		v, _ := r.Tag(dim)
		out = append(out, v)
	}
	return out
}
