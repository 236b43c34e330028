// Package record contains the canonical observation model shared by all
// pipeline stages.
package record

import (
	"fmt"
	"time"
)

// Well-known metric names. Sources are free to carry others; these are the
// ones the normalizer and the examples care about.
const (
	MetricViews      = "views"
	MetricLikes      = "likes"
	MetricPopularity = "popularity"
	MetricUnitsSold  = "units_sold"

	// MetricEngagementRate is derived: likes / views * 100.
	MetricEngagementRate = "engagement_rate"
)

// Well-known tag dimensions.
const (
	TagGenre    = "genre"
	TagRegion   = "region"
	TagCategory = "category"
)

// NormSuffix is appended to a raw metric name to hold its rescaled value.
// Raw values are never overwritten, which is what makes normalization
// idempotent.
const NormSuffix = "_norm"

// Record is one raw observation from one data source.
//
// A metric that a source did not report is simply absent from Metrics; it is
// never stored as zero, so ratio math downstream can tell "no data" from "0".
type Record struct {
	Timestamp time.Time          `json:"timestamp"`
	EntityID  string             `json:"entity_id"`
	Source    string             `json:"source"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Tags      map[string]string  `json:"tags,omitempty"`
}

// Key identifies a record within a source: duplicates share a Key.
type Key struct {
	Timestamp time.Time
	EntityID  string
	Source    string
}

// Key returns the dedup identity of the record.
func (r Record) Key() Key {
	return Key{Timestamp: r.Timestamp, EntityID: r.EntityID, Source: r.Source}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s@%s", k.Source, k.EntityID, k.Timestamp.Format(time.RFC3339))
}

// Metric reports a metric value and whether the source carried it.
func (r Record) Metric(name string) (float64, bool) {
	v, ok := r.Metrics[name]
	return v, ok
}

// Tag reports a tag value and whether the source carried it.
func (r Record) Tag(dimension string) (string, bool) {
	v, ok := r.Tags[dimension]
	return v, ok
}

// Clone returns a deep copy. Stages that annotate records clone first so the
// caller's slice stays untouched.
func (r Record) Clone() Record {
	out := Record{
		Timestamp: r.Timestamp,
		EntityID:  r.EntityID,
		Source:    r.Source,
	}
	if r.Metrics != nil {
		out.Metrics = make(map[string]float64, len(r.Metrics))
		for k, v := range r.Metrics {
			out.Metrics[k] = v
		}
	}
	if r.Tags != nil {
		out.Tags = make(map[string]string, len(r.Tags))
		for k, v := range r.Tags {
			out.Tags[k] = v
		}
	}
	return out
}

// SetMetric stores a metric value, allocating the map on first use.
func (r *Record) SetMetric(name string, value float64) {
	if r.Metrics == nil {
		r.Metrics = make(map[string]float64, 1)
	}
	r.Metrics[name] = value
}

// Batch is the unit handed over by a collaborator fetch component: all
// records of one fetch run for one source.
type Batch struct {
	Source  string   `json:"source"`
	Records []Record `json:"records"`
}

// Len returns the number of records in the batch.
func (b Batch) Len() int { return len(b.Records) }
