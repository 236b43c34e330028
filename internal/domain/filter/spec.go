// Package filter applies declarative predicate sets over the unified table.
package filter

import (
	"sort"
	"time"
)

// Spec is an immutable set of named predicates with AND semantics across
// dimensions. Build one per query with NewSpec; an empty Spec matches every
// row.
type Spec struct {
	from, to  time.Time
	hasRange  bool
	entities  map[string]bool
	sources   []string
	tags      map[string][]string
}

// SpecOption adds one predicate to a Spec under construction.
type SpecOption func(*Spec)

// WithTimeRange restricts rows to buckets in [from, to). A zero from or to
// leaves that side open.
func WithTimeRange(from, to time.Time) SpecOption {
	return func(s *Spec) {
		s.from, s.to = from, to
		s.hasRange = true
	}
}

// WithEntities restricts rows to the given entity ids.
func WithEntities(ids ...string) SpecOption {
	return func(s *Spec) {
		if s.entities == nil {
			s.entities = make(map[string]bool, len(ids))
		}
		for _, id := range ids {
			s.entities[id] = true
		}
	}
}

// WithSources requires every named source to have contributed to a row.
func WithSources(names ...string) SpecOption {
	return func(s *Spec) {
		s.sources = append(s.sources, names...)
	}
}

// WithTag restricts rows to those whose tag under dimension matches one of
// values. A row lacking the tag does not match.
func WithTag(dimension string, values ...string) SpecOption {
	return func(s *Spec) {
		if s.tags == nil {
			s.tags = make(map[string][]string, 1)
		}
		s.tags[dimension] = append(s.tags[dimension], values...)
	}
}

// NewSpec constructs an immutable Spec from predicates.
func NewSpec(opts ...SpecOption) Spec {
	var s Spec
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// IsEmpty reports whether the spec carries no predicates at all.
func (s Spec) IsEmpty() bool {
	return !s.hasRange && len(s.entities) == 0 && len(s.sources) == 0 && len(s.tags) == 0
}

// TagDimensions returns the sorted tag dimensions the spec filters on. The
// engine validates these against its recognized set.
func (s Spec) TagDimensions() []string {
	out := make([]string, 0, len(s.tags))
	for dim := range s.tags {
		out = append(out, dim)
	}
	sort.Strings(out)
	return out
}
