package clean

import "errors"

// Rejection reasons recorded in the Report and exported as metric labels.
const (
	ReasonZeroTimestamp   = "zero_timestamp"
	ReasonFutureTimestamp = "future_timestamp"
	ReasonEmptyEntity     = "empty_entity_id"
	ReasonEmptySource     = "empty_source"
)

// ErrUnknownPolicy is returned when a configured duplicate policy is not
// recognized.
var ErrUnknownPolicy = errors.New("unknown duplicate policy")

// Report accumulates data-quality counts for one or more Clean calls. It is
// returned alongside the cleaned sequence; nothing in it is fatal.
type Report struct {
	Input          int
	Kept           int
	Duplicates     int
	DroppedMetrics int
	Rejected       map[string]int
}

// NewReport returns an empty report.
func NewReport() Report {
	return Report{Rejected: make(map[string]int)}
}

// Reject counts one rejected record under reason.
func (r *Report) Reject(reason string) {
	if r.Rejected == nil {
		r.Rejected = make(map[string]int)
	}
	r.Rejected[reason]++
}

// TotalRejected returns the number of dropped records across all reasons.
func (r Report) TotalRejected() int {
	total := 0
	for _, n := range r.Rejected {
		total += n
	}
	return total
}

// Merge folds another report into this one. Used when cleaning runs
// per source and the refresher wants one combined view.
func (r *Report) Merge(other Report) {
	r.Input += other.Input
	r.Kept += other.Kept
	r.Duplicates += other.Duplicates
	r.DroppedMetrics += other.DroppedMetrics
	for reason, n := range other.Rejected {
		if r.Rejected == nil {
			r.Rejected = make(map[string]int)
		}
		r.Rejected[reason] += n
	}
}
