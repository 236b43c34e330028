// Package synth generates synthetic cross-source record batches for
// exercising the pipeline end to end: well-formed observations seasoned
// with a controlled fraction of malformed and duplicate records, so the
// cleaner and the duplicate policy have something real to chew on.
package synth

import (
	"sync"
	"time"
)

// Config holds configuration for a generation run.
type Config struct {
	NumEntities       int           // Number of distinct canonical entities
	RecordsPerSource  int           // Records generated per source
	Sources           []string      // Source names to emit batches for
	MalformedFraction float64       // Fraction of records with a broken timestamp or id
	DuplicateFraction float64       // Fraction of records duplicated with perturbed metrics
	Span              time.Duration // Observation timestamps spread over [now-Span, now]
	Seed              int64         // RNG seed; zero derives one from the clock
	OutputDir         string        // Directory for the per-source JSONL files
	Verbose           bool          // Enable verbose logging
}

// Stats holds generation run statistics. Counters are updated from
// concurrent source workers.
type Stats struct {
	mu sync.Mutex

	RecordsGenerated int
	Malformed        int
	Duplicates       int
	FilesWritten     int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
