// Command gen-records generates synthetic cross-source record batches for
// exercising the pipeline, including planted malformed and duplicate
// records.
package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/okian/trendpipe/internal/synth"
)

// Default configuration constants.
const (
	defaultEntities   = 100
	defaultRecords    = 1000
	defaultMalformed  = 0.02
	defaultDuplicates = 0.05
	defaultSpan       = 72 * time.Hour
	defaultRunTimeout = 5 * time.Minute
)

func main() {
	var (
		entities   = flag.Int("entities", defaultEntities, "Number of distinct canonical entities")
		records    = flag.Int("records", defaultRecords, "Records to generate per source")
		sources    = flag.String("sources", "spotify,youtube,sales", "Comma-separated source names")
		malformed  = flag.Float64("malformed", defaultMalformed, "Fraction of records with a broken timestamp or id")
		duplicates = flag.Float64("duplicates", defaultDuplicates, "Fraction of records duplicated with perturbed metrics")
		span       = flag.Duration("span", defaultSpan, "Spread observation timestamps over this window")
		seed       = flag.Int64("seed", 0, "RNG seed for reproducible runs (default: derived from clock)")
		out        = flag.String("out", "", "Output directory (default: records_TIMESTAMP)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		synth.ShowHelp()
		return
	}

	if err := synth.SetupLogging(*verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	cfg := &synth.Config{
		NumEntities:       *entities,
		RecordsPerSource:  *records,
		Sources:           strings.Split(*sources, ","),
		MalformedFraction: *malformed,
		DuplicateFraction: *duplicates,
		Span:              *span,
		Seed:              *seed,
		OutputDir:         *out,
		Verbose:           *verbose,
	}

	if err := synth.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Generation failed: " + err.Error() + "\n")
		return
	}
}
