package synth

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/trendpipe/internal/domain/record"
	"github.com/okian/trendpipe/pkg/logger"
)

// Metric value ranges per source profile.
const (
	popularityMax = 100.0
	viewsMax      = 100000.0
	likesRatioMax = 0.08
	unitsSoldMax  = 500.0
)

var genres = []string{"pop", "rock", "hiphop", "jazz", "electronic"}
var regions = []string{"US", "GB", "DE", "JP", "BR"}
var categories = []string{"music", "entertainment", "gaming"}

// Generator produces synthetic batches from a seeded source so runs are
// reproducible. Each worker gets its own rand.Rand; math/rand sources are
// not safe for concurrent use.
type Generator struct {
	cfg  *Config
	seed int64
	log  logger.Logger

	// entities is the shared canonical id pool all sources draw from, so
	// cross-source rows actually merge.
	entities []string
}

// NewGenerator creates a Generator, materializing the entity pool.
func NewGenerator(cfg *Config, log logger.Logger) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.Span <= 0 {
		cfg.Span = 72 * time.Hour
	}

	idRand := rand.New(rand.NewSource(seed))
	entities := make([]string, cfg.NumEntities)
	for i := range entities {
		entities[i] = "track:" + uuid.Must(uuid.NewRandomFromReader(idRand)).String()
	}

	return &Generator{
		cfg:      cfg,
		seed:     seed,
		log:      log,
		entities: entities,
	}
}

// Seed returns the effective RNG seed, useful for replaying a run.
func (g *Generator) Seed() int64 { return g.seed }

// Generate produces one batch per configured source, splitting the work
// across workers. Record order within a batch is deterministic for a given
// seed and worker count.
func (g *Generator) Generate(ctx context.Context, stats *Stats) ([]record.Batch, error) {
	batches := make([]record.Batch, len(g.cfg.Sources))

	var wg sync.WaitGroup
	errCh := make(chan error, len(g.cfg.Sources))

	for si, source := range g.cfg.Sources {
		wg.Add(1)
		go func(si int, source string) {
			defer wg.Done()
			recs, err := g.generateSource(ctx, si, source, stats)
			if err != nil {
				errCh <- err
				return
			}
			batches[si] = record.Batch{Source: source, Records: recs}
		}(si, source)
	}
	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return nil, fmt.Errorf("generate batches: %w", err)
	}

	total := 0
	for i := range batches {
		total += batches[i].Len()
	}
	stats.RecordsGenerated = total

	g.log.Info(ctx, "batches generated",
		logger.Int("sources", len(batches)),
		logger.Int("records", total),
		logger.Int64("seed", g.seed),
	)
	return batches, nil
}

// generateSource builds all records for one source.
func (g *Generator) generateSource(ctx context.Context, si int, source string, stats *Stats) ([]record.Record, error) {
	// Per-source deterministic stream, independent of goroutine scheduling.
	rng := rand.New(rand.NewSource(g.seed + int64(si) + 1))
	now := time.Now().UTC()

	out := make([]record.Record, 0, g.cfg.RecordsPerSource)
	malformed := 0
	duplicates := 0

	for i := 0; i < g.cfg.RecordsPerSource; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec := g.makeRecord(rng, source, now)

		switch {
		case rng.Float64() < g.cfg.MalformedFraction:
			corrupt(rng, &rec)
			malformed++
		case rng.Float64() < g.cfg.DuplicateFraction:
			dup := rec.Clone()
			perturb(rng, &dup)
			out = append(out, dup)
			duplicates++
		}
		out = append(out, rec)
	}

	stats.addCounts(malformed, duplicates)
	return out, nil
}

// makeRecord builds one well-formed observation with the source's metric
// profile.
func (g *Generator) makeRecord(rng *rand.Rand, source string, now time.Time) record.Record {
	ts := now.Add(-time.Duration(rng.Int63n(int64(g.cfg.Span))))
	entity := g.entities[rng.Intn(len(g.entities))]

	rec := record.Record{
		Timestamp: ts,
		EntityID:  entity,
		Source:    source,
		Metrics:   map[string]float64{},
		Tags:      map[string]string{},
	}

	switch source {
	case "spotify":
		rec.Metrics[record.MetricPopularity] = rng.Float64() * popularityMax
		rec.Tags[record.TagGenre] = genres[rng.Intn(len(genres))]
	case "youtube":
		views := rng.Float64() * viewsMax
		rec.Metrics[record.MetricViews] = views
		rec.Metrics[record.MetricLikes] = views * rng.Float64() * likesRatioMax
		rec.Tags[record.TagCategory] = categories[rng.Intn(len(categories))]
	case "sales":
		rec.Metrics[record.MetricUnitsSold] = rng.Float64() * unitsSoldMax
		rec.Tags[record.TagRegion] = regions[rng.Intn(len(regions))]
	default:
		rec.Metrics[record.MetricViews] = rng.Float64() * viewsMax
	}
	return rec
}

// corrupt breaks a record the way upstream fetchers actually break them:
// a zero timestamp or a missing entity id.
func corrupt(rng *rand.Rand, rec *record.Record) {
	if rng.Intn(2) == 0 {
		rec.Timestamp = time.Time{}
	} else {
		rec.EntityID = ""
	}
}

// perturb nudges a duplicate's metrics so duplicate resolution is visible
// in the cleaned output.
func perturb(rng *rand.Rand, rec *record.Record) {
	for name, v := range rec.Metrics {
		rec.Metrics[name] = v * (0.9 + rng.Float64()*0.2)
	}
}

func (s *Stats) addCounts(malformed, duplicates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Malformed += malformed
	s.Duplicates += duplicates
}
