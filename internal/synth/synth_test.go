package synth_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/trendpipe/internal/domain/record"
	"github.com/okian/trendpipe/internal/synth"
	"github.com/okian/trendpipe/pkg/logger"
)

func testConfig() *synth.Config {
	return &synth.Config{
		NumEntities:       10,
		RecordsPerSource:  200,
		Sources:           []string{"spotify", "youtube", "sales"},
		MalformedFraction: 0.05,
		DuplicateFraction: 0.1,
		Span:              48 * time.Hour,
		Seed:              42,
	}
}

func TestGenerator(t *testing.T) {
	Convey("Given a seeded generator", t, func() {
		cfg := testConfig()
		gen := synth.NewGenerator(cfg, logger.Nop())
		ctx := context.Background()

		Convey("When generating batches", func() {
			stats := &synth.Stats{}
			batches, err := gen.Generate(ctx, stats)
			So(err, ShouldBeNil)

			Convey("Then one batch per source comes back", func() {
				So(batches, ShouldHaveLength, 3)
				So(batches[0].Source, ShouldEqual, "spotify")
				So(batches[1].Source, ShouldEqual, "youtube")
				So(batches[2].Source, ShouldEqual, "sales")
			})

			Convey("Then defects were planted", func() {
				So(stats.Malformed, ShouldBeGreaterThan, 0)
				So(stats.Duplicates, ShouldBeGreaterThan, 0)
				So(stats.RecordsGenerated, ShouldBeGreaterThanOrEqualTo, 600)
			})

			Convey("Then each source carries its metric profile", func() {
				for _, rec := range batches[0].Records {
					if rec.EntityID == "" || rec.Timestamp.IsZero() {
						continue
					}
					_, ok := rec.Metric(record.MetricPopularity)
					So(ok, ShouldBeTrue)
				}
			})

			Convey("Then verification passes", func() {
				So(synth.Verify(ctx, cfg, batches, logger.Nop()), ShouldBeNil)
			})

			Convey("And the same seed reproduces the same batches", func() {
				again, err := synth.NewGenerator(testConfig(), logger.Nop()).Generate(ctx, &synth.Stats{})
				So(err, ShouldBeNil)
				So(again[0].Len(), ShouldEqual, batches[0].Len())
				So(again[0].Records[0].EntityID, ShouldEqual, batches[0].Records[0].EntityID)
				So(again[0].Records[0].Metrics, ShouldResemble, batches[0].Records[0].Metrics)
			})
		})

		Convey("When the context is cancelled", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			_, err := gen.Generate(cancelled, &synth.Stats{})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a run writing into a temp directory", t, func() {
		So(synth.SetupLogging(false), ShouldBeNil)

		cfg := testConfig()
		cfg.OutputDir = filepath.Join(t.TempDir(), "records")

		Convey("When the run completes", func() {
			So(synth.Run(context.Background(), cfg), ShouldBeNil)

			Convey("Then one JSONL file per source exists and decodes", func() {
				for _, source := range cfg.Sources {
					path := filepath.Join(cfg.OutputDir, source+".jsonl")
					f, err := os.Open(path)
					So(err, ShouldBeNil)

					recs, lineErrs := record.DecodeJSONL(f)
					So(f.Close(), ShouldBeNil)
					So(lineErrs, ShouldBeEmpty)
					So(len(recs), ShouldBeGreaterThan, 0)
				}
			})
		})
	})
}
