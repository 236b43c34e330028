package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/trendpipe/internal/app"
	"github.com/okian/trendpipe/internal/domain/filter"
	"github.com/okian/trendpipe/internal/domain/merge"
	"github.com/okian/trendpipe/internal/domain/record"
	"github.com/okian/trendpipe/pkg/logger"
)

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// waitStaged blocks until the service has staged at least n records or the
// deadline passes. The queue drains in a background goroutine, so tests have
// to let it settle before forcing a rebuild.
func waitStaged(svc *service.Service, n int) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if svc.StagedCount() >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := service.New()
		ctx := context.Background()

		Convey("Before Start, operations are inert", func() {
			So(svc.Ingest(ctx, record.Batch{Source: "spotify"}), ShouldBeFalse)
			So(svc.Refresh(ctx), ShouldBeNil)
			So(svc.Table(ctx).Len(), ShouldEqual, 0)
			So(svc.StagedCount(), ShouldEqual, 0)
		})

		Convey("When started", func() {
			So(svc.Start(ctx), ShouldBeNil)
			Reset(svc.Stop)

			Convey("Then starting again is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})

			Convey("Then the initial snapshot is empty", func() {
				So(svc.Table(ctx).Len(), ShouldEqual, 0)
			})

			Convey("Then stats report the configuration", func() {
				stats := svc.Stats()
				So(stats["started"], ShouldBeTrue)
				So(stats["granularity"], ShouldEqual, "daily")
				So(stats["duplicate_policy"], ShouldEqual, "keep_latest")
			})
		})

		Convey("Stop before Start does nothing", func() {
			svc.Stop()
			So(svc.StagedCount(), ShouldEqual, 0)
		})
	})
}

func TestServicePipeline(t *testing.T) {
	Convey("Given a started service linking youtube videos to tracks", t, func() {
		svc := service.New(
			service.WithGranularity(merge.Daily),
			service.WithLinkage(map[string]string{"video:cover-1": "track:1"}),
			service.WithQueueSize(16),
		)
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		Reset(svc.Stop)

		ts := time.Date(2026, 8, 20, 14, 30, 0, 0, time.UTC)

		Convey("When batches from two sources are ingested and refreshed", func() {
			ok := svc.Ingest(ctx, record.Batch{
				Source: "spotify",
				Records: []record.Record{{
					Timestamp: ts,
					EntityID:  "track:1",
					Source:    "spotify",
					Metrics:   map[string]float64{record.MetricPopularity: 80},
					Tags:      map[string]string{record.TagGenre: "pop"},
				}},
			})
			So(ok, ShouldBeTrue)

			ok = svc.Ingest(ctx, record.Batch{
				Source: "youtube",
				Records: []record.Record{{
					Timestamp: ts.Add(time.Hour),
					EntityID:  "video:cover-1",
					Source:    "youtube",
					Metrics: map[string]float64{
						record.MetricViews: 1000,
						record.MetricLikes: 50,
					},
				}},
			})
			So(ok, ShouldBeTrue)

			So(waitStaged(svc, 2), ShouldBeTrue)
			So(svc.Refresh(ctx), ShouldBeNil)

			Convey("Then the snapshot holds one unified row", func() {
				table := svc.Table(ctx)
				So(table.Len(), ShouldEqual, 1)

				row := table.Rows()[0]
				So(row.EntityID, ShouldEqual, "track:1")
				So(row.HasSource("spotify"), ShouldBeTrue)
				So(row.HasSource("youtube"), ShouldBeTrue)

				pop, ok := row.Metric("spotify." + record.MetricPopularity)
				So(ok, ShouldBeTrue)
				So(pop, ShouldEqual, 80)

				er, ok := row.Metric(record.MetricEngagementRate)
				So(ok, ShouldBeTrue)
				So(er, ShouldAlmostEqual, 5.0, 1e-9)

				Convey("And absent metrics stay absent", func() {
					_, ok := row.Metric("spotify." + record.MetricViews)
					So(ok, ShouldBeFalse)
				})
			})

			Convey("Then an empty filter spec returns everything", func() {
				rows, err := svc.Query(ctx, filter.NewSpec())
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 1)
			})

			Convey("Then filtering on an untagged dimension returns nothing", func() {
				rows, err := svc.Query(ctx, filter.NewSpec(
					filter.WithTag(record.TagRegion, "US"),
				))
				So(err, ShouldBeNil)
				So(rows, ShouldBeEmpty)
			})

			Convey("Then filtering on the genre tag matches the row", func() {
				rows, err := svc.Query(ctx, filter.NewSpec(
					filter.WithTag(record.TagGenre, "pop"),
				))
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 1)
			})

			Convey("Then an unknown dimension is rejected", func() {
				_, err := svc.Query(ctx, filter.NewSpec(
					filter.WithTag("mood", "happy"),
				))
				So(errors.Is(err, filter.ErrUnknownDimension), ShouldBeTrue)
			})

			Convey("And a later refresh with nothing new keeps the row stable", func() {
				before := svc.Table(ctx).Rows()[0]
				So(svc.Refresh(ctx), ShouldBeNil)
				after := svc.Table(ctx).Rows()[0]

				erBefore, _ := before.Metric(record.MetricEngagementRate)
				erAfter, _ := after.Metric(record.MetricEngagementRate)
				So(erAfter, ShouldAlmostEqual, erBefore, 1e-9)
			})
		})

		Convey("When a superseding observation for the same key arrives", func() {
			base := record.Record{
				Timestamp: ts,
				EntityID:  "track:1",
				Source:    "spotify",
				Metrics:   map[string]float64{record.MetricPopularity: 40},
			}
			So(svc.Ingest(ctx, record.Batch{Source: "spotify", Records: []record.Record{base}}), ShouldBeTrue)
			So(waitStaged(svc, 1), ShouldBeTrue)

			updated := base.Clone()
			updated.Metrics[record.MetricPopularity] = 90
			So(svc.Ingest(ctx, record.Batch{Source: "spotify", Records: []record.Record{updated}}), ShouldBeTrue)

			// Still one staged record: same identity, latest wins.
			time.Sleep(50 * time.Millisecond)
			So(svc.StagedCount(), ShouldEqual, 1)
			So(svc.Refresh(ctx), ShouldBeNil)

			Convey("Then the rebuilt row carries the later value", func() {
				table := svc.Table(ctx)
				So(table.Len(), ShouldEqual, 1)
				pop, ok := table.Rows()[0].Metric("spotify." + record.MetricPopularity)
				So(ok, ShouldBeTrue)
				So(pop, ShouldEqual, 90)
			})
		})
	})
}

func TestServiceStop(t *testing.T) {
	Convey("Given a started service with an ingested batch", t, func() {
		svc := service.New()
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)

		ts := time.Date(2026, 8, 21, 9, 0, 0, 0, time.UTC)
		So(svc.Ingest(ctx, record.Batch{
			Source: "sales",
			Records: []record.Record{{
				Timestamp: ts,
				EntityID:  "track:9",
				Source:    "sales",
				Metrics:   map[string]float64{record.MetricUnitsSold: 12},
			}},
		}), ShouldBeTrue)
		So(waitStaged(svc, 1), ShouldBeTrue)

		Convey("When stopped", func() {
			svc.Stop()

			Convey("Then the final rebuild folded the batch in", func() {
				table := svc.Table(ctx)
				So(table.Len(), ShouldEqual, 1)
				units, ok := table.Rows()[0].Metric("sales." + record.MetricUnitsSold)
				So(ok, ShouldBeTrue)
				So(units, ShouldEqual, 12)
			})

			Convey("Then further ingests are refused", func() {
				So(svc.Ingest(ctx, record.Batch{Source: "sales"}), ShouldBeFalse)
			})

			Convey("And stopping twice is safe", func() {
				svc.Stop()
			})
		})
	})
}
