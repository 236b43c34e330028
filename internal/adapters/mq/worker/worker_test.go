package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/trendpipe/internal/adapters/mq/queue"
	"github.com/okian/trendpipe/internal/adapters/mq/worker"
	"github.com/okian/trendpipe/internal/adapters/repository"
	"github.com/okian/trendpipe/internal/domain/clean"
	"github.com/okian/trendpipe/internal/domain/filter"
	"github.com/okian/trendpipe/internal/domain/merge"
	"github.com/okian/trendpipe/internal/domain/normalize"
	"github.com/okian/trendpipe/internal/domain/record"
	. "github.com/smartystreets/goconvey/convey"
)

var day1 = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return day1.Add(12 * time.Hour) }

func newPipeline() (worker.Cleaner, worker.Normalizer, worker.Merger, *repository.SnapshotStore) {
	c := clean.New(clean.WithClock(fixedClock))
	n := normalize.New()
	m := merge.New(merge.WithGranularity(merge.Daily))
	engine := filter.New(filter.WithDimensions(record.TagGenre, record.TagRegion))
	s := repository.NewSnapshotStore(engine)
	return c, n, m, s
}

func TestRebuild(t *testing.T) {
	Convey("Given a refresher over a queue with staged batches", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(16))
		c, n, m, s := newPipeline()
		r := worker.NewRefresher(q, c, n, m, s,
			worker.WithInterval(time.Hour), // ticks never fire during the test
			worker.WithClock(fixedClock),
		)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go r.Run(ctx)
		defer r.Stop()

		batch := record.Batch{Source: "youtube", Records: []record.Record{
			{
				Timestamp: day1, EntityID: "v1", Source: "youtube",
				Metrics: map[string]float64{record.MetricViews: 1000, record.MetricLikes: 50},
			},
		}}
		So(q.Enqueue(ctx, batch), ShouldBeTrue)

		// Wait for the loop to stage the batch.
		deadline := time.Now().Add(2 * time.Second)
		for r.StagedCount() == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		So(r.StagedCount(), ShouldEqual, 1)

		Convey("When forcing a rebuild", func() {
			So(r.Rebuild(ctx), ShouldBeNil)

			Convey("Then the snapshot holds the processed table", func() {
				table := s.Table(ctx)
				So(table.Len(), ShouldEqual, 1)
				row := table.Rows()[0]
				views, ok := row.Metric("youtube.views")
				So(ok, ShouldBeTrue)
				So(views, ShouldEqual, 1000)
				er, ok := row.Metric(record.MetricEngagementRate)
				So(ok, ShouldBeTrue)
				So(er, ShouldAlmostEqual, 5.0)
			})
		})

		Convey("When a later fetch supersedes the same observation", func() {
			updated := record.Batch{Source: "youtube", Records: []record.Record{
				{
					Timestamp: day1, EntityID: "v1", Source: "youtube",
					Metrics: map[string]float64{record.MetricViews: 2000, record.MetricLikes: 100},
				},
			}}
			So(q.Enqueue(ctx, updated), ShouldBeTrue)
			deadline := time.Now().Add(2 * time.Second)
			for time.Now().Before(deadline) {
				// Staged count stays 1: same key, superseded in place.
				if r.StagedCount() == 1 {
					if err := r.Rebuild(ctx); err == nil {
						if v, _ := s.Table(ctx).Rows()[0].Metric("youtube.views"); v == 2000 {
							break
						}
					}
				}
				time.Sleep(5 * time.Millisecond)
			}

			Convey("Then the rebuilt table reflects the latest values", func() {
				views, _ := s.Table(ctx).Rows()[0].Metric("youtube.views")
				So(views, ShouldEqual, 2000)
				So(r.StagedCount(), ShouldEqual, 1)
			})
		})
	})
}

func TestRebuildCancelled(t *testing.T) {
	Convey("Given a refresher with an existing snapshot", t, func() {
		q := queue.NewInMemoryQueue()
		c, n, m, s := newPipeline()
		r := worker.NewRefresher(q, c, n, m, s, worker.WithClock(fixedClock))

		ctx := context.Background()
		q.Enqueue(ctx, record.Batch{Source: "spotify", Records: []record.Record{
			{Timestamp: day1, EntityID: "t1", Source: "spotify",
				Metrics: map[string]float64{record.MetricPopularity: 80}},
		}})
		go r.Run(ctx)

		deadline := time.Now().Add(2 * time.Second)
		for r.StagedCount() == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		So(r.Rebuild(ctx), ShouldBeNil)
		So(s.Count(ctx), ShouldEqual, 1)

		Convey("When a rebuild runs under a cancelled context", func() {
			cancelled, cancel := context.WithCancel(context.Background())
			cancel()
			err := r.Rebuild(cancelled)

			Convey("Then the run is abandoned and the old snapshot survives", func() {
				So(err, ShouldNotBeNil)
				So(s.Count(ctx), ShouldEqual, 1)
			})
		})

		r.Stop()
	})
}

func TestRetention(t *testing.T) {
	Convey("Given a refresher with a short retention window", t, func() {
		q := queue.NewInMemoryQueue()
		c, n, m, s := newPipeline()
		r := worker.NewRefresher(q, c, n, m, s,
			worker.WithRetention(6*time.Hour),
			worker.WithClock(fixedClock), // now = day1 + 12h
		)

		ctx := context.Background()
		go r.Run(ctx)
		defer r.Stop()

		q.Enqueue(ctx, record.Batch{Source: "spotify", Records: []record.Record{
			// Inside the window: 12h - 6h = 6h cutoff, this is at 8h.
			{Timestamp: day1.Add(8 * time.Hour), EntityID: "fresh", Source: "spotify",
				Metrics: map[string]float64{record.MetricPopularity: 10}},
			// Aged out: at 1h, before the 6h cutoff.
			{Timestamp: day1.Add(1 * time.Hour), EntityID: "stale", Source: "spotify",
				Metrics: map[string]float64{record.MetricPopularity: 20}},
		}})

		deadline := time.Now().Add(2 * time.Second)
		for r.StagedCount() < 2 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}

		Convey("When rebuilding", func() {
			So(r.Rebuild(ctx), ShouldBeNil)

			Convey("Then aged-out records are pruned from staging and the table", func() {
				So(s.Count(ctx), ShouldEqual, 1)
				So(s.Table(ctx).Rows()[0].EntityID, ShouldEqual, "fresh")
				So(r.StagedCount(), ShouldEqual, 1)
			})
		})
	})
}
