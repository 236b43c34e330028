package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/trendpipe/internal/adapters/mq/queue"
	"github.com/okian/trendpipe/internal/domain/record"
	. "github.com/smartystreets/goconvey/convey"
)

func batch(source string, n int) record.Batch {
	recs := make([]record.Record, n)
	for i := range recs {
		recs[i] = record.Record{
			Timestamp: time.Date(2025, 6, 1, i, 0, 0, 0, time.UTC),
			EntityID:  "e",
			Source:    source,
		}
	}
	return record.Batch{Source: source, Records: recs}
}

func TestInMemoryQueue(t *testing.T) {
	Convey("Given a queue with a small capacity", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(2))
		ctx := context.Background()

		Convey("When enqueueing within capacity", func() {
			So(q.Enqueue(ctx, batch("spotify", 1)), ShouldBeTrue)
			So(q.Enqueue(ctx, batch("youtube", 1)), ShouldBeTrue)

			Convey("Then Len reflects the queued batches", func() {
				So(q.Len(ctx), ShouldEqual, 2)
			})

			Convey("And a further enqueue is rejected, not blocked", func() {
				So(q.Enqueue(ctx, batch("sales", 1)), ShouldBeFalse)
			})
		})

		Convey("When dequeueing", func() {
			So(q.Enqueue(ctx, batch("spotify", 3)), ShouldBeTrue)
			ch := q.Dequeue(ctx)

			Convey("Then batches arrive in order", func() {
				got := <-ch
				So(got.Source, ShouldEqual, "spotify")
				So(got.Len(), ShouldEqual, 3)
			})
		})

		Convey("When the queue is closed", func() {
			So(q.Enqueue(ctx, batch("spotify", 1)), ShouldBeTrue)
			So(q.Close(), ShouldBeNil)

			Convey("Then enqueues are rejected", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(q.Enqueue(ctx, batch("youtube", 1)), ShouldBeFalse)
			})

			Convey("Then the dequeue channel drains and closes", func() {
				ch := q.Dequeue(ctx)
				_, ok := <-ch
				So(ok, ShouldBeTrue)
				_, ok = <-ch
				So(ok, ShouldBeFalse)
			})

			Convey("Then closing again is a no-op", func() {
				So(q.Close(), ShouldBeNil)
			})
		})

		Convey("When the consumer context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			ch := q.Dequeue(cctx)
			cancel()

			Convey("Then the channel closes without deadlocking", func() {
				So(q.Enqueue(ctx, batch("spotify", 1)), ShouldBeTrue)
				select {
				case _, ok := <-ch:
					// Either the batch squeaked through before the cancel
					// or the channel closed; both are acceptable.
					_ = ok
				case <-time.After(time.Second):
					t.Fatal("dequeue channel did not settle after cancel")
				}
			})
		})
	})
}
