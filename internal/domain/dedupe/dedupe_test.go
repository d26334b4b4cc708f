package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	dedupe "github.com/okian/curator/internal/domain/dedupe"
	"github.com/okian/curator/internal/domain/digest"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithSizeHint(16))
		a := digest.Sum([]byte("image-a"))
		b := digest.Sum([]byte("image-b"))

		Convey("When it is created", func() {
			Convey("Then it should be empty", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When recording a new digest", func() {
			first, seen := d.SeenAndRecord(ctx, a, "raw/minor/a.jpg")

			Convey("Then it should report it as unseen and keep the owner", func() {
				So(seen, ShouldBeFalse)
				So(first, ShouldEqual, "raw/minor/a.jpg")
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When recording the same digest under another path", func() {
			d.SeenAndRecord(ctx, a, "raw/minor/a.jpg")
			first, seen := d.SeenAndRecord(ctx, a, "raw/severe/a-copy.png")

			Convey("Then the first owner should win", func() {
				So(seen, ShouldBeTrue)
				So(first, ShouldEqual, "raw/minor/a.jpg")
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When recording distinct digests", func() {
			_, seenA := d.SeenAndRecord(ctx, a, "a")
			_, seenB := d.SeenAndRecord(ctx, b, "b")

			Convey("Then both should be recorded", func() {
				So(seenA, ShouldBeFalse)
				So(seenB, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 2)
			})
		})

		Convey("When using a nil context", func() {
			Convey("Then it should not panic", func() {
				So(func() { d.SeenAndRecord(nil, a, "a") }, ShouldNotPanic) //nolint:staticcheck
			})
		})
	})
}

func TestDedupeConcurrency(t *testing.T) {
	Convey("Given a deduper shared by many goroutines", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()
		const goroutines = 16
		const digests = 200

		Convey("When they all race to record the same digests", func() {
			var wins atomic.Int64
			var wg sync.WaitGroup
			for g := 0; g < goroutines; g++ {
				wg.Add(1)
				go func(id int) {
					defer wg.Done()
					for i := 0; i < digests; i++ {
						key := digest.Sum([]byte(fmt.Sprintf("content-%d", i)))
						if _, seen := d.SeenAndRecord(ctx, key, fmt.Sprintf("worker-%d", id)); !seen {
							wins.Add(1)
						}
					}
				}(g)
			}
			wg.Wait()

			Convey("Then every digest should be won exactly once", func() {
				So(wins.Load(), ShouldEqual, digests)
				So(d.Size(), ShouldEqual, digests)
			})
		})
	})
}
