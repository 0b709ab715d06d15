package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/paycast/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new deduper", t, func() {
		d := dedupe.NewInMemoryDeduper()
		So(d.Size(), ShouldEqual, 0)

		Convey("When an invoice id is new", func() {
			seen := d.SeenAndRecord(ctx, "inv-1")

			Convey("Then it is recorded", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And a repeat is reported as seen", func() {
				So(d.SeenAndRecord(ctx, "inv-1"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And unrecording allows a retry", func() {
				d.Unrecord(ctx, "inv-1")
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "inv-1"), ShouldBeFalse)
			})
		})

		Convey("When unrecording an unknown id", func() {
			d.SeenAndRecord(ctx, "inv-1")
			d.Unrecord(ctx, "inv-404")

			Convey("Then the size is unchanged", func() {
				So(d.Size(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a bounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for i := 1; i <= 3; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("inv-%d", i))
		}

		Convey("When a fourth id arrives", func() {
			So(d.SeenAndRecord(ctx, "inv-4"), ShouldBeFalse)

			Convey("Then the oldest id is forgotten", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "inv-4"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "inv-3"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "inv-2"), ShouldBeTrue)
			})

			Convey("And the evicted id is accepted again", func() {
				So(d.SeenAndRecord(ctx, "inv-1"), ShouldBeFalse)
			})
		})

		Convey("When a middle id is unrecorded", func() {
			d.Unrecord(ctx, "inv-2")
			d.SeenAndRecord(ctx, "inv-4")
			d.SeenAndRecord(ctx, "inv-5")

			Convey("Then eviction still follows insertion order", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "inv-3"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "inv-5"), ShouldBeTrue)
			})
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := 0; i < 1000; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("inv-%d", i))
		}

		Convey("Then nothing is evicted", func() {
			So(d.Size(), ShouldEqual, 1000)
			So(d.SeenAndRecord(ctx, "inv-0"), ShouldBeTrue)
		})
	})
}

func TestInMemoryDeduperConcurrency(t *testing.T) {
	Convey("Given concurrent settlements for the same invoices", t, func() {
		d := dedupe.NewInMemoryDeduper()
		ctx := context.Background()

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			fresh int
		)
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					if !d.SeenAndRecord(ctx, fmt.Sprintf("inv-%d", i)) {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then each invoice is accepted exactly once", func() {
			So(fresh, ShouldEqual, 100)
			So(d.Size(), ShouldEqual, 100)
		})
	})
}
