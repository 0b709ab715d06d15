package training

import (
	"sort"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSplit(t *testing.T) {
	Convey("Given 100 rows split 70/15/15", t, func() {
		p, err := split(100, 0.15, 0.15, 42)
		So(err, ShouldBeNil)

		Convey("Then partition sizes follow the fractions", func() {
			So(len(p.train), ShouldEqual, 70)
			So(len(p.val), ShouldEqual, 15)
			So(len(p.test), ShouldEqual, 15)
		})

		Convey("And the partitions cover every row exactly once", func() {
			all := append(append(append([]int{}, p.train...), p.val...), p.test...)
			sort.Ints(all)
			for i, v := range all {
				So(v, ShouldEqual, i)
			}
		})

		Convey("And the same seed gives the same split", func() {
			q, _ := split(100, 0.15, 0.15, 42)
			So(q.test, ShouldResemble, p.test)
		})
	})

	Convey("Given too few rows for a held-out row each", t, func() {
		for _, n := range []int{0, 1, 2, 3} {
			_, err := split(n, 0.15, 0.15, 1)
			So(err, ShouldEqual, ErrCorpusTooSmall)
		}
	})

	Convey("Given the smallest corpus that splits", t, func() {
		p, err := split(4, 0.15, 0.15, 1)
		So(err, ShouldBeNil)

		Convey("Then every partition is non-empty", func() {
			So(len(p.train), ShouldEqual, 2)
			So(len(p.val), ShouldEqual, 1)
			So(len(p.test), ShouldEqual, 1)
		})
	})
}
