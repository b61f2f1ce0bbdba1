package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/autotrain/internal/domain/dataset"
	dedupe "github.com/okian/autotrain/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()
		So(d.Size(), ShouldEqual, int64(0))

		Convey("When a key is recorded twice", func() {
			first := d.SeenAndRecord(ctx, "k-1")
			second := d.SeenAndRecord(ctx, "k-1")

			Convey("Then only the second call reports it as seen", func() {
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(d.Size(), ShouldEqual, int64(1))
			})
		})

		Convey("When a duplicate arrives after many distinct keys", func() {
			d.SeenAndRecord(ctx, "first")
			for i := 0; i < 10000; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("k-%d", i))
			}

			Convey("Then it is still reported as seen", func() {
				So(d.SeenAndRecord(ctx, "first"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, int64(10001))
			})
		})
	})

	Convey("Given concurrent writers", t, func() {
		d := dedupe.NewInMemoryDeduper()
		var wg sync.WaitGroup
		var mu sync.Mutex
		fresh := 0
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					if !d.SeenAndRecord(ctx, fmt.Sprintf("k-%d", i)) {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then each key is newly recorded exactly once", func() {
			So(fresh, ShouldEqual, 100)
			So(d.Size(), ShouldEqual, int64(100))
		})
	})
}

func TestFingerprint(t *testing.T) {
	Convey("Given records with equal cells", t, func() {
		a := dataset.Record{"make": "ford", "year": 2015, "price": 9500.0}
		b := dataset.Record{"price": 9500, "year": int64(2015), "make": "ford"}

		Convey("Then key order and numeric representation do not matter", func() {
			So(dedupe.Fingerprint(a), ShouldEqual, dedupe.Fingerprint(b))
		})

		Convey("Then a different cell changes the fingerprint", func() {
			c := dataset.Record{"make": "ford", "year": 2016, "price": 9500.0}
			So(dedupe.Fingerprint(a), ShouldNotEqual, dedupe.Fingerprint(c))
		})

		Convey("Then a string is distinct from the number it spells", func() {
			x := dataset.Record{"v": "1"}
			y := dataset.Record{"v": 1}
			So(dedupe.Fingerprint(x), ShouldNotEqual, dedupe.Fingerprint(y))
		})

		Convey("Then null and empty string are distinct", func() {
			x := dataset.Record{"v": nil}
			y := dataset.Record{"v": ""}
			So(dedupe.Fingerprint(x), ShouldNotEqual, dedupe.Fingerprint(y))
		})
	})
}
