package synth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/autotrain/internal/adapters/source"
	"github.com/okian/autotrain/internal/domain/dataset"
	"github.com/okian/autotrain/internal/synth"
	"github.com/okian/autotrain/pkg/logger"
)

func TestGenerate(t *testing.T) {
	Convey("Given generation options", t, func() {
		opts := synth.DefaultOptions()
		opts.Rows = 200

		Convey("The same seed yields the same records", func() {
			So(synth.Generate(opts), ShouldResemble, synth.Generate(opts))
		})

		Convey("A different seed yields different records", func() {
			other := opts
			other.Seed++
			So(synth.Generate(other), ShouldNotResemble, synth.Generate(opts))
		})

		Convey("Every record carries the generated columns", func() {
			recs := synth.Generate(opts)
			So(recs, ShouldHaveLength, 200)
			for _, c := range synth.Columns {
				So(recs[0], ShouldContainKey, c)
			}
			price, ok := dataset.AsFloat(recs[0]["price"])
			So(ok, ShouldBeTrue)
			So(price, ShouldBeGreaterThanOrEqualTo, 500)
		})

		Convey("OmitTarget drops price", func() {
			opts.OmitTarget = true
			for _, r := range synth.Generate(opts) {
				So(r, ShouldNotContainKey, "price")
			}
		})

		Convey("NullRate produces missing optional fields", func() {
			opts.NullRate = 0.5
			nulls := 0
			for _, r := range synth.Generate(opts) {
				if r["mileage"] == nil {
					nulls++
				}
			}
			So(nulls, ShouldBeGreaterThan, 50)
			So(nulls, ShouldBeLessThan, 150)
		})
	})
}

func TestWriteFile(t *testing.T) {
	Convey("Given generated records", t, func() {
		_ = logger.Init()
		opts := synth.DefaultOptions()
		opts.Rows, opts.NullRate = 30, 0.2
		recs := synth.Generate(opts)

		for _, ext := range []string{".csv", ".xlsx"} {
			Convey("When written as "+ext+" and read back", func() {
				path := filepath.Join(t.TempDir(), "vehicles"+ext)
				So(synth.WriteFile(path, recs), ShouldBeNil)

				src, err := source.NewFile(path)
				So(err, ShouldBeNil)
				back, err := src.FetchRecords(context.Background(), source.Query{})
				So(err, ShouldBeNil)

				Convey("Then every row and value survives", func() {
					So(back, ShouldHaveLength, len(recs))
					for i := range recs {
						So(back[i]["_id"], ShouldEqual, recs[i]["_id"])
						So(back[i]["mileage"], ShouldEqual, dataset.Normalize(recs[i]["mileage"]))
						So(back[i]["price"], ShouldEqual, dataset.Normalize(recs[i]["price"]))
					}
				})
			})
		}

		Convey("An unknown extension is rejected", func() {
			So(synth.WriteFile(filepath.Join(t.TempDir(), "x.json"), recs), ShouldNotBeNil)
		})
	})
}

func TestSmoke(t *testing.T) {
	Convey("Given a server that predicts every other request", t, func() {
		_ = logger.Init()
		var n atomic.Int64
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
		mux.HandleFunc("/predict", func(w http.ResponseWriter, _ *http.Request) {
			if n.Add(1)%2 == 0 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"prediction": 1}`))
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		stats, err := synth.Smoke(context.Background(), synth.SmokeConfig{
			BaseURL:  srv.URL,
			Requests: 20,
			Workers:  4,
			Timeout:  time.Second,
			Seed:     1,
		})

		Convey("Then outcomes are counted by status", func() {
			So(err, ShouldBeNil)
			So(stats.Requests, ShouldEqual, 20)
			So(stats.Successful, ShouldEqual, 10)
			So(stats.Unavailable, ShouldEqual, 10)
			So(stats.Failed, ShouldEqual, 0)
			So(stats.P99, ShouldBeGreaterThanOrEqualTo, stats.P50)
		})
	})
}
