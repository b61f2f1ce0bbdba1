package transform_test

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/okian/autotrain/internal/domain/dataset"
	"github.com/okian/autotrain/internal/domain/failure"
	"github.com/okian/autotrain/internal/domain/schema"
	"github.com/okian/autotrain/internal/domain/transform"
	. "github.com/smartystreets/goconvey/convey"
)

func contract() *schema.Contract {
	c, err := schema.New([]schema.Column{
		{Name: "make", Type: schema.TypeString},
		{Name: "year", Type: schema.TypeInt},
		{Name: "mileage", Type: schema.TypeFloat, Nullable: true},
		{Name: "listing_url", Type: schema.TypeString, Nullable: true},
		{Name: "price", Type: schema.TypeFloat},
	}, "price", []string{"listing_url"})
	if err != nil {
		panic(err)
	}
	return c
}

func train() *dataset.Table {
	return dataset.FromRecords([]dataset.Record{
		{"make": "ford", "year": 2010, "mileage": 100, "listing_url": "a", "price": 5},
		{"make": "bmw", "year": 2020, "mileage": nil, "listing_url": "b", "price": 20},
		{"make": "ford", "year": 2015, "mileage": 50, "listing_url": nil, "price": 10},
		{"make": "audi", "year": 2012, "mileage": 80, "listing_url": "c", "price": nil},
	})
}

func test() *dataset.Table {
	return dataset.FromRecords([]dataset.Record{
		{"make": "audi", "year": 2015, "mileage": nil, "listing_url": "x", "price": 7},
		{"make": "bmw", "year": 2018, "mileage": 60, "listing_url": "y", "price": 15},
	})
}

func TestFitTransform(t *testing.T) {
	Convey("Given a training table and the vehicle contract", t, func() {
		tr, m, err := transform.FitTransform(train(), contract())
		So(err, ShouldBeNil)

		Convey("Then features follow the contract order with sorted categories", func() {
			So(tr.FeatureNames(), ShouldResemble, []string{"make=bmw", "make=ford", "year", "mileage"})
			So(tr.InputColumns(), ShouldResemble, []string{"make", "year", "mileage"})
			So(tr.Target(), ShouldEqual, "price")
		})

		Convey("Then rows with a null target are dropped", func() {
			So(m.Rows(), ShouldEqual, 3)
			So(m.DroppedRows, ShouldEqual, 1)
			So(m.Y, ShouldResemble, []float64{5, 20, 10})
		})

		Convey("Then numeric columns are imputed with the median and standardized", func() {
			yearStd := math.Sqrt(50.0 / 3.0)
			mileageStd := math.Sqrt(1250.0 / 3.0)
			So(m.X[0][2], ShouldAlmostEqual, -5/yearStd, 1e-9)
			So(m.X[1][3], ShouldAlmostEqual, 0, 1e-9)
			So(m.X[0][3], ShouldAlmostEqual, 25/mileageStd, 1e-9)
		})

		Convey("Then categories one-hot encode", func() {
			So(m.X[0][:2], ShouldResemble, []float64{0, 1})
			So(m.X[1][:2], ShouldResemble, []float64{1, 0})
		})

		Convey("When the test table holds an unseen category", func() {
			out, err := tr.Transform(test())
			So(err, ShouldBeNil)

			Convey("Then the category encodes as all zeros", func() {
				So(out.X[0][:2], ShouldResemble, []float64{0, 0})
				So(out.X[1][:2], ShouldResemble, []float64{1, 0})
			})
		})

		Convey("When the same table is transformed twice", func() {
			a, err := tr.Transform(test())
			So(err, ShouldBeNil)
			b, err := tr.Transform(test())
			So(err, ShouldBeNil)

			Convey("Then the output is identical", func() {
				So(a, ShouldResemble, b)
			})
		})

		Convey("When the input lacks a feature column", func() {
			_, err := tr.Transform(test().Drop("year"))

			Convey("Then it fails", func() {
				So(errors.Is(err, transform.ErrMissingColumn), ShouldBeTrue)
			})
		})

		Convey("When the input has no target column", func() {
			out, err := tr.Transform(test().Drop("price"))

			Convey("Then features are produced without targets", func() {
				So(err, ShouldBeNil)
				So(out.Rows(), ShouldEqual, 2)
				So(out.Y, ShouldBeNil)
			})
		})
	})

	Convey("Given the same training data and different test data", t, func() {
		a, _, err := transform.FitTransform(train(), contract())
		So(err, ShouldBeNil)
		_, err = a.Transform(test())
		So(err, ShouldBeNil)
		b, _, err := transform.FitTransform(train(), contract())
		So(err, ShouldBeNil)
		_, err = b.Transform(dataset.FromRecords([]dataset.Record{
			{"make": "kia", "year": 1990, "mileage": 1e6, "listing_url": nil, "price": 1},
		}))
		So(err, ShouldBeNil)

		Convey("Then the fitted transformers are the same", func() {
			ja, err := json.Marshal(a)
			So(err, ShouldBeNil)
			jb, err := json.Marshal(b)
			So(err, ShouldBeNil)
			So(string(ja), ShouldEqual, string(jb))
		})
	})

	Convey("Given a table where every target is null", t, func() {
		tbl := dataset.FromRecords([]dataset.Record{
			{"make": "ford", "year": 2010, "mileage": 1, "listing_url": nil, "price": nil},
		})
		_, _, err := transform.FitTransform(tbl, contract())

		Convey("Then fitting fails", func() {
			So(errors.Is(err, transform.ErrEmpty), ShouldBeTrue)
		})
	})
}

func TestTransformRow(t *testing.T) {
	Convey("Given a fitted transformer", t, func() {
		tr, m, err := transform.FitTransform(train(), contract())
		So(err, ShouldBeNil)

		Convey("When a training row is encoded on its own", func() {
			row, err := tr.TransformRow(dataset.Record{"make": "ford", "year": 2010, "mileage": 100})

			Convey("Then it matches the batch encoding", func() {
				So(err, ShouldBeNil)
				So(row, ShouldResemble, m.X[0])
			})
		})

		Convey("When numbers arrive as strings and a nullable column is null", func() {
			row, err := tr.TransformRow(dataset.Record{"make": "bmw", "year": "2015", "mileage": nil})

			Convey("Then the row is encoded", func() {
				So(err, ShouldBeNil)
				So(row[2], ShouldAlmostEqual, 0, 1e-9)
				So(row[3], ShouldAlmostEqual, 0, 1e-9)
			})
		})

		Convey("When a required column is absent", func() {
			_, err := tr.TransformRow(dataset.Record{"make": "bmw", "mileage": 1})

			Convey("Then the input is malformed", func() {
				So(errors.Is(err, failure.ErrMalformedInput), ShouldBeTrue)
				So(errors.Is(err, transform.ErrMissingColumn), ShouldBeTrue)
			})
		})

		Convey("When a non-nullable column is null", func() {
			_, err := tr.TransformRow(dataset.Record{"make": nil, "year": 2015, "mileage": 1})
			So(errors.Is(err, failure.ErrMalformedInput), ShouldBeTrue)
		})

		Convey("When a numeric column holds text", func() {
			_, err := tr.TransformRow(dataset.Record{"make": "bmw", "year": "new", "mileage": 1})
			So(errors.Is(err, failure.ErrMalformedInput), ShouldBeTrue)
			So(errors.Is(err, transform.ErrBadValue), ShouldBeTrue)
		})
	})
}

func TestCodec(t *testing.T) {
	Convey("Given a serialized transformer", t, func() {
		tr, _, err := transform.FitTransform(train(), contract())
		So(err, ShouldBeNil)
		b, err := json.Marshal(tr)
		So(err, ShouldBeNil)

		Convey("When it is decoded", func() {
			back, err := transform.Unmarshal(b)
			So(err, ShouldBeNil)

			Convey("Then it transforms exactly like the original", func() {
				want, _ := tr.Transform(test())
				got, err := back.Transform(test())
				So(err, ShouldBeNil)
				So(got, ShouldResemble, want)
			})
		})

		Convey("When the document is corrupt", func() {
			_, err := transform.Unmarshal([]byte(`{"format_version":99,"target":"price"}`))
			So(errors.Is(err, transform.ErrFormat), ShouldBeTrue)
			_, err = transform.Unmarshal([]byte(`not json`))
			So(errors.Is(err, transform.ErrFormat), ShouldBeTrue)
		})
	})
}
